// Package harness replays scripted editing sessions for conformance testing.
//
// A scenario seeds an in-memory recording backend, loads it through the
// editor, then feeds pointer, keyboard and clock steps to the interaction
// controller. Every state transition, editor event and backend request is
// recorded in a trace that assertions and golden files are checked against.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: connect_and_drag
//	description: "What this scenario validates"
//	grid_size: 20
//	seed:
//	  node_types: [user, group]
//	  edge_types: [member]
//	  nodes:
//	    - { key: alice, name: alice, type: user, x: 0, y: 0 }
//	    - { key: admins, name: admins, type: group, x: 100, y: 0 }
//	  edges:
//	    - { type: member, start: alice, end: admins }
//	steps:
//	  - tool: connector
//	  - edge_type: member
//	  - down: { x: 0, y: 0 }
//	  - up: { x: 100, y: 0 }
//	  - advance: 1s
//	  - flush: true
//	assertions:
//	  - type: request_count
//	    op: create-edges
//	    count: 1
//	  - type: node_at
//	    node: alice
//	    x: 0
//	    y: 0
//
// Each step sets exactly one of: tool, edge_type, select (seed keys), down,
// move, up, key, wheel ({at, delta}), drop ({at, name, type}), advance or
// flush.
//
// # Assertion Types
//
//   - state: the machine's final state
//   - count: number of nodes or edges in the editor
//   - request_count: number of backend requests for an operation
//   - trace_contains: an event name appears in the trace
//   - trace_order: event names first appear in the given order
//   - node_at: a seed node's final position
//   - selection: the final selection, by seed key
//
// # Deterministic Testing
//
// Time only advances on advance steps, temp ids come from a fixed sequence
// (t1, t2, ...) and the backend assigns n-1, e-1, ... so traces are
// identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/connect_drag_delete.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
