// Package csvimport bulk-loads a graph from a CSV export.
//
// The first row is the header. Every following row becomes a map from column
// name to values; a cell holding ';' is split into several values.
//
// A Rules file says which columns describe nodes and which describe edges:
//
//	nodes:
//	  - id_column: user_id
//	    name_column: user_name
//	    type: user
//	  - id_column: group
//	    name_column: group
//	    type: group
//	relationships:
//	  - source: user_id
//	    target: group
//	    edge_type: member
//	  - source: user_id
//	    target: resource
//	    edge_types:
//	      "role:admin": owner
//	      "role:viewer": reader
//
// A relationship either has a fixed edge_type or looks the type up from
// edge_types, keyed "column:value". Every key must name the same column.
//
// # Placement
//
// Imported nodes are laid out on a grid 1500 units wide with 80 units between
// nodes, in the order they were first seen.
package csvimport
