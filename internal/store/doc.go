// Package store provides the SQLite database behind the local backend and the
// durable outbox.
//
// One database file may hold both: the project tables (node_types,
// edge_types, nodes, edges) used by the local backend, and the outbox table
// used by the graph store to stage mutations before they reach any backend.
//
// # Patterns
//
// Deterministic reads:
//   - Project rows are returned in insertion order (ORDER BY rowid)
//   - Outbox rows are returned ORDER BY seq ASC, id ASC COLLATE BINARY
//
// Referential integrity:
//   - edges.start_id and edges.end_id reference nodes(id) ON DELETE CASCADE
//   - Inserting an edge whose endpoint does not exist fails the whole batch
//
// Batches:
//   - Every multi-row write runs in one transaction; a failing row rolls back
//     the batch
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for lock contention
//   - foreign_keys=ON: Enforce edge endpoints
package store
