// Package engine implements the koppla graph store: the record cache, the
// handle/id identity index and the synchronization engine that batches
// mutations to a backend.
//
// ARCHITECTURE:
//
// Records and identity:
// Every node and edge the editor creates gets a kernel handle. The Store keeps
// one record per handle in an identity.Index, keyed by the backend id once it
// is known and by a locally minted temp id until then.
//
// Mutation queues:
// SetNode/SetEdge/DeleteNode/DeleteEdge update the cache immediately and
// enqueue the record's key for create, update or delete. A key is never queued
// for delete while it is queued for create or update.
//
// Persistence cycle:
//  1. A trailing-edge throttle (default 1s) or an explicit Flush triggers a cycle
//  2. Cycles are single-flight; concurrent triggers share one cycle
//  3. Per kind (nodes, then edges) the queues are captured and cleared
//  4. The captured batch is staged in the outbox
//  5. Create, update and delete run concurrently and are all awaited
//  6. Create responses remap temp ids to backend ids under the store lock
//  7. Failed operations go back into the queues and a retry is scheduled
//
// HELD-BACK KEYS:
// A key that cannot be submitted yet stays in its queue across captures:
//   - edges whose endpoint node still has a temp id
//   - updates and deletes of records whose own id is still temporary
//
// Remapping renames held-back keys, so they go out with the backend id on the
// next cycle.
//
// Thread-safety: every exported Store method is safe for concurrent use.
// Backend I/O never happens while the store lock is held.
package engine
