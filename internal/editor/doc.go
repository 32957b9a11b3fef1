// Package editor is the façade between user-facing code and the graph.
//
// An Editor allocates handles in the kernel, keeps the graph store's records
// in step with the kernel's geometry, and publishes a typed event stream that
// renderers subscribe to.
//
// # Reads
//
// GetNode and GetNodes hydrate kernel-held geometry and adjacency with the
// store-held record on every call. Nothing is cached in the editor, so a
// read after a layout or a drag always reflects the kernel.
//
// # Writes
//
// Every mutation goes to the kernel first and to the store second. If the
// store rejects a write, the kernel allocation is rolled back so that every
// live handle keeps exactly one record. Events are emitted after both sides
// are consistent.
//
// CRITICAL: deleting a node deletes its incident edges through the store
// first. The store refuses to delete a node that still has edge records,
// which keeps dangling edges out of the persistence queues.
//
// # View
//
// The editor also owns the 2D view transform used to map pointer positions
// to world coordinates: world = (screen - pan) / scale, with scale clamped
// to [MinScale, MaxScale].
package editor
