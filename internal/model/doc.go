// Package model defines the records shared by every layer of the graph core:
// kernel handles, node and edge records, type descriptors and the wire shapes
// exchanged with a persistence backend.
//
// This package imports nothing internal. Everything else imports model.
//
// Key conventions:
//   - Handles are assigned by the kernel and never serialized (json:"-")
//   - Entity ids are assigned by the backend; an empty ID means "not yet known"
//   - All JSON tags use snake_case to match the backend protocol
//   - Node names are NFC normalized before they enter the cache
package model
