package engine

import (
	"context"

	"github.com/roach88/koppla/internal/model"
	"github.com/roach88/koppla/internal/registry"
)

// Backend is the persistence protocol every project source implements.
//
// Create calls receive records whose ID is the client's temp id and answer
// with one CreatedRef per record that was stored.
type Backend interface {
	LoadNodeTypes(ctx context.Context) ([]model.NodeType, error)
	LoadEdgeTypes(ctx context.Context) ([]model.EdgeType, error)
	LoadNodes(ctx context.Context) ([]model.NodeRecord, error)
	LoadEdges(ctx context.Context) ([]model.EdgeRecord, error)

	CreateNodes(ctx context.Context, nodes []model.NodeRecord) ([]model.CreatedRef, error)
	UpdateNodes(ctx context.Context, nodes []model.NodeRecord) error
	DeleteNodes(ctx context.Context, ids []string) error

	CreateEdges(ctx context.Context, edges []model.EdgeRecord) ([]model.CreatedRef, error)
	UpdateEdges(ctx context.Context, edges []model.EdgeRecord) error
	DeleteEdges(ctx context.Context, ids []string) error
}

// CredentialChecker is implemented by backends that refuse to run without a
// token. A non-nil error aborts the persistence cycle before anything is
// captured.
type CredentialChecker interface {
	CheckCredentials() error
}

// Loader receives the initial project load. The editor implements it by
// allocating kernel handles.
type Loader interface {
	AllocNode(x, y float64) model.Handle
	AllocEdge(start, end model.Handle) (model.Handle, error)
	// Loaded is called once after Init, outside the store lock.
	Loaded()
}

// GraphStore is the capability set the editor depends on.
type GraphStore interface {
	Init(ctx context.Context, loader Loader) error

	SetNode(h model.Handle, data model.NodeRecord) (model.NodeRecord, error)
	NodeByHandle(h model.Handle) (model.NodeRecord, bool)
	NodeByID(id string) (model.NodeRecord, bool)
	NodeHandleByID(id string) (model.Handle, bool)
	DeleteNode(h model.Handle) error

	SetEdge(h model.Handle, data model.EdgeRecord) (model.EdgeRecord, error)
	EdgeByHandle(h model.Handle) (model.EdgeRecord, bool)
	EdgeByID(id string) (model.EdgeRecord, bool)
	EdgeHandleByID(id string) (model.Handle, bool)
	DeleteEdge(h model.Handle) error

	Registry() *registry.Registry
	NodeType(id model.NodeTypeID) (model.NodeType, bool)
	NodeTypes() []model.NodeType
	EdgeType(id model.EdgeTypeID) model.EdgeType
	EdgeTypes() []model.EdgeType

	PersistGraphState(ctx context.Context) error
	Flush(ctx context.Context) error
}

var _ GraphStore = (*Store)(nil)
