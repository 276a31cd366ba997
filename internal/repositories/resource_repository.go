package repositories

import (
	"context"

	"github.com/hayashida/kengen/internal/entities"
)

// ResourceRepository defines data access for the resource forest.
// Structural invariants (no cycles, single parent) are enforced by the
// hierarchy service before any mutation reaches this layer.
type ResourceRepository interface {
	// Create stores a new resource node.
	Create(ctx context.Context, node *entities.ResourceNode) error

	// Get retrieves a node by ID. Returns entities.ErrResourceNotFound
	// if the node does not exist.
	Get(ctx context.Context, id string) (*entities.ResourceNode, error)

	// Move atomically reparents a node: removes it from the old
	// parent's children, adds it to the new parent's children, and
	// updates its parent pointer. A nil newParentID makes the node a
	// root.
	Move(ctx context.Context, id string, newParentID *string) error

	// Delete removes a node. Reparenting or cascading of children is
	// owned by the storage collaborator, not this engine.
	Delete(ctx context.Context, id string) error

	// List returns every node, for dashboard-style queries.
	List(ctx context.Context) ([]*entities.ResourceNode, error)
}
