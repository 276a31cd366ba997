package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// ResourceRepository is an in-memory implementation of
// repositories.ResourceRepository. Readers get copies, so long-running
// queries never observe a half-applied move.
type ResourceRepository struct {
	mu       sync.RWMutex
	nodes    map[string]*entities.ResourceNode
	revision *Revision
}

// NewResourceRepository creates an empty in-memory resource repository.
// rev may be nil when snapshot-token bookkeeping is not needed.
func NewResourceRepository(rev *Revision) *ResourceRepository {
	return &ResourceRepository{
		nodes:    make(map[string]*entities.ResourceNode),
		revision: rev,
	}
}

func (r *ResourceRepository) bump() {
	if r.revision != nil {
		r.revision.Bump()
	}
}

func cloneNode(n *entities.ResourceNode) *entities.ResourceNode {
	dup := *n
	if n.ParentID != nil {
		parent := *n.ParentID
		dup.ParentID = &parent
	}
	dup.Children = append([]string(nil), n.Children...)
	return &dup
}

// Create stores a new resource node.
func (r *ResourceRepository) Create(ctx context.Context, node *entities.ResourceNode) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid resource node: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return fmt.Errorf("resource %s already exists", node.ID)
	}

	stored := cloneNode(node)
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.nodes[stored.ID] = stored

	if stored.ParentID != nil {
		if parent, ok := r.nodes[*stored.ParentID]; ok {
			parent.Children = append(parent.Children, stored.ID)
		}
	}

	r.bump()
	return nil
}

// Get retrieves a node by ID.
func (r *ResourceRepository) Get(ctx context.Context, id string) (*entities.ResourceNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}
	return cloneNode(node), nil
}

// Move atomically reparents a node under the repository's writer lock.
func (r *ResourceRepository) Move(ctx context.Context, id string, newParentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}

	if node.ParentID != nil {
		if oldParent, ok := r.nodes[*node.ParentID]; ok {
			oldParent.Children = removeID(oldParent.Children, id)
		}
	}

	if newParentID != nil {
		parent, ok := r.nodes[*newParentID]
		if !ok {
			return fmt.Errorf("%w: %s", entities.ErrResourceNotFound, *newParentID)
		}
		parent.Children = append(parent.Children, id)
		target := *newParentID
		node.ParentID = &target
	} else {
		node.ParentID = nil
	}
	node.UpdatedAt = time.Now()

	r.bump()
	return nil
}

// Delete removes a node.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}

	if node.ParentID != nil {
		if parent, ok := r.nodes[*node.ParentID]; ok {
			parent.Children = removeID(parent.Children, id)
		}
	}
	delete(r.nodes, id)

	r.bump()
	return nil
}

// List returns every node sorted by ID.
func (r *ResourceRepository) List(ctx context.Context) ([]*entities.ResourceNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.ResourceNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, cloneNode(node))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

var _ repositories.ResourceRepository = (*ResourceRepository)(nil)
