package services

import (
	"context"
	"fmt"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
	"github.com/hayashida/kengen/internal/services/authorization"
)

// HierarchyService guards every structural mutation of the resource
// forest. It is the single authorizing gate for moves: UI drags, API
// calls and bulk imports all pass through ValidateMove, never a
// per-call-site reimplementation.
type HierarchyService struct {
	resources repositories.ResourceRepository
}

// NewHierarchyService creates a new HierarchyService.
func NewHierarchyService(resources repositories.ResourceRepository) *HierarchyService {
	return &HierarchyService{resources: resources}
}

// CreateResource validates and stores a new node. Existence of resource
// content is owned by the storage collaborator; the engine only tracks
// the node and its position in the forest.
func (s *HierarchyService) CreateResource(ctx context.Context, node *entities.ResourceNode) error {
	if err := node.Validate(); err != nil {
		return err
	}
	if node.ParentID != nil {
		parent, err := s.resources.Get(ctx, *node.ParentID)
		if err != nil {
			return err
		}
		if !parent.IsFolder() {
			return fmt.Errorf("%w: %s", entities.ErrNotAFolder, parent.ID)
		}
	}
	return s.resources.Create(ctx, node)
}

// GetResource retrieves a node by ID.
func (s *HierarchyService) GetResource(ctx context.Context, id string) (*entities.ResourceNode, error) {
	return s.resources.Get(ctx, id)
}

// ValidateMove checks whether reparenting nodeID under newParentID
// keeps the forest well-formed. A nil newParentID (move to root) is
// always structurally safe for an existing node. Failures are
// permanent: the caller must supply a different target.
func (s *HierarchyService) ValidateMove(ctx context.Context, nodeID string, newParentID *string) error {
	if _, err := s.resources.Get(ctx, nodeID); err != nil {
		return err
	}
	if newParentID == nil {
		return nil
	}

	if *newParentID == nodeID {
		return fmt.Errorf("%w: %s", entities.ErrSelfParent, nodeID)
	}

	parent, err := s.resources.Get(ctx, *newParentID)
	if err != nil {
		return err
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: %s", entities.ErrNotAFolder, parent.ID)
	}

	// Walk the target's ancestor chain; if the moving node appears, the
	// move would create a cycle.
	ancestor := parent
	for depth := 0; ; depth++ {
		if depth > authorization.MaxDepth {
			return fmt.Errorf("%w: walking ancestors of %s", entities.ErrDepthExceeded, *newParentID)
		}
		if ancestor.ID == nodeID {
			return fmt.Errorf("%w: %s is a descendant of %s", entities.ErrCycleDetected, *newParentID, nodeID)
		}
		if ancestor.ParentID == nil {
			return nil
		}
		ancestor, err = s.resources.Get(ctx, *ancestor.ParentID)
		if err != nil {
			return err
		}
	}
}

// Move validates and applies a reparenting atomically. A rejected move
// leaves the hierarchy untouched.
func (s *HierarchyService) Move(ctx context.Context, nodeID string, newParentID *string) error {
	if err := s.ValidateMove(ctx, nodeID, newParentID); err != nil {
		return err
	}
	return s.resources.Move(ctx, nodeID, newParentID)
}

// AncestorChain returns the node's ancestors nearest-first, terminating
// at a root. Exceeding the depth bound is an internal error: the
// hierarchy validator should have made it impossible.
func (s *HierarchyService) AncestorChain(ctx context.Context, resourceID string) ([]*entities.ResourceNode, error) {
	node, err := s.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	var chain []*entities.ResourceNode
	for node.ParentID != nil {
		if len(chain) >= authorization.MaxDepth {
			return nil, fmt.Errorf("%w: ancestor chain of %s", entities.ErrDepthExceeded, resourceID)
		}
		node, err = s.resources.Get(ctx, *node.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, node)
	}
	return chain, nil
}

var _ authorization.AncestorChainProvider = (*HierarchyService)(nil)
