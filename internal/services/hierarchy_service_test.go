package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories/memory"
	"github.com/hayashida/kengen/internal/services/authorization"
)

func strPtr(s string) *string { return &s }

func newHierarchy(t *testing.T) (*HierarchyService, *memory.ResourceRepository) {
	t.Helper()
	repo := memory.NewResourceRepository(memory.NewRevision())
	return NewHierarchyService(repo), repo
}

func mustCreate(t *testing.T, svc *HierarchyService, id string, kind entities.ResourceKind, parentID *string) {
	t.Helper()
	err := svc.CreateResource(context.Background(), &entities.ResourceNode{
		ID:       id,
		Kind:     kind,
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("failed to create %s: %v", id, err)
	}
}

func TestHierarchyService_CreateResource(t *testing.T) {
	svc, _ := newHierarchy(t)
	ctx := context.Background()

	mustCreate(t, svc, "root", entities.ResourceFolder, nil)
	mustCreate(t, svc, "doc", entities.ResourceDocument, strPtr("root"))

	t.Run("parent must exist", func(t *testing.T) {
		err := svc.CreateResource(ctx, &entities.ResourceNode{
			ID:       "orphan",
			Kind:     entities.ResourceDocument,
			ParentID: strPtr("ghost"),
		})
		if !errors.Is(err, entities.ErrResourceNotFound) {
			t.Errorf("expected ErrResourceNotFound, got %v", err)
		}
	})

	t.Run("parent must be a folder", func(t *testing.T) {
		err := svc.CreateResource(ctx, &entities.ResourceNode{
			ID:       "nested",
			Kind:     entities.ResourceDocument,
			ParentID: strPtr("doc"),
		})
		if !errors.Is(err, entities.ErrNotAFolder) {
			t.Errorf("expected ErrNotAFolder, got %v", err)
		}
	})

	t.Run("self parent rejected", func(t *testing.T) {
		err := svc.CreateResource(ctx, &entities.ResourceNode{
			ID:       "loop",
			Kind:     entities.ResourceFolder,
			ParentID: strPtr("loop"),
		})
		if !errors.Is(err, entities.ErrSelfParent) {
			t.Errorf("expected ErrSelfParent, got %v", err)
		}
	})
}

func TestHierarchyService_ValidateMove(t *testing.T) {
	svc, _ := newHierarchy(t)
	ctx := context.Background()

	// a > b > c, plus a sibling folder d and a document doc under a
	mustCreate(t, svc, "a", entities.ResourceFolder, nil)
	mustCreate(t, svc, "b", entities.ResourceFolder, strPtr("a"))
	mustCreate(t, svc, "c", entities.ResourceFolder, strPtr("b"))
	mustCreate(t, svc, "d", entities.ResourceFolder, nil)
	mustCreate(t, svc, "doc", entities.ResourceDocument, strPtr("a"))

	tests := []struct {
		name        string
		nodeID      string
		newParentID *string
		wantErr     error
	}{
		{name: "valid reparent", nodeID: "c", newParentID: strPtr("d")},
		{name: "move to root", nodeID: "b", newParentID: nil},
		{name: "self parent", nodeID: "b", newParentID: strPtr("b"), wantErr: entities.ErrSelfParent},
		{name: "direct cycle", nodeID: "a", newParentID: strPtr("b"), wantErr: entities.ErrCycleDetected},
		{name: "deep cycle", nodeID: "a", newParentID: strPtr("c"), wantErr: entities.ErrCycleDetected},
		{name: "document parent", nodeID: "b", newParentID: strPtr("doc"), wantErr: entities.ErrNotAFolder},
		{name: "missing node", nodeID: "ghost", newParentID: strPtr("a"), wantErr: entities.ErrResourceNotFound},
		{name: "missing parent", nodeID: "b", newParentID: strPtr("ghost"), wantErr: entities.ErrResourceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateMove(ctx, tt.nodeID, tt.newParentID)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMove() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMove() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHierarchyService_RejectedMoveLeavesTreeUntouched(t *testing.T) {
	svc, _ := newHierarchy(t)
	ctx := context.Background()

	mustCreate(t, svc, "a", entities.ResourceFolder, nil)
	mustCreate(t, svc, "b", entities.ResourceFolder, strPtr("a"))
	mustCreate(t, svc, "c", entities.ResourceFolder, strPtr("b"))

	err := svc.Move(ctx, "a", strPtr("c"))
	if !errors.Is(err, entities.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	// Every parent pointer is unchanged
	a, _ := svc.GetResource(ctx, "a")
	if a.ParentID != nil {
		t.Errorf("expected a at root, got parent %v", *a.ParentID)
	}
	b, _ := svc.GetResource(ctx, "b")
	if b.ParentID == nil || *b.ParentID != "a" {
		t.Error("expected b still under a")
	}
	c, _ := svc.GetResource(ctx, "c")
	if c.ParentID == nil || *c.ParentID != "b" {
		t.Error("expected c still under b")
	}
}

func TestHierarchyService_AncestorChain(t *testing.T) {
	svc, _ := newHierarchy(t)
	ctx := context.Background()

	mustCreate(t, svc, "top", entities.ResourceFolder, nil)
	mustCreate(t, svc, "mid", entities.ResourceFolder, strPtr("top"))
	mustCreate(t, svc, "leaf", entities.ResourceDocument, strPtr("mid"))

	chain, err := svc.AncestorChain(ctx, "leaf")
	if err != nil {
		t.Fatalf("AncestorChain() error = %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(chain))
	}
	if chain[0].ID != "mid" || chain[1].ID != "top" {
		t.Errorf("unexpected chain order: %s, %s", chain[0].ID, chain[1].ID)
	}

	// A root has no ancestors
	chain, err = svc.AncestorChain(ctx, "top")
	if err != nil {
		t.Fatalf("AncestorChain() error = %v", err)
	}
	if len(chain) != 0 {
		t.Errorf("expected empty chain for root, got %d", len(chain))
	}
}

func TestHierarchyService_AncestorChainDepthBound(t *testing.T) {
	svc, _ := newHierarchy(t)
	ctx := context.Background()

	// Build a chain one node deeper than the walk tolerates. Each
	// folder is valid on its own; only the accumulated depth breaks
	// the invariant.
	mustCreate(t, svc, "f0", entities.ResourceFolder, nil)
	for i := 1; i <= authorization.MaxDepth+1; i++ {
		mustCreate(t, svc, fmt.Sprintf("f%d", i), entities.ResourceFolder, strPtr(fmt.Sprintf("f%d", i-1)))
	}
	leaf := fmt.Sprintf("f%d", authorization.MaxDepth+1)

	_, err := svc.AncestorChain(ctx, leaf)
	if !errors.Is(err, entities.ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}

	// A node well inside the bound still resolves its chain
	chain, err := svc.AncestorChain(ctx, "f3")
	if err != nil {
		t.Fatalf("AncestorChain() error = %v", err)
	}
	if len(chain) != 3 {
		t.Errorf("expected 3 ancestors, got %d", len(chain))
	}
}
