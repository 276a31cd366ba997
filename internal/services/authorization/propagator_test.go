package authorization

import (
	"context"
	"fmt"
	"testing"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories/memory"
)

// stubChain serves a fixed ancestor chain, nearest first.
type stubChain struct {
	chains map[string][]*entities.ResourceNode
	err    error
}

func (s *stubChain) AncestorChain(ctx context.Context, resourceID string) ([]*entities.ResourceNode, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chains[resourceID], nil
}

func seedSource(t *testing.T, repo *memory.SourceRepository, id, resourceID string, kind entities.SourceKind, priority int, perms map[entities.Action]entities.Tri) {
	t.Helper()
	err := repo.Create(context.Background(), &entities.PermissionSource{
		ID:          id,
		ResourceID:  resourceID,
		SubjectRef:  "role:editor",
		Kind:        kind,
		Priority:    priority,
		Permissions: perms,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("seed source %s: %v", id, err)
	}
}

func TestPropagator_AncestorSources(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	seedSource(t, sources, "parent-src", "folder-parent", entities.SourceRole, 50,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Allow})
	seedSource(t, sources, "grand-src", "folder-grand", entities.SourceGroup, 80,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Deny})

	chain := &stubChain{chains: map[string][]*entities.ResourceNode{
		"doc1": {
			{ID: "folder-parent", Kind: entities.ResourceFolder},
			{ID: "folder-grand", Kind: entities.ResourceFolder},
		},
	}}

	propagator := NewPropagator(chain, sources)
	inherited, err := propagator.AncestorSources(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("AncestorSources() error: %v", err)
	}
	if len(inherited) != 2 {
		t.Fatalf("AncestorSources() = %d sources, want 2", len(inherited))
	}

	// Nearest ancestor first, kind rewritten, priority decayed by depth.
	first := inherited[0]
	if first.ID != "parent-src#inh0" {
		t.Errorf("first inherited ID = %s, want parent-src#inh0", first.ID)
	}
	if first.Kind != entities.SourceInherited {
		t.Errorf("first inherited kind = %s, want inherited", first.Kind)
	}
	if first.Priority != -1 {
		t.Errorf("first inherited priority = %d, want -1", first.Priority)
	}

	second := inherited[1]
	if second.ID != "grand-src#inh1" {
		t.Errorf("second inherited ID = %s, want grand-src#inh1", second.ID)
	}
	if second.Priority != -2 {
		t.Errorf("second inherited priority = %d, want -2", second.Priority)
	}

	// The farther ancestor's nominal priority (80 > 50) must not leak
	// through the wrapping: nearer always outranks farther.
	if !(first.Priority > second.Priority) {
		t.Error("nearer ancestor must carry higher priority than farther one")
	}
}

func TestPropagator_InactiveAncestorSourcesExcluded(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	seedSource(t, sources, "active-src", "folder-parent", entities.SourceRole, 50,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Allow})

	inactive := &entities.PermissionSource{
		ID:          "inactive-src",
		ResourceID:  "folder-parent",
		SubjectRef:  "role:viewer",
		Kind:        entities.SourceRole,
		Priority:    90,
		Permissions: map[entities.Action]entities.Tri{entities.ActionView: entities.Deny},
		Active:      false,
	}
	if err := sources.Create(context.Background(), inactive); err != nil {
		t.Fatalf("seed inactive source: %v", err)
	}

	chain := &stubChain{chains: map[string][]*entities.ResourceNode{
		"doc1": {{ID: "folder-parent", Kind: entities.ResourceFolder}},
	}}

	propagator := NewPropagator(chain, sources)
	inherited, err := propagator.AncestorSources(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("AncestorSources() error: %v", err)
	}
	if len(inherited) != 1 {
		t.Fatalf("AncestorSources() = %d sources, want 1 (inactive excluded)", len(inherited))
	}
	if inherited[0].ID != "active-src#inh0" {
		t.Errorf("inherited ID = %s, want active-src#inh0", inherited[0].ID)
	}
}

func TestPropagator_DerivedSourcesDoNotMutateStored(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	seedSource(t, sources, "parent-src", "folder-parent", entities.SourceRole, 50,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Allow})

	chain := &stubChain{chains: map[string][]*entities.ResourceNode{
		"doc1": {{ID: "folder-parent", Kind: entities.ResourceFolder}},
	}}

	propagator := NewPropagator(chain, sources)
	inherited, err := propagator.AncestorSources(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("AncestorSources() error: %v", err)
	}
	inherited[0].Permissions[entities.ActionView] = entities.Deny

	stored, err := sources.Get(context.Background(), "parent-src")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Permissions[entities.ActionView] != entities.Allow {
		t.Error("mutating a derived source changed the stored ancestor source")
	}
}

func TestPropagator_ChainErrorPropagates(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	chain := &stubChain{err: fmt.Errorf("%w: ancestor chain of doc1", entities.ErrDepthExceeded)}

	propagator := NewPropagator(chain, sources)
	if _, err := propagator.AncestorSources(context.Background(), "doc1"); err == nil {
		t.Error("AncestorSources() should surface chain errors, not truncate")
	}
}
