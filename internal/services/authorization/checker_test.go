package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories/memory"
	"github.com/hayashida/kengen/pkg/cache/memorycache"
)

func findPermission(t *testing.T, perms []*entities.EffectivePermission, action entities.Action) *entities.EffectivePermission {
	t.Helper()
	for _, perm := range perms {
		if perm.Action == action {
			return perm
		}
	}
	t.Fatalf("no effective permission for action %s", action)
	return nil
}

func TestSubject_Matches(t *testing.T) {
	subject := Subject{Ref: "user:alice", Roles: []string{"editor"}, Groups: []string{"eng"}}

	tests := []struct {
		ref  string
		want bool
	}{
		{"user:alice", true},
		{"user:bob", false},
		{"role:editor", true},
		{"role:admin", false},
		{"group:eng", true},
		{"group:sales", false},
	}

	for _, tt := range tests {
		if got := subject.Matches(tt.ref); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestChecker_DirectAndRoleSources(t *testing.T) {
	rev := memory.NewRevision()
	sources := memory.NewSourceRepository(rev)
	seedSource(t, sources, "role-editor", "doc1", entities.SourceRole, 50,
		map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow})

	directDeny := &entities.PermissionSource{
		ID:          "direct-deny",
		ResourceID:  "doc1",
		SubjectRef:  "user:alice",
		Kind:        entities.SourceDirect,
		Priority:    100,
		Permissions: map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny},
		Active:      true,
	}
	if err := sources.Create(context.Background(), directDeny); err != nil {
		t.Fatalf("seed direct source: %v", err)
	}

	chain := &stubChain{chains: map[string][]*entities.ResourceNode{}}
	checker := NewChecker(sources, NewPropagator(chain, sources))

	// Alice holds the editor role but carries a direct deny.
	perms, err := checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:    Subject{Ref: "user:alice", Roles: []string{"editor"}},
		ResourceID: "doc1",
	})
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}

	edit := findPermission(t, perms, entities.ActionEdit)
	if edit.Granted {
		t.Error("edit granted despite direct deny")
	}
	if edit.WinningSourceID != "direct-deny" {
		t.Errorf("winner = %s, want direct-deny", edit.WinningSourceID)
	}

	// Bob holds the same role but has no direct deny.
	perms, err = checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:    Subject{Ref: "user:bob", Roles: []string{"editor"}},
		ResourceID: "doc1",
	})
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}
	if edit := findPermission(t, perms, entities.ActionEdit); !edit.Granted {
		t.Error("edit denied for bob, want role allow")
	}
}

func TestChecker_InheritedGrant(t *testing.T) {
	// Ancestor folder allows view for the editor role; the document has
	// no own sources. The synthesized inherited source must win.
	sources := memory.NewSourceRepository(nil)
	seedSource(t, sources, "folder-view", "folder1", entities.SourceRole, 50,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Allow})

	chain := &stubChain{chains: map[string][]*entities.ResourceNode{
		"doc1": {{ID: "folder1", Kind: entities.ResourceFolder}},
	}}
	checker := NewChecker(sources, NewPropagator(chain, sources))

	perms, err := checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:    Subject{Ref: "user:alice", Roles: []string{"editor"}},
		ResourceID: "doc1",
	})
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}

	view := findPermission(t, perms, entities.ActionView)
	if !view.Granted {
		t.Error("view denied, want inherited allow")
	}
	if view.WinningSourceID != "folder-view#inh0" {
		t.Errorf("winner = %s, want folder-view#inh0", view.WinningSourceID)
	}
	if len(view.Contributing) != 1 || view.Contributing[0].Kind != entities.SourceInherited {
		t.Error("winning contribution should be the inherited source")
	}
}

func TestChecker_ContextualSourcesBypassPersistence(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	chain := &stubChain{chains: map[string][]*entities.ResourceNode{}}
	checker := NewChecker(sources, NewPropagator(chain, sources))

	contextual := &entities.PermissionSource{
		ID:          "what-if",
		ResourceID:  "doc1",
		SubjectRef:  "user:alice",
		Kind:        entities.SourceDirect,
		Priority:    10,
		Permissions: map[entities.Action]entities.Tri{entities.ActionView: entities.Allow},
		Active:      true,
	}

	perms, err := checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:           Subject{Ref: "user:alice"},
		ResourceID:        "doc1",
		ContextualSources: []*entities.PermissionSource{contextual},
	})
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}
	if view := findPermission(t, perms, entities.ActionView); !view.Granted {
		t.Error("what-if source ignored")
	}

	// Nothing was persisted: a plain query still default-denies.
	perms, err = checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:    Subject{Ref: "user:alice"},
		ResourceID: "doc1",
	})
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}
	if view := findPermission(t, perms, entities.ActionView); view.Granted {
		t.Error("contextual source leaked into persistent state")
	}
}

func TestChecker_UnknownContextualActionRejected(t *testing.T) {
	sources := memory.NewSourceRepository(nil)
	chain := &stubChain{chains: map[string][]*entities.ResourceNode{}}
	checker := NewChecker(sources, NewPropagator(chain, sources))

	_, err := checker.EffectivePermissions(context.Background(), &CheckRequest{
		Subject:    Subject{Ref: "user:alice"},
		ResourceID: "doc1",
		ContextualSources: []*entities.PermissionSource{{
			ID:          "bad",
			SubjectRef:  "user:alice",
			Kind:        entities.SourceDirect,
			Permissions: map[entities.Action]entities.Tri{entities.Action("fly"): entities.Allow},
		}},
	})
	if err == nil {
		t.Error("unknown contextual action accepted")
	}
}

func TestChecker_CacheInvalidatedBySnapshotBump(t *testing.T) {
	rev := memory.NewRevision()
	sources := memory.NewSourceRepository(rev)
	chain := &stubChain{chains: map[string][]*entities.ResourceNode{}}

	resultCache, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes: 1 << 20,
		DefaultTTL:   time.Minute,
	})
	if err != nil {
		t.Fatalf("cache setup: %v", err)
	}
	defer resultCache.Close()

	checker := NewCheckerWithCache(sources, NewPropagator(chain, sources), resultCache, rev, time.Minute)

	req := &CheckRequest{Subject: Subject{Ref: "user:alice"}, ResourceID: "doc1"}

	perms, err := checker.EffectivePermissions(context.Background(), req)
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}
	if view := findPermission(t, perms, entities.ActionView); view.Granted {
		t.Error("expected default deny before any source exists")
	}

	// Mutating the source set bumps the revision, so the cached default
	// deny must not be served again.
	seedSource(t, sources, "direct-allow", "doc1", entities.SourceDirect, 10,
		map[entities.Action]entities.Tri{entities.ActionView: entities.Allow})

	directUser := &entities.PermissionSource{
		ID:          "alice-allow",
		ResourceID:  "doc1",
		SubjectRef:  "user:alice",
		Kind:        entities.SourceDirect,
		Priority:    10,
		Permissions: map[entities.Action]entities.Tri{entities.ActionView: entities.Allow},
		Active:      true,
	}
	if err := sources.Create(context.Background(), directUser); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	perms, err = checker.EffectivePermissions(context.Background(), req)
	if err != nil {
		t.Fatalf("EffectivePermissions() error: %v", err)
	}
	if view := findPermission(t, perms, entities.ActionView); !view.Granted {
		t.Error("stale cached resolution served after mutation")
	}
}
