package authorization

import (
	"testing"

	"github.com/hayashida/kengen/internal/entities"
)

func source(id string, kind entities.SourceKind, priority int, perms map[entities.Action]entities.Tri) *entities.PermissionSource {
	return &entities.PermissionSource{
		ID:          id,
		ResourceID:  "doc1",
		SubjectRef:  "user:alice",
		Kind:        kind,
		Priority:    priority,
		Permissions: perms,
		Active:      true,
	}
}

func TestResolve_DefaultDeny(t *testing.T) {
	tests := []struct {
		name    string
		sources []*entities.PermissionSource
	}{
		{
			name:    "no sources at all",
			sources: nil,
		},
		{
			name: "all sources unspecified for the action",
			sources: []*entities.PermissionSource{
				source("s1", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(entities.ActionView, tt.sources)
			if got.Granted {
				t.Error("Resolve() granted = true, want default deny")
			}
			if got.WinningSourceID != "" {
				t.Errorf("Resolve() winner = %q, want none", got.WinningSourceID)
			}
		})
	}
}

func TestResolve_ExplicitDenyPrecedence(t *testing.T) {
	// A direct Deny beats any number of Allow sources at any priority.
	sources := []*entities.PermissionSource{
		source("allow-high", entities.SourceRole, 1000, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow}),
		source("deny-direct", entities.SourceDirect, 1, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny}),
		source("allow-group", entities.SourceGroup, 500, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow}),
	}

	got := Resolve(entities.ActionEdit, sources)
	if got.Granted {
		t.Error("Resolve() granted = true, want deny")
	}
	if got.WinningSourceID != "deny-direct" {
		t.Errorf("Resolve() winner = %q, want deny-direct", got.WinningSourceID)
	}
}

func TestResolve_PriorityOrdering(t *testing.T) {
	sources := []*entities.PermissionSource{
		source("role-50", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionView: entities.Allow}),
		source("group-30", entities.SourceGroup, 30, map[entities.Action]entities.Tri{entities.ActionView: entities.Deny}),
	}

	got := Resolve(entities.ActionView, sources)
	if !got.Granted {
		t.Error("Resolve() granted = false, want allow from higher-priority role")
	}
	if got.WinningSourceID != "role-50" {
		t.Errorf("Resolve() winner = %q, want role-50", got.WinningSourceID)
	}
}

func TestResolve_TieBrokenByKindThenID(t *testing.T) {
	tests := []struct {
		name       string
		sources    []*entities.PermissionSource
		wantWinner string
		wantGrant  bool
	}{
		{
			name: "equal priority, role outranks group",
			sources: []*entities.PermissionSource{
				source("grp", entities.SourceGroup, 50, map[entities.Action]entities.Tri{entities.ActionShare: entities.Allow}),
				source("rol", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionShare: entities.Deny}),
			},
			wantWinner: "rol",
			wantGrant:  false,
		},
		{
			name: "equal priority and kind, lower ID wins",
			sources: []*entities.PermissionSource{
				source("role-b", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionShare: entities.Deny}),
				source("role-a", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionShare: entities.Allow}),
			},
			wantWinner: "role-a",
			wantGrant:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(entities.ActionShare, tt.sources)
			if got.WinningSourceID != tt.wantWinner {
				t.Errorf("Resolve() winner = %q, want %q", got.WinningSourceID, tt.wantWinner)
			}
			if got.Granted != tt.wantGrant {
				t.Errorf("Resolve() granted = %v, want %v", got.Granted, tt.wantGrant)
			}
		})
	}
}

func TestResolve_InheritedStrictlySubordinate(t *testing.T) {
	// An inherited source must never outrank a resource-level source,
	// regardless of the ancestor's nominal priority before wrapping.
	// Wrapped priorities are negative; resource-level are >= 0.
	sources := []*entities.PermissionSource{
		source("own-deny", entities.SourceGroup, 0, map[entities.Action]entities.Tri{entities.ActionView: entities.Deny}),
		source("anc#inh0", entities.SourceInherited, -1, map[entities.Action]entities.Tri{entities.ActionView: entities.Allow}),
	}

	got := Resolve(entities.ActionView, sources)
	if got.Granted {
		t.Error("inherited Allow outranked resource-level Deny")
	}
	if got.WinningSourceID != "own-deny" {
		t.Errorf("Resolve() winner = %q, want own-deny", got.WinningSourceID)
	}
}

func TestResolve_InheritedWinsWhenResourceSilent(t *testing.T) {
	sources := []*entities.PermissionSource{
		source("anc#inh0", entities.SourceInherited, -1, map[entities.Action]entities.Tri{entities.ActionView: entities.Allow}),
	}

	got := Resolve(entities.ActionView, sources)
	if !got.Granted {
		t.Error("Resolve() granted = false, want inherited allow")
	}
	if got.WinningSourceID != "anc#inh0" {
		t.Errorf("Resolve() winner = %q, want anc#inh0", got.WinningSourceID)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	sources := []*entities.PermissionSource{
		source("a", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow}),
		source("b", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny}),
		source("c", entities.SourceGroup, 70, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny}),
	}

	first := Resolve(entities.ActionEdit, sources)
	second := Resolve(entities.ActionEdit, sources)

	if first.Granted != second.Granted || first.WinningSourceID != second.WinningSourceID {
		t.Errorf("Resolve() not deterministic: (%v,%s) vs (%v,%s)",
			first.Granted, first.WinningSourceID, second.Granted, second.WinningSourceID)
	}
	if first.Explanation != second.Explanation {
		t.Error("Resolve() explanations differ across identical calls")
	}
}

func TestResolve_ContributionsRecordDissent(t *testing.T) {
	sources := []*entities.PermissionSource{
		source("direct-deny", entities.SourceDirect, 100, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny}),
		source("role-allow", entities.SourceRole, 50, map[entities.Action]entities.Tri{entities.ActionEdit: entities.Allow}),
	}

	got := Resolve(entities.ActionEdit, sources)
	if len(got.Contributing) != 2 {
		t.Fatalf("Resolve() contributions = %d, want 2", len(got.Contributing))
	}

	winners := 0
	for _, contribution := range got.Contributing {
		if contribution.IsWinner {
			winners++
			if contribution.SourceID != "direct-deny" {
				t.Errorf("winner contribution = %s, want direct-deny", contribution.SourceID)
			}
		}
	}
	if winners != 1 {
		t.Errorf("Resolve() marked %d winners, want exactly 1", winners)
	}
}

func TestResolveAll_CoversEveryKnownAction(t *testing.T) {
	got := ResolveAll(nil)
	if len(got) != len(entities.KnownActions) {
		t.Fatalf("ResolveAll() returned %d results, want %d", len(got), len(entities.KnownActions))
	}
	for i, perm := range got {
		if perm.Action != entities.KnownActions[i] {
			t.Errorf("ResolveAll()[%d].Action = %s, want %s", i, perm.Action, entities.KnownActions[i])
		}
		if perm.Granted {
			t.Errorf("ResolveAll()[%d] granted with no sources", i)
		}
	}
}
