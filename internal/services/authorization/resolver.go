package authorization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hayashida/kengen/internal/entities"
)

// Resolve computes the effective decision for one action from the
// active sources applicable to a (subject, resource) pair. It is a pure
// function of its inputs: no hidden state, no I/O, and the same source
// list always yields an identical result, so every decision can be
// reproduced for audit.
//
// The algorithm, in order:
//  1. Sources with an Unspecified value for the action are discarded.
//  2. No sources left: default deny, no winner.
//  3. Any remaining direct source with Deny wins outright, regardless
//     of priorities elsewhere.
//  4. Otherwise the sources are ordered by priority descending, kind
//     rank, then ID ascending, and the first source decides.
//  5. Disagreeing non-winners are named in the explanation.
func Resolve(action entities.Action, sources []*entities.PermissionSource) *entities.EffectivePermission {
	specified := make([]*entities.PermissionSource, 0, len(sources))
	for _, source := range sources {
		if source.Value(action) != entities.Unspecified {
			specified = append(specified, source)
		}
	}

	if len(specified) == 0 {
		return &entities.EffectivePermission{
			Action:      action,
			Granted:     false,
			Explanation: "default deny: no source specifies this permission",
		}
	}

	sortSources(specified)

	winner := specified[0]
	explanation := ""

	// Explicit deny at the direct level is absolute: it short-circuits
	// priority ordering even when an Allow nominally outranks it.
	for _, source := range specified {
		if source.Kind == entities.SourceDirect && source.Value(action) == entities.Deny {
			winner = source
			explanation = "explicit deny overrides all other sources"
			break
		}
	}

	granted := winner.Value(action) == entities.Allow

	var dissenting []string
	contributions := make([]entities.SourceContribution, 0, len(specified))
	for _, source := range specified {
		value := source.Value(action)
		contributions = append(contributions, entities.SourceContribution{
			SourceID:   source.ID,
			SubjectRef: source.SubjectRef,
			Kind:       source.Kind,
			Priority:   source.Priority,
			Value:      value,
			IsWinner:   source == winner,
		})
		if source != winner && value != winner.Value(action) {
			dissenting = append(dissenting, source.ID)
		}
	}

	if explanation == "" {
		verb := "denied"
		if granted {
			verb = "allowed"
		}
		explanation = fmt.Sprintf("%s by %s source %s (priority %d)",
			verb, winner.Kind, winner.ID, winner.Priority)
	}
	if len(dissenting) > 0 {
		explanation += fmt.Sprintf("; disagreeing sources: %s", strings.Join(dissenting, ", "))
	}

	return &entities.EffectivePermission{
		Action:          action,
		Granted:         granted,
		WinningSourceID: winner.ID,
		Contributing:    contributions,
		Explanation:     explanation,
	}
}

// ResolveAll resolves every known action over the same source list.
func ResolveAll(sources []*entities.PermissionSource) []*entities.EffectivePermission {
	out := make([]*entities.EffectivePermission, 0, len(entities.KnownActions))
	for _, action := range entities.KnownActions {
		out = append(out, Resolve(action, sources))
	}
	return out
}

// sortSources orders sources by priority descending, then kind rank
// (direct before role before group before inherited), then ID ascending.
// The ordering is total, which makes resolution fully deterministic.
func sortSources(sources []*entities.PermissionSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Priority != sources[j].Priority {
			return sources[i].Priority > sources[j].Priority
		}
		if ri, rj := sources[i].Kind.KindRank(), sources[j].Kind.KindRank(); ri != rj {
			return ri < rj
		}
		return sources[i].ID < sources[j].ID
	})
}
