package authorization

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// TieBreak selects the recommendation policy for role conflicts. The
// winner of a resolution is always decided by the deterministic
// ordering in Resolve; the policy only shapes the recommendation and
// what an auto-resolution writes back.
type TieBreak string

const (
	MostPermissive  TieBreak = "most_permissive"
	MostRestrictive TieBreak = "most_restrictive"
)

// Detector scans the source set feeding a resolution and classifies
// disagreements into named conflict types. Detection is read-only and
// idempotent: the same source set always yields the same conflicts with
// the same stable IDs.
type Detector struct {
	tieBreak TieBreak
}

// NewDetector creates a Detector with the given tie-break policy.
func NewDetector(policy TieBreak) *Detector {
	if policy == "" {
		policy = MostPermissive
	}
	return &Detector{tieBreak: policy}
}

// Detect examines the active sources for a resource (resource-level
// plus materialized inherited ones) and returns one conflict per
// (action, type) where at least two specified sources disagree.
func (d *Detector) Detect(resourceID string, sources []*entities.PermissionSource) []*entities.Conflict {
	var conflicts []*entities.Conflict

	for _, action := range entities.KnownActions {
		var specified []*entities.PermissionSource
		hasAllow, hasDeny := false, false
		for _, source := range sources {
			switch source.Value(action) {
			case entities.Allow:
				hasAllow = true
			case entities.Deny:
				hasDeny = true
			default:
				continue
			}
			specified = append(specified, source)
		}
		if len(specified) < 2 || !hasAllow || !hasDeny {
			continue
		}

		if conflict := d.classify(resourceID, action, specified); conflict != nil {
			conflicts = append(conflicts, conflict)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
	return conflicts
}

// classify maps one action's disagreeing source set to a conflict type,
// checking the most severe pattern first.
func (d *Detector) classify(resourceID string, action entities.Action, specified []*entities.PermissionSource) *entities.Conflict {
	var directDeny, resourceLevel, inherited []*entities.PermissionSource
	for _, source := range specified {
		if source.Kind == entities.SourceInherited {
			inherited = append(inherited, source)
			continue
		}
		resourceLevel = append(resourceLevel, source)
		if source.Kind == entities.SourceDirect && source.Value(action) == entities.Deny {
			directDeny = append(directDeny, source)
		}
	}

	switch {
	case len(directDeny) > 0 && anyValue(specified, action, entities.Allow):
		return d.newConflict(resourceID, action, specified,
			entities.ConflictDenyOverridesAllow,
			entities.SeverityHigh,
			"explicit deny overrides allow; align the allowing sources with the deny",
			true)

	case disagree(resourceLevel, action):
		recommendation := "most permissive wins: prefer allow among the disagreeing sources"
		if d.tieBreak == MostRestrictive {
			recommendation = "most restrictive wins: prefer deny among the disagreeing sources"
		}
		return d.newConflict(resourceID, action, resourceLevel,
			entities.ConflictRole,
			entities.SeverityMedium,
			recommendation,
			true)

	case len(resourceLevel) > 0 && len(inherited) > 0:
		return d.newConflict(resourceID, action, specified,
			entities.ConflictInheritance,
			entities.SeverityLow,
			"resource-level settings override inherited ones; acknowledge to keep the narrower access",
			false)
	}

	return nil
}

func (d *Detector) newConflict(
	resourceID string,
	action entities.Action,
	sources []*entities.PermissionSource,
	conflictType entities.ConflictType,
	severity entities.ConflictSeverity,
	recommendation string,
	autoResolvable bool,
) *entities.Conflict {
	subjectSet := make(map[string]struct{}, len(sources))
	sourceIDs := make([]string, 0, len(sources))
	for _, source := range sources {
		subjectSet[source.SubjectRef] = struct{}{}
		sourceIDs = append(sourceIDs, source.ID)
	}
	subjects := make([]string, 0, len(subjectSet))
	for subject := range subjectSet {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	sort.Strings(sourceIDs)

	return &entities.Conflict{
		ID:               conflictID(resourceID, action, subjects, sourceIDs),
		ResourceID:       resourceID,
		Type:             conflictType,
		Severity:         severity,
		AffectedSubjects: subjects,
		AffectedActions:  []entities.Action{action},
		SourceIDs:        sourceIDs,
		Recommendation:   recommendation,
		AutoResolvable:   autoResolvable,
		Status:           entities.ConflictOpen,
	}
}

// RecommendedChanges computes the source value mutations that applying
// a conflict's recommendation entails. Only meaningful for
// auto-resolvable conflicts; inherited (derived) sources are never
// mutated, their stored originals are addressed at the ancestor.
func (d *Detector) RecommendedChanges(conflict *entities.Conflict, sources map[string]*entities.PermissionSource) []repositories.SourceValueChange {
	if !conflict.AutoResolvable || len(conflict.AffectedActions) == 0 {
		return nil
	}
	action := conflict.AffectedActions[0]

	target := entities.Deny
	if conflict.Type == entities.ConflictRole && d.tieBreak == MostPermissive {
		target = entities.Allow
	}

	var changes []repositories.SourceValueChange
	for _, id := range conflict.SourceIDs {
		source, ok := sources[id]
		if !ok || source.Kind == entities.SourceInherited {
			continue
		}
		if source.Value(action) != target && source.Value(action) != entities.Unspecified {
			changes = append(changes, repositories.SourceValueChange{
				SourceID: id,
				Action:   action,
				Value:    target,
			})
		}
	}
	return changes
}

// conflictID derives the stable identity of a conflict from the
// resource, action, affected subjects and source ID set, so repeated
// detection runs never duplicate an open conflict.
func conflictID(resourceID string, action entities.Action, subjects, sourceIDs []string) string {
	h := sha256.New()
	h.Write([]byte(resourceID))
	h.Write([]byte{0})
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(subjects, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sourceIDs, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func anyValue(sources []*entities.PermissionSource, action entities.Action, value entities.Tri) bool {
	for _, source := range sources {
		if source.Value(action) == value {
			return true
		}
	}
	return false
}

func disagree(sources []*entities.PermissionSource, action entities.Action) bool {
	hasAllow, hasDeny := false, false
	for _, source := range sources {
		switch source.Value(action) {
		case entities.Allow:
			hasAllow = true
		case entities.Deny:
			hasDeny = true
		}
	}
	return hasAllow && hasDeny
}
