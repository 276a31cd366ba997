package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
	"github.com/hayashida/kengen/internal/services/authorization"
)

// Resolution modes accepted by ResolveConflict.
const (
	ResolveAcceptRecommendation = "accept_recommendation"
	ResolveManual               = "manual"
)

// ConflictService surfaces detected conflicts and applies administrator
// decisions. Conflicts are recomputed from current state on every
// listing; only their review status persists, keyed by the stable
// conflict ID, so repeated detection never duplicates open conflicts.
type ConflictService struct {
	sources    repositories.SourceRepository
	conflicts  repositories.ConflictRepository
	detector   *authorization.Detector
	propagator *authorization.Propagator
}

// NewConflictService creates a new ConflictService.
func NewConflictService(
	sources repositories.SourceRepository,
	conflicts repositories.ConflictRepository,
	detector *authorization.Detector,
	propagator *authorization.Propagator,
) *ConflictService {
	return &ConflictService{
		sources:    sources,
		conflicts:  conflicts,
		detector:   detector,
		propagator: propagator,
	}
}

// ListConflicts detects conflicts over a resource's current source set
// (resource-level plus inherited) and joins the persisted review state.
func (s *ConflictService) ListConflicts(ctx context.Context, resourceID string) ([]*entities.Conflict, error) {
	sources, err := s.activeSources(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	conflicts := s.detector.Detect(resourceID, sources)
	if len(conflicts) == 0 {
		return conflicts, nil
	}

	ids := make([]string, len(conflicts))
	for i, conflict := range conflicts {
		ids[i] = conflict.ID
	}
	statuses, err := s.conflicts.ListStatuses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict statuses: %w", err)
	}
	for _, conflict := range conflicts {
		if record, ok := statuses[conflict.ID]; ok {
			conflict.Status = record.Status
		}
	}
	return conflicts, nil
}

// ResolveRequest carries an administrator's decision on a conflict.
type ResolveRequest struct {
	ConflictID string
	ResourceID string
	Mode       string // accept_recommendation or manual
	Reason     string // mandatory for manual suppression
	Actor      string
}

// ResolveConflict applies the decision. Accepting the recommendation is
// only legal on auto-resolvable conflicts and mutates the losing
// sources' values to match it; manual mode suppresses the conflict and
// demands a non-empty reason. The status record, any source mutations
// and the audit entry commit atomically.
func (s *ConflictService) ResolveConflict(ctx context.Context, req *ResolveRequest) (*entities.Conflict, error) {
	conflicts, err := s.ListConflicts(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	var conflict *entities.Conflict
	for _, candidate := range conflicts {
		if candidate.ID == req.ConflictID {
			conflict = candidate
			break
		}
	}
	if conflict == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrConflictNotFound, req.ConflictID)
	}

	// A conflict that has already been acted on stays decided; the
	// administrator must change the underlying sources instead.
	status, err := s.conflicts.GetStatus(ctx, req.ConflictID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict status: %w", err)
	}
	if status != nil && status.Status != entities.ConflictOpen {
		return nil, fmt.Errorf("%w: conflict %s is already %s", entities.ErrInvalidResolution, req.ConflictID, status.Status)
	}

	switch req.Mode {
	case ResolveAcceptRecommendation:
		return s.acceptRecommendation(ctx, conflict, req)
	case ResolveManual:
		return s.suppress(ctx, conflict, req)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", entities.ErrInvalidResolution, req.Mode)
	}
}

func (s *ConflictService) acceptRecommendation(ctx context.Context, conflict *entities.Conflict, req *ResolveRequest) (*entities.Conflict, error) {
	if !conflict.AutoResolvable {
		return nil, fmt.Errorf("%w: conflict %s is not auto-resolvable", entities.ErrInvalidResolution, conflict.ID)
	}

	stored, err := s.sources.List(ctx, &repositories.SourceFilter{ResourceID: req.ResourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	byID := make(map[string]*entities.PermissionSource, len(stored))
	for _, source := range stored {
		byID[source.ID] = source
	}

	changes := s.detector.RecommendedChanges(conflict, byID)

	before, after := changeSummary(byID, changes)
	record := &entities.ConflictStatusRecord{
		ConflictID: conflict.ID,
		Status:     entities.ConflictResolved,
		Reason:     req.Reason,
		Actor:      req.Actor,
	}
	audit := &entities.AuditEntry{
		ID:       uuid.NewString(),
		Actor:    req.Actor,
		Action:   "conflict.resolve",
		TargetID: conflict.ID,
		Before:   before,
		After:    after,
		Reason:   req.Reason,
	}

	if err := s.conflicts.Resolve(ctx, record, changes, audit); err != nil {
		return nil, err
	}

	conflict.Status = entities.ConflictResolved
	return conflict, nil
}

func (s *ConflictService) suppress(ctx context.Context, conflict *entities.Conflict, req *ResolveRequest) (*entities.Conflict, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: suppression requires a reason", entities.ErrInvalidResolution)
	}

	record := &entities.ConflictStatusRecord{
		ConflictID: conflict.ID,
		Status:     entities.ConflictSuppressed,
		Reason:     req.Reason,
		Actor:      req.Actor,
	}
	audit := &entities.AuditEntry{
		ID:       uuid.NewString(),
		Actor:    req.Actor,
		Action:   "conflict.suppress",
		TargetID: conflict.ID,
		Reason:   req.Reason,
	}

	if err := s.conflicts.Resolve(ctx, record, nil, audit); err != nil {
		return nil, err
	}

	conflict.Status = entities.ConflictSuppressed
	return conflict, nil
}

func (s *ConflictService) activeSources(ctx context.Context, resourceID string) ([]*entities.PermissionSource, error) {
	own, err := s.sources.List(ctx, &repositories.SourceFilter{
		ResourceID: resourceID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for %s: %w", resourceID, err)
	}

	inherited, err := s.propagator.AncestorSources(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	return append(own, inherited...), nil
}

// changeSummary renders before/after JSON for the audit entry.
func changeSummary(sources map[string]*entities.PermissionSource, changes []repositories.SourceValueChange) (string, string) {
	if len(changes) == 0 {
		return "", ""
	}

	type valueState struct {
		SourceID string `json:"sourceId"`
		Action   string `json:"action"`
		Value    string `json:"value"`
	}

	beforeStates := make([]valueState, 0, len(changes))
	afterStates := make([]valueState, 0, len(changes))
	for _, change := range changes {
		prior := entities.Unspecified
		if source, ok := sources[change.SourceID]; ok {
			prior = source.Value(change.Action)
		}
		beforeStates = append(beforeStates, valueState{
			SourceID: change.SourceID,
			Action:   string(change.Action),
			Value:    prior.String(),
		})
		afterStates = append(afterStates, valueState{
			SourceID: change.SourceID,
			Action:   string(change.Action),
			Value:    change.Value.String(),
		})
	}

	before, _ := json.Marshal(beforeStates)
	after, _ := json.Marshal(afterStates)
	return string(before), string(after)
}
