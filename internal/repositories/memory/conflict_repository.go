package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// ConflictRepository is an in-memory implementation of
// repositories.ConflictRepository. It shares the source repository so
// Resolve can apply recommendation mutations and the status record
// under one lock, mirroring the transactional postgres implementation.
type ConflictRepository struct {
	mu       sync.RWMutex
	statuses map[string]*entities.ConflictStatusRecord
	audit    []*entities.AuditEntry
	sources  *SourceRepository
	revision *Revision
}

// NewConflictRepository creates an in-memory conflict repository backed
// by the given source repository.
func NewConflictRepository(sources *SourceRepository, rev *Revision) *ConflictRepository {
	return &ConflictRepository{
		statuses: make(map[string]*entities.ConflictStatusRecord),
		sources:  sources,
		revision: rev,
	}
}

// GetStatus retrieves the persisted status record for a conflict ID.
func (r *ConflictRepository) GetStatus(ctx context.Context, conflictID string) (*entities.ConflictStatusRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.statuses[conflictID]
	if !ok {
		return nil, nil
	}
	dup := *record
	return &dup, nil
}

// ListStatuses retrieves status records for a set of conflict IDs.
func (r *ConflictRepository) ListStatuses(ctx context.Context, conflictIDs []string) (map[string]*entities.ConflictStatusRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*entities.ConflictStatusRecord)
	for _, id := range conflictIDs {
		if record, ok := r.statuses[id]; ok {
			dup := *record
			out[id] = &dup
		}
	}
	return out, nil
}

// Resolve records the status, applies source value changes, and appends
// the audit entry as one unit. On any failure nothing is committed.
func (r *ConflictRepository) Resolve(ctx context.Context, record *entities.ConflictStatusRecord, changes []repositories.SourceValueChange, audit *entities.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stage source mutations first so a missing source leaves the
	// status untouched.
	staged := make([]*entities.PermissionSource, 0, len(changes))
	for _, change := range changes {
		source, err := r.sources.Get(ctx, change.SourceID)
		if err != nil {
			return fmt.Errorf("cannot apply resolution: %w", err)
		}
		if source.Permissions == nil {
			source.Permissions = make(map[entities.Action]entities.Tri)
		}
		source.Permissions[change.Action] = change.Value
		staged = append(staged, source)
	}

	for _, source := range staged {
		if err := r.sources.Update(ctx, source); err != nil {
			return fmt.Errorf("cannot apply resolution: %w", err)
		}
	}

	dup := *record
	dup.UpdatedAt = time.Now()
	r.statuses[record.ConflictID] = &dup

	if audit != nil {
		entry := *audit
		entry.CreatedAt = dup.UpdatedAt
		r.audit = append(r.audit, &entry)
	}

	if r.revision != nil {
		r.revision.Bump()
	}
	return nil
}

// AuditEntries returns a copy of all recorded audit entries, oldest
// first. Used by tests and embedded callers.
func (r *ConflictRepository) AuditEntries() []*entities.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.AuditEntry, len(r.audit))
	for i, entry := range r.audit {
		dup := *entry
		out[i] = &dup
	}
	return out
}

var _ repositories.ConflictRepository = (*ConflictRepository)(nil)
