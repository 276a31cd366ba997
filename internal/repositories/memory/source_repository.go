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

// SourceRepository is an in-memory implementation of
// repositories.SourceRepository.
type SourceRepository struct {
	mu       sync.RWMutex
	sources  map[string]*entities.PermissionSource
	revision *Revision
}

// NewSourceRepository creates an empty in-memory source repository.
func NewSourceRepository(rev *Revision) *SourceRepository {
	return &SourceRepository{
		sources:  make(map[string]*entities.PermissionSource),
		revision: rev,
	}
}

func (r *SourceRepository) bump() {
	if r.revision != nil {
		r.revision.Bump()
	}
}

// Create stores a new source.
func (r *SourceRepository) Create(ctx context.Context, source *entities.PermissionSource) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid permission source: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[source.ID]; exists {
		return fmt.Errorf("source %s already exists", source.ID)
	}

	stored := source.Clone()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.sources[stored.ID] = stored

	r.bump()
	return nil
}

// Get retrieves a source by ID.
func (r *SourceRepository) Get(ctx context.Context, id string) (*entities.PermissionSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrSourceNotFound, id)
	}
	return source.Clone(), nil
}

// List retrieves sources matching the filter, priority descending then
// ID ascending.
func (r *SourceRepository) List(ctx context.Context, filter *repositories.SourceFilter) ([]*entities.PermissionSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.PermissionSource
	for _, source := range r.sources {
		if filter != nil {
			if filter.ResourceID != "" && source.ResourceID != filter.ResourceID {
				continue
			}
			if filter.SubjectRef != "" && source.SubjectRef != filter.SubjectRef {
				continue
			}
			if filter.Kind != "" && source.Kind != filter.Kind {
				continue
			}
			if filter.ActiveOnly && !source.Active {
				continue
			}
		}
		out = append(out, source.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update replaces a stored source's mutable fields.
func (r *SourceRepository) Update(ctx context.Context, source *entities.PermissionSource) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid permission source: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sources[source.ID]
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrSourceNotFound, source.ID)
	}

	stored := source.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	r.sources[source.ID] = stored

	r.bump()
	return nil
}

// Delete removes a source permanently.
func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("%w: %s", entities.ErrSourceNotFound, id)
	}
	delete(r.sources, id)

	r.bump()
	return nil
}

var _ repositories.SourceRepository = (*SourceRepository)(nil)
