package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// RegistryService owns the stored permission sources of a resource.
// Every mutation advances the snapshot token through the repository, so
// cached resolutions for the affected resource become unreachable and
// are recomputed lazily on the next query. There is no incremental
// patching of cached results.
type RegistryService struct {
	resources repositories.ResourceRepository
	sources   repositories.SourceRepository
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(resources repositories.ResourceRepository, sources repositories.SourceRepository) *RegistryService {
	return &RegistryService{resources: resources, sources: sources}
}

// AddSource validates and stores a new source on a resource, returning
// the source ID. An empty source.ID is assigned a fresh UUID.
func (s *RegistryService) AddSource(ctx context.Context, resourceID string, source *entities.PermissionSource) (string, error) {
	if _, err := s.resources.Get(ctx, resourceID); err != nil {
		return "", err
	}

	source.ResourceID = resourceID
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	if source.Permissions == nil {
		source.Permissions = make(map[entities.Action]entities.Tri)
	}

	if err := source.Validate(); err != nil {
		return "", err
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return "", err
	}
	return source.ID, nil
}

// GetSource retrieves a stored source by ID.
func (s *RegistryService) GetSource(ctx context.Context, sourceID string) (*entities.PermissionSource, error) {
	return s.sources.Get(ctx, sourceID)
}

// ListSources returns the stored sources of a resource, active and
// inactive, priority descending.
func (s *RegistryService) ListSources(ctx context.Context, resourceID string) ([]*entities.PermissionSource, error) {
	if _, err := s.resources.Get(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.sources.List(ctx, &repositories.SourceFilter{ResourceID: resourceID})
}

// UpdatePermission sets one action's tri-state value on a source.
// Unspecified removes the source's opinion on the action, which is
// distinct from Deny.
func (s *RegistryService) UpdatePermission(ctx context.Context, sourceID string, action entities.Action, value entities.Tri) error {
	if !entities.IsKnownAction(action) {
		return fmt.Errorf("%w: %s", entities.ErrInvalidAction, action)
	}

	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if source.Permissions == nil {
		source.Permissions = make(map[entities.Action]entities.Tri)
	}
	if value == entities.Unspecified {
		delete(source.Permissions, action)
	} else {
		source.Permissions[action] = value
	}
	return s.sources.Update(ctx, source)
}

// SetActive toggles a source in or out of resolution without deleting
// it, which supports what-if simulation against persisted state.
func (s *RegistryService) SetActive(ctx context.Context, sourceID string, active bool) error {
	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	source.Active = active
	return s.sources.Update(ctx, source)
}

// SourcePatch carries the optional fields of a partial source update.
type SourcePatch struct {
	Priority    *int
	Active      *bool
	Permissions map[entities.Action]entities.Tri // merged; Unspecified removes
}

// PatchSource applies a partial update to a stored source.
func (s *RegistryService) PatchSource(ctx context.Context, sourceID string, patch *SourcePatch) (*entities.PermissionSource, error) {
	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if patch.Priority != nil {
		if *patch.Priority < 0 {
			return nil, fmt.Errorf("%w: %d", entities.ErrInvalidPriority, *patch.Priority)
		}
		source.Priority = *patch.Priority
	}
	if patch.Active != nil {
		source.Active = *patch.Active
	}
	if len(patch.Permissions) > 0 {
		if source.Permissions == nil {
			source.Permissions = make(map[entities.Action]entities.Tri)
		}
		for action, value := range patch.Permissions {
			if !entities.IsKnownAction(action) {
				return nil, fmt.Errorf("%w: %s", entities.ErrInvalidAction, action)
			}
			if value == entities.Unspecified {
				delete(source.Permissions, action)
			} else {
				source.Permissions[action] = value
			}
		}
	}

	if err := s.sources.Update(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

// DeleteSource removes a source permanently.
func (s *RegistryService) DeleteSource(ctx context.Context, sourceID string) error {
	return s.sources.Delete(ctx, sourceID)
}
