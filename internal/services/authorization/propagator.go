package authorization

import (
	"context"
	"fmt"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

const (
	// MaxDepth bounds the ancestor walk. The hierarchy service keeps
	// the forest acyclic, so hitting this bound means an invariant
	// broke elsewhere; the walk fails loudly instead of truncating.
	MaxDepth = 100
)

// AncestorChainProvider walks parent links root-ward. Defined here to
// avoid a circular dependency on the services package.
type AncestorChainProvider interface {
	AncestorChain(ctx context.Context, resourceID string) ([]*entities.ResourceNode, error)
}

// Propagator materializes inherited permission sources for a resource
// from its ancestors' own stored sources. Inheritance is computed fresh
// from the real ancestor chain on every call; it is never re-derived
// from an ancestor's already-derived values, which would compound
// priority decay.
type Propagator struct {
	hierarchy AncestorChainProvider
	sources   repositories.SourceRepository
}

// NewPropagator creates a new Propagator.
func NewPropagator(hierarchy AncestorChainProvider, sources repositories.SourceRepository) *Propagator {
	return &Propagator{hierarchy: hierarchy, sources: sources}
}

// AncestorSources returns the inherited sources for a resource, nearest
// ancestor first. Each ancestor's active direct/role/group sources are
// wrapped into kind=inherited copies with priority -1-depth (depth 0 =
// immediate parent), so every inherited source sorts strictly below any
// resource-level source, whose priority is always >= 0.
func (p *Propagator) AncestorSources(ctx context.Context, resourceID string) ([]*entities.PermissionSource, error) {
	chain, err := p.hierarchy.AncestorChain(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	var inherited []*entities.PermissionSource
	for depth, ancestor := range chain {
		stored, err := p.sources.List(ctx, &repositories.SourceFilter{
			ResourceID: ancestor.ID,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list sources for ancestor %s: %w", ancestor.ID, err)
		}

		for _, source := range stored {
			wrapped := source.Clone()
			wrapped.ID = fmt.Sprintf("%s#inh%d", source.ID, depth)
			wrapped.Kind = entities.SourceInherited
			wrapped.Priority = -1 - depth
			inherited = append(inherited, wrapped)
		}
	}

	return inherited, nil
}
