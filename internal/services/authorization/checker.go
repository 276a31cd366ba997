package authorization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
	"github.com/hayashida/kengen/pkg/cache"
)

// CheckerInterface defines the interface for effective-permission
// queries.
type CheckerInterface interface {
	EffectivePermissions(ctx context.Context, req *CheckRequest) ([]*entities.EffectivePermission, error)
	ApplicableSources(ctx context.Context, req *CheckRequest) ([]*entities.PermissionSource, error)
}

// Subject identifies who is being checked. Role and group memberships
// are supplied by the identity collaborator; the engine never stores
// them.
type Subject struct {
	Ref    string   // e.g. "user:alice"
	Roles  []string // role names the subject holds
	Groups []string // group names the subject belongs to
}

// Matches reports whether a source bound to subjectRef applies to this
// subject.
func (s *Subject) Matches(subjectRef string) bool {
	if subjectRef == s.Ref {
		return true
	}
	refType, name := entities.SplitSubjectRef(subjectRef)
	switch refType {
	case "role":
		return containsString(s.Roles, name)
	case "group":
		return containsString(s.Groups, name)
	}
	return false
}

// CheckRequest contains the parameters for an effective-permission
// query.
type CheckRequest struct {
	Subject    Subject
	ResourceID string

	// ContextualSources are temporary what-if sources merged into the
	// evaluation for this request only. They are never persisted and
	// requests carrying them bypass the cache.
	ContextualSources []*entities.PermissionSource

	// SnapshotToken pins the cache key to a known dataset state.
	// Empty means "current".
	SnapshotToken string
}

// Checker assembles the applicable source set for a (subject, resource)
// pair and resolves every known action over it.
type Checker struct {
	sources    repositories.SourceRepository
	propagator *Propagator
	cache      cache.Cache                   // optional
	snapshots  repositories.SnapshotProvider // optional, required for caching
	cacheTTL   time.Duration
}

// NewChecker creates a Checker without caching.
func NewChecker(sources repositories.SourceRepository, propagator *Propagator) *Checker {
	return &Checker{sources: sources, propagator: propagator}
}

// NewCheckerWithCache creates a Checker that caches resolved permission
// sets. Keys embed the snapshot token, so any mutation that advances
// the token makes stale entries unreachable.
func NewCheckerWithCache(
	sources repositories.SourceRepository,
	propagator *Propagator,
	c cache.Cache,
	snapshots repositories.SnapshotProvider,
	cacheTTL time.Duration,
) *Checker {
	return &Checker{
		sources:    sources,
		propagator: propagator,
		cache:      c,
		snapshots:  snapshots,
		cacheTTL:   cacheTTL,
	}
}

// EffectivePermissions resolves all known actions for the request's
// subject and resource.
func (c *Checker) EffectivePermissions(ctx context.Context, req *CheckRequest) ([]*entities.EffectivePermission, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid check request: %w", err)
	}

	useCache := c.cache != nil && c.snapshots != nil && len(req.ContextualSources) == 0

	var cacheKey string
	if useCache {
		token := req.SnapshotToken
		if token == "" {
			current, err := c.snapshots.Current(ctx)
			if err != nil {
				useCache = false
			} else {
				token = current
			}
		}
		if useCache {
			cacheKey = c.cacheKey(req, token)
			if cached, found := c.cache.Get(ctx, cacheKey); found {
				if perms, ok := cached.([]*entities.EffectivePermission); ok {
					return perms, nil
				}
			}
		}
	}

	applicable, err := c.ApplicableSources(ctx, req)
	if err != nil {
		return nil, err
	}

	perms := ResolveAll(applicable)

	if useCache && cacheKey != "" {
		_ = c.cache.Set(ctx, cacheKey, perms, c.cacheTTL)
	}

	return perms, nil
}

// ApplicableSources gathers the active sources that feed the request's
// resolution: the resource's own sources scoped to the subject, the
// materialized inherited sources scoped the same way, and any
// contextual sources supplied with the request.
func (c *Checker) ApplicableSources(ctx context.Context, req *CheckRequest) ([]*entities.PermissionSource, error) {
	own, err := c.sources.List(ctx, &repositories.SourceFilter{
		ResourceID: req.ResourceID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for %s: %w", req.ResourceID, err)
	}

	inherited, err := c.propagator.AncestorSources(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize inherited sources: %w", err)
	}

	applicable := make([]*entities.PermissionSource, 0, len(own)+len(inherited)+len(req.ContextualSources))
	for _, source := range own {
		if req.Subject.Matches(source.SubjectRef) {
			applicable = append(applicable, source)
		}
	}
	for _, source := range inherited {
		if req.Subject.Matches(source.SubjectRef) {
			applicable = append(applicable, source)
		}
	}
	for _, source := range req.ContextualSources {
		if req.Subject.Matches(source.SubjectRef) {
			applicable = append(applicable, source.Clone())
		}
	}

	return applicable, nil
}

func (c *Checker) validateRequest(req *CheckRequest) error {
	if req.ResourceID == "" {
		return fmt.Errorf("resource ID is required")
	}
	if req.Subject.Ref == "" {
		return fmt.Errorf("subject ref is required")
	}
	for _, source := range req.ContextualSources {
		for action := range source.Permissions {
			if !entities.IsKnownAction(action) {
				return fmt.Errorf("%w: %s", entities.ErrInvalidAction, action)
			}
		}
	}
	return nil
}

// cacheKey hashes the request parameters and snapshot token into a
// short stable key.
func (c *Checker) cacheKey(req *CheckRequest, token string) string {
	keyData := fmt.Sprintf("%s:%s:%s:%s:%s",
		req.Subject.Ref,
		strings.Join(req.Subject.Roles, ","),
		strings.Join(req.Subject.Groups, ","),
		req.ResourceID,
		token,
	)
	hash := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(hash[:])
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
