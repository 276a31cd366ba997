package repositories

import (
	"context"

	"github.com/hayashida/kengen/internal/entities"
)

// SourceFilter defines filter criteria for querying permission sources.
type SourceFilter struct {
	ResourceID string // Filter by resource (optional)
	SubjectRef string // Filter by subject ref (optional)
	Kind       entities.SourceKind
	ActiveOnly bool // When true, only active sources are returned
}

// SourceRepository defines data access for stored permission sources.
// Inherited sources are derived at resolution time and never pass
// through this interface.
type SourceRepository interface {
	// Create stores a new source. The source must already be validated.
	Create(ctx context.Context, source *entities.PermissionSource) error

	// Get retrieves a source by ID. Returns entities.ErrSourceNotFound
	// if the source does not exist.
	Get(ctx context.Context, id string) (*entities.PermissionSource, error)

	// List retrieves sources matching the filter, ordered by priority
	// descending then ID ascending for deterministic output.
	List(ctx context.Context, filter *SourceFilter) ([]*entities.PermissionSource, error)

	// Update replaces a stored source's mutable fields (priority,
	// permissions, active flag).
	Update(ctx context.Context, source *entities.PermissionSource) error

	// Delete removes a source permanently. Deactivation via Update is
	// preferred for what-if analysis.
	Delete(ctx context.Context, id string) error
}

// SourceValueChange is one per-action value mutation applied when a
// conflict recommendation is accepted.
type SourceValueChange struct {
	SourceID string
	Action   entities.Action
	Value    entities.Tri
}

// ConflictRepository persists conflict review state. Conflicts
// themselves are recomputed on demand; only the status records live
// here.
type ConflictRepository interface {
	// GetStatus retrieves the persisted status record for a conflict
	// ID, or nil if the conflict has never been acted on.
	GetStatus(ctx context.Context, conflictID string) (*entities.ConflictStatusRecord, error)

	// ListStatuses retrieves status records for a set of conflict IDs.
	ListStatuses(ctx context.Context, conflictIDs []string) (map[string]*entities.ConflictStatusRecord, error)

	// Resolve atomically records a conflict's new status, applies any
	// source value changes mandated by the accepted recommendation, and
	// appends the audit entry. Either all three commit or none do.
	Resolve(ctx context.Context, record *entities.ConflictStatusRecord, changes []SourceValueChange, audit *entities.AuditEntry) error
}
