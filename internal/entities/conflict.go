package entities

import "time"

// ConflictType classifies a disagreement between permission sources.
type ConflictType string

const (
	// ConflictDenyOverridesAllow: a direct Deny and a role/group Allow
	// for the same action. The outcome is unambiguous (explicit deny
	// wins), so these are always auto-resolvable.
	ConflictDenyOverridesAllow ConflictType = "deny_overrides_allow"

	// ConflictRole: two or more role/group sources disagree and no
	// direct Deny exists.
	ConflictRole ConflictType = "role_conflict"

	// ConflictInheritance: a resource-level source disagrees with an
	// inherited ancestor value. Requires human acknowledgment because
	// it silently narrows or widens access relative to the parent.
	ConflictInheritance ConflictType = "inheritance_conflict"
)

// ConflictSeverity grades how urgently a conflict needs attention.
type ConflictSeverity string

const (
	SeverityHigh   ConflictSeverity = "high"
	SeverityMedium ConflictSeverity = "medium"
	SeverityLow    ConflictSeverity = "low"
)

// ConflictStatus is the review state of a conflict. Conflicts are
// computed, never stored; only the status record persists, keyed by the
// stable conflict ID.
type ConflictStatus string

const (
	ConflictOpen       ConflictStatus = "open"
	ConflictResolved   ConflictStatus = "resolved"
	ConflictSuppressed ConflictStatus = "suppressed"
)

// Conflict is one detected disagreement among the sources feeding the
// same resolution. The ID is a stable hash of the resource, action,
// affected subjects and source ID set, so repeated detection runs are
// idempotent.
type Conflict struct {
	ID               string
	ResourceID       string
	Type             ConflictType
	Severity         ConflictSeverity
	AffectedSubjects []string
	AffectedActions  []Action
	SourceIDs        []string
	Recommendation   string
	AutoResolvable   bool
	Status           ConflictStatus
}

// ConflictStatusRecord is the persisted review state for a conflict,
// written only by explicit administrator action.
type ConflictStatusRecord struct {
	ConflictID string
	Status     ConflictStatus
	Reason     string
	Actor      string
	UpdatedAt  time.Time
}
