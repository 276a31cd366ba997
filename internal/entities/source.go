package entities

import (
	"fmt"
	"strings"
	"time"
)

// Tri is a tri-state permission value. Unspecified means the source
// does not opine on the action, which is distinct from Deny.
type Tri int

const (
	Unspecified Tri = iota
	Allow
	Deny
)

// String returns the string representation of the tri-state value.
func (t Tri) String() string {
	switch t {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Unspecified:
		return "unspecified"
	default:
		return "unknown"
	}
}

// ParseTri parses a tri-state value from its string form.
func ParseTri(s string) (Tri, error) {
	switch s {
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	case "unspecified", "":
		return Unspecified, nil
	default:
		return Unspecified, fmt.Errorf("unknown permission value: %s", s)
	}
}

// SourceKind identifies where a permission assertion comes from.
type SourceKind string

const (
	SourceDirect    SourceKind = "direct"
	SourceRole      SourceKind = "role"
	SourceGroup     SourceKind = "group"
	SourceInherited SourceKind = "inherited"
)

// KindRank orders source kinds for tie-breaking: direct sources outrank
// role sources, which outrank group sources, which outrank inherited
// ones. Lower rank wins.
func (k SourceKind) KindRank() int {
	switch k {
	case SourceDirect:
		return 0
	case SourceRole:
		return 1
	case SourceGroup:
		return 2
	case SourceInherited:
		return 3
	default:
		return 4
	}
}

// PermissionSource is one assertion of rights over a resource: a direct
// grant to a user, a role or group grant, or a derived inherited source
// materialized from an ancestor. Inherited sources are never persisted;
// they carry negative priorities so they always sort below stored
// sources, whose priority must be >= 0.
type PermissionSource struct {
	ID          string
	ResourceID  string
	SubjectRef  string // "user:alice", "role:editor", "group:engineering"
	Kind        SourceKind
	Priority    int
	Permissions map[Action]Tri
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Value returns the source's tri-state value for an action. Missing
// entries read as Unspecified.
func (s *PermissionSource) Value(action Action) Tri {
	return s.Permissions[action]
}

// Validate checks a source before it is stored. Inherited sources are
// derived on demand and are never valid as stored input.
func (s *PermissionSource) Validate() error {
	if s.ResourceID == "" {
		return fmt.Errorf("%w: resource ID is required", ErrInvalidSource)
	}
	if s.SubjectRef == "" {
		return fmt.Errorf("%w: subject ref is required", ErrInvalidSource)
	}
	switch s.Kind {
	case SourceDirect, SourceRole, SourceGroup:
	case SourceInherited:
		return fmt.Errorf("%w: inherited sources are derived, not stored", ErrInvalidSource)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, s.Kind)
	}
	if s.Priority < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, s.Priority)
	}
	for action := range s.Permissions {
		if !IsKnownAction(action) {
			return fmt.Errorf("%w: %s", ErrInvalidAction, action)
		}
	}
	return nil
}

// Clone returns a deep copy of the source. Derived sources and
// copy-on-write snapshots must never alias the stored permission map.
func (s *PermissionSource) Clone() *PermissionSource {
	dup := *s
	dup.Permissions = make(map[Action]Tri, len(s.Permissions))
	for action, value := range s.Permissions {
		dup.Permissions[action] = value
	}
	return &dup
}

// SubjectType returns the type half of the subject ref ("user", "role",
// "group"), or "" if the ref has no type prefix.
func (s *PermissionSource) SubjectType() string {
	t, _ := SplitSubjectRef(s.SubjectRef)
	return t
}

// SplitSubjectRef splits "user:alice" into ("user", "alice").
func SplitSubjectRef(ref string) (string, string) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", ref
	}
	return parts[0], parts[1]
}
