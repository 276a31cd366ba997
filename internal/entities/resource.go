package entities

import (
	"fmt"
	"time"
)

// ResourceKind distinguishes folders from documents. Only folders can
// contain children.
type ResourceKind string

const (
	ResourceFolder   ResourceKind = "folder"
	ResourceDocument ResourceKind = "document"
)

// ResourceNode is one node of the resource forest: a folder or a
// document. ParentID is nil only for roots. The parent/child relation
// must stay a forest; every structural mutation goes through the
// hierarchy service, which enforces that.
type ResourceNode struct {
	ID        string
	Kind      ResourceKind
	ParentID  *string
	Children  []string // child IDs; populated for folders only
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFolder reports whether the node can contain children.
func (n *ResourceNode) IsFolder() bool {
	return n.Kind == ResourceFolder
}

// Validate checks structural invariants of a single node.
func (n *ResourceNode) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("resource ID is required")
	}
	if n.Kind != ResourceFolder && n.Kind != ResourceDocument {
		return fmt.Errorf("unknown resource kind: %s", n.Kind)
	}
	if n.ParentID != nil && *n.ParentID == n.ID {
		return fmt.Errorf("%w: %s", ErrSelfParent, n.ID)
	}
	if n.Kind == ResourceDocument && len(n.Children) > 0 {
		return fmt.Errorf("document %s cannot have children", n.ID)
	}
	return nil
}
