package entities

// Action is one of the named operations a subject can perform on a
// resource. The action set is fixed and closed: sources asserting
// permissions for unknown actions are rejected at write time.
type Action string

const (
	ActionView     Action = "view"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionShare    Action = "share"
	ActionDownload Action = "download"
	ActionManage   Action = "manage"
)

// KnownActions lists every action the engine resolves, in a stable order.
var KnownActions = []Action{
	ActionView,
	ActionEdit,
	ActionDelete,
	ActionShare,
	ActionDownload,
	ActionManage,
}

// IsKnownAction reports whether a is in the known action set.
func IsKnownAction(a Action) bool {
	for _, known := range KnownActions {
		if a == known {
			return true
		}
	}
	return false
}
