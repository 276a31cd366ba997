package entities

import "time"

// AuditEntry records one engine mutation for the external audit
// subsystem. The engine appends entries atomically with the mutation
// they describe and never reads them back.
type AuditEntry struct {
	ID        string
	Actor     string
	Action    string // e.g. "conflict.resolve", "source.update"
	TargetID  string
	Before    string // JSON of the prior state, "" when not applicable
	After     string // JSON of the new state, "" when not applicable
	Reason    string
	CreatedAt time.Time
}
