package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// snapshotChannel is the LISTEN/NOTIFY channel mutations announce on.
const snapshotChannel = "kengen_snapshot"

// SnapshotSource yields snapshot tokens from PostgreSQL's transaction
// counter. Any committed mutation advances txid_current_snapshot, so
// cache keys embedding the token go stale exactly when data changes.
type SnapshotSource struct {
	db *sql.DB
}

// NewSnapshotSource creates a snapshot source over the given database.
func NewSnapshotSource(db *sql.DB) *SnapshotSource {
	return &SnapshotSource{db: db}
}

// Current returns the current snapshot token.
func (s *SnapshotSource) Current(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT txid_current_snapshot()::text").Scan(&token)
	if err != nil {
		return "", fmt.Errorf("failed to get current snapshot: %w", err)
	}
	return token, nil
}

// notifyChange announces a mutation on the snapshot channel from within
// the mutating transaction. Listeners (the cache snapshot manager on
// each instance) refresh their token on receipt; the TTL fallback
// covers lost notifications.
func notifyChange(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		"SELECT pg_notify($1, txid_current()::text)", snapshotChannel); err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}
	return nil
}
