package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// PostgresConflictRepository implements ConflictRepository using
// PostgreSQL. Resolve spans the conflict status, the mutated sources
// and the audit entry in a single transaction, satisfying the
// all-or-nothing contract.
type PostgresConflictRepository struct {
	db *sql.DB
}

// NewPostgresConflictRepository creates a new PostgreSQL conflict repository.
func NewPostgresConflictRepository(db *sql.DB) repositories.ConflictRepository {
	return &PostgresConflictRepository{db: db}
}

// GetStatus retrieves the persisted status record for a conflict ID.
func (r *PostgresConflictRepository) GetStatus(ctx context.Context, conflictID string) (*entities.ConflictStatusRecord, error) {
	query := `
		SELECT conflict_id, status, reason, actor, updated_at
		FROM conflict_statuses
		WHERE conflict_id = $1
	`
	record := &entities.ConflictStatusRecord{}
	err := r.db.QueryRowContext(ctx, query, conflictID).Scan(
		&record.ConflictID, &record.Status, &record.Reason, &record.Actor, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict status: %w", err)
	}
	return record, nil
}

// ListStatuses retrieves status records for a set of conflict IDs.
func (r *PostgresConflictRepository) ListStatuses(ctx context.Context, conflictIDs []string) (map[string]*entities.ConflictStatusRecord, error) {
	if len(conflictIDs) == 0 {
		return map[string]*entities.ConflictStatusRecord{}, nil
	}

	query := `
		SELECT conflict_id, status, reason, actor, updated_at
		FROM conflict_statuses
		WHERE conflict_id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(conflictIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*entities.ConflictStatusRecord)
	for rows.Next() {
		record := &entities.ConflictStatusRecord{}
		if err := rows.Scan(&record.ConflictID, &record.Status, &record.Reason, &record.Actor, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict status: %w", err)
		}
		out[record.ConflictID] = record
	}
	return out, rows.Err()
}

// Resolve writes the status record, applies source value changes and
// appends the audit entry atomically.
func (r *PostgresConflictRepository) Resolve(ctx context.Context, record *entities.ConflictStatusRecord, changes []repositories.SourceValueChange, audit *entities.AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statusQuery := `
		INSERT INTO conflict_statuses (conflict_id, status, reason, actor, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (conflict_id)
		DO UPDATE SET status = $2, reason = $3, actor = $4, updated_at = now()
	`
	if _, err := tx.ExecContext(ctx, statusQuery,
		record.ConflictID, record.Status, record.Reason, record.Actor); err != nil {
		return fmt.Errorf("failed to write conflict status: %w", err)
	}

	for _, change := range changes {
		if err := applyValueChange(ctx, tx, change); err != nil {
			return err
		}
	}

	if audit != nil {
		auditQuery := `
			INSERT INTO audit_entries (
				id, actor, action, target_id, before_state, after_state, reason, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		`
		if _, err := tx.ExecContext(ctx, auditQuery,
			audit.ID, audit.Actor, audit.Action, audit.TargetID,
			audit.Before, audit.After, audit.Reason); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// applyValueChange patches one action's value inside a source's JSONB
// permission map.
func applyValueChange(ctx context.Context, tx *sql.Tx, change repositories.SourceValueChange) error {
	var result sql.Result
	var err error
	if change.Value == entities.Unspecified {
		result, err = tx.ExecContext(ctx, `
			UPDATE permission_sources
			SET permissions = permissions - $2, updated_at = now()
			WHERE id = $1
		`, change.SourceID, string(change.Action))
	} else {
		value, marshalErr := json.Marshal(change.Value.String())
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal permission value: %w", marshalErr)
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE permission_sources
			SET permissions = jsonb_set(permissions, ARRAY[$2], $3::jsonb), updated_at = now()
			WHERE id = $1
		`, change.SourceID, string(change.Action), value)
	}
	if err != nil {
		return fmt.Errorf("failed to apply value change to source %s: %w", change.SourceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check value change result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", entities.ErrSourceNotFound, change.SourceID)
	}
	return nil
}
