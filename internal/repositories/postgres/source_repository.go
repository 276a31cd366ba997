package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// PostgresSourceRepository implements SourceRepository using PostgreSQL.
// Permission maps are stored as JSONB of action -> "allow"/"deny";
// Unspecified actions are simply absent.
type PostgresSourceRepository struct {
	db *sql.DB
}

// NewPostgresSourceRepository creates a new PostgreSQL source repository.
func NewPostgresSourceRepository(db *sql.DB) repositories.SourceRepository {
	return &PostgresSourceRepository{db: db}
}

func marshalPermissions(perms map[entities.Action]entities.Tri) ([]byte, error) {
	out := make(map[string]string, len(perms))
	for action, value := range perms {
		if value == entities.Unspecified {
			continue
		}
		out[string(action)] = value.String()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return data, nil
}

func unmarshalPermissions(data []byte) (map[entities.Action]entities.Tri, error) {
	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	perms := make(map[entities.Action]entities.Tri, len(raw))
	for action, value := range raw {
		tri, err := entities.ParseTri(value)
		if err != nil {
			return nil, err
		}
		perms[entities.Action(action)] = tri
	}
	return perms, nil
}

// Create stores a new source.
func (r *PostgresSourceRepository) Create(ctx context.Context, source *entities.PermissionSource) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid permission source: %w", err)
	}
	perms, err := marshalPermissions(source.Permissions)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO permission_sources (
			id, resource_id, subject_ref, kind, priority, permissions, active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err = tx.ExecContext(ctx, query,
		source.ID, source.ResourceID, source.SubjectRef, source.Kind,
		source.Priority, perms, source.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves a source by ID.
func (r *PostgresSourceRepository) Get(ctx context.Context, id string) (*entities.PermissionSource, error) {
	query := `
		SELECT id, resource_id, subject_ref, kind, priority, permissions, active,
		       created_at, updated_at
		FROM permission_sources
		WHERE id = $1
	`
	return scanSource(r.db.QueryRowContext(ctx, query, id), id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner, id string) (*entities.PermissionSource, error) {
	source := &entities.PermissionSource{}
	var perms []byte
	err := row.Scan(
		&source.ID, &source.ResourceID, &source.SubjectRef, &source.Kind,
		&source.Priority, &perms, &source.Active,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", entities.ErrSourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	source.Permissions, err = unmarshalPermissions(perms)
	if err != nil {
		return nil, err
	}
	return source, nil
}

// List retrieves sources matching the filter, priority descending then
// ID ascending.
func (r *PostgresSourceRepository) List(ctx context.Context, filter *repositories.SourceFilter) ([]*entities.PermissionSource, error) {
	query := `
		SELECT id, resource_id, subject_ref, kind, priority, permissions, active,
		       created_at, updated_at
		FROM permission_sources
		WHERE 1=1
	`
	var args []interface{}
	if filter != nil {
		if filter.ResourceID != "" {
			args = append(args, filter.ResourceID)
			query += fmt.Sprintf(" AND resource_id = $%d", len(args))
		}
		if filter.SubjectRef != "" {
			args = append(args, filter.SubjectRef)
			query += fmt.Sprintf(" AND subject_ref = $%d", len(args))
		}
		if filter.Kind != "" {
			args = append(args, filter.Kind)
			query += fmt.Sprintf(" AND kind = $%d", len(args))
		}
		if filter.ActiveOnly {
			query += " AND active"
		}
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*entities.PermissionSource
	for rows.Next() {
		source, err := scanSource(rows, "")
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// Update replaces a stored source's mutable fields.
func (r *PostgresSourceRepository) Update(ctx context.Context, source *entities.PermissionSource) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid permission source: %w", err)
	}
	perms, err := marshalPermissions(source.Permissions)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE permission_sources
		SET subject_ref = $2, priority = $3, permissions = $4, active = $5,
		    updated_at = now()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		source.ID, source.SubjectRef, source.Priority, perms, source.Active)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", entities.ErrSourceNotFound, source.ID)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a source permanently.
func (r *PostgresSourceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM permission_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", entities.ErrSourceNotFound, id)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
