package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

// PostgresResourceRepository implements ResourceRepository using PostgreSQL.
type PostgresResourceRepository struct {
	db *sql.DB
}

// NewPostgresResourceRepository creates a new PostgreSQL resource repository.
func NewPostgresResourceRepository(db *sql.DB) repositories.ResourceRepository {
	return &PostgresResourceRepository{db: db}
}

// Create stores a new resource node.
func (r *PostgresResourceRepository) Create(ctx context.Context, node *entities.ResourceNode) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid resource node: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO resources (id, kind, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`
	var parent sql.NullString
	if node.ParentID != nil {
		parent = sql.NullString{String: *node.ParentID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, query, node.ID, node.Kind, parent); err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves a node and its children.
func (r *PostgresResourceRepository) Get(ctx context.Context, id string) (*entities.ResourceNode, error) {
	query := `
		SELECT id, kind, parent_id, created_at, updated_at
		FROM resources
		WHERE id = $1
	`
	node := &entities.ResourceNode{}
	var parent sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&node.ID, &node.Kind, &parent, &node.CreatedAt, &node.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	if parent.Valid {
		node.ParentID = &parent.String
	}

	if node.Kind == entities.ResourceFolder {
		children, err := r.children(ctx, id)
		if err != nil {
			return nil, err
		}
		node.Children = children
	}
	return node, nil
}

func (r *PostgresResourceRepository) children(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM resources WHERE parent_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// Move reparents a node in one transaction. The parent pointer is the
// single source of truth for the child relation, so the update is one
// row and readers never observe a half-applied move.
func (r *PostgresResourceRepository) Move(ctx context.Context, id string, newParentID *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	if newParentID != nil {
		parent = sql.NullString{String: *newParentID, Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE resources SET parent_id = $2, updated_at = now() WHERE id = $1`,
		id, parent)
	if err != nil {
		return fmt.Errorf("failed to move resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check move result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a node. Sources attached to it cascade at the schema
// level.
func (r *PostgresResourceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", entities.ErrResourceNotFound, id)
	}

	if err := notifyChange(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns every node ordered by ID.
func (r *PostgresResourceRepository) List(ctx context.Context) ([]*entities.ResourceNode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, parent_id, created_at, updated_at
		FROM resources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	byParent := make(map[string][]string)
	var nodes []*entities.ResourceNode
	for rows.Next() {
		node := &entities.ResourceNode{}
		var parent sql.NullString
		if err := rows.Scan(&node.ID, &node.Kind, &parent, &node.CreatedAt, &node.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		if parent.Valid {
			node.ParentID = &parent.String
			byParent[parent.String] = append(byParent[parent.String], node.ID)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, node := range nodes {
		if node.Kind == entities.ResourceFolder {
			node.Children = byParent[node.ID]
		}
	}
	return nodes, nil
}
