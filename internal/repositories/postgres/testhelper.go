package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/hayashida/kengen/internal/infrastructure/config"
	"github.com/hayashida/kengen/internal/infrastructure/database"
	_ "github.com/lib/pq"
)

// SetupTestDB creates a test database connection and runs migrations.
// Tests are skipped when no test database is configured.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("DB_PASSWORD") == "" {
		t.Skip("DB_PASSWORD not set; skipping postgres integration test")
	}

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := pg.RunMigrations("../../../internal/infrastructure/database/migrations/postgres"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB closes the database connection and removes test data.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	tables := []string{"audit_entries", "conflict_statuses", "permission_sources", "resources"}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: failed to close database: %v", err)
	}
}
