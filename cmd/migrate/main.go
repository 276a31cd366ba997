package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/hayashida/kengen/internal/infrastructure/config"
	"github.com/hayashida/kengen/internal/infrastructure/database"
)

const migrationsDir = "internal/infrastructure/database/migrations/postgres"

var (
	envFlag string
	pg      *database.Postgres
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Schema migration tool for the permission engine",
	Long: `Schema migration tool for the permission engine.
Manages the resources, permission_sources, conflict_statuses and
audit_entries tables through golang-migrate.`,
	PersistentPreRun: connect,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		withMigrate(func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil {
				if err == migrate.ErrNoChange {
					log.Println("No migrations to apply")
					return nil
				}
				return err
			}
			log.Println("Migrations applied")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default: 1)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		steps := 1
		if len(args) > 0 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed < 1 {
				log.Fatalf("Invalid step count: %s", args[0])
			}
			steps = parsed
		}
		withMigrate(func(m *migrate.Migrate) error {
			if err := m.Steps(-steps); err != nil {
				if err == migrate.ErrNoChange {
					log.Println("No migrations to roll back")
					return nil
				}
				return err
			}
			log.Printf("Rolled back %d migration(s)", steps)
			return nil
		})
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			log.Fatalf("Invalid version: %s", args[0])
		}
		withMigrate(func(m *migrate.Migrate) error {
			if err := m.Migrate(uint(version)); err != nil {
				if err == migrate.ErrNoChange {
					log.Printf("Already at version %d", version)
					return nil
				}
				return err
			}
			log.Printf("Migrated to version %d", version)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Run: func(cmd *cobra.Command, args []string) {
		withMigrate(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if err == migrate.ErrNilVersion {
				log.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return err
			}
			if dirty {
				log.Printf("Current version: %d (dirty, last migration may have failed)", version)
			} else {
				log.Printf("Current version: %d", version)
			}
			return nil
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("Invalid version: %s", args[0])
		}
		withMigrate(func(m *migrate.Migrate) error {
			if err := m.Force(version); err != nil {
				return err
			}
			log.Printf("Forced version to %d", version)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func connect(cmd *cobra.Command, args []string) {
	log.Printf("Using environment: %s", envFlag)

	if err := config.InitConfig(envFlag); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)
}

// withMigrate builds a migrate instance over the shared connection,
// runs the command body and closes the instance.
func withMigrate(fn func(m *migrate.Migrate) error) {
	root, err := findProjectRoot()
	if err != nil {
		log.Fatalf("Failed to find project root: %v", err)
	}
	path := filepath.Join(root, migrationsDir)

	driver, err := database.NewMigrateDriver(pg.DB)
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres",
		driver,
	)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}
	defer m.Close()

	if err := fn(m); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// findProjectRoot walks up from the working directory until it finds
// go.mod, so the tool runs from any subdirectory of the repo.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
