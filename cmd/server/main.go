package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/handlers"
	"github.com/hayashida/kengen/internal/infrastructure/cache"
	"github.com/hayashida/kengen/internal/infrastructure/config"
	"github.com/hayashida/kengen/internal/infrastructure/database"
	"github.com/hayashida/kengen/internal/infrastructure/metrics"
	"github.com/hayashida/kengen/internal/repositories"
	"github.com/hayashida/kengen/internal/repositories/postgres"
	"github.com/hayashida/kengen/internal/services"
	"github.com/hayashida/kengen/internal/services/authorization"
	"github.com/hayashida/kengen/pkg/cache/memorycache"
)

const defaultEnv = "dev"

// resolutionCost estimates the memory footprint of a cached permission
// set from its contributor lists, so the cache budget tracks actual
// payload weight instead of a flat per-entry guess.
func resolutionCost(value interface{}) int64 {
	perms, ok := value.([]*entities.EffectivePermission)
	if !ok {
		return 0
	}
	var cost int64
	for _, p := range perms {
		cost += int64(len(p.Action)+len(p.WinningSourceID)+len(p.Explanation)) + 48
		for _, c := range p.Contributing {
			cost += int64(len(c.SourceID)+len(c.SubjectRef)) + 32
		}
	}
	return cost
}

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	log.Printf("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)

	// Initialize repositories
	resourceRepo := postgres.NewPostgresResourceRepository(pg.DB)
	sourceRepo := postgres.NewPostgresSourceRepository(pg.DB)
	conflictRepo := postgres.NewPostgresConflictRepository(pg.DB)

	// Initialize services
	hierarchy := services.NewHierarchyService(resourceRepo)
	registry := services.NewRegistryService(resourceRepo, sourceRepo)
	propagator := authorization.NewPropagator(hierarchy, sourceRepo)
	detector := authorization.NewDetector(authorization.TieBreak(cfg.Resolution.TieBreak))
	conflictService := services.NewConflictService(sourceRepo, conflictRepo, detector, propagator)

	// Metrics collector and exporter
	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector)

	// Resolution cache with snapshot-token invalidation
	var checker *authorization.Checker
	var snapshotManager *cache.SnapshotManager
	if cfg.Cache.Enabled {
		resolveCache, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			CostOf:        resolutionCost,
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			log.Fatalf("Failed to create resolution cache: %v", err)
		}
		collector.SetCache(resolveCache)

		snapshotManager = cache.NewSnapshotManager(
			postgres.NewSnapshotSource(pg.DB),
			cfg.Database.ConnectionString(),
			time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		)
		if err := snapshotManager.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start snapshot manager: %v", err)
		}
		defer snapshotManager.Stop()

		var snapshots repositories.SnapshotProvider = snapshotManager
		checker = authorization.NewCheckerWithCache(
			sourceRepo,
			propagator,
			resolveCache,
			snapshots,
			time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		)
		log.Printf("Resolution cache enabled: %d MB, TTL %d min",
			cfg.Cache.MaxMemoryBytes/(1024*1024), cfg.Cache.TTLMinutes)
	} else {
		checker = authorization.NewChecker(sourceRepo, propagator)
		log.Println("Resolution cache disabled")
	}

	// Build HTTP API router
	router := handlers.NewRouter(&handlers.RouterDeps{
		Permissions: handlers.NewPermissionHandler(checker),
		Resources:   handlers.NewResourceHandler(hierarchy),
		Sources:     handlers.NewSourceHandler(registry),
		Conflicts:   handlers.NewConflictHandler(conflictService),
		Health:      pg.HealthCheck,
		Collector:   collector,
		Exporter:    exporter,
	})

	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics server on a separate port
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Periodically refresh exported gauges from the collector
	gaugeTicker := time.NewTicker(10 * time.Second)
	defer gaugeTicker.Stop()
	go func() {
		for range gaugeTicker.C {
			exporter.Update()
		}
	}()

	serverErrors := make(chan error, 2)
	go func() {
		log.Printf("HTTP server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		log.Printf("Metrics server listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		}

		if snapshotManager != nil {
			if err := snapshotManager.Stop(); err != nil {
				log.Printf("Error stopping snapshot manager: %v", err)
			}
		}

		if err := pg.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
		}

		log.Println("Shutdown complete")
	}
}
