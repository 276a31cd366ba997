package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/infrastructure/metrics"
)

// RouterDeps carries everything the HTTP router needs.
type RouterDeps struct {
	Permissions *PermissionHandler
	Resources   *ResourceHandler
	Sources     *SourceHandler
	Conflicts   *ConflictHandler

	// Health reports readiness of backing stores. Nil means always healthy.
	Health func() error

	// Metrics middleware wiring. Both optional.
	Collector *metrics.Collector
	Exporter  *metrics.PrometheusExporter
}

// NewRouter builds the HTTP API router.
func NewRouter(deps *RouterDeps) *mux.Router {
	r := mux.NewRouter()

	if deps.Collector != nil {
		r.Use(metrics.Middleware(deps.Collector, deps.Exporter))
	}

	// Effective permissions
	r.HandleFunc("/v1/subjects/{subjectID}/resources/{resourceID}/permissions",
		deps.Permissions.GetPermissions).Methods(http.MethodGet)
	r.HandleFunc("/v1/subjects/{subjectID}/resources/{resourceID}/permissions:check",
		deps.Permissions.CheckPermissions).Methods(http.MethodPost)

	// Hierarchy
	r.HandleFunc("/v1/resources", deps.Resources.CreateResource).Methods(http.MethodPost)
	r.HandleFunc("/v1/resources/{resourceID}", deps.Resources.GetResource).Methods(http.MethodGet)
	r.HandleFunc("/v1/resources/{resourceID}/move", deps.Resources.MoveResource).Methods(http.MethodPost)
	r.HandleFunc("/v1/resources/{resourceID}/ancestors", deps.Resources.GetAncestors).Methods(http.MethodGet)

	// Sources
	r.HandleFunc("/v1/resources/{resourceID}/sources", deps.Sources.CreateSource).Methods(http.MethodPost)
	r.HandleFunc("/v1/resources/{resourceID}/sources", deps.Sources.ListSources).Methods(http.MethodGet)
	r.HandleFunc("/v1/sources/{sourceID}", deps.Sources.PatchSource).Methods(http.MethodPatch)
	r.HandleFunc("/v1/sources/{sourceID}", deps.Sources.DeleteSource).Methods(http.MethodDelete)

	// Conflicts
	r.HandleFunc("/v1/resources/{resourceID}/conflicts", deps.Conflicts.ListConflicts).Methods(http.MethodGet)
	r.HandleFunc("/v1/conflicts/{conflictID}/resolve", deps.Conflicts.ResolveConflict).Methods(http.MethodPost)

	// Health
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, &errorPayload{Error: err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}
