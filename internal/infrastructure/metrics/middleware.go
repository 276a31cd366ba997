package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware returns an HTTP middleware that records metrics for each request.
// Requests are labeled by their mux route template so path parameters do not
// explode the label cardinality.
func Middleware(collector *Collector, exporter *PrometheusExporter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			// Record request
			collector.RecordRequest(route)
			if exporter != nil {
				exporter.RecordRequest(route)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Record duration
			duration := time.Since(start).Seconds()
			collector.RecordDuration(route, duration)
			if exporter != nil {
				exporter.RecordDuration(route, duration)
			}

			// Record error if any
			if rec.status >= http.StatusInternalServerError {
				collector.RecordError(route)
				if exporter != nil {
					exporter.RecordError(route)
				}
			}
		})
	}
}
