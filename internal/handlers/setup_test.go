package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/repositories/memory"
	"github.com/hayashida/kengen/internal/services"
	"github.com/hayashida/kengen/internal/services/authorization"
)

// testEnv wires the full stack over in-memory repositories.
type testEnv struct {
	router    *mux.Router
	resources *memory.ResourceRepository
	sources   *memory.SourceRepository
	conflicts *memory.ConflictRepository
	registry  *services.RegistryService
	hierarchy *services.HierarchyService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rev := memory.NewRevision()
	resources := memory.NewResourceRepository(rev)
	sources := memory.NewSourceRepository(rev)
	conflicts := memory.NewConflictRepository(sources, rev)

	hierarchy := services.NewHierarchyService(resources)
	registry := services.NewRegistryService(resources, sources)
	propagator := authorization.NewPropagator(hierarchy, sources)
	detector := authorization.NewDetector(authorization.MostPermissive)
	conflictSvc := services.NewConflictService(sources, conflicts, detector, propagator)
	checker := authorization.NewChecker(sources, propagator)

	router := NewRouter(&RouterDeps{
		Permissions: NewPermissionHandler(checker),
		Resources:   NewResourceHandler(hierarchy),
		Sources:     NewSourceHandler(registry),
		Conflicts:   NewConflictHandler(conflictSvc),
	})

	return &testEnv{
		router:    router,
		resources: resources,
		sources:   sources,
		conflicts: conflicts,
		registry:  registry,
		hierarchy: hierarchy,
	}
}

// do runs a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// mustCreateResource creates a node through the API and fails the test on error.
func (e *testEnv) mustCreateResource(t *testing.T, id, kind string, parentID *string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/resources", &createResourceRequest{
		ID:       id,
		Kind:     kind,
		ParentID: parentID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed to create resource %s: status %d body %s", id, rec.Code, rec.Body.String())
	}
}

// mustCreateSource creates a source through the API and returns its ID.
func (e *testEnv) mustCreateSource(t *testing.T, resourceID string, payload *sourcePayload) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/resources/"+resourceID+"/sources", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed to create source on %s: status %d body %s", resourceID, rec.Code, rec.Body.String())
	}
	var created sourcePayload
	decodeResponse(t, rec, &created)
	return created.ID
}

func strPtr(s string) *string { return &s }
