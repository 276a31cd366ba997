package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/services"
)

// SourceHandler serves the permission source registry.
type SourceHandler struct {
	registry *services.RegistryService
}

// NewSourceHandler creates a new SourceHandler.
func NewSourceHandler(registry *services.RegistryService) *SourceHandler {
	return &SourceHandler{registry: registry}
}

// CreateSource handles POST /v1/resources/{resourceID}/sources.
func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var body sourcePayload
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	source, err := payloadToSource(&body)
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	resourceID := mux.Vars(r)["resourceID"]
	id, err := h.registry.AddSource(r.Context(), resourceID, source)
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.registry.GetSource(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sourceToPayload(created))
}

// ListSources handles GET /v1/resources/{resourceID}/sources.
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.registry.ListSources(r.Context(), mux.Vars(r)["resourceID"])
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]*sourcePayload, 0, len(sources))
	for _, s := range sources {
		out = append(out, sourceToPayload(s))
	}
	respondJSON(w, http.StatusOK, out)
}

type patchSourceRequest struct {
	Priority    *int              `json:"priority,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	Permissions map[string]string `json:"permissions,omitempty"`
}

// PatchSource handles PATCH /v1/sources/{sourceID}. Only the fields
// present in the body change; permission entries set to "unspecified"
// are removed from the source.
func (h *SourceHandler) PatchSource(w http.ResponseWriter, r *http.Request) {
	var body patchSourceRequest
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	patch := &services.SourcePatch{
		Priority: body.Priority,
		Active:   body.Active,
	}
	if body.Permissions != nil {
		perms, err := parsePermissions(body.Permissions)
		if err != nil {
			respondBadRequest(w, err.Error())
			return
		}
		patch.Permissions = perms
	}

	source, err := h.registry.PatchSource(r.Context(), mux.Vars(r)["sourceID"], patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sourceToPayload(source))
}

// DeleteSource handles DELETE /v1/sources/{sourceID}.
func (h *SourceHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteSource(r.Context(), mux.Vars(r)["sourceID"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
