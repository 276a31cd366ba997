package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/services"
)

// ConflictHandler serves conflict listing and resolution.
type ConflictHandler struct {
	conflicts *services.ConflictService
}

// NewConflictHandler creates a new ConflictHandler.
func NewConflictHandler(conflicts *services.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts}
}

// ListConflicts handles GET /v1/resources/{resourceID}/conflicts.
// Conflicts are recomputed from the current source set on every call,
// then joined with their persisted review status.
func (h *ConflictHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.conflicts.ListConflicts(r.Context(), mux.Vars(r)["resourceID"])
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]*conflictPayload, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictToPayload(c))
	}
	respondJSON(w, http.StatusOK, out)
}

type resolveConflictRequest struct {
	ResourceID string `json:"resourceId"`
	Mode       string `json:"mode"`
	Reason     string `json:"reason,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// ResolveConflict handles POST /v1/conflicts/{conflictID}/resolve.
// Mode accept_recommendation applies the recommended source changes;
// mode manual suppresses the conflict and requires a reason.
func (h *ConflictHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var body resolveConflictRequest
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.ResourceID == "" {
		respondBadRequest(w, "resourceId is required")
		return
	}

	conflict, err := h.conflicts.ResolveConflict(r.Context(), &services.ResolveRequest{
		ConflictID: mux.Vars(r)["conflictID"],
		ResourceID: body.ResourceID,
		Mode:       body.Mode,
		Reason:     body.Reason,
		Actor:      body.Actor,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conflictToPayload(conflict))
}
