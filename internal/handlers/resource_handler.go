package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/services"
)

// ResourceHandler serves the resource hierarchy: creation, lookup,
// moves and ancestor chains.
type ResourceHandler struct {
	hierarchy *services.HierarchyService
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(hierarchy *services.HierarchyService) *ResourceHandler {
	return &ResourceHandler{hierarchy: hierarchy}
}

type createResourceRequest struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	ParentID *string `json:"parentId,omitempty"`
}

// CreateResource handles POST /v1/resources.
func (h *ResourceHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var body createResourceRequest
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.ID == "" {
		respondBadRequest(w, "id is required")
		return
	}
	kind := entities.ResourceKind(body.Kind)
	if kind != entities.ResourceFolder && kind != entities.ResourceDocument {
		respondBadRequest(w, "kind must be folder or document")
		return
	}

	node := &entities.ResourceNode{
		ID:       body.ID,
		Kind:     kind,
		ParentID: body.ParentID,
	}
	if err := h.hierarchy.CreateResource(r.Context(), node); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resourceToPayload(node))
}

// GetResource handles GET /v1/resources/{resourceID}.
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	node, err := h.hierarchy.GetResource(r.Context(), mux.Vars(r)["resourceID"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resourceToPayload(node))
}

type moveRequest struct {
	NewParentID *string `json:"newParentId"`
}

// MoveResource handles POST /v1/resources/{resourceID}/move.
// The move is validated first: self-parenting, non-folder parents and
// moves that would create a cycle are rejected without touching the tree.
func (h *ResourceHandler) MoveResource(w http.ResponseWriter, r *http.Request) {
	var body moveRequest
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	resourceID := mux.Vars(r)["resourceID"]
	if err := h.hierarchy.Move(r.Context(), resourceID, body.NewParentID); err != nil {
		respondError(w, err)
		return
	}

	node, err := h.hierarchy.GetResource(r.Context(), resourceID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resourceToPayload(node))
}

// GetAncestors handles GET /v1/resources/{resourceID}/ancestors.
// The chain is ordered nearest-first: parent, grandparent, and so on.
func (h *ResourceHandler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	chain, err := h.hierarchy.AncestorChain(r.Context(), mux.Vars(r)["resourceID"])
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]*resourcePayload, 0, len(chain))
	for _, node := range chain {
		out = append(out, resourceToPayload(node))
	}
	respondJSON(w, http.StatusOK, out)
}
