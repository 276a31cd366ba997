package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/services/authorization"
)

// PermissionHandler serves effective permission reads and what-if checks.
type PermissionHandler struct {
	checker *authorization.Checker
}

// NewPermissionHandler creates a new PermissionHandler.
func NewPermissionHandler(checker *authorization.Checker) *PermissionHandler {
	return &PermissionHandler{checker: checker}
}

// GetPermissions handles GET /v1/subjects/{subjectID}/resources/{resourceID}/permissions.
// Roles and groups the subject holds come from the roles= and groups=
// query parameters as comma-separated lists.
func (h *PermissionHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	req := &authorization.CheckRequest{
		Subject:    subjectFromRequest(vars["subjectID"], r),
		ResourceID: vars["resourceID"],
	}

	perms, err := h.checker.EffectivePermissions(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, permissionsResponse(perms))
}

// checkRequest is the body of a what-if permission check.
type checkRequest struct {
	Roles             []string         `json:"roles,omitempty"`
	Groups            []string         `json:"groups,omitempty"`
	ContextualSources []*sourcePayload `json:"contextualSources,omitempty"`
}

// CheckPermissions handles POST /v1/subjects/{subjectID}/resources/{resourceID}/permissions:check.
// Contextual sources in the body are merged into the evaluation for
// this request only; nothing is persisted and the cache is bypassed.
func (h *PermissionHandler) CheckPermissions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body checkRequest
	if err := decodeBody(r, &body); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	subject := subjectFromRequest(vars["subjectID"], r)
	if len(body.Roles) > 0 {
		subject.Roles = body.Roles
	}
	if len(body.Groups) > 0 {
		subject.Groups = body.Groups
	}

	contextual := make([]*entities.PermissionSource, 0, len(body.ContextualSources))
	for i, payload := range body.ContextualSources {
		source, err := payloadToSource(payload)
		if err != nil {
			respondBadRequest(w, "invalid contextual source: "+err.Error())
			return
		}
		if source.ID == "" {
			source.ID = fmt.Sprintf("%s#ctx%d", vars["resourceID"], i)
		}
		if source.ResourceID == "" {
			source.ResourceID = vars["resourceID"]
		}
		contextual = append(contextual, source)
	}

	req := &authorization.CheckRequest{
		Subject:           subject,
		ResourceID:        vars["resourceID"],
		ContextualSources: contextual,
	}

	perms, err := h.checker.EffectivePermissions(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, permissionsResponse(perms))
}

func permissionsResponse(perms []*entities.EffectivePermission) []*effectivePayload {
	out := make([]*effectivePayload, 0, len(perms))
	for _, p := range perms {
		out = append(out, effectiveToPayload(p))
	}
	return out
}

// subjectFromRequest builds the subject from the path ID plus the
// roles= and groups= query parameters. A bare ID is treated as a user.
func subjectFromRequest(subjectID string, r *http.Request) authorization.Subject {
	ref := subjectID
	if !strings.Contains(ref, ":") {
		ref = "user:" + ref
	}
	return authorization.Subject{
		Ref:    ref,
		Roles:  splitList(r.URL.Query().Get("roles")),
		Groups: splitList(r.URL.Query().Get("groups")),
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
