package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hayashida/kengen/internal/entities"
)

// === Shared wire types and helpers for all handlers ===

// sourcePayload is the JSON form of a permission source.
type sourcePayload struct {
	ID          string            `json:"id,omitempty"`
	ResourceID  string            `json:"resourceId,omitempty"`
	SubjectRef  string            `json:"subjectRef"`
	Kind        string            `json:"kind"`
	Priority    int               `json:"priority"`
	Permissions map[string]string `json:"permissions"`
	Active      *bool             `json:"active,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

func sourceToPayload(s *entities.PermissionSource) *sourcePayload {
	perms := make(map[string]string, len(s.Permissions))
	for action, value := range s.Permissions {
		perms[string(action)] = value.String()
	}
	active := s.Active
	p := &sourcePayload{
		ID:          s.ID,
		ResourceID:  s.ResourceID,
		SubjectRef:  s.SubjectRef,
		Kind:        string(s.Kind),
		Priority:    s.Priority,
		Permissions: perms,
		Active:      &active,
	}
	if !s.CreatedAt.IsZero() {
		created := s.CreatedAt
		p.CreatedAt = &created
	}
	if !s.UpdatedAt.IsZero() {
		updated := s.UpdatedAt
		p.UpdatedAt = &updated
	}
	return p
}

func payloadToSource(p *sourcePayload) (*entities.PermissionSource, error) {
	perms, err := parsePermissions(p.Permissions)
	if err != nil {
		return nil, err
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return &entities.PermissionSource{
		ID:          p.ID,
		ResourceID:  p.ResourceID,
		SubjectRef:  p.SubjectRef,
		Kind:        entities.SourceKind(p.Kind),
		Priority:    p.Priority,
		Permissions: perms,
		Active:      active,
	}, nil
}

func parsePermissions(raw map[string]string) (map[entities.Action]entities.Tri, error) {
	perms := make(map[entities.Action]entities.Tri, len(raw))
	for action, value := range raw {
		tri, err := entities.ParseTri(value)
		if err != nil {
			return nil, err
		}
		perms[entities.Action(action)] = tri
	}
	return perms, nil
}

// effectivePayload is the JSON form of a resolved permission.
type effectivePayload struct {
	Action          string               `json:"action"`
	Granted         bool                 `json:"granted"`
	WinningSourceID string               `json:"winningSourceId,omitempty"`
	Contributing    []contributorPayload `json:"contributing"`
	Explanation     string               `json:"explanation"`
}

type contributorPayload struct {
	SourceID   string `json:"sourceId"`
	SubjectRef string `json:"subjectRef"`
	Kind       string `json:"kind"`
	Priority   int    `json:"priority"`
	Value      string `json:"value"`
	IsWinner   bool   `json:"isWinner"`
}

func effectiveToPayload(p *entities.EffectivePermission) *effectivePayload {
	contributing := make([]contributorPayload, 0, len(p.Contributing))
	for _, c := range p.Contributing {
		contributing = append(contributing, contributorPayload{
			SourceID:   c.SourceID,
			SubjectRef: c.SubjectRef,
			Kind:       string(c.Kind),
			Priority:   c.Priority,
			Value:      c.Value.String(),
			IsWinner:   c.IsWinner,
		})
	}
	return &effectivePayload{
		Action:          string(p.Action),
		Granted:         p.Granted,
		WinningSourceID: p.WinningSourceID,
		Contributing:    contributing,
		Explanation:     p.Explanation,
	}
}

// resourcePayload is the JSON form of a hierarchy node.
type resourcePayload struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	ParentID  *string    `json:"parentId,omitempty"`
	Children  []string   `json:"children,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func resourceToPayload(n *entities.ResourceNode) *resourcePayload {
	p := &resourcePayload{
		ID:       n.ID,
		Kind:     string(n.Kind),
		ParentID: n.ParentID,
		Children: n.Children,
	}
	if !n.CreatedAt.IsZero() {
		created := n.CreatedAt
		p.CreatedAt = &created
	}
	if !n.UpdatedAt.IsZero() {
		updated := n.UpdatedAt
		p.UpdatedAt = &updated
	}
	return p
}

// conflictPayload is the JSON form of a detected conflict.
type conflictPayload struct {
	ID               string   `json:"id"`
	ResourceID       string   `json:"resourceId"`
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	AffectedSubjects []string `json:"affectedSubjects"`
	AffectedActions  []string `json:"affectedActions"`
	SourceIDs        []string `json:"sourceIds"`
	Recommendation   string   `json:"recommendation"`
	AutoResolvable   bool     `json:"autoResolvable"`
	Status           string   `json:"status"`
}

func conflictToPayload(c *entities.Conflict) *conflictPayload {
	actions := make([]string, 0, len(c.AffectedActions))
	for _, a := range c.AffectedActions {
		actions = append(actions, string(a))
	}
	return &conflictPayload{
		ID:               c.ID,
		ResourceID:       c.ResourceID,
		Type:             string(c.Type),
		Severity:         string(c.Severity),
		AffectedSubjects: c.AffectedSubjects,
		AffectedActions:  actions,
		SourceIDs:        c.SourceIDs,
		Recommendation:   c.Recommendation,
		AutoResolvable:   c.AutoResolvable,
		Status:           string(c.Status),
	}
}

type errorPayload struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps domain errors to HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrResourceNotFound),
		errors.Is(err, entities.ErrSourceNotFound),
		errors.Is(err, entities.ErrConflictNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrCycleDetected):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrInvalidAction),
		errors.Is(err, entities.ErrSelfParent),
		errors.Is(err, entities.ErrNotAFolder),
		errors.Is(err, entities.ErrInvalidResolution),
		errors.Is(err, entities.ErrInvalidPriority),
		errors.Is(err, entities.ErrInvalidSource),
		errors.Is(err, entities.ErrDepthExceeded):
		status = http.StatusBadRequest
	}
	respondJSON(w, status, &errorPayload{Error: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, &errorPayload{Error: message})
}

func decodeBody(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
