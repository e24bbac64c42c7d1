package handlers

import (
	"net/http"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/go-chi/chi/v5"
)

type GoalHandler struct {
	tracker *service.GoalTracker
}

func NewGoalHandler(tracker *service.GoalTracker) *GoalHandler {
	return &GoalHandler{tracker: tracker}
}

type createValueRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type createGoalRequest struct {
	ID          string             `json:"id,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Values      []string           `json:"values"`
	Strengths   map[string]float64 `json:"strengths,omitempty"`
	Progress    float64            `json:"progress"`
	Concepts    []string           `json:"concepts,omitempty"`
}

type createTargetRequest struct {
	ID          string               `json:"id,omitempty"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Goals       []string             `json:"goals"`
	Strengths   map[string]float64   `json:"strengths,omitempty"`
	Status      *domain.TargetStatus `json:"status,omitempty"`
	Due         *time.Time           `json:"due,omitempty"`
	Concepts    []string             `json:"concepts,omitempty"`
}

type progressRequest struct {
	Progress float64 `json:"progress"`
}

type reviewRequest struct {
	Note string `json:"note"`
}

// POST /v1/values
func (h *GoalHandler) CreateValue(w http.ResponseWriter, r *http.Request) {
	var req createValueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.tracker.AddValue(domain.Value{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		writeServiceError(w, err, "failed to create value")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// POST /v1/goals
func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := h.tracker.AddGoal(domain.Goal{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Values:      req.Values,
		Strengths:   req.Strengths,
		Progress:    req.Progress,
		Concepts:    req.Concepts,
	})
	if err != nil {
		writeServiceError(w, err, "failed to create goal")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// POST /v1/targets
func (h *GoalHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tg := domain.Target{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Goals:       req.Goals,
		Strengths:   req.Strengths,
		Due:         req.Due,
		Concepts:    req.Concepts,
	}
	if req.Status != nil {
		tg.Status = *req.Status
	}
	created, err := h.tracker.AddTarget(tg)
	if err != nil {
		writeServiceError(w, err, "failed to create target")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GET /v1/goals
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"values":  h.tracker.Values(),
		"goals":   h.tracker.Goals(),
		"targets": h.tracker.Targets(),
	})
}

// PUT /v1/goals/{id}/progress
func (h *GoalHandler) SetProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.tracker.SetGoalProgress(id, req.Progress); err != nil {
		writeServiceError(w, err, "failed to update progress")
		return
	}
	g, _ := h.tracker.Goal(id)
	writeJSON(w, http.StatusOK, g)
}

// PUT /v1/targets/{id}/status
func (h *GoalHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var status domain.TargetStatus
	if err := decode(r, &status); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.tracker.SetTargetStatus(id, status); err != nil {
		writeServiceError(w, err, "failed to update status")
		return
	}
	tg, _ := h.tracker.Target(id)
	writeJSON(w, http.StatusOK, tg)
}

// Review records that a human looked at a drifting target.
// POST /v1/targets/{id}/reviews
func (h *GoalHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.tracker.RecordDriftReview(id, req.Note); err != nil {
		writeServiceError(w, err, "failed to record review")
		return
	}
	tg, _ := h.tracker.Target(id)
	writeJSON(w, http.StatusOK, tg)
}

// GET /v1/targets/{id}/lineage
func (h *GoalHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	lineage, err := h.tracker.Lineage(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to compute lineage")
		return
	}
	writeJSON(w, http.StatusOK, lineage)
}

// GET /v1/alignment
func (h *GoalHandler) Alignment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"warnings": h.tracker.CheckAlignment()})
}

// Evolution returns the change log of one node, optionally bounded by
// RFC 3339 from/to query parameters.
// GET /v1/evolution/{id}?from=...&to=...
func (h *GoalHandler) Evolution(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = t
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": h.tracker.Evolution(chi.URLParam(r, "id"), from, to),
	})
}
