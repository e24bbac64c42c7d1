package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SessionHandler struct {
	svc    *service.SessionService
	logger *zap.Logger
}

func NewSessionHandler(svc *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, logger: logger}
}

type turnRequest struct {
	Text     string          `json:"text"`
	Mentions []domain.Symbol `json:"mentions,omitempty"`
	Claims   []service.Claim `json:"claims,omitempty"`
}

type endSessionResponse struct {
	SessionID   string `json:"session_id"`
	SnapshotSeq uint64 `json:"snapshot_seq"`
}

// Turn processes one dialogue turn.
// POST /v1/sessions/{id}/turns
func (h *SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.ProcessTurn(r.Context(), service.Turn{
		SessionID: chi.URLParam(r, "id"),
		Text:      req.Text,
		Mentions:  req.Mentions,
		Claims:    req.Claims,
	})
	if err != nil {
		writeServiceError(w, err, "failed to process turn")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// End snapshots the graph and flushes state.
// POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	seq, err := h.svc.EndSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			h.logger.Error("session state could not be persisted", zap.String("session_id", id), zap.Error(err))
		}
		writeServiceError(w, err, "failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, endSessionResponse{SessionID: id, SnapshotSeq: seq})
}
