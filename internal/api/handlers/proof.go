package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/go-chi/chi/v5"
)

type ProofHandler struct {
	engine *service.ProofEngine
}

func NewProofHandler(engine *service.ProofEngine) *ProofHandler {
	return &ProofHandler{engine: engine}
}

type verifyRequest struct {
	Statement string `json:"statement"`
	// Verifier is optional; empty tries every available verifier in order.
	Verifier  string `json:"verifier,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type cacheProofRequest struct {
	Statement string             `json:"statement"`
	Verifier  string             `json:"verifier"`
	Result    domain.ProofResult `json:"result"`
}

type invalidateRequest struct {
	Statement string `json:"statement"`
	Verifier  string `json:"verifier"`
}

type cycleResponse struct {
	Error  string             `json:"error"`
	Path   []string           `json:"path"`
	Record domain.ProofRecord `json:"record"`
}

// Verify runs (or reads from cache) a verification.
// POST /v1/proofs/verify
func (h *ProofHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond

	var (
		rec domain.ProofRecord
		err error
	)
	if req.Verifier == "" {
		if req.Statement == "" {
			writeError(w, http.StatusBadRequest, service.ErrStatementEmpty.Error())
			return
		}
		rec, err = h.engine.VerifyAny(r.Context(), req.Statement, timeout)
	} else {
		rec, err = h.engine.Verify(r.Context(), req.Statement, req.Verifier, timeout)
	}
	if err != nil {
		h.writeProofError(w, err, rec, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Cache records an externally obtained result.
// POST /v1/proofs
func (h *ProofHandler) Cache(w http.ResponseWriter, r *http.Request) {
	var req cacheProofRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.engine.CacheProof(r.Context(), req.Statement, req.Verifier, req.Result)
	if err != nil {
		h.writeProofError(w, err, rec, "failed to cache proof")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// POST /v1/proofs/invalidate
func (h *ProofHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.Invalidate(req.Statement, req.Verifier); err != nil {
		writeServiceError(w, err, "failed to invalidate proof")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/proofs
func (h *ProofHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.engine.Entries()})
}

// Ancestry returns the proof dependencies of a symbol, leaves first.
// GET /v1/proofs/ancestry/{id}
func (h *ProofHandler) Ancestry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ancestry": h.engine.AncestryOf(chi.URLParam(r, "id"))})
}

// GET /v1/verifiers
func (h *ProofHandler) Verifiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"verifiers": h.engine.Verifiers()})
}

func (h *ProofHandler) writeProofError(w http.ResponseWriter, err error, rec domain.ProofRecord, fallback string) {
	var cycle *domain.CycleError
	if errors.As(err, &cycle) {
		writeJSON(w, http.StatusConflict, cycleResponse{Error: err.Error(), Path: cycle.Path, Record: rec})
		return
	}
	writeServiceError(w, err, fallback)
}
