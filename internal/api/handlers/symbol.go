package handlers

import (
	"net/http"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
	"github.com/go-chi/chi/v5"
)

type SymbolHandler struct {
	graph          *service.MemoryGraph
	contextBudget  int
	multiFramework bool
}

func NewSymbolHandler(graph *service.MemoryGraph, contextBudget int, multiFramework bool) *SymbolHandler {
	if contextBudget <= 0 {
		contextBudget = service.DefaultContextBudget
	}
	return &SymbolHandler{graph: graph, contextBudget: contextBudget, multiFramework: multiFramework}
}

type upsertSymbolRequest struct {
	ID                 string             `json:"id,omitempty"`
	Term               string             `json:"term"`
	Definition         string             `json:"definition"`
	Framework          string             `json:"framework"`
	Confidence         float64            `json:"confidence"`
	Relations          map[string]string  `json:"relations,omitempty"`
	RelationConfidence map[string]float64 `json:"relation_confidence,omitempty"`
	// Verification is optional; an empty value keeps the stored state.
	// "verified" can only be reached through a proof.
	Verification     string `json:"verification,omitempty"`
	VerificationNote string `json:"verification_note,omitempty"`
	MultiFramework   *bool  `json:"multi_framework,omitempty"`
}

type supersedeRequest struct {
	NewID     string `json:"new_id"`
	SessionID string `json:"session_id"`
}

type snapshotRequest struct {
	SessionID string `json:"session_id"`
}

type snapshotResponse struct {
	Seq uint64 `json:"seq"`
}

// Upsert creates or replaces a symbol.
// POST /v1/symbols
func (h *SymbolHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertSymbolRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sym := domain.Symbol{
		ID:         req.ID,
		Term:       req.Term,
		Definition: req.Definition,
		Framework:  req.Framework,
		Confidence: req.Confidence,
	}
	switch domain.VerificationState(req.Verification) {
	case "":
	case domain.VerificationUnverified:
		sym.Verification = domain.Unverified()
	case domain.VerificationPartial:
		sym.Verification = domain.PartiallyVerified(req.VerificationNote)
	case domain.VerificationTheoreticallyUnverifiable:
		sym.Verification = domain.TheoreticallyUnverifiable()
	default:
		writeError(w, http.StatusBadRequest, "invalid verification state")
		return
	}
	if len(req.Relations) > 0 {
		sym.Relations = make(map[string]domain.Relation, len(req.Relations))
		for target, kind := range req.Relations {
			sym.Relations[target] = domain.Relation{
				Kind:       domain.RelationKind(strings.TrimSpace(kind)),
				Confidence: req.RelationConfidence[target],
			}
		}
	}

	multi := h.multiFramework
	if req.MultiFramework != nil {
		multi = *req.MultiFramework
	}
	stored, err := h.graph.Upsert(r.Context(), sym, service.UpsertOptions{MultiFramework: multi})
	if err != nil {
		writeServiceError(w, err, "failed to store symbol")
		return
	}
	status := http.StatusCreated
	if stored.Version > 1 {
		status = http.StatusOK
	}
	writeJSON(w, status, stored)
}

// GET /v1/symbols
func (h *SymbolHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"symbols": h.graph.List()})
}

// GET /v1/symbols/{id}
func (h *SymbolHandler) Get(w http.ResponseWriter, r *http.Request) {
	sym, ok := h.graph.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, service.ErrSymbolNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, sym)
}

// History returns every snapshotted version of a symbol.
// GET /v1/symbols/{id}/history
func (h *SymbolHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history := h.graph.History(id)
	if len(history) == 0 {
		if _, ok := h.graph.Get(id); !ok {
			writeError(w, http.StatusNotFound, service.ErrSymbolNotFound.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// POST /v1/symbols/{id}/supersede
func (h *SymbolHandler) Supersede(w http.ResponseWriter, r *http.Request) {
	var req supersedeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	seq, err := h.graph.Supersede(chi.URLParam(r, "id"), req.NewID, req.SessionID)
	if err != nil {
		writeServiceError(w, err, "failed to supersede symbol")
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Seq: seq})
}

// Related returns symbols related to a free-text query.
// GET /v1/symbols/related?q=...&k=8&min_similarity=0.2
func (h *SymbolHandler) Related(w http.ResponseWriter, r *http.Request) {
	k, err := queryInt(r, "k", service.DefaultRetrieveTopK)
	if err != nil || k <= 0 {
		writeError(w, http.StatusBadRequest, "invalid k")
		return
	}
	minSim, err := queryFloat(r, "min_similarity", service.DefaultMinSimilarity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_similarity")
		return
	}
	related, err := h.graph.RetrieveRelated(r.Context(), r.URL.Query().Get("q"), k, minSim)
	if err != nil {
		writeServiceError(w, err, "failed to retrieve related symbols")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

// Context returns the graph compressed to a token budget.
// GET /v1/context?budget=2000
func (h *SymbolHandler) Context(w http.ResponseWriter, r *http.Request) {
	budget, err := queryInt(r, "budget", h.contextBudget)
	if err != nil || budget <= 0 {
		writeError(w, http.StatusBadRequest, "invalid budget")
		return
	}
	writeJSON(w, http.StatusOK, h.graph.CompressForContext(budget))
}

// POST /v1/snapshots
func (h *SymbolHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, service.ErrSessionIDMissing.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse{Seq: h.graph.Snapshot(req.SessionID)})
}

// GET /v1/snapshots
func (h *SymbolHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": h.graph.Snapshots()})
}
