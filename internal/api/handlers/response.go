package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrCycle),
		errors.Is(err, service.ErrNodeExists),
		errors.Is(err, service.ErrProofCached),
		errors.Is(err, service.ErrVerifierExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDanglingReference),
		errors.Is(err, service.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownVerifier),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, service.ErrSymbolNotFound),
		errors.Is(err, service.ErrNodeNotFound),
		errors.Is(err, service.ErrProofNotCached):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoVerifierAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrSymbolTermEmpty),
		errors.Is(err, service.ErrInvalidConfidence),
		errors.Is(err, service.ErrQueryEmpty),
		errors.Is(err, service.ErrSelfSupersede),
		errors.Is(err, service.ErrNodeNameEmpty),
		errors.Is(err, service.ErrInvalidProgress),
		errors.Is(err, service.ErrInvalidStrength),
		errors.Is(err, service.ErrInvalidRelation),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrReviewNoteMissing),
		errors.Is(err, service.ErrStatementEmpty),
		errors.Is(err, service.ErrInvalidProofStatus),
		errors.Is(err, service.ErrSessionIDMissing):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError reports err with its mapped status. Internal errors are
// reported as fallback so storage details do not leak to clients.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
