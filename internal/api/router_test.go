package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/symstate/internal/config"
	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/store"
	"github.com/Harshitk-cp/symstate/internal/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	app   *App
	state string
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	state := filepath.Join(t.TempDir(), "state.yaml")
	st, err := store.NewFileStore(state, zap.NewNop())
	require.NoError(t, err)

	opts := Options{
		Core: config.CoreOptions{
			ContextBudget:   2000,
			VerifiedBonus:   0.5,
			ConfidenceFloor: 0.5,
			VerifierTimeout: time.Second,
			SnapshotBackend: state,
			RecencyDecay:    0.1,
		},
		Verifiers: []domain.Verifier{
			verifier.NewFunc("mock", func(_ context.Context, statement string) (domain.ProofResult, error) {
				if statement == "false" {
					return domain.Disproven("counterexample"), nil
				}
				return domain.Proven("checked"), nil
			}),
		},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	if mutate != nil {
		mutate(&opts)
	}
	app, err := NewApp(st, opts, zap.NewNop())
	require.NoError(t, err)
	return &testServer{app: app, state: state}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["verifiers_available"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.APIKey = "secret" })

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/symbols", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/symbols", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/symbols", nil, "Authorization", "secret").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/symbols", nil, "Authorization", "Bearer secret").Code)

	// health stays open
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
}

func TestSymbols(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/symbols", map[string]any{
		"term":       "Phi",
		"definition": "integrated information",
		"framework":  "IIT",
		"confidence": 0.8,
		"relations":  map[string]string{"consciousness": "correlates"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sym := decodeBody[domain.Symbol](t, rec)
	assert.Equal(t, "phi", sym.ID)
	assert.Equal(t, 1, sym.Version)
	assert.True(t, sym.Relations["consciousness"].Pending)

	rec = s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "phi", "framework": "IIT", "confidence": 0.9})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[domain.Symbol](t, rec).Version)

	t.Run("framework conflict", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "phi", "framework": "GWT"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("multi framework on request", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "phi", "framework": "GWT", "multi_framework": true})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "phi@gwt", decodeBody[domain.Symbol](t, rec).ID)
	})

	t.Run("validation", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": ""}).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "x", "confidence": 2}).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "x", "verification": "verified"}).Code)
	})

	rec = s.do(t, http.MethodGet, "/v1/symbols/PHI", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.9, decodeBody[domain.Symbol](t, rec).Confidence)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/symbols/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/symbols/missing/history", nil).Code)

	rec = s.do(t, http.MethodGet, "/v1/symbols", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Symbols []domain.Symbol `json:"symbols"`
	}](t, rec)
	assert.Len(t, list.Symbols, 2)
}

func TestSnapshotsAndHistory(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "qualia"}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "phenomenal character"}).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/snapshots", map[string]any{}).Code)

	rec := s.do(t, http.MethodPost, "/v1/snapshots", map[string]any{"session_id": "s1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 1, decodeBody[map[string]any](t, rec)["seq"])

	rec = s.do(t, http.MethodPost, "/v1/symbols/qualia/supersede", map[string]any{"new_id": "phenomenal_character", "session_id": "s1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decodeBody[map[string]any](t, rec)["seq"])

	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/v1/symbols/qualia/supersede", map[string]any{"new_id": "qualia"}).Code)

	rec = s.do(t, http.MethodGet, "/v1/symbols/qualia/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		History []domain.SymbolVersion `json:"history"`
	}](t, rec)
	require.Len(t, history.History, 2)
	assert.Equal(t, "phenomenal_character", history.History[1].Symbol.SupersededBy)

	rec = s.do(t, http.MethodGet, "/v1/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]any](t, rec)["snapshots"], 2)
}

func TestContextAndRelated(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{
		"term": "phi", "definition": "integrated information", "confidence": 0.9,
	}).Code)

	rec := s.do(t, http.MethodGet, "/v1/context?budget=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phi"`)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/context?budget=zero", nil).Code)

	rec = s.do(t, http.MethodGet, "/v1/symbols/related?q=what+is+phi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phi"`)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/symbols/related?q=", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/symbols/related?q=phi&k=-1", nil).Code)
}

func TestGoals(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/values", map[string]any{"id": "v1", "name": "truth"}).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/values", map[string]any{"id": "v1", "name": "again"}).Code)

	rec := s.do(t, http.MethodPost, "/v1/goals", map[string]any{"id": "g1", "name": "map theories", "values": []string{"missing"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/goals", map[string]any{
		"id": "g1", "name": "map theories", "values": []string{"v1"}, "strengths": map[string]float64{"v1": 1.5},
	}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/goals", map[string]any{"id": "g1", "name": "map theories", "values": []string{"v1"}}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/targets", map[string]any{
		"id": "t1", "name": "read IIT paper", "goals": []string{"g1"}, "concepts": []string{"phi"},
	}).Code)

	rec = s.do(t, http.MethodPut, "/v1/goals/g1/progress", map[string]any{"progress": 0.4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.4, decodeBody[domain.Goal](t, rec).Progress)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/v1/goals/g1/progress", map[string]any{"progress": 1.5}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/v1/goals/nope/progress", map[string]any{"progress": 0.1}).Code)

	rec = s.do(t, http.MethodPut, "/v1/targets/t1/status", map[string]any{"state": "in_progress", "fraction": 0.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.TargetInProgress, decodeBody[domain.Target](t, rec).Status.State)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/v1/targets/t1/status", map[string]any{"state": "done"}).Code)

	// phi is not in the graph yet, so t1 drifts from the concepts it names.
	rec = s.do(t, http.MethodGet, "/v1/alignment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	warnings := decodeBody[struct {
		Warnings []domain.AlignmentWarning `json:"warnings"`
	}](t, rec)
	require.NotEmpty(t, warnings.Warnings)
	assert.Equal(t, "t1", warnings.Warnings[0].TargetID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/targets/t1/reviews", map[string]any{"note": ""}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/targets/t1/reviews", map[string]any{"note": "still relevant"}).Code)

	rec = s.do(t, http.MethodGet, "/v1/targets/t1/lineage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lineage := decodeBody[domain.Lineage](t, rec)
	require.Len(t, lineage.Values, 1)
	assert.Equal(t, "v1", lineage.Values[0].ID)

	rec = s.do(t, http.MethodGet, "/v1/evolution/g1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	changes := decodeBody[struct {
		Changes []domain.GoalChange `json:"changes"`
	}](t, rec)
	assert.Len(t, changes.Changes, 2)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/evolution/g1?from=yesterday", nil).Code)

	rec = s.do(t, http.MethodGet, "/v1/goals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[map[string][]any](t, rec)
	assert.Len(t, all["values"], 1)
	assert.Len(t, all["goals"], 1)
	assert.Len(t, all["targets"], 1)
}

func TestProofs(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "lemma a"}).Code)

	rec := s.do(t, http.MethodPost, "/v1/proofs/verify", map[string]any{"statement": "Lemma A", "verifier": "mock"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proof := decodeBody[domain.ProofRecord](t, rec)
	assert.Equal(t, domain.ProofProven, proof.Result.Status)
	assert.Equal(t, "lemma_a", proof.SymbolID)

	rec = s.do(t, http.MethodGet, "/v1/symbols/lemma_a", nil)
	assert.Equal(t, domain.VerificationVerified, decodeBody[domain.Symbol](t, rec).Verification.State)

	rec = s.do(t, http.MethodPost, "/v1/proofs/verify", map[string]any{"statement": "false"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProofDisproven, decodeBody[domain.ProofRecord](t, rec).Result.Status)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/proofs/verify", map[string]any{"statement": "x", "verifier": "coq"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/proofs/verify", map[string]any{"statement": ""}).Code)

	t.Run("cache and cycle", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/proofs", map[string]any{
			"statement": "b", "verifier": "manual",
			"result": domain.Proven("by hand", "c"),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodPost, "/v1/proofs", map[string]any{
			"statement": "c", "verifier": "manual",
			"result": domain.Proven("by hand", "b"),
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, []any{"c", "b", "c"}, decodeBody[map[string]any](t, rec)["path"])

		rec = s.do(t, http.MethodPost, "/v1/proofs", map[string]any{
			"statement": "b", "verifier": "manual",
			"result": domain.Proven("again"),
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = s.do(t, http.MethodPost, "/v1/proofs", map[string]any{
			"statement": "d", "verifier": "manual",
			"result": map[string]any{"status": "maybe"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodGet, "/v1/proofs/ancestry/b", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{"c", "b"}, decodeBody[map[string]any](t, rec)["ancestry"])
	})

	assert.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/v1/proofs/invalidate", map[string]any{"statement": "b", "verifier": "manual"}).Code)
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodPost, "/v1/proofs/invalidate", map[string]any{"statement": "b", "verifier": "manual"}).Code)

	rec = s.do(t, http.MethodGet, "/v1/proofs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]any](t, rec)["entries"], 2)

	rec = s.do(t, http.MethodGet, "/v1/verifiers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mock"`)
}

func TestSessions(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/sessions/s1/turns", map[string]any{
		"text":     "phi and integration",
		"mentions": []map[string]any{{"term": "phi", "confidence": 0.9}},
		"claims":   []map[string]any{{"statement": "phi", "verifier": "mock"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "s1", turn["session_id"])
	proofs := turn["proofs"].([]any)
	require.Len(t, proofs, 1)
	assert.Equal(t, "proven", proofs[0].(map[string]any)["record"].(map[string]any)["result"].(map[string]any)["status"])

	rec = s.do(t, http.MethodPost, "/v1/sessions/s1/end", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeBody[map[string]any](t, rec)["snapshot_seq"])

	for _, p := range []string{s.state, filepath.Join(filepath.Dir(s.state), "state.goals.yaml"), filepath.Join(filepath.Dir(s.state), "state.proofs.yaml")} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestStartRestoresState(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/symbols", map[string]any{"term": "phi"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/sessions/s1/end", nil).Code)

	st, err := store.NewFileStore(s.state, zap.NewNop())
	require.NoError(t, err)
	app, err := NewApp(st, Options{Core: config.CoreOptions{ContextBudget: 100, VerifierTimeout: time.Second}}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	defer app.Stop()

	_, ok := app.Graph.Get("phi")
	assert.True(t, ok)
	assert.Len(t, app.Graph.Snapshots(), 1)
}

func TestDuplicateVerifierRejected(t *testing.T) {
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "s.yaml"), zap.NewNop())
	require.NoError(t, err)
	v := verifier.NewDatalog(0)
	_, err = NewApp(st, Options{Verifiers: []domain.Verifier{v, v}}, zap.NewNop())
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 1
	})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestStatsAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/v1/symbols/missing", nil)

	rec := s.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, stats["error_count"])

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "symstate_http_requests_total")
}
