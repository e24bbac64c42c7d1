package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type sessionFixture struct {
	graph   *MemoryGraph
	goals   *GoalTracker
	proofs  *ProofEngine
	store   *MockStateStore
	session *SessionService
}

func newSessionFixture(t *testing.T, verifiers ...domain.Verifier) *sessionFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &sessionFixture{store: new(MockStateStore)}
	f.graph = NewMemoryGraph(nil, DefaultMemoryGraphConfig(), logger)
	f.goals = NewGoalTracker(f.graph, 0, logger)
	f.proofs = NewProofEngine(f.graph, time.Second, logger)
	for _, v := range verifiers {
		require.NoError(t, f.proofs.Register(v))
	}
	flusher := NewFlushService(f.store, f.graph, f.goals, f.proofs, logger)
	f.session = NewSessionService(f.graph, f.goals, f.proofs, flusher, DefaultSessionConfig(), logger)
	return f
}

func TestSessionService_ProcessTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newSessionFixture(t, provenVerifier("z3"))
	ctx := context.Background()

	_, err := f.goals.AddValue(domain.Value{ID: "v1", Name: "understand consciousness"})
	require.NoError(t, err)
	_, err = f.goals.AddGoal(domain.Goal{ID: "g1", Name: "survey theories", Values: []string{"v1"}})
	require.NoError(t, err)
	_, err = f.goals.AddTarget(domain.Target{ID: "t1", Name: "define phi", Goals: []string{"g1"}, Concepts: []string{"phi"}})
	require.NoError(t, err)

	res, err := f.session.ProcessTurn(ctx, Turn{
		SessionID: "s1",
		Text:      "how does phi relate to integration",
		Mentions: []domain.Symbol{
			{Term: "phi", Definition: "integrated information", Confidence: 0.9},
			{Term: "integration", Confidence: 0.6},
		},
		Claims: []Claim{{Statement: "phi", Verifier: "z3"}, {Statement: "x", Verifier: "coq"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "s1", res.SessionID)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Proofs, 2)
	require.NotNil(t, res.Proofs[0].Record)
	assert.Equal(t, domain.ProofProven, res.Proofs[0].Record.Result.Status)
	assert.Nil(t, res.Proofs[1].Record)
	assert.Contains(t, res.Proofs[1].Error, "unknown verifier")

	ids := make([]string, 0, len(res.Related))
	for _, r := range res.Related {
		ids = append(ids, r.Symbol.ID)
	}
	assert.Contains(t, ids, "phi")
	assert.Contains(t, ids, "integration")

	// The proven claim marked phi verified, so it leads the context window.
	require.NotEmpty(t, res.Context.Symbols)
	assert.Equal(t, "phi", res.Context.Symbols[0].ID)
	assert.True(t, res.Context.Symbols[0].Verification.IsVerified())
}

func TestSessionService_MissingConceptWarns(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.goals.AddValue(domain.Value{ID: "v1", Name: "v"})
	require.NoError(t, err)
	_, err = f.goals.AddGoal(domain.Goal{ID: "g1", Name: "g", Values: []string{"v1"}})
	require.NoError(t, err)
	_, err = f.goals.AddTarget(domain.Target{ID: "t1", Name: "t", Goals: []string{"g1"}, Concepts: []string{"qualia"}})
	require.NoError(t, err)

	res, err := f.session.ProcessTurn(context.Background(), Turn{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Reason, "qualia")

	res, err = f.session.ProcessTurn(context.Background(), Turn{
		SessionID: "s1",
		Mentions:  []domain.Symbol{{Term: "qualia", Confidence: 0.5}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestSessionService_ProcessTurnValidation(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.session.ProcessTurn(context.Background(), Turn{})
	assert.ErrorIs(t, err, ErrSessionIDMissing)

	_, err = f.session.ProcessTurn(context.Background(), Turn{
		SessionID: "s1",
		Mentions:  []domain.Symbol{{Term: "", Confidence: 0.5}},
	})
	assert.ErrorIs(t, err, ErrSymbolTermEmpty)
}

func TestSessionService_EndSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.session.ProcessTurn(ctx, Turn{
		SessionID: "s1",
		Mentions:  []domain.Symbol{{Term: "phi", Confidence: 0.9}},
	})
	require.NoError(t, err)

	f.store.On("SaveGraph", mock.Anything, mock.MatchedBy(func(doc *domain.GraphDocument) bool {
		return len(doc.Snapshots) == 1 && doc.Snapshots[0].SessionID == "s1"
	})).Return(nil).Once()
	f.store.On("SaveGoals", mock.Anything, mock.Anything).Return(nil).Once()
	f.store.On("SaveProofs", mock.Anything, mock.Anything).Return(nil).Once()

	seq, err := f.session.EndSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	f.store.AssertExpectations(t)

	_, err = f.session.EndSession(ctx, " ")
	assert.ErrorIs(t, err, ErrSessionIDMissing)
}
