package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestGraph() *MemoryGraph {
	return NewMemoryGraph(embedding.NewLocalClient(64), DefaultMemoryGraphConfig(), zap.NewNop())
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestMemoryGraph_UpsertAndGet(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	stored, err := g.Upsert(ctx, domain.Symbol{
		Term:       "Integrated  Information",
		Definition: "a measure of how much a system is more than its parts",
		Framework:  "iit",
		Confidence: 0.7,
	}, UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, "integrated_information", stored.ID)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, domain.VerificationUnverified, stored.Verification.State)

	got, ok := g.Get("INTEGRATED information")
	require.True(t, ok)
	assert.Equal(t, stored, got)

	again, err := g.Upsert(ctx, domain.Symbol{
		Term:       "integrated information",
		Definition: "phi",
		Framework:  "iit",
		Confidence: 0.8,
	}, UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
	assert.Equal(t, stored.CreatedAt, again.CreatedAt)
	assert.Equal(t, 0.8, again.Confidence)

	_, ok = g.Get("missing")
	assert.False(t, ok)
}

func TestMemoryGraph_UpsertValidation(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{}, UpsertOptions{})
	assert.ErrorIs(t, err, ErrSymbolTermEmpty)

	_, err = g.Upsert(ctx, domain.Symbol{Term: "x", Confidence: 1.2}, UpsertOptions{})
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	assert.Empty(t, g.List())
}

func TestMemoryGraph_FrameworkConflict(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{Term: "Entropy", Framework: "physics", Confidence: 0.9}, UpsertOptions{})
	require.NoError(t, err)

	_, err = g.Upsert(ctx, domain.Symbol{Term: "entropy", Framework: "information theory", Confidence: 0.8}, UpsertOptions{})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "entropy", conflict.ID)
	assert.Equal(t, "physics", conflict.ExistingFramework)

	stored, err := g.Upsert(ctx, domain.Symbol{Term: "entropy", Framework: "information theory", Confidence: 0.8}, UpsertOptions{MultiFramework: true})
	require.NoError(t, err)
	assert.Equal(t, "entropy@information_theory", stored.ID)

	orig, ok := g.Get("entropy")
	require.True(t, ok)
	assert.Equal(t, "physics", orig.Framework)
	assert.Equal(t, 1, orig.Version)
}

func TestMemoryGraph_PendingRelationsResolve(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	a, err := g.Upsert(ctx, domain.Symbol{
		Term:      "panpsychism",
		Relations: map[string]domain.Relation{"Physicalism": {Kind: domain.RelationContradicts}},
	}, UpsertOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"physicalism"}, a.PendingTargets())
	assert.Equal(t, 1, g.Stats().Pending)

	_, err = g.Upsert(ctx, domain.Symbol{Term: "physicalism"}, UpsertOptions{})
	require.NoError(t, err)

	a, _ = g.Get("panpsychism")
	assert.Empty(t, a.PendingTargets())
	assert.Equal(t, domain.RelationContradicts, a.Relations["physicalism"].Kind)
	assert.Equal(t, 0, g.Stats().Pending)
}

func TestMemoryGraph_DimensionMismatch(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()
	_, err := g.Upsert(ctx, domain.Symbol{Term: "a"}, UpsertOptions{})
	require.NoError(t, err)

	g.embedder = embedding.NewLocalClient(32)
	_, err = g.Upsert(ctx, domain.Symbol{Term: "b"}, UpsertOptions{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, ok := g.Get("b")
	assert.False(t, ok)
}

func TestMemoryGraph_SnapshotIdempotentAndImmutable(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{Term: "qualia", Confidence: 0.5}, UpsertOptions{})
	require.NoError(t, err)

	seq := g.Snapshot("s1")
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, seq, g.Snapshot("s1"))
	assert.Len(t, g.Snapshots(), 1)
	assert.False(t, g.Dirty())

	_, err = g.Upsert(ctx, domain.Symbol{Term: "qualia", Confidence: 0.9}, UpsertOptions{})
	require.NoError(t, err)
	assert.True(t, g.Dirty())

	snaps := g.Snapshots()
	assert.Equal(t, 0.5, snaps[0].Symbols["qualia"].Confidence)

	// Mutating a returned snapshot must not leak into history.
	snaps[0].Symbols["qualia"] = domain.Symbol{ID: "qualia", Confidence: 0}
	assert.Equal(t, 0.5, g.Snapshots()[0].Symbols["qualia"].Confidence)

	assert.Equal(t, uint64(2), g.Snapshot("s2"))
}

func TestMemoryGraph_ReplayMatchesLive(t *testing.T) {
	g := newTestGraph()
	g.now = stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Upsert(ctx, domain.Symbol{Term: fmt.Sprintf("concept %d", i), Confidence: 0.5}, UpsertOptions{})
		require.NoError(t, err)
		g.Snapshot(fmt.Sprintf("s%d", i))
	}
	_, err := g.Supersede("concept 0", "concept 2", "s9")
	require.NoError(t, err)

	assert.Equal(t, g.Export().Symbols, g.Replay())
}

func TestMemoryGraph_History(t *testing.T) {
	g := newTestGraph()
	g.now = stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{Term: "free energy", Confidence: 0.4}, UpsertOptions{})
	require.NoError(t, err)
	g.Snapshot("s1")
	_, err = g.Upsert(ctx, domain.Symbol{Term: "other", Confidence: 0.4}, UpsertOptions{})
	require.NoError(t, err)
	g.Snapshot("s2")
	_, err = g.Upsert(ctx, domain.Symbol{Term: "free energy", Confidence: 0.6}, UpsertOptions{})
	require.NoError(t, err)
	g.Snapshot("s3")

	hist := g.History("free energy")
	require.Len(t, hist, 2)
	assert.Equal(t, "s1", hist[0].SessionID)
	assert.Equal(t, 0.4, hist[0].Symbol.Confidence)
	assert.Equal(t, "s3", hist[1].SessionID)
	assert.Equal(t, 0.6, hist[1].Symbol.Confidence)
	assert.True(t, hist[0].Timestamp.Before(hist[1].Timestamp))
}

func TestMemoryGraph_Supersede(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "old theory"}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "new theory"}, UpsertOptions{})

	seq, err := g.Supersede("old theory", "new theory", "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	old, ok := g.Get("old_theory")
	require.True(t, ok)
	assert.Equal(t, "new_theory", old.SupersededBy)
	assert.Equal(t, "new_theory", g.Snapshots()[0].Symbols["old_theory"].SupersededBy)

	_, err = g.Supersede("old theory", "old theory", "s1")
	assert.ErrorIs(t, err, ErrSelfSupersede)
	_, err = g.Supersede("old theory", "nope", "s1")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestMemoryGraph_MarkVerifiedAndFind(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()
	_, err := g.Upsert(ctx, domain.Symbol{Term: "2+2=4", Confidence: 0.9}, UpsertOptions{})
	require.NoError(t, err)

	s, ok := g.FindByStatement("  2+2=4 ")
	require.True(t, ok)

	ref := domain.ProofReference{Engine: "z3", ProofID: "p1", Timestamp: time.Now()}
	require.NoError(t, g.MarkVerified(s.ID, ref))

	s, _ = g.Get(s.ID)
	assert.True(t, s.Verification.IsVerified())
	assert.Equal(t, "z3", s.Verification.Proof.Engine)
	assert.Equal(t, 2, s.Version)

	assert.ErrorIs(t, g.MarkVerified("nope", ref), ErrSymbolNotFound)

	_, ok = g.FindByStatement("something else")
	assert.False(t, ok)
}

func TestMemoryGraph_ConcurrentDisjointWriters(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Upsert(ctx, domain.Symbol{Term: fmt.Sprintf("symbol %d", i), Confidence: 0.5}, UpsertOptions{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < 50; i++ {
		_, ok := g.Get(fmt.Sprintf("symbol_%d", i))
		assert.True(t, ok, "symbol_%d missing", i)
	}
}

func TestMemoryGraph_ConcurrentSameIDWriters(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	inputs := map[string]bool{}
	var wg sync.WaitGroup
	const writers = 20
	for i := 0; i < writers; i++ {
		def := fmt.Sprintf("definition %d", i)
		inputs[def] = true
		wg.Add(1)
		go func(def string) {
			defer wg.Done()
			_, err := g.Upsert(ctx, domain.Symbol{
				Term:       "contested",
				Definition: def,
				Confidence: 0.5,
				Relations:  map[string]domain.Relation{def: {Kind: "mentions"}},
			}, UpsertOptions{})
			assert.NoError(t, err)
		}(def)
	}
	wg.Wait()

	s, ok := g.Get("contested")
	require.True(t, ok)
	assert.True(t, inputs[s.Definition])
	assert.Equal(t, writers, s.Version)
	// Relations come from the same write as the definition.
	require.Len(t, s.Relations, 1)
	_, ok = s.Relations[domain.NormalizeID(s.Definition)]
	assert.True(t, ok)
}

func TestMemoryGraph_LoadKeepsDanglingRelations(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.New(core))

	doc := &domain.GraphDocument{
		FormatVersion: domain.GraphFormatVersion,
		Symbols: map[string]domain.Symbol{
			"a": {ID: "a", Term: "a", Relations: map[string]domain.Relation{"ghost": {Kind: domain.RelationImplies}}},
		},
	}
	require.NoError(t, g.Load(doc))

	a, ok := g.Get("a")
	require.True(t, ok)
	assert.True(t, a.Relations["ghost"].Pending)
	assert.Equal(t, 1, logs.FilterMessage("dangling relation loaded as pending").Len())

	// Unsnapshotted loaded state is captured by the next snapshot.
	assert.True(t, g.Dirty())
	assert.Equal(t, uint64(1), g.Snapshot("after-load"))
}

func TestMemoryGraph_ExportLoadRoundTrip(t *testing.T) {
	g := newTestGraph()
	g.now = stepClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "a", Confidence: 0.3, Relations: map[string]domain.Relation{"b": {Kind: domain.RelationIsA}}}, UpsertOptions{})
	g.Snapshot("s1")
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "b", Confidence: 0.6}, UpsertOptions{})
	g.Snapshot("s2")

	doc := g.Export()

	h := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	require.NoError(t, h.Load(doc))
	assert.Equal(t, doc, h.Export())
	assert.False(t, h.Dirty())
}

func TestMemoryGraph_LoadKeepsChangesAfterLastSnapshot(t *testing.T) {
	g := newTestGraph()
	g.now = stepClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	_, err := g.Upsert(ctx, domain.Symbol{Term: "alpha", Confidence: 0.5}, UpsertOptions{})
	require.NoError(t, err)
	g.Snapshot("s1")
	_, err = g.Upsert(ctx, domain.Symbol{Term: "beta", Confidence: 0.5}, UpsertOptions{})
	require.NoError(t, err)

	h := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	require.NoError(t, h.Load(g.Export()))
	assert.True(t, h.Dirty())

	assert.Equal(t, uint64(2), h.Snapshot("s2"))
	assert.Contains(t, h.Replay(), "beta")
	assert.Equal(t, h.Export().Symbols, h.Replay())
}

func TestMemoryGraph_LoadKeepsTouchesAfterLastSnapshot(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()
	_, err := g.Upsert(ctx, domain.Symbol{Term: "alpha", Confidence: 0.5}, UpsertOptions{})
	require.NoError(t, err)
	g.Snapshot("s1")
	require.Equal(t, 1, g.Touch("alpha"))

	h := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	require.NoError(t, h.Load(g.Export()))
	assert.True(t, h.Dirty())
}

func TestMemoryGraph_LoadRejectsNewerFormat(t *testing.T) {
	g := newTestGraph()
	err := g.Load(&domain.GraphDocument{FormatVersion: domain.GraphFormatVersion + 1})
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestMemoryGraph_RetrieveRelated_PinsLogicalRelations(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{Term: "panpsychism", Definition: "mind is a fundamental feature of matter", Confidence: 0.6}, UpsertOptions{})
	require.NoError(t, err)
	_, err = g.Upsert(ctx, domain.Symbol{
		Term:       "eliminativism",
		Definition: "folk psychological states do not exist",
		Confidence: 0.5,
		Relations:  map[string]domain.Relation{"panpsychism": {Kind: domain.RelationContradicts}},
	}, UpsertOptions{})
	require.NoError(t, err)
	_, err = g.Upsert(ctx, domain.Symbol{Term: "tax policy", Definition: "fiscal rules", Confidence: 0.9}, UpsertOptions{})
	require.NoError(t, err)

	// A threshold no embedding can reach leaves only pinned symbols.
	res, err := g.RetrieveRelated(ctx, "what about panpsychism?", 10, 1.01)
	require.NoError(t, err)

	ids := map[string][]string{}
	for _, r := range res {
		ids[r.Symbol.ID] = r.MatchedBy
	}
	assert.Contains(t, ids["panpsychism"], MatchMention)
	assert.Contains(t, ids["eliminativism"], MatchRelation)
	assert.NotContains(t, ids, "tax_policy")
}

func TestMemoryGraph_RetrieveRelated_WeakEdgesRankLower(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := g.Upsert(ctx, domain.Symbol{Term: "panpsychism", Confidence: 0.6}, UpsertOptions{})
	require.NoError(t, err)
	for id, conf := range map[string]float64{"firm": 0.9, "hedged": 0.2} {
		_, err = g.Upsert(ctx, domain.Symbol{
			Term:       id,
			Definition: "an objection",
			Confidence: 0.5,
			Relations:  map[string]domain.Relation{"panpsychism": {Kind: domain.RelationContradicts, Confidence: conf}},
		}, UpsertOptions{})
		require.NoError(t, err)
	}

	res, err := g.RetrieveRelated(ctx, "panpsychism", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "panpsychism", res[0].Symbol.ID)
	assert.Equal(t, "firm", res[1].Symbol.ID)
	assert.Equal(t, "hedged", res[2].Symbol.ID)
	assert.InDelta(t, 0.5*0.75*0.2, res[2].Score, 1e-9)

	_, err = g.Upsert(ctx, domain.Symbol{
		Term:      "bad edge",
		Relations: map[string]domain.Relation{"panpsychism": {Kind: domain.RelationImplies, Confidence: 1.5}},
	}, UpsertOptions{})
	assert.ErrorIs(t, err, ErrInvalidRelation)
}

func TestMemoryGraph_RetrieveRelated_ConfidenceWeighting(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "weak claim", Confidence: 0.2}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "strong claim", Confidence: 0.9}, UpsertOptions{})

	res, err := g.RetrieveRelated(ctx, "compare the weak claim with the strong claim", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "strong_claim", res[0].Symbol.ID)
	assert.InDelta(t, 0.5*(0.5+0.5*0.9), res[0].Score, 1e-9)
	assert.Equal(t, "weak_claim", res[1].Symbol.ID)
}

func TestMemoryGraph_RetrieveRelated_TiesPreferRecentSnapshot(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	g.now = stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, _ = g.Upsert(ctx, domain.Symbol{Term: "alpha", Confidence: 0.5}, UpsertOptions{})
	g.Snapshot("s1")
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "beta", Confidence: 0.5}, UpsertOptions{})
	g.Snapshot("s2")

	res, err := g.RetrieveRelated(ctx, "alpha and beta", 1, 0.3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "beta", res[0].Symbol.ID)
}

func TestMemoryGraph_RetrieveRelated_Validation(t *testing.T) {
	g := newTestGraph()
	_, err := g.RetrieveRelated(context.Background(), "  ", 3, 0)
	assert.ErrorIs(t, err, ErrQueryEmpty)

	res, err := g.RetrieveRelated(context.Background(), "anything", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryGraph_RetrieveRelated_VectorSimilarity(t *testing.T) {
	g := newTestGraph()
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "global workspace", Definition: "broadcast of information across cortical modules", Confidence: 0.8}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "mortgage", Definition: "loan secured by property", Confidence: 0.8}, UpsertOptions{})

	res, err := g.RetrieveRelated(ctx, "information broadcast across modules", 1, 0.1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "global_workspace", res[0].Symbol.ID)
	assert.Contains(t, res[0].MatchedBy, MatchVector)
}

func TestCompressForContext_VerifiedOutranksConfidence(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()
	ref := domain.ProofReference{Engine: "z3", ProofID: "p", Timestamp: time.Now()}

	_, _ = g.Upsert(ctx, domain.Symbol{Term: "sym a", Definition: "x", Confidence: 0.9, Verification: domain.Verified(ref)}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "sym b", Definition: "x", Confidence: 0.95}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "sym c", Definition: "x", Confidence: 0.3}, UpsertOptions{})

	one := CharCounter{}.Count("sym a: x")
	win := g.CompressForContext(one)

	require.Len(t, win.Symbols, 2)
	assert.Equal(t, "sym_a", win.Symbols[0].ID)
	assert.Equal(t, one, win.Used)

	summary := win.Symbols[1]
	assert.True(t, summary.Synthetic)
	assert.Equal(t, SummaryID, summary.ID)
	assert.ElementsMatch(t, []string{"sym_b", "sym_c"}, win.Omitted)
	assert.Contains(t, summary.Relations, "sym_b")
	assert.Contains(t, summary.Relations, "sym_c")
}

func TestCompressForContext_UnverifiedWaitsForVerified(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()
	ref := domain.ProofReference{Engine: "lean4", ProofID: "p", Timestamp: time.Now()}

	_, _ = g.Upsert(ctx, domain.Symbol{Term: "long verified theorem", Definition: "a statement far too long to fit the budget", Confidence: 0.8, Verification: domain.Verified(ref)}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "b", Confidence: 0.99}, UpsertOptions{})

	win := g.CompressForContext(3)
	require.Len(t, win.Symbols, 1)
	assert.True(t, win.Symbols[0].Synthetic)
	assert.ElementsMatch(t, []string{"long_verified_theorem", "b"}, win.Omitted)
	assert.Equal(t, 0, win.Used)
}

func TestCompressForContext_EverythingFits(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "a", Confidence: 0.1}, UpsertOptions{})
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "b", Confidence: 0.9}, UpsertOptions{})

	win := g.CompressForContext(100)
	require.Len(t, win.Symbols, 2)
	assert.Equal(t, "b", win.Symbols[0].ID)
	assert.Equal(t, "a", win.Symbols[1].ID)
	assert.Empty(t, win.Omitted)
}

func TestSignificance_RecencyDecay(t *testing.T) {
	g := NewMemoryGraph(nil, DefaultMemoryGraphConfig(), zap.NewNop())
	ctx := context.Background()
	_, _ = g.Upsert(ctx, domain.Symbol{Term: "stale", Confidence: 0.8}, UpsertOptions{})

	for i := 0; i < 3; i++ {
		_, _ = g.Upsert(ctx, domain.Symbol{Term: fmt.Sprintf("filler %d", i), Confidence: 0.1}, UpsertOptions{})
		g.Snapshot("s")
	}

	stale, _ := g.Get("stale")
	assert.InDelta(t, 0.8*math.Exp(-DefaultRecencyDecay*3), g.Significance(stale), 1e-9)

	assert.Equal(t, 1, g.Touch("stale", "unknown"))
	stale, _ = g.Get("stale")
	assert.InDelta(t, 0.8, g.Significance(stale), 1e-9)
}
