package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrSymbolTermEmpty    = errors.New("term or id is required")
	ErrInvalidConfidence  = errors.New("confidence must be within [0,1]")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrInvalidRelation    = errors.New("relation confidence must be within [0,1]")
	ErrQueryEmpty         = errors.New("query is required")
	ErrSelfSupersede      = errors.New("symbol cannot supersede itself")
	ErrUnsupportedVersion = errors.New("unsupported graph document version")
)

const (
	// DefaultVerifiedBonus is the significance multiplier bonus for Verified symbols.
	DefaultVerifiedBonus = 0.5
	// DefaultConfidenceFloor is the minimum confidence for a Verified symbol to
	// be retained ahead of everything else.
	DefaultConfidenceFloor = 0.5
	// DefaultRecencyDecay is the per-snapshot exponential decay of significance.
	DefaultRecencyDecay = 0.1

	idLockStripes = 64
)

type MemoryGraphConfig struct {
	VerifiedBonus   float64
	ConfidenceFloor float64
	RecencyDecay    float64
	Tokens          TokenCounter
}

func DefaultMemoryGraphConfig() MemoryGraphConfig {
	return MemoryGraphConfig{
		VerifiedBonus:   DefaultVerifiedBonus,
		ConfidenceFloor: DefaultConfidenceFloor,
		RecencyDecay:    DefaultRecencyDecay,
		Tokens:          CharCounter{},
	}
}

// UpsertOptions controls framework disambiguation.
type UpsertOptions struct {
	// MultiFramework stores a symbol whose id is already taken by another
	// framework under term@framework instead of failing.
	MultiFramework bool
}

// MemoryGraph is the versioned symbol store. Reads are concurrent; writes to
// one symbol id are serialized through striped locks while writes to
// disjoint ids proceed independently.
type MemoryGraph struct {
	embedder domain.EmbeddingClient
	cfg      MemoryGraphConfig
	logger   *zap.Logger
	now      func() time.Time

	idLocks [idLockStripes]sync.Mutex

	mu         sync.RWMutex
	symbols    map[string]domain.Symbol
	embeddings map[string][]float32
	dimension  int
	snapshots  []domain.Snapshot
	seq        uint64
	mutations  uint64
	snapped    uint64
}

// NewMemoryGraph returns an empty graph. embedder may be nil, in which case
// retrieval falls back to relation and definition matching only.
func NewMemoryGraph(embedder domain.EmbeddingClient, cfg MemoryGraphConfig, logger *zap.Logger) *MemoryGraph {
	if cfg.Tokens == nil {
		cfg.Tokens = CharCounter{}
	}
	return &MemoryGraph{
		embedder:   embedder,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		symbols:    make(map[string]domain.Symbol),
		embeddings: make(map[string][]float32),
	}
}

var _ domain.SymbolLookup = (*MemoryGraph)(nil)

func (g *MemoryGraph) stripe(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % idLockStripes)
}

// lockIDs acquires the stripes for ids in index order and returns the unlock.
func (g *MemoryGraph) lockIDs(ids ...string) func() {
	idx := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		s := g.stripe(id)
		if !seen[s] {
			seen[s] = true
			idx = append(idx, s)
		}
	}
	sort.Ints(idx)
	for _, s := range idx {
		g.idLocks[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			g.idLocks[idx[i]].Unlock()
		}
	}
}

// Upsert inserts or replaces a symbol by id and returns the stored version.
// Relation targets that do not exist are kept and flagged pending; inserting
// a symbol resolves pending relations elsewhere that point at it.
func (g *MemoryGraph) Upsert(ctx context.Context, sym domain.Symbol, opts UpsertOptions) (domain.Symbol, error) {
	if sym.ID == "" && sym.Term == "" {
		return domain.Symbol{}, ErrSymbolTermEmpty
	}
	if sym.Confidence < 0 || sym.Confidence > 1 {
		return domain.Symbol{}, ErrInvalidConfidence
	}
	for target, rel := range sym.Relations {
		if rel.Confidence < 0 || rel.Confidence > 1 {
			return domain.Symbol{}, fmt.Errorf("%w: %s", ErrInvalidRelation, target)
		}
	}
	if sym.Term == "" {
		sym.Term = sym.ID
	}
	id := domain.NormalizeID(sym.ID)
	if id == "" {
		id = domain.NormalizeID(sym.Term)
	}

	var vec []float32
	if g.embedder != nil {
		v, err := g.embedder.Embed(ctx, sym.Text())
		if err != nil {
			return domain.Symbol{}, fmt.Errorf("embed symbol %s: %w", id, err)
		}
		vec = v
	}

	qualified := domain.QualifiedID(sym.Term, sym.Framework)
	lockSet := []string{id}
	if opts.MultiFramework && qualified != id {
		lockSet = append(lockSet, qualified)
	}
	unlock := g.lockIDs(lockSet...)
	defer unlock()

	g.mu.RLock()
	existing, exists := g.symbols[id]
	g.mu.RUnlock()

	if exists && existing.Framework != sym.Framework {
		if !opts.MultiFramework {
			return domain.Symbol{}, &domain.ConflictError{
				ID:                 id,
				ExistingFramework:  existing.Framework,
				RequestedFramework: sym.Framework,
			}
		}
		id = qualified
		g.mu.RLock()
		existing, exists = g.symbols[id]
		g.mu.RUnlock()
	}

	now := g.now()
	stored := sym.Clone()
	stored.ID = id
	stored.Synthetic = false
	stored.UpdatedAt = now
	stored.Version = 1
	stored.CreatedAt = now
	stored.SnapshotAt = nil
	if exists {
		stored.Version = existing.Version + 1
		stored.CreatedAt = existing.CreatedAt
		if stored.Verification.State == "" {
			stored.Verification = existing.Clone().Verification
		}
		if stored.SupersededBy == "" {
			stored.SupersededBy = existing.SupersededBy
		}
	}
	if stored.Verification.State == "" {
		stored.Verification = domain.Unverified()
	}

	rels := make(map[string]domain.Relation, len(sym.Relations))
	for target, rel := range sym.Relations {
		t := domain.NormalizeID(target)
		if t == "" || rel.Kind == "" {
			continue
		}
		rels[t] = domain.Relation{Kind: rel.Kind}
	}
	stored.Relations = rels
	if len(rels) == 0 {
		stored.Relations = nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if vec != nil && g.dimension != 0 && len(vec) != g.dimension {
		return domain.Symbol{}, fmt.Errorf("%w: got %d, graph uses %d", ErrDimensionMismatch, len(vec), g.dimension)
	}

	if cur, ok := g.symbols[id]; ok && cur.SnapshotAt != nil {
		t := *cur.SnapshotAt
		stored.SnapshotAt = &t
	}
	stored.LastReferenced = g.seq
	for target, rel := range stored.Relations {
		if _, ok := g.symbols[target]; !ok && target != id {
			rel.Pending = true
			stored.Relations[target] = rel
		}
	}

	if !exists {
		g.resolvePendingLocked(id)
	}
	g.symbols[id] = stored
	if vec != nil {
		if g.dimension == 0 {
			g.dimension = len(vec)
		}
		g.embeddings[id] = vec
	}
	g.mutations++
	metrics.SymbolsTotal.Set(float64(len(g.symbols)))

	if pending := stored.PendingTargets(); len(pending) > 0 {
		g.logger.Debug("symbol has pending relations",
			zap.String("symbol_id", id),
			zap.Strings("pending", pending))
	}

	return stored.Clone(), nil
}

// resolvePendingLocked clears the pending flag on relations targeting id.
// Caller holds g.mu.
func (g *MemoryGraph) resolvePendingLocked(id string) {
	for sid, s := range g.symbols {
		rel, ok := s.Relations[id]
		if !ok || !rel.Pending {
			continue
		}
		s = s.Clone()
		rel.Pending = false
		s.Relations[id] = rel
		g.symbols[sid] = s
	}
}

func (g *MemoryGraph) Get(id string) (domain.Symbol, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.symbols[domain.NormalizeID(id)]
	if !ok {
		return domain.Symbol{}, false
	}
	return s.Clone(), true
}

// List returns all live symbols ordered by id.
func (g *MemoryGraph) List() []domain.Symbol {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Symbol, 0, len(g.symbols))
	for _, s := range g.symbols {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Touch records a reference to each existing id at the current snapshot
// epoch, resetting its recency decay. Unknown ids are ignored.
func (g *MemoryGraph) Touch(ids ...string) int {
	norm := make([]string, 0, len(ids))
	for _, id := range ids {
		norm = append(norm, domain.NormalizeID(id))
	}
	unlock := g.lockIDs(norm...)
	defer unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	touched := 0
	for _, id := range norm {
		s, ok := g.symbols[id]
		if !ok || s.LastReferenced == g.seq {
			continue
		}
		s.LastReferenced = g.seq
		g.symbols[id] = s
		touched++
	}
	if touched > 0 {
		g.mutations++
	}
	return touched
}

// MarkVerified records a successful proof on the symbol.
func (g *MemoryGraph) MarkVerified(id string, ref domain.ProofReference) error {
	return g.update(id, func(s *domain.Symbol) error {
		s.Verification = domain.Verified(ref)
		return nil
	})
}

// Supersede marks oldID as replaced by newID and captures the change in a new
// snapshot. Nothing is deleted.
func (g *MemoryGraph) Supersede(oldID, newID, sessionID string) (uint64, error) {
	oldID, newID = domain.NormalizeID(oldID), domain.NormalizeID(newID)
	if oldID == newID {
		return 0, ErrSelfSupersede
	}
	if _, ok := g.Get(newID); !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, newID)
	}
	err := g.update(oldID, func(s *domain.Symbol) error {
		s.SupersededBy = newID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return g.Snapshot(sessionID), nil
}

func (g *MemoryGraph) update(id string, fn func(s *domain.Symbol) error) error {
	id = domain.NormalizeID(id)
	unlock := g.lockIDs(id)
	defer unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.symbols[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}

	s = s.Clone()
	if err := fn(&s); err != nil {
		return err
	}
	s.Version++
	s.UpdatedAt = g.now()
	g.symbols[id] = s
	g.mutations++
	return nil
}

// FindByStatement returns the symbol whose id, term, definition or rendered
// text matches statement after normalization.
func (g *MemoryGraph) FindByStatement(statement string) (domain.Symbol, bool) {
	want := domain.NormalizeStatement(statement)
	if want == "" {
		return domain.Symbol{}, false
	}
	if s, ok := g.Get(statement); ok {
		return s, true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.symbols))
	for id := range g.symbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := g.symbols[id]
		if domain.NormalizeStatement(s.Term) == want ||
			domain.NormalizeStatement(s.Definition) == want ||
			domain.NormalizeStatement(s.Text()) == want {
			return s.Clone(), true
		}
	}
	return domain.Symbol{}, false
}

// Snapshot captures the live mapping into a new immutable snapshot and
// returns its sequence number. When nothing changed since the previous
// snapshot no new snapshot is written and the previous sequence is returned.
func (g *MemoryGraph) Snapshot(sessionID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.snapshots) > 0 && g.mutations == g.snapped {
		return g.seq
	}

	var prev map[string]domain.Symbol
	if n := len(g.snapshots); n > 0 {
		prev = g.snapshots[n-1].Symbols
	}

	ts := g.now().UTC()
	if n := len(g.snapshots); n > 0 && ts.Before(g.snapshots[n-1].Timestamp) {
		ts = g.snapshots[n-1].Timestamp
	}

	g.seq++
	snap := domain.Snapshot{
		Seq:       g.seq,
		SessionID: sessionID,
		Timestamp: ts,
		Symbols:   make(map[string]domain.Symbol, len(g.symbols)),
	}
	for id, s := range g.symbols {
		if p, ok := prev[id]; !ok || p.Version != s.Version || s.SnapshotAt == nil {
			t := ts
			s.SnapshotAt = &t
			g.symbols[id] = s
		}
		snap.Symbols[id] = s.Clone()
	}
	g.snapshots = append(g.snapshots, snap)
	g.snapped = g.mutations
	metrics.SnapshotsTotal.Inc()

	g.logger.Info("snapshot created",
		zap.Uint64("seq", snap.Seq),
		zap.String("session_id", sessionID),
		zap.Int("symbols", len(snap.Symbols)))

	return snap.Seq
}

// Snapshots returns the snapshot list in order.
func (g *MemoryGraph) Snapshots() []domain.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Snapshot, len(g.snapshots))
	for i, s := range g.snapshots {
		out[i] = cloneSnapshot(s)
	}
	return out
}

// Replay rebuilds the symbol mapping by applying snapshots in order. The
// result equals the live mapping as of the latest snapshot.
func (g *MemoryGraph) Replay() map[string]domain.Symbol {
	snaps := g.Snapshots()
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Before(snaps[j]) })

	out := make(map[string]domain.Symbol)
	for _, snap := range snaps {
		for id, s := range snap.Symbols {
			out[id] = s
		}
	}
	return out
}

// History returns each distinct version of a symbol across snapshots,
// oldest first.
func (g *MemoryGraph) History(id string) []domain.SymbolVersion {
	id = domain.NormalizeID(id)
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []domain.SymbolVersion
	lastVersion := -1
	for _, snap := range g.snapshots {
		s, ok := snap.Symbols[id]
		if !ok || s.Version == lastVersion {
			continue
		}
		lastVersion = s.Version
		out = append(out, domain.SymbolVersion{
			SnapshotSeq: snap.Seq,
			SessionID:   snap.SessionID,
			Timestamp:   snap.Timestamp,
			Symbol:      s.Clone(),
		})
	}
	return out
}

// Dirty reports whether the live state changed since the last snapshot.
func (g *MemoryGraph) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.snapshots) == 0 || g.mutations != g.snapped
}

// Revision changes whenever the persisted form of the graph changes.
func (g *MemoryGraph) Revision() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mutations + g.seq
}

type GraphStats struct {
	Symbols   int    `json:"symbols"`
	Pending   int    `json:"pending_relations"`
	Verified  int    `json:"verified"`
	Snapshots int    `json:"snapshots"`
	LastSeq   uint64 `json:"last_seq"`
	Dimension int    `json:"dimension"`
}

func (g *MemoryGraph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := GraphStats{
		Symbols:   len(g.symbols),
		Snapshots: len(g.snapshots),
		LastSeq:   g.seq,
		Dimension: g.dimension,
	}
	for _, s := range g.symbols {
		st.Pending += len(s.PendingTargets())
		if s.Verification.IsVerified() {
			st.Verified++
		}
	}
	return st
}

// Export returns a deep copy of the graph in its persisted form.
func (g *MemoryGraph) Export() *domain.GraphDocument {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := &domain.GraphDocument{
		FormatVersion: domain.GraphFormatVersion,
		Dimension:     g.dimension,
		Symbols:       make(map[string]domain.Symbol, len(g.symbols)),
		Snapshots:     make([]domain.Snapshot, len(g.snapshots)),
	}
	for id, s := range g.symbols {
		doc.Symbols[id] = s.Clone()
	}
	if len(g.embeddings) > 0 {
		doc.Embeddings = make(map[string][]float32, len(g.embeddings))
		for id, v := range g.embeddings {
			doc.Embeddings[id] = append([]float32(nil), v...)
		}
	}
	for i, s := range g.snapshots {
		doc.Snapshots[i] = cloneSnapshot(s)
	}
	return doc
}

// Load replaces the graph state with doc. Relations pointing at missing ids
// are kept as pending and logged rather than rejected.
func (g *MemoryGraph) Load(doc *domain.GraphDocument) error {
	if doc == nil {
		return nil
	}
	if doc.FormatVersion > domain.GraphFormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.FormatVersion)
	}

	symbols := make(map[string]domain.Symbol, len(doc.Symbols))
	for id, s := range doc.Symbols {
		s = s.Clone()
		s.ID = id
		symbols[id] = s
	}
	for id, s := range symbols {
		for target, rel := range s.Relations {
			_, ok := symbols[target]
			missing := !ok && target != id
			if missing && !rel.Pending {
				g.logger.Warn("dangling relation loaded as pending",
					zap.String("symbol_id", id),
					zap.String("target", target))
			}
			if rel.Pending != missing {
				rel.Pending = missing
				s.Relations[target] = rel
			}
		}
	}

	dimension := doc.Dimension
	embeddings := make(map[string][]float32, len(doc.Embeddings))
	for id, v := range doc.Embeddings {
		if dimension == 0 {
			dimension = len(v)
		}
		if len(v) != dimension {
			return fmt.Errorf("%w: embedding for %s has %d, document uses %d", ErrDimensionMismatch, id, len(v), dimension)
		}
		embeddings[id] = append([]float32(nil), v...)
	}

	snaps := make([]domain.Snapshot, len(doc.Snapshots))
	var seq uint64
	for i, s := range doc.Snapshots {
		snaps[i] = cloneSnapshot(s)
		if s.Seq > seq {
			seq = s.Seq
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Before(snaps[j]) })

	g.mu.Lock()
	defer g.mu.Unlock()
	g.symbols = symbols
	g.embeddings = embeddings
	g.dimension = dimension
	g.snapshots = snaps
	g.seq = seq
	g.mutations = 0
	g.snapped = 0
	if !capturedBy(symbols, snaps) {
		// Changes flushed after the last snapshot must still be captured
		// by the next Snapshot.
		g.mutations = 1
	}
	metrics.SymbolsTotal.Set(float64(len(symbols)))

	g.logger.Info("memory graph loaded",
		zap.Int("symbols", len(symbols)),
		zap.Int("snapshots", len(snaps)))
	return nil
}

// capturedBy reports whether the last snapshot already holds symbols as they
// are: same ids, versions and reference epochs.
func capturedBy(symbols map[string]domain.Symbol, snaps []domain.Snapshot) bool {
	if len(snaps) == 0 {
		return len(symbols) == 0
	}
	last := snaps[len(snaps)-1].Symbols
	if len(last) != len(symbols) {
		return false
	}
	for id, s := range symbols {
		p, ok := last[id]
		if !ok || p.Version != s.Version || p.LastReferenced != s.LastReferenced {
			return false
		}
	}
	return true
}

func cloneSnapshot(s domain.Snapshot) domain.Snapshot {
	c := s
	c.Symbols = make(map[string]domain.Symbol, len(s.Symbols))
	for id, sym := range s.Symbols {
		c.Symbols[id] = sym.Clone()
	}
	return c
}
