package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrStatementEmpty      = errors.New("statement is required")
	ErrVerifierExists      = errors.New("verifier already registered")
	ErrVerifierNameEmpty   = errors.New("verifier name is required")
	ErrInvalidProofStatus  = errors.New("invalid proof status")
	ErrProofCached         = errors.New("proof already cached; invalidate it first")
	ErrNoVerifierAvailable = errors.New("no verifier available")
	ErrProofNotCached      = errors.New("proof not cached")
)

// DefaultVerifierTimeout applies when Verify is called without a timeout.
const DefaultVerifierTimeout = 30 * time.Second

// VerificationSink is where proven statements are written back.
type VerificationSink interface {
	FindByStatement(statement string) (domain.Symbol, bool)
	MarkVerified(id string, ref domain.ProofReference) error
}

type VerifierInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// VerifyOutcome is delivered by VerifyAsync.
type VerifyOutcome struct {
	Record domain.ProofRecord
	Err    error
}

// ProofEngine dispatches statements to registered verifiers and caches
// their results. Each (statement, verifier) pair is verified at most once:
// concurrent callers share one in-flight run and later callers hit the
// cache until the entry is invalidated.
type ProofEngine struct {
	sink           VerificationSink
	defaultTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time

	regMu     sync.RWMutex
	verifiers []domain.Verifier
	byName    map[string]domain.Verifier

	inflight singleflight.Group

	mu       sync.RWMutex
	cache    map[string]domain.ProofRecord
	ancestry *ancestryGraph
	revision uint64
}

// NewProofEngine creates an engine writing verified results into sink,
// which may be nil.
func NewProofEngine(sink VerificationSink, defaultTimeout time.Duration, logger *zap.Logger) *ProofEngine {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultVerifierTimeout
	}
	return &ProofEngine{
		sink:           sink,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		now:            time.Now,
		byName:         make(map[string]domain.Verifier),
		cache:          make(map[string]domain.ProofRecord),
		ancestry:       newAncestryGraph(),
	}
}

// Register appends v to the registry. Registration order is the order
// VerifyAny tries verifiers in.
func (e *ProofEngine) Register(v domain.Verifier) error {
	name := v.Name()
	if name == "" {
		return ErrVerifierNameEmpty
	}
	e.regMu.Lock()
	defer e.regMu.Unlock()
	if _, ok := e.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrVerifierExists, name)
	}
	e.verifiers = append(e.verifiers, v)
	e.byName[name] = v
	e.logger.Info("verifier registered", zap.String("verifier", name), zap.Bool("available", available(v)))
	return nil
}

func (e *ProofEngine) Lookup(name string) (domain.Verifier, error) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	v, ok := e.byName[name]
	if !ok {
		return nil, &domain.UnknownVerifierError{Name: name}
	}
	return v, nil
}

// Verifiers lists registered verifiers in registration order.
func (e *ProofEngine) Verifiers() []VerifierInfo {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	out := make([]VerifierInfo, 0, len(e.verifiers))
	for _, v := range e.verifiers {
		out = append(out, VerifierInfo{Name: v.Name(), Available: available(v)})
	}
	return out
}

func available(v domain.Verifier) bool {
	if ac, ok := v.(domain.AvailabilityChecker); ok {
		return ac.Available()
	}
	return true
}

// Verify returns the cached record for (statement, verifierName) or runs the
// verifier under timeout and caches whatever it produced, timeouts included.
// A proof whose dependencies would close an ancestry cycle is cached without
// its edges and reported with CycleError on every call. The verifier receives
// the original statement text. Cancelling ctx stops this caller from waiting
// but does not abort a run other callers share.
func (e *ProofEngine) Verify(ctx context.Context, statement, verifierName string, timeout time.Duration) (domain.ProofRecord, error) {
	if strings.TrimSpace(statement) == "" {
		return domain.ProofRecord{}, ErrStatementEmpty
	}
	v, err := e.Lookup(verifierName)
	if err != nil {
		return domain.ProofRecord{}, err
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	key := domain.NewProofKey(statement, verifierName)
	if rec, ok := e.cached(key); ok {
		metrics.VerifyTotal.WithLabelValues(verifierName, "hit").Inc()
		return rec, cycleErr(rec)
	}

	ch := e.inflight.DoChan(key.String(), func() (any, error) {
		if rec, ok := e.cached(key); ok {
			return rec, cycleErr(rec)
		}
		detached := context.WithoutCancel(ctx)
		res := e.run(detached, v, statement, timeout)
		rec, err := e.cacheProof(detached, statement, verifierName, res, true)
		if errors.Is(err, ErrProofCached) {
			return rec, cycleErr(rec)
		}
		return rec, err
	})

	select {
	case r := <-ch:
		outcome := "miss"
		if r.Shared {
			outcome = "shared"
		}
		metrics.VerifyTotal.WithLabelValues(verifierName, outcome).Inc()
		rec, _ := r.Val.(domain.ProofRecord)
		return rec, r.Err
	case <-ctx.Done():
		metrics.VerifyTotal.WithLabelValues(verifierName, "cancelled").Inc()
		return domain.ProofRecord{}, ctx.Err()
	}
}

// VerifyAsync runs Verify in the background and delivers its outcome on the
// returned channel, which receives exactly one value.
func (e *ProofEngine) VerifyAsync(ctx context.Context, statement, verifierName string, timeout time.Duration) <-chan VerifyOutcome {
	out := make(chan VerifyOutcome, 1)
	go func() {
		rec, err := e.Verify(ctx, statement, verifierName, timeout)
		out <- VerifyOutcome{Record: rec, Err: err}
	}()
	return out
}

// VerifyAny tries available verifiers in registration order and returns the
// first decisive (proven or disproven) record, or the last record obtained.
func (e *ProofEngine) VerifyAny(ctx context.Context, statement string, timeout time.Duration) (domain.ProofRecord, error) {
	e.regMu.RLock()
	verifiers := append([]domain.Verifier(nil), e.verifiers...)
	e.regMu.RUnlock()

	var last domain.ProofRecord
	tried := 0
	for _, v := range verifiers {
		if !available(v) {
			continue
		}
		tried++
		rec, err := e.Verify(ctx, statement, v.Name(), timeout)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ProofRecord{}, err
			}
			e.logger.Warn("verifier failed during verify-any",
				zap.String("verifier", v.Name()), zap.Error(err))
			continue
		}
		last = rec
		if rec.Result.Status == domain.ProofProven || rec.Result.Status == domain.ProofDisproven {
			return rec, nil
		}
	}
	if tried == 0 {
		return domain.ProofRecord{}, ErrNoVerifierAvailable
	}
	return last, nil
}

// run invokes the verifier under its own deadline. Timeouts and verifier
// faults become Error results.
func (e *ProofEngine) run(parent context.Context, v domain.Verifier, statement string, timeout time.Duration) domain.ProofResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	res, err := v.Verify(ctx, statement)
	elapsed := time.Since(start)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.logger.Warn("verifier timed out",
			zap.String("verifier", v.Name()),
			zap.Duration("timeout", timeout))
		res = domain.ProofErrorResult(domain.ReasonTimeout)
	case err != nil:
		e.logger.Warn("verifier failed",
			zap.String("verifier", v.Name()),
			zap.Error(err))
		res = domain.ProofErrorResult(domain.ReasonVerifierFailure)
	case !domain.ValidProofStatus(string(res.Status)):
		e.logger.Warn("verifier returned unknown status",
			zap.String("verifier", v.Name()),
			zap.String("status", string(res.Status)))
		res = domain.ProofErrorResult(domain.ReasonVerifierFailure)
	}

	metrics.VerifierDuration.WithLabelValues(v.Name(), string(res.Status)).Observe(elapsed.Seconds())
	return res
}

// CacheProof records result for (statement, verifierName). Entries are
// immutable. A proven result marks the matching symbol Verified and records
// its dependencies in the ancestry graph; a dependency cycle rejects the
// whole write with CycleError.
func (e *ProofEngine) CacheProof(ctx context.Context, statement, verifierName string, result domain.ProofResult) (domain.ProofRecord, error) {
	return e.cacheProof(ctx, statement, verifierName, result, false)
}

// cacheProof with keepCycle stores a cyclic proof as an edgeless entry
// carrying its cycle path, and still returns CycleError.
func (e *ProofEngine) cacheProof(ctx context.Context, statement, verifierName string, result domain.ProofResult, keepCycle bool) (domain.ProofRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProofRecord{}, err
	}
	if strings.TrimSpace(statement) == "" {
		return domain.ProofRecord{}, ErrStatementEmpty
	}
	if verifierName == "" {
		return domain.ProofRecord{}, ErrVerifierNameEmpty
	}
	if !domain.ValidProofStatus(string(result.Status)) {
		return domain.ProofRecord{}, fmt.Errorf("%w: %q", ErrInvalidProofStatus, result.Status)
	}

	key := domain.NewProofKey(statement, verifierName)
	now := e.now()
	rec := domain.ProofRecord{
		Key:      key,
		Original: statement,
		Result:   cloneResult(result),
		CachedAt: now,
	}

	var (
		sym    domain.Symbol
		hasSym bool
		nodeID string
		deps   []string
	)
	if result.Status == domain.ProofProven {
		rec.Reference = &domain.ProofReference{
			Engine:    verifierName,
			ProofID:   uuid.New().String(),
			Timestamp: now,
		}
		nodeID = domain.NormalizeID(statement)
		if e.sink != nil {
			sym, hasSym = e.sink.FindByStatement(statement)
		}
		if hasSym {
			nodeID = sym.ID
			rec.SymbolID = sym.ID
		}
		deps = e.resolveDependencies(result.Dependencies)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.cache[key.String()]; ok {
		return existing, fmt.Errorf("%w: %s", ErrProofCached, key.Statement)
	}
	if len(deps) > 0 {
		if path := e.ancestry.cyclePath(nodeID, deps); path != nil {
			if !keepCycle {
				return domain.ProofRecord{}, &domain.CycleError{From: nodeID, Path: path}
			}
			rec.Reference = nil
			rec.CyclePath = path
			deps = nil
			hasSym = false
			e.logger.Warn("proof cached without ancestry edges",
				zap.String("verifier", verifierName),
				zap.Strings("cycle", path))
		}
	}

	e.cache[key.String()] = rec
	e.ancestry.add(nodeID, deps)
	e.revision++
	metrics.ProofCacheEntries.Set(float64(len(e.cache)))

	if hasSym {
		if err := e.sink.MarkVerified(sym.ID, *rec.Reference); err != nil {
			e.logger.Error("failed to mark symbol verified",
				zap.String("symbol_id", sym.ID), zap.Error(err))
		}
	}

	e.logger.Debug("proof cached",
		zap.String("verifier", verifierName),
		zap.String("status", string(result.Status)),
		zap.String("symbol_id", rec.SymbolID))
	return cloneRecord(rec), cycleErr(rec)
}

func cycleErr(rec domain.ProofRecord) error {
	if c := rec.Cycle(); c != nil {
		return c
	}
	return nil
}

func (e *ProofEngine) resolveDependencies(deps []string) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if strings.TrimSpace(d) == "" {
			continue
		}
		id := domain.NormalizeID(d)
		if e.sink != nil {
			if s, ok := e.sink.FindByStatement(d); ok {
				id = s.ID
			}
		}
		out = append(out, id)
	}
	return mergeSorted(nil, out)
}

// Cached returns the cache entry without running anything.
func (e *ProofEngine) Cached(statement, verifierName string) (domain.ProofRecord, bool) {
	return e.cached(domain.NewProofKey(statement, verifierName))
}

func (e *ProofEngine) cached(key domain.ProofKey) (domain.ProofRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.cache[key.String()]
	if !ok {
		return domain.ProofRecord{}, false
	}
	return cloneRecord(rec), true
}

// Invalidate drops a cache entry so the next Verify re-runs the verifier.
// Ancestry edges recorded by a proven entry are dropped with it.
func (e *ProofEngine) Invalidate(statement, verifierName string) error {
	key := domain.NewProofKey(statement, verifierName)

	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.cache[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProofNotCached, key.Statement)
	}
	delete(e.cache, key.String())
	if rec.Result.Status == domain.ProofProven && len(rec.CyclePath) == 0 {
		node := rec.SymbolID
		if node == "" {
			node = domain.NormalizeID(rec.Original)
		}
		if !e.provenElsewhereLocked(node) {
			e.ancestry.remove(node)
		}
	}
	e.inflight.Forget(key.String())
	e.revision++
	metrics.ProofCacheEntries.Set(float64(len(e.cache)))
	return nil
}

func (e *ProofEngine) provenElsewhereLocked(node string) bool {
	for _, rec := range e.cache {
		if rec.Result.Status != domain.ProofProven || len(rec.CyclePath) > 0 {
			continue
		}
		if rec.SymbolID == node || (rec.SymbolID == "" && domain.NormalizeID(rec.Original) == node) {
			return true
		}
	}
	return false
}

// AncestryOf returns the symbols the proof of symbolID rests on, each after
// its own dependencies, with symbolID last.
func (e *ProofEngine) AncestryOf(symbolID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ancestry.order(domain.NormalizeID(symbolID))
}

// Entries returns all cache entries ordered by verifier then statement.
func (e *ProofEngine) Entries() []domain.ProofRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.ProofRecord, 0, len(e.cache))
	for _, rec := range e.cache {
		out = append(out, cloneRecord(rec))
	}
	sortRecords(out)
	return out
}

func (e *ProofEngine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

func (e *ProofEngine) Export() *domain.ProofDocument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc := &domain.ProofDocument{
		Entries:  make([]domain.ProofRecord, 0, len(e.cache)),
		Ancestry: e.ancestry.edges(),
	}
	for _, rec := range e.cache {
		doc.Entries = append(doc.Entries, cloneRecord(rec))
	}
	sortRecords(doc.Entries)
	return doc
}

// Load replaces the cache and ancestry graph. Edges that would close a
// cycle are skipped with a warning.
func (e *ProofEngine) Load(doc *domain.ProofDocument) {
	if doc == nil {
		return
	}
	cache := make(map[string]domain.ProofRecord, len(doc.Entries))
	for _, rec := range doc.Entries {
		cache[rec.Key.String()] = cloneRecord(rec)
	}
	anc := newAncestryGraph()
	for _, edge := range doc.Ancestry {
		if path := anc.cyclePath(edge.From, []string{edge.To}); path != nil {
			e.logger.Warn("skipping cyclic ancestry edge",
				zap.String("from", edge.From), zap.String("to", edge.To))
			continue
		}
		anc.add(edge.From, []string{edge.To})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = cache
	e.ancestry = anc
	metrics.ProofCacheEntries.Set(float64(len(cache)))
}

func sortRecords(recs []domain.ProofRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Key.Verifier != recs[j].Key.Verifier {
			return recs[i].Key.Verifier < recs[j].Key.Verifier
		}
		return recs[i].Key.Statement < recs[j].Key.Statement
	})
}

func cloneResult(r domain.ProofResult) domain.ProofResult {
	if r.Dependencies != nil {
		r.Dependencies = append([]string(nil), r.Dependencies...)
	}
	return r
}

func cloneRecord(rec domain.ProofRecord) domain.ProofRecord {
	rec.Result = cloneResult(rec.Result)
	if rec.Reference != nil {
		ref := *rec.Reference
		rec.Reference = &ref
	}
	rec.CyclePath = append([]string(nil), rec.CyclePath...)
	return rec
}
