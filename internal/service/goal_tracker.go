package service

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNodeNameEmpty     = errors.New("name is required")
	ErrNodeExists        = errors.New("node id already exists")
	ErrNodeNotFound      = errors.New("goal node not found")
	ErrInvalidProgress   = errors.New("progress must be within [0,1]")
	ErrInvalidStatus     = errors.New("invalid target status")
	ErrReviewNoteMissing = errors.New("resolution note is required")
	ErrInvalidStrength   = errors.New("tether strength must be within [0,1] and name a referenced node")
)

const (
	// NearZeroProgress is the goal progress below which a Completed target
	// serving it is reported as drift.
	NearZeroProgress = 0.1
	// GoalCompleteProgress is the progress at which a goal counts as done.
	GoalCompleteProgress = 1.0
	// WeakTetherStrength is the strength below which the weakest link on a
	// target -> goal -> value path is reported as drift.
	WeakTetherStrength = 0.5
)

// GoalTracker owns the Value -> Goal -> Target hierarchy. Nodes live in
// id-keyed arenas; every mutation is validated before anything is written
// and recorded in an append-only change log.
type GoalTracker struct {
	symbols        domain.SymbolLookup
	reviewInterval time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu      sync.RWMutex
	values  map[string]domain.Value
	goals   map[string]domain.Goal
	targets map[string]domain.Target
	changes []domain.GoalChange
	seq     uint64
}

// NewGoalTracker creates an empty tracker. symbols resolves concept
// references for alignment checks and may be nil.
func NewGoalTracker(symbols domain.SymbolLookup, reviewInterval time.Duration, logger *zap.Logger) *GoalTracker {
	return &GoalTracker{
		symbols:        symbols,
		reviewInterval: reviewInterval,
		logger:         logger,
		now:            time.Now,
		values:         make(map[string]domain.Value),
		goals:          make(map[string]domain.Goal),
		targets:        make(map[string]domain.Target),
	}
}

func (t *GoalTracker) AddValue(v domain.Value) (domain.Value, error) {
	if strings.TrimSpace(v.Name) == "" {
		return domain.Value{}, ErrNodeNameEmpty
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if t.existsLocked(v.ID) {
		return domain.Value{}, fmt.Errorf("%w: %s", ErrNodeExists, v.ID)
	}
	v.CreatedAt = t.now()
	t.values[v.ID] = v
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeValue, NodeID: v.ID, Kind: domain.ChangeCreated})
	return v, nil
}

func (t *GoalTracker) AddGoal(g domain.Goal) (domain.Goal, error) {
	if strings.TrimSpace(g.Name) == "" {
		return domain.Goal{}, ErrNodeNameEmpty
	}
	if g.Progress < 0 || g.Progress > 1 {
		return domain.Goal{}, ErrInvalidProgress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if t.existsLocked(g.ID) {
		return domain.Goal{}, fmt.Errorf("%w: %s", ErrNodeExists, g.ID)
	}
	g.Values = dedupe(g.Values)
	if err := checkRefs(domain.NodeGoal, g.ID, g.Values, func(id string) bool {
		_, ok := t.values[id]
		return ok
	}); err != nil {
		return domain.Goal{}, err
	}
	strengths, err := normalizeStrengths(g.Values, g.Strengths)
	if err != nil {
		return domain.Goal{}, err
	}

	now := t.now()
	g.Strengths = strengths
	g.Concepts = normalizeConcepts(g.Concepts)
	g.CreatedAt = now
	g.UpdatedAt = now
	t.goals[g.ID] = g
	progress := g.Progress
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeGoal, NodeID: g.ID, Kind: domain.ChangeCreated, Progress: &progress})
	return cloneGoal(g), nil
}

func (t *GoalTracker) AddTarget(tg domain.Target) (domain.Target, error) {
	if strings.TrimSpace(tg.Name) == "" {
		return domain.Target{}, ErrNodeNameEmpty
	}
	if tg.Status.State == "" {
		tg.Status = domain.NotStarted()
	}
	if err := validateStatus(tg.Status); err != nil {
		return domain.Target{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if tg.ID == "" {
		tg.ID = uuid.New().String()
	}
	if t.existsLocked(tg.ID) {
		return domain.Target{}, fmt.Errorf("%w: %s", ErrNodeExists, tg.ID)
	}
	tg.Goals = dedupe(tg.Goals)
	if err := checkRefs(domain.NodeTarget, tg.ID, tg.Goals, func(id string) bool {
		_, ok := t.goals[id]
		return ok
	}); err != nil {
		return domain.Target{}, err
	}
	strengths, err := normalizeStrengths(tg.Goals, tg.Strengths)
	if err != nil {
		return domain.Target{}, err
	}

	now := t.now()
	tg.Strengths = strengths
	tg.Concepts = normalizeConcepts(tg.Concepts)
	tg.Reviews = nil
	tg.CreatedAt = now
	tg.UpdatedAt = now
	t.targets[tg.ID] = tg
	status := tg.Status
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeTarget, NodeID: tg.ID, Kind: domain.ChangeCreated, Status: &status})
	return cloneTarget(tg), nil
}

func (t *GoalTracker) SetGoalProgress(id string, progress float64) error {
	if progress < 0 || progress > 1 {
		return ErrInvalidProgress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.goals[id]
	if !ok {
		return fmt.Errorf("%w: goal %s", ErrNodeNotFound, id)
	}
	if g.Progress == progress {
		return nil
	}
	g.Progress = progress
	g.UpdatedAt = t.now()
	t.goals[id] = g
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeGoal, NodeID: id, Kind: domain.ChangeProgress, Progress: &progress})
	return nil
}

// SetTargetStatus transitions a target. Abandonment is the only way a
// target leaves the active hierarchy.
func (t *GoalTracker) SetTargetStatus(id string, status domain.TargetStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tg, ok := t.targets[id]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, id)
	}
	if tg.Status == status {
		return nil
	}
	tg.Status = status
	tg.UpdatedAt = t.now()
	t.targets[id] = tg
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeTarget, NodeID: id, Kind: domain.ChangeStatus, Status: &status})
	return nil
}

// RecordDriftReview appends a reconsideration event to the target's history.
func (t *GoalTracker) RecordDriftReview(targetID, note string) error {
	if strings.TrimSpace(note) == "" {
		return ErrReviewNoteMissing
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tg, ok := t.targets[targetID]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, targetID)
	}
	now := t.now()
	tg.Reviews = append(append([]domain.DriftReview(nil), tg.Reviews...), domain.DriftReview{At: now, Note: note})
	tg.UpdatedAt = now
	t.targets[targetID] = tg
	t.recordLocked(domain.GoalChange{NodeKind: domain.NodeTarget, NodeID: targetID, Kind: domain.ChangeDriftReview, Note: note})
	return nil
}

// CheckAlignment walks every Target -> Goal -> Value chain and reports
// targets whose status is inconsistent with the goals they serve. It is
// read-only and never fails.
func (t *GoalTracker) CheckAlignment() []domain.AlignmentWarning {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	ids := make([]string, 0, len(t.targets))
	for id := range t.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	warnings := []domain.AlignmentWarning{}
	warn := func(id, format string, args ...any) {
		warnings = append(warnings, domain.AlignmentWarning{TargetID: id, Reason: fmt.Sprintf(format, args...)})
	}

	for _, id := range ids {
		tg := t.targets[id]
		if tg.Status.State == domain.TargetAbandoned {
			continue
		}

		for _, gid := range tg.Goals {
			g, ok := t.goals[gid]
			if !ok {
				warn(id, "served goal %q no longer exists", gid)
				continue
			}
			switch {
			case tg.Status.State == domain.TargetCompleted && g.Progress < NearZeroProgress:
				warn(id, "target completed but served goal %q has progress %.2f", gid, g.Progress)
			case tg.Status.State == domain.TargetNotStarted && g.Progress >= GoalCompleteProgress:
				warn(id, "served goal %q is already complete but target has not started", gid)
			}
			if !t.servesValueLocked(g) {
				warn(id, "served goal %q does not reach any existing value", gid)
				continue
			}
			for _, vid := range g.Values {
				if _, ok := t.values[vid]; !ok {
					continue
				}
				weakest := math.Min(domain.TetherStrength(tg.Strengths, gid), domain.TetherStrength(g.Strengths, vid))
				if weakest < WeakTetherStrength {
					warn(id, "weak alignment to value %q through goal %q: strength %.2f", vid, gid, weakest)
				}
			}
		}

		if tg.Due != nil && !tg.Status.Closed() && now.After(*tg.Due) {
			warn(id, "overdue since %s", tg.Due.UTC().Format(time.RFC3339))
		}

		if t.symbols != nil {
			for _, c := range tg.Concepts {
				if _, ok := t.symbols.Get(c); !ok {
					warn(id, "concept %q is not in the memory graph", c)
				}
			}
		}

		if t.reviewInterval > 0 && tg.Status.State == domain.TargetInProgress {
			last := tg.CreatedAt
			if n := len(tg.Reviews); n > 0 {
				last = tg.Reviews[n-1].At
			}
			if now.Sub(last) > t.reviewInterval {
				warn(id, "no drift review since %s", last.UTC().Format(time.RFC3339))
			}
		}
	}
	return warnings
}

func (t *GoalTracker) servesValueLocked(g domain.Goal) bool {
	for _, vid := range g.Values {
		if _, ok := t.values[vid]; ok {
			return true
		}
	}
	return false
}

// Evolution returns the status and progress changes of one node within
// [from, to], read from the tracker's own change log. A zero bound is open.
func (t *GoalTracker) Evolution(nodeID string, from, to time.Time) []domain.GoalChange {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []domain.GoalChange{}
	for _, c := range t.changes {
		if c.NodeID != nodeID {
			continue
		}
		if !from.IsZero() && c.At.Before(from) {
			continue
		}
		if !to.IsZero() && c.At.After(to) {
			continue
		}
		out = append(out, cloneChange(c))
	}
	return out
}

// Lineage returns the chain from a target up to its values, values ordered
// by priority.
func (t *GoalTracker) Lineage(targetID string) (domain.Lineage, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tg, ok := t.targets[targetID]
	if !ok {
		return domain.Lineage{}, fmt.Errorf("%w: target %s", ErrNodeNotFound, targetID)
	}
	lin := domain.Lineage{Target: cloneTarget(tg), Goals: []domain.Goal{}, Values: []domain.Value{}}
	seen := make(map[string]bool)
	for _, gid := range tg.Goals {
		g, ok := t.goals[gid]
		if !ok {
			continue
		}
		lin.Goals = append(lin.Goals, cloneGoal(g))
		for _, vid := range g.Values {
			if v, ok := t.values[vid]; ok && !seen[vid] {
				seen[vid] = true
				lin.Values = append(lin.Values, v)
			}
		}
	}
	sort.SliceStable(lin.Values, func(i, j int) bool {
		if lin.Values[i].Priority != lin.Values[j].Priority {
			return lin.Values[i].Priority < lin.Values[j].Priority
		}
		return lin.Values[i].ID < lin.Values[j].ID
	})
	return lin, nil
}

func (t *GoalTracker) Value(id string) (domain.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[id]
	return v, ok
}

func (t *GoalTracker) Goal(id string) (domain.Goal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.goals[id]
	return cloneGoal(g), ok
}

func (t *GoalTracker) Target(id string) (domain.Target, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tg, ok := t.targets[id]
	return cloneTarget(tg), ok
}

// Values returns all values by priority.
func (t *GoalTracker) Values() []domain.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Value, 0, len(t.values))
	for _, v := range t.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *GoalTracker) Goals() []domain.Goal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Goal, 0, len(t.goals))
	for _, g := range t.goals {
		out = append(out, cloneGoal(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *GoalTracker) Targets() []domain.Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Target, 0, len(t.targets))
	for _, tg := range t.targets {
		out = append(out, cloneTarget(tg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Revision changes whenever the hierarchy changes.
func (t *GoalTracker) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

func (t *GoalTracker) Export() *domain.GoalDocument {
	t.mu.RLock()
	defer t.mu.RUnlock()

	doc := &domain.GoalDocument{
		Values:  make(map[string]domain.Value, len(t.values)),
		Goals:   make(map[string]domain.Goal, len(t.goals)),
		Targets: make(map[string]domain.Target, len(t.targets)),
		Changes: make([]domain.GoalChange, len(t.changes)),
	}
	for id, v := range t.values {
		doc.Values[id] = v
	}
	for id, g := range t.goals {
		doc.Goals[id] = cloneGoal(g)
	}
	for id, tg := range t.targets {
		doc.Targets[id] = cloneTarget(tg)
	}
	for i, c := range t.changes {
		doc.Changes[i] = cloneChange(c)
	}
	return doc
}

// Load replaces the hierarchy with doc. Broken tethers are logged; they
// surface later as alignment warnings.
func (t *GoalTracker) Load(doc *domain.GoalDocument) {
	if doc == nil {
		return
	}
	values := make(map[string]domain.Value, len(doc.Values))
	goals := make(map[string]domain.Goal, len(doc.Goals))
	targets := make(map[string]domain.Target, len(doc.Targets))
	for id, v := range doc.Values {
		v.ID = id
		values[id] = v
	}
	for id, g := range doc.Goals {
		g = cloneGoal(g)
		g.ID = id
		for _, vid := range g.Values {
			if _, ok := values[vid]; !ok {
				t.logger.Warn("loaded goal references missing value",
					zap.String("goal_id", id), zap.String("value_id", vid))
			}
		}
		goals[id] = g
	}
	for id, tg := range doc.Targets {
		tg = cloneTarget(tg)
		tg.ID = id
		for _, gid := range tg.Goals {
			if _, ok := goals[gid]; !ok {
				t.logger.Warn("loaded target references missing goal",
					zap.String("target_id", id), zap.String("goal_id", gid))
			}
		}
		targets[id] = tg
	}

	changes := make([]domain.GoalChange, len(doc.Changes))
	var seq uint64
	for i, c := range doc.Changes {
		changes[i] = cloneChange(c)
		if c.Seq > seq {
			seq = c.Seq
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Seq < changes[j].Seq })

	t.mu.Lock()
	defer t.mu.Unlock()
	t.values, t.goals, t.targets = values, goals, targets
	t.changes, t.seq = changes, seq
}

func (t *GoalTracker) existsLocked(id string) bool {
	if _, ok := t.values[id]; ok {
		return true
	}
	if _, ok := t.goals[id]; ok {
		return true
	}
	_, ok := t.targets[id]
	return ok
}

func (t *GoalTracker) recordLocked(c domain.GoalChange) {
	t.seq++
	c.Seq = t.seq
	c.At = t.now()
	t.changes = append(t.changes, c)
}

func checkRefs(kind domain.NodeKind, id string, refs []string, exists func(string) bool) error {
	if len(refs) == 0 {
		return &domain.DanglingReferenceError{Kind: kind, ID: id}
	}
	var missing []string
	for _, ref := range refs {
		if !exists(ref) {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return &domain.DanglingReferenceError{Kind: kind, ID: id, Missing: missing}
	}
	return nil
}

// normalizeStrengths trims the keys of strengths and checks each names one
// of refs with a strength in [0,1].
func normalizeStrengths(refs []string, strengths map[string]float64) (map[string]float64, error) {
	if len(strengths) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(refs))
	for _, r := range refs {
		known[r] = true
	}
	out := make(map[string]float64, len(strengths))
	for id, v := range strengths {
		id = strings.TrimSpace(id)
		if !known[id] || v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: %s=%.2f", ErrInvalidStrength, id, v)
		}
		out[id] = v
	}
	return out, nil
}

func validateStatus(s domain.TargetStatus) error {
	if !domain.ValidTargetState(string(s.State)) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.State)
	}
	if s.State == domain.TargetInProgress && (s.Fraction < 0 || s.Fraction > 1) {
		return fmt.Errorf("%w: fraction %.2f", ErrInvalidStatus, s.Fraction)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func normalizeConcepts(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := domain.NormalizeID(id); n != "" {
			out = append(out, n)
		}
	}
	out = dedupe(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneGoal(g domain.Goal) domain.Goal {
	g.Values = append([]string(nil), g.Values...)
	g.Strengths = cloneStrengths(g.Strengths)
	if g.Concepts != nil {
		g.Concepts = append([]string(nil), g.Concepts...)
	}
	return g
}

func cloneTarget(tg domain.Target) domain.Target {
	tg.Goals = append([]string(nil), tg.Goals...)
	tg.Strengths = cloneStrengths(tg.Strengths)
	if tg.Concepts != nil {
		tg.Concepts = append([]string(nil), tg.Concepts...)
	}
	if tg.Reviews != nil {
		tg.Reviews = append([]domain.DriftReview(nil), tg.Reviews...)
	}
	if tg.Due != nil {
		d := *tg.Due
		tg.Due = &d
	}
	return tg
}

func cloneStrengths(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneChange(c domain.GoalChange) domain.GoalChange {
	if c.Progress != nil {
		p := *c.Progress
		c.Progress = &p
	}
	if c.Status != nil {
		s := *c.Status
		c.Status = &s
	}
	return c
}
