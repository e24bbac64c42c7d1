package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// SummaryID is the id of the synthetic placeholder standing in for symbols
// that did not fit the context budget.
const SummaryID = "context_summary"

// RelationSummarizes links the summary placeholder to each omitted symbol.
const RelationSummarizes domain.RelationKind = "summarizes"

// ContextWindow is the outcome of CompressForContext. Symbols holds the
// retained symbols in priority order followed by the summary placeholder when
// anything was omitted.
type ContextWindow struct {
	Symbols []domain.Symbol `json:"symbols"`
	Omitted []string        `json:"omitted,omitempty"`
	Used    int             `json:"used"`
	Budget  int             `json:"budget"`
}

type rankedSymbol struct {
	sym  domain.Symbol
	sig  float64
	cost int
}

// Significance is confidence * (1 + verified bonus) * recency weight, where
// the recency weight decays exponentially with snapshots since the symbol
// was last referenced.
func (g *MemoryGraph) Significance(s domain.Symbol) float64 {
	g.mu.RLock()
	seq := g.seq
	g.mu.RUnlock()
	return g.significance(s, seq)
}

func (g *MemoryGraph) significance(s domain.Symbol, seq uint64) float64 {
	bonus := 0.0
	if s.Verification.IsVerified() {
		bonus = g.cfg.VerifiedBonus
	}
	var since float64
	if seq > s.LastReferenced {
		since = float64(seq - s.LastReferenced)
	}
	return s.Confidence * (1 + bonus) * math.Exp(-g.cfg.RecencyDecay*since)
}

// CompressForContext picks the symbols to keep verbatim within budget
// tokens. Verified symbols at or above the confidence floor are considered
// first; if any of them does not fit, no other symbol is admitted. Within a
// tier symbols are taken greedily by significance, skipping those that do
// not fit. Every omitted symbol is referenced by one summary placeholder.
func (g *MemoryGraph) CompressForContext(budget int) ContextWindow {
	g.mu.RLock()
	seq := g.seq
	var primary, rest []rankedSymbol
	for _, s := range g.symbols {
		r := rankedSymbol{sym: s.Clone(), sig: g.significance(s, seq)}
		if s.Verification.IsVerified() && s.Confidence >= g.cfg.ConfidenceFloor {
			primary = append(primary, r)
		} else {
			rest = append(rest, r)
		}
	}
	g.mu.RUnlock()

	for _, tier := range [][]rankedSymbol{primary, rest} {
		for i := range tier {
			tier[i].cost = g.cfg.Tokens.Count(tier[i].sym.Text())
		}
		sort.Slice(tier, func(i, j int) bool {
			if tier[i].sig != tier[j].sig {
				return tier[i].sig > tier[j].sig
			}
			return tier[i].sym.ID < tier[j].sym.ID
		})
	}

	win := ContextWindow{Budget: budget, Symbols: []domain.Symbol{}}
	remaining := budget
	primaryComplete := true
	for _, r := range primary {
		if r.cost <= remaining {
			win.Symbols = append(win.Symbols, r.sym)
			remaining -= r.cost
			continue
		}
		primaryComplete = false
		win.Omitted = append(win.Omitted, r.sym.ID)
	}
	for _, r := range rest {
		if primaryComplete && r.cost <= remaining {
			win.Symbols = append(win.Symbols, r.sym)
			remaining -= r.cost
			continue
		}
		win.Omitted = append(win.Omitted, r.sym.ID)
	}
	win.Used = budget - remaining

	if len(win.Omitted) > 0 {
		win.Symbols = append(win.Symbols, summarySymbol(win.Omitted, g.now()))
	}
	return win
}

func summarySymbol(omitted []string, now time.Time) domain.Symbol {
	rels := make(map[string]domain.Relation, len(omitted))
	for _, id := range omitted {
		rels[id] = domain.Relation{Kind: RelationSummarizes}
	}
	return domain.Symbol{
		ID:           SummaryID,
		Term:         "summary",
		Definition:   fmt.Sprintf("%d symbols omitted for space: %s", len(omitted), strings.Join(omitted, ", ")),
		Verification: domain.Unverified(),
		Relations:    rels,
		Synthetic:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
