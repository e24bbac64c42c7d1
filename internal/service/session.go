package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
)

var ErrSessionIDMissing = errors.New("session_id is required")

const (
	DefaultContextBudget = 2000
	DefaultRetrieveTopK  = 8
	DefaultMinSimilarity = 0.2
)

// Claim is a statement the dialogue layer wants checked this turn. An empty
// Verifier tries every available verifier in registration order.
type Claim struct {
	Statement string `json:"statement"`
	Verifier  string `json:"verifier,omitempty"`
}

// Turn is one dialogue turn as supplied by the session driver.
type Turn struct {
	SessionID string          `json:"session_id"`
	Text      string          `json:"text"`
	Mentions  []domain.Symbol `json:"mentions,omitempty"`
	Claims    []Claim         `json:"claims,omitempty"`
}

type ProofOutcome struct {
	Claim  Claim               `json:"claim"`
	Record *domain.ProofRecord `json:"record,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// TurnResult is what the driver surfaces to the user after a turn.
type TurnResult struct {
	SessionID string                    `json:"session_id"`
	Context   ContextWindow             `json:"context"`
	Related   []ScoredSymbol            `json:"related"`
	Warnings  []domain.AlignmentWarning `json:"warnings"`
	Proofs    []ProofOutcome            `json:"proofs"`
}

type SessionConfig struct {
	ContextBudget   int
	VerifierTimeout time.Duration
	TopK            int
	MinSimilarity   float64
	MultiFramework  bool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ContextBudget:   DefaultContextBudget,
		VerifierTimeout: DefaultVerifierTimeout,
		TopK:            DefaultRetrieveTopK,
		MinSimilarity:   DefaultMinSimilarity,
		MultiFramework:  true,
	}
}

// SessionService drives the three components turn by turn.
type SessionService struct {
	graph   *MemoryGraph
	goals   *GoalTracker
	proofs  *ProofEngine
	flusher *FlushService
	cfg     SessionConfig
	logger  *zap.Logger
}

// NewSessionService wires the coordinator. flusher may be nil, in which case
// EndSession only snapshots.
func NewSessionService(graph *MemoryGraph, goals *GoalTracker, proofs *ProofEngine, flusher *FlushService, cfg SessionConfig, logger *zap.Logger) *SessionService {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRetrieveTopK
	}
	return &SessionService{
		graph:   graph,
		goals:   goals,
		proofs:  proofs,
		flusher: flusher,
		cfg:     cfg,
		logger:  logger,
	}
}

// ProcessTurn records the turn's mentions, verifies its claims concurrently,
// and returns the compressed context, alignment warnings and proof outcomes.
func (s *SessionService) ProcessTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	if strings.TrimSpace(turn.SessionID) == "" {
		return nil, ErrSessionIDMissing
	}

	touched := make([]string, 0, len(turn.Mentions))
	for _, m := range turn.Mentions {
		stored, err := s.graph.Upsert(ctx, m, UpsertOptions{MultiFramework: s.cfg.MultiFramework})
		if err != nil {
			return nil, fmt.Errorf("record mention %q: %w", m.Term, err)
		}
		touched = append(touched, stored.ID)
	}

	proofs := s.verifyClaims(ctx, turn.Claims)

	related := []ScoredSymbol{}
	if strings.TrimSpace(turn.Text) != "" {
		r, err := s.graph.RetrieveRelated(ctx, turn.Text, s.cfg.TopK, s.cfg.MinSimilarity)
		if err != nil {
			return nil, fmt.Errorf("retrieve related: %w", err)
		}
		related = r
		for _, rs := range related {
			touched = append(touched, rs.Symbol.ID)
		}
	}
	s.graph.Touch(touched...)

	result := &TurnResult{
		SessionID: turn.SessionID,
		Context:   s.graph.CompressForContext(s.cfg.ContextBudget),
		Related:   related,
		Warnings:  s.goals.CheckAlignment(),
		Proofs:    proofs,
	}

	s.logger.Debug("turn processed",
		zap.String("session_id", turn.SessionID),
		zap.Int("mentions", len(turn.Mentions)),
		zap.Int("claims", len(turn.Claims)),
		zap.Int("retained", len(result.Context.Symbols)),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (s *SessionService) verifyClaims(ctx context.Context, claims []Claim) []ProofOutcome {
	out := make([]ProofOutcome, len(claims))
	pending := make([]<-chan VerifyOutcome, len(claims))
	for i, c := range claims {
		out[i].Claim = c
		if c.Verifier == "" {
			ch := make(chan VerifyOutcome, 1)
			go func(statement string) {
				rec, err := s.proofs.VerifyAny(ctx, statement, s.cfg.VerifierTimeout)
				ch <- VerifyOutcome{Record: rec, Err: err}
			}(c.Statement)
			pending[i] = ch
			continue
		}
		pending[i] = s.proofs.VerifyAsync(ctx, c.Statement, c.Verifier, s.cfg.VerifierTimeout)
	}

	for i, ch := range pending {
		o := <-ch
		if o.Err != nil {
			out[i].Error = o.Err.Error()
			s.logger.Warn("claim verification failed",
				zap.String("statement", claims[i].Statement),
				zap.String("verifier", claims[i].Verifier),
				zap.Error(o.Err))
			continue
		}
		rec := o.Record
		out[i].Record = &rec
	}
	return out
}

// EndSession captures a snapshot and flushes durable state. A persistence
// failure here is fatal to the driver.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) (uint64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, ErrSessionIDMissing
	}
	seq := s.graph.Snapshot(sessionID)
	if s.flusher != nil {
		if err := s.flusher.Flush(ctx); err != nil {
			return seq, err
		}
	}
	s.logger.Info("session ended", zap.String("session_id", sessionID), zap.Uint64("snapshot_seq", seq))
	return seq, nil
}
