package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/Harshitk-cp/symstate/internal/metrics"
	"go.uber.org/zap"
)

const DefaultMaxRetries = 3

// Retrying retries store I/O with exponential backoff. A save that still
// fails after the last attempt is returned as a *domain.PersistenceError.
// Missing or corrupt documents and context errors are not retried.
type Retrying struct {
	inner      domain.StateStore
	maxRetries int
	logger     *zap.Logger
	backoff    func(attempt int) time.Duration
}

func NewRetrying(inner domain.StateStore, maxRetries int, logger *zap.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Retrying{
		inner:      inner,
		maxRetries: maxRetries,
		logger:     logger,
		backoff:    func(attempt int) time.Duration { return time.Duration(100<<attempt) * time.Millisecond },
	}
}

// Unwrap returns the wrapped backend.
func (r *Retrying) Unwrap() domain.StateStore { return r.inner }

func (r *Retrying) LoadGraph(ctx context.Context) (*domain.GraphDocument, error) {
	var doc *domain.GraphDocument
	err := r.do(ctx, "load", docGraph, func() (err error) {
		doc, err = r.inner.LoadGraph(ctx)
		return err
	})
	return doc, err
}

func (r *Retrying) SaveGraph(ctx context.Context, doc *domain.GraphDocument) error {
	return r.do(ctx, "save", docGraph, func() error { return r.inner.SaveGraph(ctx, doc) })
}

func (r *Retrying) LoadGoals(ctx context.Context) (*domain.GoalDocument, error) {
	var doc *domain.GoalDocument
	err := r.do(ctx, "load", docGoals, func() (err error) {
		doc, err = r.inner.LoadGoals(ctx)
		return err
	})
	return doc, err
}

func (r *Retrying) SaveGoals(ctx context.Context, doc *domain.GoalDocument) error {
	return r.do(ctx, "save", docGoals, func() error { return r.inner.SaveGoals(ctx, doc) })
}

func (r *Retrying) LoadProofs(ctx context.Context) (*domain.ProofDocument, error) {
	var doc *domain.ProofDocument
	err := r.do(ctx, "load", docProofs, func() (err error) {
		doc, err = r.inner.LoadProofs(ctx)
		return err
	})
	return doc, err
}

func (r *Retrying) SaveProofs(ctx context.Context, doc *domain.ProofDocument) error {
	return r.do(ctx, "save", docProofs, func() error { return r.inner.SaveProofs(ctx, doc) })
}

func (r *Retrying) Close() error { return r.inner.Close() }

func (r *Retrying) do(ctx context.Context, op, document string, fn func() error) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		attempts++
		lastErr = fn()
		if lastErr == nil {
			if op == "save" {
				metrics.PersistAttempts.WithLabelValues(document, "ok").Inc()
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if op == "save" {
			metrics.PersistAttempts.WithLabelValues(document, "error").Inc()
		}
		r.logger.Warn("state store operation failed",
			zap.String("op", op),
			zap.String("document", document),
			zap.Int("attempt", attempts),
			zap.Error(lastErr))
	}
	return &domain.PersistenceError{Op: op + " " + document, Attempts: attempts, Err: lastErr}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
		return false
	}
	return true
}

var _ domain.StateStore = (*Retrying)(nil)
