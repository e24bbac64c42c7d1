// Package store persists the graph, goal and proof documents. Three
// backends are available: YAML/JSON files, an embedded SQLite database and
// PostgreSQL with pgvector.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned by loads when nothing has been saved yet.
	ErrNotFound = domain.ErrNotFound
	// ErrCorrupt wraps documents that exist but cannot be decoded.
	ErrCorrupt = errors.New("stored document is corrupt")
)

// Document names used in metrics, logs and the SQL backends.
const (
	docGraph  = "graph"
	docGoals  = "goals"
	docProofs = "proofs"
)

type Options struct {
	MaxRetries int
}

// Open picks a backend from the SNAPSHOT_BACKEND value and wraps it with
// retries:
//
//	postgres://... or postgresql://...  PostgreSQL
//	sqlite:<path>, *.db, *.sqlite       SQLite
//	anything else                       file documents, JSON for *.json
func Open(ctx context.Context, backend string, opts Options, logger *zap.Logger) (domain.StateStore, error) {
	var (
		inner domain.StateStore
		err   error
	)
	switch {
	case strings.HasPrefix(backend, "postgres://"), strings.HasPrefix(backend, "postgresql://"):
		inner, err = NewPostgresStore(ctx, backend, logger)
	case strings.HasPrefix(backend, "sqlite:"):
		inner, err = NewSQLiteStore(ctx, strings.TrimPrefix(backend, "sqlite:"), logger)
	case strings.HasSuffix(backend, ".db"), strings.HasSuffix(backend, ".sqlite"):
		inner, err = NewSQLiteStore(ctx, backend, logger)
	default:
		inner, err = NewFileStore(backend, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open state store %q: %w", backend, err)
	}
	return NewRetrying(inner, opts.MaxRetries, logger), nil
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, what, err)
}

// lastSeq is the highest snapshot sequence in snaps. The SQL backends keep
// stored snapshots up to it and only append the ones beyond what they hold.
func lastSeq(snaps []domain.Snapshot) int64 {
	var last int64
	for _, s := range snaps {
		if int64(s.Seq) > last {
			last = int64(s.Seq)
		}
	}
	return last
}
