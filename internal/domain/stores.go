package domain

import "context"

// StateStore is the durable backend for all three components. Each Save is
// atomic: either the whole document is recorded or nothing is. Load returns
// ErrNotFound-wrapping errors when nothing has been saved yet.
type StateStore interface {
	LoadGraph(ctx context.Context) (*GraphDocument, error)
	SaveGraph(ctx context.Context, doc *GraphDocument) error
	LoadGoals(ctx context.Context) (*GoalDocument, error)
	SaveGoals(ctx context.Context, doc *GoalDocument) error
	LoadProofs(ctx context.Context) (*ProofDocument, error)
	SaveProofs(ctx context.Context, doc *ProofDocument) error
	Close() error
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SymbolLookup is the read-only view of the Memory Graph other components
// depend on.
type SymbolLookup interface {
	Get(id string) (Symbol, bool)
}
