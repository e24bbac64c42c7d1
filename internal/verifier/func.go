package verifier

import (
	"context"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// Func adapts a plain function into a verifier.
type Func struct {
	name string
	fn   func(ctx context.Context, statement string) (domain.ProofResult, error)
}

func NewFunc(name string, fn func(ctx context.Context, statement string) (domain.ProofResult, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Verify(ctx context.Context, statement string) (domain.ProofResult, error) {
	return f.fn(ctx, statement)
}

var (
	_ domain.Verifier            = (*Func)(nil)
	_ domain.Verifier            = (*Z3)(nil)
	_ domain.Verifier            = (*Lean)(nil)
	_ domain.Verifier            = (*Datalog)(nil)
	_ domain.Verifier            = (*Exec)(nil)
	_ domain.AvailabilityChecker = (*Z3)(nil)
	_ domain.AvailabilityChecker = (*Lean)(nil)
	_ domain.AvailabilityChecker = (*Exec)(nil)
)
