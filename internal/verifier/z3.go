package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// Z3 checks statements with the z3 SMT solver. The statement is translated
// to SMT-LIB and its negation handed to z3 on stdin: unsat means the
// statement is valid, sat yields a counterexample model.
type Z3 struct {
	path string
}

func NewZ3(path string) *Z3 {
	return &Z3{path: path}
}

func (z *Z3) Name() string { return "z3" }

func (z *Z3) Path() string { return z.path }

func (z *Z3) Available() bool { return isExecutable(z.path) }

func (z *Z3) Verify(ctx context.Context, statement string) (domain.ProofResult, error) {
	if !z.Available() {
		return domain.ProofResult{}, fmt.Errorf("%w: z3 at %q", ErrNotInstalled, z.path)
	}
	script, err := ToSMTLIB(statement)
	if err != nil {
		return domain.Undecidable(err.Error()), nil
	}

	res, err := runProcess(ctx, z.path, []string{"-in", "-smt2"}, script)
	if err != nil {
		return domain.ProofResult{}, err
	}
	return parseZ3Output(res)
}

func parseZ3Output(res processResult) (domain.ProofResult, error) {
	out := strings.TrimSpace(res.Stdout)
	verdict, rest, _ := strings.Cut(out, "\n")
	switch strings.TrimSpace(verdict) {
	case "unsat":
		return domain.Proven("unsat"), nil
	case "sat":
		model := strings.TrimSpace(rest)
		if model == "" || strings.HasPrefix(model, "(error") {
			model = "sat"
		}
		return domain.Disproven(model), nil
	case "unknown":
		return domain.Undecidable("z3 returned unknown"), nil
	}
	if line := errorLine(out); line != "" {
		return domain.Undecidable("z3 rejected the query: " + line), nil
	}
	if res.ExitCode != 0 {
		return domain.ProofResult{}, fmt.Errorf("z3 exited with status %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	return domain.ProofResult{}, errors.New("z3 produced no verdict")
}
