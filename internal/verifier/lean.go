package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// leanTactics closes decidable arithmetic and simple equalities.
const leanTactics = "  first\n  | decide\n  | omega\n  | simp\n  | trivial\n"

// Lean checks statements with the lean4 executable. A plain proposition is
// wrapped into a theorem closed by a fixed tactic chain; input already
// written as a Lean declaration is checked as is.
type Lean struct {
	path string
}

func NewLean(path string) *Lean {
	return &Lean{path: path}
}

func (l *Lean) Name() string { return "lean4" }

func (l *Lean) Path() string { return l.path }

func (l *Lean) Available() bool { return isExecutable(l.path) }

func (l *Lean) Verify(ctx context.Context, statement string) (domain.ProofResult, error) {
	if !l.Available() {
		return domain.ProofResult{}, fmt.Errorf("%w: lean at %q", ErrNotInstalled, l.path)
	}

	dir, err := os.MkdirTemp("", "symstate-lean-*")
	if err != nil {
		return domain.ProofResult{}, fmt.Errorf("create lean workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "Claim.lean")
	if err := os.WriteFile(file, []byte(LeanSource(statement)), 0o600); err != nil {
		return domain.ProofResult{}, fmt.Errorf("write lean theorem: %w", err)
	}

	res, err := runProcess(ctx, l.path, []string{file}, "")
	if err != nil {
		return domain.ProofResult{}, err
	}
	if res.ExitCode == 0 {
		return domain.Proven("lean4: theorem checked"), nil
	}

	out := res.Stdout + "\n" + res.Stderr
	line := errorLine(out)
	switch {
	case strings.Contains(out, "evaluates to false") || strings.Contains(out, "is false"):
		return domain.Disproven(line), nil
	case line != "":
		return domain.Undecidable(line), nil
	}
	return domain.ProofResult{}, fmt.Errorf("lean exited with status %d: %s", res.ExitCode, firstLine(out))
}

// LeanSource renders the theorem file for statement.
func LeanSource(statement string) string {
	s := strings.TrimSpace(statement)
	for _, prefix := range []string{"theorem ", "lemma ", "example ", "import "} {
		if strings.HasPrefix(s, prefix) {
			return s + "\n"
		}
	}
	return "theorem claim : " + s + " := by\n" + leanTactics
}
