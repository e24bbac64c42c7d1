package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
)

// Exec runs an arbitrary executable as a verifier. The statement is written
// to its stdin and a single JSON object is expected on stdout:
//
//	{"status": "proven", "witness": "...", "reason": "...", "dependencies": ["..."]}
//
// A parseable result is used even when the exit status is non-zero.
type Exec struct {
	name string
	path string
	args []string
}

func NewExec(name, path string, args ...string) *Exec {
	return &Exec{name: name, path: path, args: args}
}

func (e *Exec) Name() string { return e.name }

func (e *Exec) Path() string { return e.path }

func (e *Exec) Available() bool { return isExecutable(e.path) }

type execResult struct {
	Status       string   `json:"status"`
	Witness      string   `json:"witness,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func (e *Exec) Verify(ctx context.Context, statement string) (domain.ProofResult, error) {
	if !e.Available() {
		return domain.ProofResult{}, fmt.Errorf("%w: %s at %q", ErrNotInstalled, e.name, e.path)
	}
	res, err := runProcess(ctx, e.path, e.args, statement)
	if err != nil {
		return domain.ProofResult{}, err
	}

	var out execResult
	if perr := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &out); perr != nil {
		if res.ExitCode != 0 {
			return domain.ProofResult{}, fmt.Errorf("%s exited with status %d: %s", e.name, res.ExitCode, firstLine(res.Stderr))
		}
		return domain.ProofResult{}, fmt.Errorf("%s: unparseable result: %w", e.name, perr)
	}
	if !domain.ValidProofStatus(out.Status) {
		return domain.ProofResult{}, fmt.Errorf("%s: unknown status %q", e.name, out.Status)
	}
	return domain.ProofResult{
		Status:       domain.ProofStatus(out.Status),
		Witness:      out.Witness,
		Reason:       out.Reason,
		Dependencies: out.Dependencies,
	}, nil
}
