package verifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// DefaultFactLimit caps the facts a single Datalog evaluation may derive.
const DefaultFactLimit = 100000

// Datalog evaluates a statement written as a Mangle program in-process.
// The statement holds when the program derives at least one proven/1 fact
// and fails when it derives a refuted/1 fact. depends_on/1 facts name the
// statements the derivation relied on.
type Datalog struct {
	factLimit int
}

func NewDatalog(factLimit int) *Datalog {
	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}
	return &Datalog{factLimit: factLimit}
}

func (d *Datalog) Name() string { return "datalog" }

var (
	provenPred    = ast.PredicateSym{Symbol: "proven", Arity: 1}
	refutedPred   = ast.PredicateSym{Symbol: "refuted", Arity: 1}
	dependsOnPred = ast.PredicateSym{Symbol: "depends_on", Arity: 1}
)

type datalogOutcome struct {
	result domain.ProofResult
	err    error
}

func (d *Datalog) Verify(ctx context.Context, statement string) (domain.ProofResult, error) {
	unit, err := parse.Unit(strings.NewReader(statement))
	if err != nil {
		return domain.Undecidable(fmt.Sprintf("datalog parse: %v", err)), nil
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return domain.Undecidable(fmt.Sprintf("datalog analysis: %v", err)), nil
	}

	// Evaluation cannot be interrupted; the fact limit bounds it instead.
	done := make(chan datalogOutcome, 1)
	go func() {
		res, err := d.evaluate(programInfo)
		done <- datalogOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return domain.ProofResult{}, ctx.Err()
	}
}

func (d *Datalog) evaluate(programInfo *analysis.ProgramInfo) (domain.ProofResult, error) {
	store := factstore.NewSimpleInMemoryStore()
	if _, err := mengine.EvalProgramWithStats(programInfo, store, mengine.WithCreatedFactLimit(d.factLimit)); err != nil {
		return domain.Undecidable(fmt.Sprintf("datalog evaluation: %v", err)), nil
	}

	refuted, err := queryFacts(store, refutedPred)
	if err != nil {
		return domain.ProofResult{}, err
	}
	if len(refuted) > 0 {
		return domain.Disproven(strings.Join(refuted, "; ")), nil
	}

	proven, err := queryFacts(store, provenPred)
	if err != nil {
		return domain.ProofResult{}, err
	}
	if len(proven) == 0 {
		return domain.Undecidable("no proven/1 fact derived"), nil
	}

	var deps []string
	err = store.GetFacts(ast.NewQuery(dependsOnPred), func(a ast.Atom) error {
		if c, ok := a.Args[0].(ast.Constant); ok {
			deps = append(deps, c.Symbol)
		}
		return nil
	})
	if err != nil {
		return domain.ProofResult{}, fmt.Errorf("query depends_on: %w", err)
	}
	sort.Strings(deps)
	return domain.Proven(strings.Join(proven, "; "), deps...), nil
}

func queryFacts(store factstore.FactStore, pred ast.PredicateSym) ([]string, error) {
	var out []string
	err := store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
		out = append(out, a.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", pred.Symbol, err)
	}
	sort.Strings(out)
	return out, nil
}
