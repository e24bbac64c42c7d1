package domain

import (
	"context"
	"time"
)

type ProofStatus string

const (
	ProofProven      ProofStatus = "proven"
	ProofDisproven   ProofStatus = "disproven"
	ProofUndecidable ProofStatus = "undecidable"
	ProofError       ProofStatus = "error"
)

func ValidProofStatus(s string) bool {
	switch ProofStatus(s) {
	case ProofProven, ProofDisproven, ProofUndecidable, ProofError:
		return true
	}
	return false
}

// Reasons used for ProofError results produced by the engine itself.
const (
	ReasonTimeout         = "timeout"
	ReasonVerifierFailure = "verifier_failure"
)

// ProofResult is the outcome of one verifier run. Witness is set for
// Proven/Disproven, Reason for Undecidable/Error. Dependencies lists the
// sub-statements the verifier relied on.
type ProofResult struct {
	Status       ProofStatus `json:"status" yaml:"status"`
	Witness      string      `json:"witness,omitempty" yaml:"witness,omitempty"`
	Reason       string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

func Proven(witness string, deps ...string) ProofResult {
	return ProofResult{Status: ProofProven, Witness: witness, Dependencies: deps}
}

func Disproven(witness string) ProofResult {
	return ProofResult{Status: ProofDisproven, Witness: witness}
}

func Undecidable(reason string) ProofResult {
	return ProofResult{Status: ProofUndecidable, Reason: reason}
}

func ProofErrorResult(reason string) ProofResult {
	return ProofResult{Status: ProofError, Reason: reason}
}

type ProofReference struct {
	Engine    string    `json:"engine" yaml:"engine"`
	ProofID   string    `json:"proof_id" yaml:"proof_id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ProofKey identifies a cache entry.
type ProofKey struct {
	Statement string `json:"statement" yaml:"statement"`
	Verifier  string `json:"verifier" yaml:"verifier"`
}

func NewProofKey(statement, verifier string) ProofKey {
	return ProofKey{Statement: NormalizeStatement(statement), Verifier: verifier}
}

func (k ProofKey) String() string {
	return k.Verifier + "\x00" + k.Statement
}

// ProofRecord is a cache entry. Reference is only set for Proven results.
// CyclePath is set instead when a verifier run produced a proof whose
// dependencies would close an ancestry cycle; such an entry adds no edges
// and verifies no symbol.
type ProofRecord struct {
	Key       ProofKey        `json:"key" yaml:"key"`
	Original  string          `json:"original" yaml:"original"`
	Result    ProofResult     `json:"result" yaml:"result"`
	Reference *ProofReference `json:"reference,omitempty" yaml:"reference,omitempty"`
	SymbolID  string          `json:"symbol_id,omitempty" yaml:"symbol_id,omitempty"`
	CyclePath []string        `json:"cycle_path,omitempty" yaml:"cycle_path,omitempty"`
	CachedAt  time.Time       `json:"cached_at" yaml:"cached_at"`
}

// Cycle reports the ancestry cycle recorded on the entry, if any.
func (r ProofRecord) Cycle() *CycleError {
	if len(r.CyclePath) == 0 {
		return nil
	}
	return &CycleError{From: r.CyclePath[0], Path: append([]string(nil), r.CyclePath...)}
}

type AncestryEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// ProofDocument is the persisted form of the proof cache and ancestry DAG.
type ProofDocument struct {
	Entries  []ProofRecord  `json:"entries" yaml:"entries"`
	Ancestry []AncestryEdge `json:"ancestry" yaml:"ancestry"`
}

// Verifier is a pluggable formal-verification backend. Implementations must
// honour ctx cancellation and release any external resources before
// returning.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, statement string) (ProofResult, error)
}

// AvailabilityChecker is implemented by verifiers that depend on an
// external executable.
type AvailabilityChecker interface {
	Available() bool
}
