package domain

import (
	"strings"
	"time"
)

type RelationKind string

const (
	RelationIsA         RelationKind = "is_a"
	RelationPartOf      RelationKind = "part_of"
	RelationContradicts RelationKind = "contradicts"
	RelationImplies     RelationKind = "implies"
	RelationCorrelates  RelationKind = "correlates"
)

// IsBuiltin reports whether k is one of the predefined relation kinds.
// Any other non-empty value is a custom tag.
func (k RelationKind) IsBuiltin() bool {
	switch k {
	case RelationIsA, RelationPartOf, RelationContradicts, RelationImplies, RelationCorrelates:
		return true
	}
	return false
}

// IsLogical reports whether the relation pins a logical dependency that
// retrieval must surface regardless of textual similarity.
func (k RelationKind) IsLogical() bool {
	return k == RelationContradicts || k == RelationImplies
}

// Relation is an outgoing edge. Pending is set when the target id does not
// (yet) exist in the graph. A zero Confidence means the edge was asserted
// without one.
type Relation struct {
	Kind       RelationKind `json:"kind" yaml:"kind"`
	Confidence float64      `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Pending    bool         `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Strength is the edge confidence, 1 when unset.
func (r Relation) Strength() float64 {
	if r.Confidence == 0 {
		return 1
	}
	return r.Confidence
}

type VerificationState string

const (
	VerificationUnverified                VerificationState = "unverified"
	VerificationPartial                   VerificationState = "partially_verified"
	VerificationVerified                  VerificationState = "verified"
	VerificationTheoreticallyUnverifiable VerificationState = "theoretically_unverifiable"
)

func ValidVerificationState(s string) bool {
	switch VerificationState(s) {
	case VerificationUnverified, VerificationPartial, VerificationVerified, VerificationTheoreticallyUnverifiable:
		return true
	}
	return false
}

// VerificationStatus carries a note for partial verification and a proof
// reference for verified symbols.
type VerificationStatus struct {
	State VerificationState `json:"state" yaml:"state"`
	Note  string            `json:"note,omitempty" yaml:"note,omitempty"`
	Proof *ProofReference   `json:"proof,omitempty" yaml:"proof,omitempty"`
}

func Unverified() VerificationStatus {
	return VerificationStatus{State: VerificationUnverified}
}

func PartiallyVerified(note string) VerificationStatus {
	return VerificationStatus{State: VerificationPartial, Note: note}
}

func Verified(ref ProofReference) VerificationStatus {
	return VerificationStatus{State: VerificationVerified, Proof: &ref}
}

func TheoreticallyUnverifiable() VerificationStatus {
	return VerificationStatus{State: VerificationTheoreticallyUnverifiable}
}

func (s VerificationStatus) IsVerified() bool {
	return s.State == VerificationVerified
}

type Symbol struct {
	ID             string              `json:"id" yaml:"id"`
	Term           string              `json:"term" yaml:"term"`
	Definition     string              `json:"definition" yaml:"definition"`
	Framework      string              `json:"framework" yaml:"framework"`
	Confidence     float64             `json:"confidence" yaml:"confidence"`
	Verification   VerificationStatus  `json:"verification" yaml:"verification"`
	Relations      map[string]Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
	Version        int                 `json:"version" yaml:"version"`
	LastReferenced uint64              `json:"last_referenced" yaml:"last_referenced"`
	SnapshotAt     *time.Time          `json:"snapshot_at,omitempty" yaml:"snapshot_at,omitempty"`
	SupersededBy   string              `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`
	Synthetic      bool                `json:"synthetic,omitempty" yaml:"synthetic,omitempty"`
	CreatedAt      time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy so snapshots never share relation maps with the
// live graph.
func (s Symbol) Clone() Symbol {
	c := s
	if s.Relations != nil {
		c.Relations = make(map[string]Relation, len(s.Relations))
		for k, v := range s.Relations {
			c.Relations[k] = v
		}
	}
	if s.Verification.Proof != nil {
		ref := *s.Verification.Proof
		c.Verification.Proof = &ref
	}
	if s.SnapshotAt != nil {
		t := *s.SnapshotAt
		c.SnapshotAt = &t
	}
	return c
}

// PendingTargets returns relation targets that did not resolve.
func (s Symbol) PendingTargets() []string {
	var out []string
	for id, rel := range s.Relations {
		if rel.Pending {
			out = append(out, id)
		}
	}
	return out
}

// Text is the rendering used for embeddings and context windows.
func (s Symbol) Text() string {
	term := s.Term
	if term == "" {
		term = s.ID
	}
	if s.Definition == "" {
		return term
	}
	return term + ": " + s.Definition
}

// NormalizeID lower-cases the surface text and collapses whitespace runs
// into single underscores.
func NormalizeID(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "_")
}

// QualifiedID disambiguates a term registered under several frameworks.
func QualifiedID(term, framework string) string {
	base := NormalizeID(term)
	if framework == "" {
		return base
	}
	return base + "@" + NormalizeID(framework)
}

// NormalizeStatement is the cache-key form of a statement: trimmed,
// whitespace collapsed, lower-cased.
func NormalizeStatement(statement string) string {
	return strings.Join(strings.Fields(strings.ToLower(statement)), " ")
}
