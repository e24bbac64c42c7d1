package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "integrated_information_theory", NormalizeID("  Integrated   Information\tTheory "))
	assert.Equal(t, "phi", NormalizeID("PHI"))
	assert.Equal(t, "", NormalizeID("   "))
}

func TestQualifiedID(t *testing.T) {
	assert.Equal(t, "entropy@information_theory", QualifiedID("Entropy", "Information Theory"))
	assert.Equal(t, "entropy", QualifiedID("Entropy", ""))
}

func TestNormalizeStatement(t *testing.T) {
	assert.Equal(t, "2+2=4", NormalizeStatement(" 2+2=4 "))
	assert.Equal(t, "forall x. x = x", NormalizeStatement("ForAll  x.\n x = x"))
}

func TestSymbolClone_DoesNotShareState(t *testing.T) {
	now := time.Now()
	s := Symbol{
		ID:           "a",
		Relations:    map[string]Relation{"b": {Kind: RelationImplies}},
		Verification: Verified(ProofReference{Engine: "z3", ProofID: "p1"}),
		SnapshotAt:   &now,
	}

	c := s.Clone()
	c.Relations["c"] = Relation{Kind: RelationIsA}
	c.Verification.Proof.ProofID = "changed"

	assert.Len(t, s.Relations, 1)
	assert.Equal(t, "p1", s.Verification.Proof.ProofID)
}

func TestSymbolPendingTargets(t *testing.T) {
	s := Symbol{Relations: map[string]Relation{
		"b": {Kind: RelationImplies},
		"c": {Kind: RelationIsA, Pending: true},
	}}
	assert.Equal(t, []string{"c"}, s.PendingTargets())
}

func TestRelationKind(t *testing.T) {
	assert.True(t, RelationContradicts.IsBuiltin())
	assert.True(t, RelationContradicts.IsLogical())
	assert.False(t, RelationKind("inspired_by").IsBuiltin())
	assert.False(t, RelationCorrelates.IsLogical())
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &ConflictError{ID: "entropy", ExistingFramework: "physics", RequestedFramework: "information theory"}
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "entropy@information_theory")

	err = &DanglingReferenceError{Kind: NodeGoal, ID: "g1", Missing: []string{"v9"}}
	assert.True(t, errors.Is(err, ErrDanglingReference))

	err = &PersistenceError{Op: "save graph", Attempts: 3, Err: errors.New("disk full")}
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "disk full")

	var cycle *CycleError
	assert.True(t, errors.As(error(&CycleError{From: "x", Path: []string{"x", "y", "x"}}), &cycle))
	assert.True(t, errors.Is(cycle, ErrCycle))
}

func TestSnapshotBefore(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Snapshot{Seq: 1, Timestamp: ts}
	b := Snapshot{Seq: 2, Timestamp: ts}
	c := Snapshot{Seq: 0, Timestamp: ts.Add(time.Second)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}
