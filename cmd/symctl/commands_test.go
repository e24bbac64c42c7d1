package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const reachable = `
edge(1, 2).
edge(2, 3).
path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
proven("reachable") :- path(1, 3).
`

func TestVerifyThenInspect(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ENABLED_VERIFIERS", "datalog")
	t.Setenv("EXTERNAL_VERIFIERS", "")
	backend := filepath.Join(t.TempDir(), "state.json")

	out, err := run(t, "verify", reachable, "--verifier", "datalog", "--backend", backend, "--format", "json")
	require.NoError(t, err, out)
	var rec domain.ProofRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, domain.ProofProven, rec.Result.Status)

	out, err = run(t, "inspect", "--backend", backend, "--format", "json")
	require.NoError(t, err, out)
	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, map[string]int{"proven": 1}, report.Proofs)
	require.Len(t, report.Verifiers, 1)
	assert.Equal(t, "datalog", report.Verifiers[0].Name)
}

func TestVerifyNoSave(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ENABLED_VERIFIERS", "datalog")
	backend := filepath.Join(t.TempDir(), "state.yaml")

	_, err := run(t, "verify", reachable, "--backend", backend, "--no-save")
	require.NoError(t, err)

	out, err := run(t, "inspect", "--backend", backend, "--format", "json")
	require.NoError(t, err)
	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Proofs)
}

func TestVerifyUnknownVerifier(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ENABLED_VERIFIERS", "datalog")
	backend := filepath.Join(t.TempDir(), "state.yaml")

	_, err := run(t, "verify", "x > 0", "--verifier", "coq", "--backend", backend)
	assert.ErrorIs(t, err, domain.ErrUnknownVerifier)
}

func TestHistoryUnknownSymbol(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))
	backend := filepath.Join(t.TempDir(), "state.yaml")

	_, err := run(t, "history", "phi", "--backend", backend)
	assert.Error(t, err)
}

func TestContextEmptyGraph(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))
	backend := filepath.Join(t.TempDir(), "state.yaml")

	out, err := run(t, "context", "--backend", backend, "--budget", "100", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "{")
}

func TestVersionAndFormat(t *testing.T) {
	t.Setenv("SYMSTATE_ENV", filepath.Join(t.TempDir(), "missing.env"))

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version:")

	_, err = run(t, "version", "--format", "xml")
	assert.Error(t, err)
}
