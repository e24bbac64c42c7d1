package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConflict          = errors.New("framework conflict")
	ErrDanglingReference = errors.New("dangling reference")
	ErrUnknownVerifier   = errors.New("unknown verifier")
	ErrCycle             = errors.New("proof dependency cycle")
	ErrPersistence       = errors.New("persistence failure")
	ErrNotFound          = errors.New("not found")
)

// ConflictError is returned when a symbol id is already registered under a
// different framework.
type ConflictError struct {
	ID                 string
	ExistingFramework  string
	RequestedFramework string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("symbol %q already registered under framework %q (requested %q); use %q or request multi-framework registration",
		e.ID, e.ExistingFramework, e.RequestedFramework, e.ID+"@"+NormalizeID(e.RequestedFramework))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type DanglingReferenceError struct {
	Kind    NodeKind
	ID      string
	Missing []string
}

func (e *DanglingReferenceError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s %q must reference at least one parent", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %q references missing ids: %s", e.Kind, e.ID, strings.Join(e.Missing, ", "))
}

func (e *DanglingReferenceError) Unwrap() error { return ErrDanglingReference }

type UnknownVerifierError struct {
	Name string
}

func (e *UnknownVerifierError) Error() string {
	return fmt.Sprintf("unknown verifier %q", e.Name)
}

func (e *UnknownVerifierError) Unwrap() error { return ErrUnknownVerifier }

// CycleError carries the path that would close the cycle, starting and
// ending at From.
type CycleError struct {
	From string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("proof of %q would depend on itself: %s", e.From, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// PersistenceError is fatal to the session driver: the write was retried and
// still failed.
type PersistenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
