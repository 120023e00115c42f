// Package errors provides typed error handling for the hermit-analyze
// schedule-bisection pipeline.
//
// This package defines domain-specific error types that enable better error
// classification, debugging, and user feedback. All errors support the standard
// errors.Is() and errors.As() functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error, following the taxonomy
// of failure classes the pipeline distinguishes.
type ErrorKind int

const (
	// ErrUserInput indicates bad or missing user-supplied configuration.
	ErrUserInput ErrorKind = iota
	// ErrWorkspace indicates a workspace filesystem failure.
	ErrWorkspace
	// ErrSubprocess indicates a failure launching or waiting on the runtime subprocess.
	ErrSubprocess
	// ErrInvariant indicates a broken pipeline invariant (target/baseline/fixed-point).
	ErrInvariant
	// ErrConvergence indicates the bisector's predicate contradicted itself.
	ErrConvergence
	// ErrInternal indicates an internal error.
	ErrInternal
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrUserInput:
		return "user input error"
	case ErrWorkspace:
		return "workspace error"
	case ErrSubprocess:
		return "subprocess error"
	case ErrInvariant:
		return "invariant violation"
	case ErrConvergence:
		return "convergence failure"
	case ErrInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// AnalyzeError represents an error that occurred during one phase of the analysis.
type AnalyzeError struct {
	// Op is the operation that failed (e.g., "launch", "minimize", "bisect").
	Op string
	// Phase is the pipeline phase name, if applicable (e.g. "phase4-baseline").
	Phase string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind ErrorKind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *AnalyzeError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Phase != "" {
		msg = fmt.Sprintf("%s: ", e.Phase)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AnalyzeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is an *AnalyzeError with the same Kind,
// or if the underlying error matches.
func (e *AnalyzeError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*AnalyzeError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new AnalyzeError with the given kind.
func New(kind ErrorKind, op string, detail string) *AnalyzeError {
	return &AnalyzeError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Wrap wraps an error with phase context.
func Wrap(err error, kind ErrorKind, op string) *AnalyzeError {
	return &AnalyzeError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithPhase wraps an error with phase context and name.
func WrapWithPhase(err error, kind ErrorKind, op string, phase string) *AnalyzeError {
	return &AnalyzeError{
		Op:    op,
		Phase: phase,
		Err:   err,
		Kind:  kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind ErrorKind, op string, detail string) *AnalyzeError {
	return &AnalyzeError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind ErrorKind) bool {
	var aerr *AnalyzeError
	if errors.As(err, &aerr) {
		return aerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is an AnalyzeError.
func GetKind(err error) (ErrorKind, bool) {
	var aerr *AnalyzeError
	if errors.As(err, &aerr) {
		return aerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
