// Package failure defines the typed failures every pipeline stage returns.
//
// Each stage (locate, rewrite, extract, build, evaluate) reports one of a
// small set of kinds. Callers branch with errors.Is against the sentinels,
// or errors.As into *Error to read the kind, message and source position.
package failure

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound           Kind = "NotFound"
	MalformedConstruct Kind = "MalformedConstruct"
	ArityMismatch      Kind = "ArityMismatch"
	Timeout            Kind = "Timeout"
	EvaluationError    Kind = "EvaluationError"
)

// Sentinel errors for error classification.
var (
	// ErrNotFound indicates the construct marker is absent from the source.
	ErrNotFound = errors.New("construct not found")

	// ErrMalformedConstruct indicates unbalanced delimiters, an unterminated
	// literal, a missing callback signature or a syntax error.
	ErrMalformedConstruct = errors.New("malformed construct")

	// ErrArityMismatch indicates the parameter, dependency or fetched value
	// counts disagree.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrTimeout indicates the evaluation exceeded its time budget.
	ErrTimeout = errors.New("evaluation timeout")

	// ErrEvaluation indicates a runtime failure inside the snippet.
	ErrEvaluation = errors.New("evaluation error")
)

var sentinels = map[Kind]error{
	NotFound:           ErrNotFound,
	MalformedConstruct: ErrMalformedConstruct,
	ArityMismatch:      ErrArityMismatch,
	Timeout:            ErrTimeout,
	EvaluationError:    ErrEvaluation,
}

// Error is a classified pipeline failure. It includes optional source
// location information for debugging.
type Error struct {
	Kind Kind

	// Message describes the error.
	Message string

	// Line is the 1-based line number where the error occurred.
	// Zero indicates the line is unknown.
	Line int

	// Column is the 1-based column number where the error occurred.
	Column int

	// Err is the underlying error, if any.
	Err error
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// At attaches a source position and returns the same error.
func (e *Error) At(line, column int) *Error {
	e.Line = line
	e.Column = column
	return e
}

// Error returns the error message, including line and column if available.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d, col %d)", msg, e.Line, e.Column)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target.
// An Error matches the sentinel of its kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// MarshalJSON renders the structured failure form `{kind, message}`.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Line    int    `json:"line,omitempty"`
		Column  int    `json:"column,omitempty"`
	}{e.Kind, e.Message, e.Line, e.Column}

	if e.Err != nil {
		out.Message = fmt.Sprintf("%s: %s", e.Message, e.Err)
	}

	return json.Marshal(out)
}

// KindOf returns the kind of a failure, or "" when err is not one.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
