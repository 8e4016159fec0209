// Package apperr defines the closed error-kind taxonomy used across the
// orchestrator, generalized from the teacher's tool-result error/silent
// split into a single wrapped-error type with an HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of error sources, matching the error-handling design.
type Kind string

const (
	KindInputValidation      Kind = "input_validation"
	KindUpstreamLLM          Kind = "upstream_llm"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindToolFailure          Kind = "tool_failure"
	KindScenarioRuntime      Kind = "scenario_runtime"
	KindSGRConversion        Kind = "sgr_conversion"
	KindMemoryDeserialize    Kind = "memory_deserialize"
)

// Error wraps an underlying cause with a Kind, an operation name, and
// optional structured fields for logging.
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Fields map[string]interface{}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.New(KindX, "", nil)) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithFields attaches structured fields and returns the same error for chaining.
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	e.Fields = fields
	return e
}

// StatusCode maps a Kind to the HTTP status the host layer should use.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInputValidation:
		return 400
	case KindSGRConversion:
		return 422
	case KindUpstreamLLM:
		return 502
	default:
		return 500
	}
}

// UpstreamStatus refines KindUpstreamLLM errors into the specific upstream
// status named by the error-handling design (401/429/502/504), based on a
// classification string carried by the caller (auth|rate_limit|timeout|other).
func UpstreamStatus(classification string) int {
	switch classification {
	case "auth":
		return 401
	case "rate_limit":
		return 429
	case "timeout":
		return 504
	default:
		return 502
	}
}

// OfKind reports whether err (or something it wraps) is an *Error of kind k.
func OfKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
