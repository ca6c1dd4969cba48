package consolidate

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a consolidation pass produced no candidate.
type ErrorKind string

const (
	// LLMUnavailable marks transport failures, exhausted retries, and other
	// conditions where the model never answered.
	LLMUnavailable ErrorKind = "llm_unavailable"
	// LLMMalformedOutput marks answers that did not decode into the response
	// contract.
	LLMMalformedOutput ErrorKind = "llm_malformed_output"
)

// Error wraps a consolidation failure with its kind. The driver absorbs
// these: the institution is skipped and the run continues.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("consolidate: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("consolidate: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from a consolidation error. Unclassified
// errors count as unavailable.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return LLMUnavailable
}
