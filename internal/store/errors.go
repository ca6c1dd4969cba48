package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies persistence failures for the driver's retry policy.
type ErrorKind string

const (
	// WriteFailed marks an I/O failure while writing the workbook.
	WriteFailed ErrorKind = "write_failed"
	// LockConflict marks a workbook held open by another program.
	LockConflict ErrorKind = "lock_conflict"
)

// Error wraps a persistence failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, defaulting to WriteFailed for errors that
// did not come out of this package.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return WriteFailed
}
