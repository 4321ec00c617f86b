package core

import (
	"errors"
	"fmt"
)

// TransientIOError reports a store connectivity failure. Matching is
// deterministic, so the failed batch can be recomputed and retried.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient I/O error during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// DataIntegrityError reports input that makes a phase meaningless, such as an
// empty decoy population or an empty peak list. It is fatal.
type DataIntegrityError struct {
	Field   string
	Message string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error in %s: %s", e.Field, e.Message)
}

// ComputationError reports a value that could not be classified. It is logged
// and a default is used instead of failing.
type ComputationError struct {
	Label   string
	Message string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error for %q: %s", e.Label, e.Message)
}

// IsTransient reports whether err, or any error it wraps, is a
// TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// IsDataIntegrity reports whether err, or any error it wraps, is a
// DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var d *DataIntegrityError
	return errors.As(err, &d)
}
