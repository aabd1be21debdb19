package internal

import (
	"errors"
	"fmt"
)

var ErrSlugConflict = errors.New("slug already taken")
var ErrLinkNotFound = errors.New("link not found")

// ErrConsistency marks a violated invariant, e.g. an alias whose master
// link is gone. Callers still see ErrLinkNotFound; this one exists so the
// violation can be logged and counted instead of disappearing.
var ErrConsistency = errors.New("store consistency violation")

// ValidationError rejects caller-supplied data before anything is
// written. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failed or timed-out store call. Possibly
// transient; retrying the whole operation is safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
