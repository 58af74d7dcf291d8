package chat

import (
	"errors"
	"fmt"
)

// ErrCollaboratorUnavailable marks failures where an external collaborator
// could not be reached or returned an unusable response (timeout, connection
// refused, malformed body).
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// ValidationError reports a malformed request field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CollaboratorError reports an HTTP-status-class failure from an external
// collaborator, carrying the status code and raw body.
type CollaboratorError struct {
	Status int
	Body   string
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator error: status=%d body=%s", e.Status, e.Body)
}

// PersistenceError reports a message log write or delete failure; the
// surrounding transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
