package propagation

import (
	"errors"
	"fmt"
)

// RejectionKind classifies why a propagation request was refused before
// any processing began.
type RejectionKind string

const (
	RejectionUnauthorized        RejectionKind = "unauthorized"
	RejectionInvalidScope        RejectionKind = "invalid_scope"
	RejectionMissingConfirmation RejectionKind = "missing_confirmation"
)

// RejectionError refuses a plan request. Nothing has been applied when
// it is returned.
type RejectionError struct {
	Kind   RejectionKind
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("propagation rejected (%s): %s", e.Kind, e.Reason)
}

func rejectf(kind RejectionKind, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps a RejectionError if err is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// RollbackUnavailableError reports that a rollback cannot be performed;
// it is never silently ignored.
type RollbackUnavailableError struct {
	Reason string
}

func (e *RollbackUnavailableError) Error() string {
	return "rollback unavailable: " + e.Reason
}

// ErrRunNotFound is returned when no propagation run has the given ID.
var ErrRunNotFound = errors.New("propagation run not found")

// ErrRunNotRunning is returned when cancelling a run that is not
// currently executing.
var ErrRunNotRunning = errors.New("propagation run is not running")
