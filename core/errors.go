package core

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a turn is submitted with blank text and no
// audio. It is a soft failure: the caller ignores the action instead of
// surfacing an error to the user.
var ErrEmptyInput = errors.New("empty input")

// ErrTurnInFlight is returned when a turn is submitted while another turn is
// still generating or synthesizing. The session is not reentrant.
var ErrTurnInFlight = errors.New("turn already in flight")

// ErrNoReferenceVoice is returned when synthesis is requested before any
// reference voice has been registered. The textual turn still completes;
// only the audio is withheld.
var ErrNoReferenceVoice = errors.New("no reference voice registered")

// InvalidStateError reports a contract violation in conversation state
// transitions, e.g. completing a turn when none is pending. It should never
// occur in correct usage.
type InvalidStateError struct {
	Op     string // operation that was attempted
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid conversation state in %s: %s", e.Op, e.Reason)
}

// ServiceError wraps a failure from an external inference collaborator. It
// carries the service name so the caller can display a useful message; the
// session stays usable for the next turn.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with the originating service name. Returns nil
// when err is nil so call sites can wrap unconditionally.
func NewServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Err: err}
}
