package core

import "context"

// Service is implemented by every external-inference collaborator handle.
// Handles are constructed by the factories, initialized once, passed
// explicitly to the turn controller and cleaned up on shutdown. There is
// no process-wide mutable model state.
type Service interface {
	Init(ctx context.Context) error
	Cleanup() error
	Reset() error
}
