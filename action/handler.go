package action

import (
	"context"
	"errors"
	"sync"

	"github.com/Pratikkale26/Flowrge/workflow"
)

// Invocation carries everything a handler needs to execute one stage.
type Invocation struct {
	Run      *workflow.Run
	Workflow *workflow.Workflow
	Action   *workflow.Action
	Payload  Payload
}

// Handler executes the side effect for one action type.
// Handlers must tolerate re-invocation: the queue delivers at least once.
type Handler interface {
	// Type returns the action type tag this handler serves.
	Type() string

	// Execute performs the side effect. Errors are fatal for the stage
	// unless wrapped with Retryable.
	Execute(ctx context.Context, inv *Invocation) error
}

// Registry maps action type tags to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler, keyed by its Type. A later registration for the
// same tag replaces the earlier one.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get returns the handler for the given action type tag.
func (r *Registry) Get(actionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	return h, ok
}

// Types returns all registered action type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// retryableError marks a handler failure as transient: the stage message
// should be redelivered rather than the run halted.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so the executor redelivers the stage instead of
// failing the run. Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or any error it wraps) was marked
// retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
