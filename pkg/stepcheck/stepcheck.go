// Package stepcheck guards a linear protocol state machine against being
// driven out of order or reused after a failed step.
//
// Go has no equivalent of C++'s uncaught-exception count, so a StepChecker
// cannot tell on its own whether the scope that called CheckStep exited via
// an error. Instead CheckStep returns a Marker that the caller must resolve
// with a deferred call to Finish, passing the named error return of the
// enclosing function:
//
//	func (h *Handshake) ProcessShare(share []byte) (err error) {
//		marker, err := h.steps.CheckStep(stateInit, stateShareProcessed)
//		if err != nil {
//			return err
//		}
//		defer marker.Finish(&err)
//		... fallible work ...
//	}
//
// If *err is non-nil when Finish runs, the checker is permanently wasted:
// every later call to CheckStep or CurrentStep fails, even if the caller
// retries with the same expected step.
package stepcheck

import (
	"errors"
	"sync"
)

// ErrWasted is returned once a StepChecker has been wasted by a failed step.
var ErrWasted = errors.New("stepcheck: procedure has been wasted")

// ErrInvalidStep is returned when CheckStep is called with an expected step
// that does not match the checker's current step. This also wastes the
// checker.
var ErrInvalidStep = errors.New("stepcheck: invalid step")

// StepChecker enforces that a sequence of operations on T happens in the
// exact order described by successive CheckStep calls.
type StepChecker[T comparable] struct {
	mu     sync.Mutex
	step   T
	wasted bool
}

// New creates a StepChecker starting at initialStep.
func New[T comparable](initialStep T) *StepChecker[T] {
	return &StepChecker[T]{step: initialStep}
}

// Marker represents one in-flight step. The caller must call Finish exactly
// once, typically via defer, passing the address of the enclosing function's
// named error return.
type Marker[T comparable] struct {
	checker *StepChecker[T]
	done    bool
}

// Finish resolves the step. If errp is non-nil and *errp is non-nil, the
// checker is wasted; otherwise the step the checker advanced to at
// CheckStep time stands. Finish is safe to call at most once per Marker;
// subsequent calls are no-ops.
func (m *Marker[T]) Finish(errp *error) {
	if m == nil || m.done {
		return
	}
	m.done = true
	if errp != nil && *errp != nil {
		m.checker.markWasted()
	}
}

func (c *StepChecker[T]) markWasted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wasted = true
}

// CheckStep verifies the checker is currently at expectedStep, advances it
// to nextStep, and returns a Marker the caller must Finish. If the checker
// is already wasted, or the current step does not match expectedStep,
// CheckStep returns an error and (for a step mismatch) wastes the checker.
func (c *StepChecker[T]) CheckStep(expectedStep, nextStep T) (*Marker[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wasted {
		return nil, ErrWasted
	}
	if c.step != expectedStep {
		c.wasted = true
		return nil, ErrInvalidStep
	}
	c.step = nextStep
	return &Marker[T]{checker: c}, nil
}

// CurrentStep returns the checker's current step, or ErrWasted if the
// checker has been wasted.
func (c *StepChecker[T]) CurrentStep() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.wasted {
		return zero, ErrWasted
	}
	return c.step, nil
}

// Wasted reports whether the checker has been permanently wasted.
func (c *StepChecker[T]) Wasted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasted
}
