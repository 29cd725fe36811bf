package template

import (
	"errors"
	"sync/atomic"

	"docgen/internal/transform"
)

// ErrPending is returned by a handle whose batch has not executed yet.
var ErrPending = errors.New("template: handle has not been compiled yet")

// TemplateInvalidError is the sticky compile failure of a handle.
type TemplateInvalidError struct {
	Diagnostic string
}

func (e *TemplateInvalidError) Error() string { return "document template invalid: " + e.Diagnostic }

type outcome struct {
	factory transform.Factory
	err     *TemplateInvalidError
}

// Handle is a compiled template. It starts pending and is resolved exactly
// once, to ready or failed, by the batch that scheduled it. Holding the
// handle keeps it in the cache.
type Handle struct {
	out atomic.Pointer[outcome]
}

// Identity returns a ready handle whose invocations copy input to output.
func Identity() *Handle {
	h := &Handle{}
	h.ready(transform.Identity)
	return h
}

// Invalid returns a failed handle carrying msg.
func Invalid(msg string) *Handle {
	h := &Handle{}
	h.fail(msg)
	return h
}

func (h *Handle) ready(f transform.Factory) bool {
	return h.out.CompareAndSwap(nil, &outcome{factory: f})
}

func (h *Handle) fail(msg string) bool {
	return h.out.CompareAndSwap(nil, &outcome{err: &TemplateInvalidError{Diagnostic: msg}})
}

// AssertValid returns nil for a ready handle, the sticky
// *TemplateInvalidError for a failed one and ErrPending otherwise.
func (h *Handle) AssertValid() error {
	o := h.out.Load()
	switch {
	case o == nil:
		return ErrPending
	case o.err != nil:
		return o.err
	}
	return nil
}

// NewInvocation returns an invocation independent of every other one taken
// from this handle.
func (h *Handle) NewInvocation() (transform.Invocation, error) {
	if err := h.AssertValid(); err != nil {
		return nil, err
	}
	return h.out.Load().factory.NewInvocation(), nil
}
