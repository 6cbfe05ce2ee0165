// Package refc provides a minimal reference-counted handle used to fan a
// single value out to many independent consumers without copying it.
package refc

import "sync/atomic"

// Handle wraps a value with an atomic reference count. A Handle starts with
// a count of one, representing the caller that created it. Each additional
// holder must call Acquire before storing its own copy of the pointer, and
// must call Release exactly once when it is done with it. When the count
// reaches zero, release is invoked with the wrapped value and the value is
// cleared so it cannot be observed again through this handle.
type Handle[T any] struct {
	value   T
	refs    int32
	release func(T)
}

// New creates a Handle around value with an initial reference count of one.
// release, if non-nil, is invoked exactly once, when the last reference is
// dropped.
func New[T any](value T, release func(T)) *Handle[T] {
	return &Handle[T]{value: value, refs: 1, release: release}
}

// Acquire increments the reference count and returns the same handle, so
// call sites can write `dst := h.Acquire()` to make the extra reference
// explicit at the point it is taken.
func (h *Handle[T]) Acquire() *Handle[T] {
	atomic.AddInt32(&h.refs, 1)
	return h
}

// Value returns the wrapped value. It is only safe to call before the
// holder's matching Release.
func (h *Handle[T]) Value() T {
	return h.value
}

// Release drops one reference. Once the count reaches zero the wrapped
// release function runs and the value is discarded.
func (h *Handle[T]) Release() {
	if atomic.AddInt32(&h.refs, -1) == 0 {
		if h.release != nil {
			h.release(h.value)
		}
		var zero T
		h.value = zero
	}
}

// RefCount returns the current reference count, for tests and diagnostics.
func (h *Handle[T]) RefCount() int32 {
	return atomic.LoadInt32(&h.refs)
}
