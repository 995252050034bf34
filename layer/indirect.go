package layer

import (
	"sync/atomic"

	"github.com/ybubnov/metalchat/tensor"
)

// Closer is implemented by layers that hold GPU-backed resources needing
// explicit release once the last Indirect handle to them drops — most
// commonly the KV cache, whose buffers should be freed as soon as no
// sequence references it anymore.
type Closer interface {
	Close() error
}

// indirectState is the shared block every copy of an Indirect handle
// points to.
type indirectState[L Layer] struct {
	refs  int32
	value L
}

// Indirect is a reference-counted, copyable handle to an L, inheriting
// the Layer interface by delegating to the held value. Copying an
// Indirect does not copy L; Retain/Release adjust one shared counter.
type Indirect[L Layer] struct {
	state *indirectState[L]
}

// NewIndirect wraps value in a fresh, single-reference handle.
func NewIndirect[L Layer](value L) Indirect[L] {
	return Indirect[L]{state: &indirectState[L]{refs: 1, value: value}}
}

// Retain increments the reference count and returns h unchanged, so
// callers can write `stored := h.Retain()`.
func (h Indirect[L]) Retain() Indirect[L] {
	atomic.AddInt32(&h.state.refs, 1)
	return h
}

// Release decrements the reference count, closing the held value (if it
// implements Closer) once the count reaches zero. Release is idempotent
// only in the sense that releasing an already-zero handle is a caller
// bug; it is not guarded against a double release.
func (h Indirect[L]) Release() error {
	if atomic.AddInt32(&h.state.refs, -1) > 0 {
		return nil
	}
	if closer, ok := any(h.state.value).(Closer); ok {
		return closer.Close()
	}
	return nil
}

// Get returns the held value.
func (h Indirect[L]) Get() L { return h.state.value }

func (h Indirect[L]) GetParameter(path string) (*tensor.View, error) {
	return h.state.value.GetParameter(path)
}

func (h Indirect[L]) SetParameter(path string, v *tensor.View) error {
	return h.state.value.SetParameter(path, v)
}

func (h Indirect[L]) Child(name string) (Layer, bool) {
	return h.state.value.Child(name)
}

func (h Indirect[L]) Apply(fn func(path string, v *tensor.View) error, recurse bool) error {
	return h.state.value.Apply(fn, recurse)
}
