// Package future provides a tensor handle whose backing data is not yet
// ready: a kernel thread owns the write, and callers either wait for it or
// keep composing further (immutable) view operations on top without
// blocking. Waiting is idempotent and shared across every view derived
// from the same task, mirroring future_tensor in
// metalchat/tensor/future.h.
package future

import (
	"sync"

	"github.com/ybubnov/metalchat/tensor"
)

// state is the shared, once-only wait closure behind every Tensor derived
// from the same task. Derived tensors (Narrow, Transpose, View, Flatten)
// share a *state rather than copying it, so waiting on any one of them
// resolves the task for all of them exactly once.
type state struct {
	mu   sync.Mutex
	err  error
	wait func() error
}

func (s *state) await() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wait != nil {
		s.err = s.wait()
		s.wait = nil
	}
	return s.err
}

// Tensor is a tensor.View paired with the (possibly already-resolved) task
// that fills its backing memory. The view itself is fixed at construction
// time; only its readiness changes.
type Tensor struct {
	result *tensor.View
	state  *state
}

// New wraps a result that is already complete — no task is associated
// with it, so Wait returns immediately.
func New(result *tensor.View) *Tensor {
	return &Tensor{result: result, state: &state{}}
}

// NewTask associates result with a wait closure that blocks until the
// kernel thread filling result's memory has committed. wait must be safe
// to call from any goroutine and should itself be idempotent.
func NewTask(result *tensor.View, wait func() error) *Tensor {
	return &Tensor{result: result, state: &state{wait: wait}}
}

// Join produces a tensor whose readiness requires every tensor in sources
// to be ready, in addition to result's own memory having already been
// written (result is the output of an operation that itself depends on
// sources, e.g. attention output depends on both its query and KV-cache
// futures).
func Join(result *tensor.View, sources ...*Tensor) *Tensor {
	return &Tensor{result: result, state: &state{wait: func() error {
		for _, src := range sources {
			if err := src.Wait(); err != nil {
				return err
			}
		}
		return nil
	}}}
}

// Wait blocks until the associated task has committed its result.
func (t *Tensor) Wait() error {
	return t.state.await()
}

// Get waits for the task to commit, then returns the result view.
func (t *Tensor) Get() (*tensor.View, error) {
	if err := t.Wait(); err != nil {
		return nil, err
	}
	return t.result, nil
}

// GetNoWait returns the result view without waiting for the task. The
// view's backing memory may still be written to concurrently by the
// kernel thread; callers that read it must synchronize separately.
func (t *Tensor) GetNoWait() *tensor.View {
	return t.result
}

// derive wraps a transformed view with the same shared state as t, so
// waiting on the derived tensor resolves the same underlying task.
func (t *Tensor) derive(result *tensor.View) *Tensor {
	return &Tensor{result: result, state: t.state}
}
