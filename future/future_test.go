package future

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ybubnov/metalchat/tensor"
)

func newView() *tensor.View {
	return tensor.New(tensor.NewRandomContainer(2*3*4*4), tensor.DTypeF32, 2, 3, 4)
}

func TestNewResolvesImmediately(t *testing.T) {
	ft := New(newView())
	if _, err := ft.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestNewTaskRunsOnce(t *testing.T) {
	var calls int32
	ft := NewTask(newView(), func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := ft.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := ft.Wait(); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if calls != 1 {
		t.Fatalf("task ran %d times, want 1", calls)
	}
}

func TestDerivedViewSharesState(t *testing.T) {
	var calls int32
	ft := NewTask(newView(), func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	narrowed, err := ft.Narrow(1, 0, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	if _, err := narrowed.Get(); err != nil {
		t.Fatalf("Get on derived tensor: %v", err)
	}
	if _, err := ft.Get(); err != nil {
		t.Fatalf("Get on original tensor: %v", err)
	}
	if calls != 1 {
		t.Fatalf("task ran %d times, want 1 (shared state)", calls)
	}
}

func TestJoinWaitsOnAllSources(t *testing.T) {
	var aDone, bDone int32
	a := NewTask(newView(), func() error { atomic.StoreInt32(&aDone, 1); return nil })
	b := NewTask(newView(), func() error { atomic.StoreInt32(&bDone, 1); return nil })

	joined := Join(newView(), a, b)
	if err := joined.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if aDone == 0 || bDone == 0 {
		t.Fatalf("Join did not wait on all sources: a=%d b=%d", aDone, bDone)
	}
}

func TestWaitPropagatesError(t *testing.T) {
	boom := errors.New("kernel failed")
	ft := NewTask(newView(), func() error { return boom })

	if _, err := ft.Get(); !errors.Is(err, boom) {
		t.Fatalf("Get error = %v, want %v", err, boom)
	}
	// Second call returns the same cached error, not nil.
	if _, err := ft.Get(); !errors.Is(err, boom) {
		t.Fatalf("second Get error = %v, want %v", err, boom)
	}
}
