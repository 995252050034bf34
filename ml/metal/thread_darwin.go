//go:build darwin && arm64

package metal

/*
#cgo CFLAGS: -Werror -xobjective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework Metal

@import Metal;

#include <stdint.h>

extern void metalchatThreadCompleted(uint64_t handle);

static CFTypeRef queueNewCommandBuffer(CFTypeRef queueRef) {
	@autoreleasepool {
		id<MTLCommandQueue> queue = (__bridge id<MTLCommandQueue>)queueRef;
		return CFBridgingRetain([queue commandBuffer]);
	}
}

static void cmdBufferAddCompletedHandler(CFTypeRef cmdBufRef, uint64_t handle) {
	@autoreleasepool {
		id<MTLCommandBuffer> cmdBuf = (__bridge id<MTLCommandBuffer>)cmdBufRef;
		[cmdBuf addCompletedHandler:^(id<MTLCommandBuffer> buf) {
			metalchatThreadCompleted(handle);
		}];
	}
}

static void cmdBufferCommit(CFTypeRef cmdBufRef) {
	@autoreleasepool {
		id<MTLCommandBuffer> cmdBuf = (__bridge id<MTLCommandBuffer>)cmdBufRef;
		[cmdBuf commit];
	}
}

static CFTypeRef cmdBufferComputeEncoder(CFTypeRef cmdBufRef) {
	@autoreleasepool {
		id<MTLCommandBuffer> cmdBuf = (__bridge id<MTLCommandBuffer>)cmdBufRef;
		return CFBridgingRetain([cmdBuf computeCommandEncoderWithDispatchType:MTLDispatchTypeSerial]);
	}
}

static void computeEncEnd(CFTypeRef encRef) {
	@autoreleasepool {
		id<MTLComputeCommandEncoder> enc = (__bridge id<MTLComputeCommandEncoder>)encRef;
		[enc endEncoding];
	}
}

static CFTypeRef deviceNewEvent(CFTypeRef devRef) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		return CFBridgingRetain([dev newEvent]);
	}
}

static void cmdBufferEncodeSignalEvent(CFTypeRef cmdBufRef, CFTypeRef eventRef, uint64_t value) {
	id<MTLCommandBuffer> cmdBuf = (__bridge id<MTLCommandBuffer>)cmdBufRef;
	id<MTLEvent> event = (__bridge id<MTLEvent>)eventRef;
	[cmdBuf encodeSignalEvent:event value:value];
}

static void cmdBufferEncodeWaitForEvent(CFTypeRef cmdBufRef, CFTypeRef eventRef, uint64_t value) {
	id<MTLCommandBuffer> cmdBuf = (__bridge id<MTLCommandBuffer>)cmdBufRef;
	id<MTLEvent> event = (__bridge id<MTLEvent>)eventRef;
	[cmdBuf encodeWaitForEvent:event value:value];
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"sync"
)

//export metalchatThreadCompleted
func metalchatThreadCompleted(handle C.uint64_t) {
	completionRegistry.fire(uint64(handle))
}

var completionRegistry = newSignalRegistry()

// signalRegistry maps opaque uint64 handles to completion channels, since
// an Objective-C completion block can only call back into a plain C (and
// therefore cgo-exported) function, not a Go closure.
type signalRegistry struct {
	mu   sync.Mutex
	next uint64
	chs  map[uint64]chan struct{}
}

func newSignalRegistry() *signalRegistry {
	return &signalRegistry{chs: make(map[uint64]chan struct{})}
}

func (r *signalRegistry) register() (uint64, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	handle := r.next
	ch := make(chan struct{})
	r.chs[handle] = ch
	return handle, ch
}

func (r *signalRegistry) fire(handle uint64) {
	r.mu.Lock()
	ch, ok := r.chs[handle]
	delete(r.chs, handle)
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Thread wraps one command buffer and an event counter. It accepts up to
// capacity encoded tasks before auto-committing; commits are irrevocable.
type Thread struct {
	device *Device
	cmdBuf C.CFTypeRef
	event  C.CFTypeRef

	// sequence is the monotonic value this thread signals its event with
	// on commit, and the value a successor waits for.
	sequence uint64

	mu        sync.Mutex
	size      int
	capacity  int
	committed bool
	done      <-chan struct{}
}

func newThread(device *Device, capacity int, predecessor *Thread, sequence uint64) *Thread {
	cmdBuf := C.queueNewCommandBuffer(device.queue)
	event := C.deviceNewEvent(device.handle)

	handle, done := completionRegistry.register()
	C.cmdBufferAddCompletedHandler(cmdBuf, C.uint64_t(handle))

	if predecessor != nil {
		C.cmdBufferEncodeWaitForEvent(cmdBuf, predecessor.event, C.uint64_t(predecessor.sequence))
	}

	return &Thread{
		device:   device,
		cmdBuf:   cmdBuf,
		event:    event,
		sequence: sequence,
		capacity: capacity,
		done:     done,
	}
}

// joinable reports whether this thread can still accept a task.
func (t *Thread) joinable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.committed && t.size < t.capacity
}

// push encodes task's dispatch into this thread's command buffer and
// returns a channel closed once the buffer completes. It auto-commits
// once capacity is reached.
func (t *Thread) push(task *Task) (<-chan struct{}, error) {
	if task.invoked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInvoked, task.Kernel)
	}

	if t.device.lib == nil {
		return nil, fmt.Errorf("metal: no kernel library loaded; call Device.Library first")
	}
	kernel, err := t.device.lib.lookup(task.Kernel)
	if err != nil {
		return nil, err
	}
	if err := ValidateGrid(task.Grid, task.Group, kernel.maxThreadsPerGroup()); err != nil {
		return nil, err
	}
	for _, arg := range task.Args {
		if arg.IsTensor() {
			if _, _, err := nativeBuffer(arg.view.Container()); err != nil {
				return nil, err
			}
		}
	}

	t.mu.Lock()
	if t.committed || t.size >= t.capacity {
		t.mu.Unlock()
		return nil, fmt.Errorf("metal: thread not joinable")
	}

	encoder := C.cmdBufferComputeEncoder(t.cmdBuf)
	kernel.encode(encoder, task)
	C.computeEncEnd(encoder)
	C.CFRelease(encoder)

	task.invoked = true
	t.size++
	full := t.size >= t.capacity
	t.mu.Unlock()

	if full {
		t.commit()
	}
	return t.done, nil
}

// commit submits the command buffer if it has not already been
// committed. Safe to call multiple times and from multiple goroutines.
func (t *Thread) commit() {
	t.mu.Lock()
	if t.committed {
		t.mu.Unlock()
		return
	}
	t.committed = true
	t.mu.Unlock()

	C.cmdBufferEncodeSignalEvent(t.cmdBuf, t.event, C.uint64_t(t.sequence))
	C.cmdBufferCommit(t.cmdBuf)
}

// Stream is the single per-accelerator logical sequence of kernel
// threads. Submitting a task on a full or already-committed thread
// partitions: a successor thread is created, chained to the predecessor
// by an event signal/wait pair, so that partitions stay linearizable
// while earlier ones run ahead of later encoding.
type Stream struct {
	mu       sync.Mutex
	device   *Device
	capacity int
	current  *Thread
	sequence uint64
}

func newStream(device *Device, capacity int) *Stream {
	s := &Stream{device: device, capacity: capacity, sequence: 1}
	s.current = newThread(device, capacity, nil, s.sequence)
	return s
}

// Submit encodes task on the stream's current thread, partitioning to a
// fresh thread first if the current one is full or committed.
func (s *Stream) Submit(task *Task) (<-chan struct{}, error) {
	s.mu.Lock()
	if !s.current.joinable() {
		pred := s.current
		pred.commit()
		s.sequence++
		s.current = newThread(s.device, s.capacity, pred, s.sequence)
	}
	current := s.current
	s.mu.Unlock()

	return current.push(task)
}

// Flush commits the current thread even if it has not reached capacity.
// Subsequent Submit calls transparently start a new partition.
func (s *Stream) Flush() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	current.commit()
}

// Close flushes any outstanding work. Uncaught failures during this
// best-effort final commit are logged and discarded.
func (s *Stream) Close() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("metal: stream close panicked", "error", r)
		}
	}()
	s.Flush()
}
