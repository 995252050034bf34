package alloc

import "github.com/ybubnov/metalchat/tensor"

// Allocator allocates tensor.Container regions, uninitialized or
// initialized from existing bytes. Every concrete allocator in this
// package implements it; decorators hold an inner Allocator and change
// only the allocation path their name describes.
type Allocator interface {
	// Allocate reserves size bytes of uninitialized storage.
	Allocate(size int) (tensor.Container, error)

	// AllocateFrom reserves size bytes and initializes them from src.
	// len(src) may be less than size; the remainder is left uninitialized.
	AllocateFrom(src []byte, size int) (tensor.Container, error)
}

// GPUBuffer is a tensor.Container that also owns a releasable GPU
// resource. Release must be idempotent.
type GPUBuffer interface {
	tensor.Container
	Release()
}

// Device is the minimal hardware contract the allocator stack needs from
// an accelerator. ml/metal.Device satisfies it; keeping the dependency
// direction this way lets alloc be imported by ml/metal without a cycle.
type Device interface {
	// NewBuffer allocates a tracked, CPU-visible buffer of size bytes.
	NewBuffer(size int) (GPUBuffer, error)

	// NewBufferFrom allocates a tracked buffer and copies src into it.
	NewBufferFrom(src []byte, size int) (GPUBuffer, error)

	// WrapNoCopy wraps caller-owned memory as a GPU buffer without
	// copying. The caller remains responsible for the memory's lifetime.
	WrapNoCopy(ptr []byte) (GPUBuffer, error)

	// MakeResident adds buffers to the device's residency set.
	MakeResident(bufs ...GPUBuffer) error

	// EndResidency removes buffers from the device's residency set.
	EndResidency(bufs ...GPUBuffer) error
}
