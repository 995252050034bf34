// Package alloc provides the decorator stack used to allocate tensor
// containers on a GPU-resident accelerator thread. Decorators compose the
// same way os.File wrapping composes in the standard library: each layer
// holds an inner Allocator and only overrides the allocation path it
// changes, delegating everything else.
package alloc

import "errors"

// ErrOutOfMemory is returned by fixed-capacity allocators (GPUHeap) once
// the backing region cannot satisfy a request.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// ErrClosed is returned by GPUResident's Allocate and AllocateFrom once
// Detach has committed its residency set.
var ErrClosed = errors.New("alloc: allocator closed")

// ErrCapacityExceeded is returned by GPUResident when an allocation would
// add more buffers to its residency set than the cap it was constructed
// with allows.
var ErrCapacityExceeded = errors.New("alloc: capacity_exceeded")
