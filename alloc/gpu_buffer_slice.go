package alloc

import (
	"fmt"

	"github.com/ybubnov/metalchat/tensor"
)

// GPUBufferSlice decorates an inner Allocator so that AllocateFrom hands
// out a zero-copy region of one pre-existing backing buffer instead of
// creating a new buffer per call. This is the mechanism the archive
// loader uses to partition a single mapped/GPU region into one container
// per named tensor (sequential bump allocation; slices are never freed
// individually, only the whole backing buffer is released).
type GPUBufferSlice struct {
	inner   Allocator
	backing GPUBuffer
	offset  int
}

// NewGPUBufferSlice decorates inner, sub-allocating out of backing.
func NewGPUBufferSlice(inner Allocator, backing GPUBuffer) *GPUBufferSlice {
	return &GPUBufferSlice{inner: inner, backing: backing}
}

func (a *GPUBufferSlice) Allocate(size int) (tensor.Container, error) {
	return a.inner.Allocate(size)
}

func (a *GPUBufferSlice) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	if a.offset+size > a.backing.ByteSize() {
		return nil, fmt.Errorf("%w: buffer slice: offset %d + size %d exceeds backing extent %d", ErrOutOfMemory, a.offset, size, a.backing.ByteSize())
	}

	region := tensor.NewSliceContainer(a.backing, a.offset, size)
	copy(region.Bytes(), src)
	a.offset += size
	return region, nil
}

// Offset returns the number of bytes already sub-allocated.
func (a *GPUBufferSlice) Offset() int { return a.offset }
