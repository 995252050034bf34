package tensor

import "fmt"

// Container owns a byte range backing one or more tensor views. Concrete
// storage modes: random, vector, scalar, gpu-buffer, file-mapped. Each
// mode gets its own concrete type, rather than a class hierarchy, the
// same way ml/backend/ggml/tensor.go wraps a single C type directly.
type Container interface {
	// ByteSize returns the usable extent of the container in bytes.
	ByteSize() int

	// Bytes returns the CPU-visible bytes backing this container. Every
	// container mode is required to support this (GPU buffers are
	// unified-memory and therefore CPU-visible too).
	Bytes() []byte

	// Offset returns this container's byte offset within a larger backing
	// region, or 0 if it owns its region outright. Slices produced by
	// allocator decorators (gpu_heap sub-allocation, archive region
	// partitioning) report a non-zero offset here.
	Offset() int
}

// Pinner is implemented by containers that keep auxiliary resources alive
// for their lifetime — e.g. a gpu-buffer container retaining the
// memory-mapped archive file it was constructed from. Pin is a no-op if
// aux is nil.
type Pinner interface {
	Pin(aux any)
}

// randomContainer is process-heap memory exclusively owned by its
// container ("random" mode).
type randomContainer struct {
	data []byte
}

// NewRandomContainer allocates size bytes of process heap.
func NewRandomContainer(size int) Container {
	return &randomContainer{data: make([]byte, size)}
}

// NewRandomContainerFrom allocates size bytes and copies src into it.
func NewRandomContainerFrom(src []byte, size int) Container {
	data := make([]byte, size)
	copy(data, src)
	return &randomContainer{data: data}
}

func (c *randomContainer) ByteSize() int  { return len(c.data) }
func (c *randomContainer) Bytes() []byte  { return c.data }
func (c *randomContainer) Offset() int    { return 0 }

// vectorContainer is a heap-backed dynamic array, exclusively owned
// ("vector" mode). It differs from randomContainer in tracking a logical
// length that Append grows up to the fixed capacity it was created with
// (e.g. a rolling output-id buffer in the decoder loop); it is never
// reallocated.
type vectorContainer struct {
	data []byte
}

func NewVectorContainer(capacity int) Container {
	return &vectorContainer{data: make([]byte, 0, capacity)}
}

func (c *vectorContainer) ByteSize() int { return cap(c.data) }
func (c *vectorContainer) Bytes() []byte { return c.data[:cap(c.data)] }
func (c *vectorContainer) Offset() int   { return 0 }

// Append grows the logical length of the vector, panicking if it would
// exceed the backing capacity (vector containers never silently move).
func (c *vectorContainer) Append(b []byte) {
	if len(c.data)+len(b) > cap(c.data) {
		panic(fmt.Sprintf("tensor: vector container overflow (cap=%d len=%d append=%d)", cap(c.data), len(c.data), len(b)))
	}
	c.data = append(c.data, b...)
}

// scalarContainer is an inline single element ("scalar" mode).
type scalarContainer struct {
	data [8]byte
	size int
}

func NewScalarContainer(size int) Container {
	if size > 8 {
		panic("tensor: scalar container cannot exceed 8 bytes")
	}
	return &scalarContainer{size: size}
}

func (c *scalarContainer) ByteSize() int { return c.size }
func (c *scalarContainer) Bytes() []byte { return c.data[:c.size] }
func (c *scalarContainer) Offset() int   { return 0 }

// sliceContainer is a zero-copy view into a larger Container — the
// mechanism narrow/slice use to avoid copying, and the mechanism the
// archive loader uses to hand out one region per named tensor out of a
// single mapped/gpu buffer.
type sliceContainer struct {
	parent Container
	offset int
	size   int
}

// NewSliceContainer returns a Container aliasing parent[offset:offset+size].
func NewSliceContainer(parent Container, offset, size int) Container {
	if offset < 0 || size < 0 || offset+size > parent.ByteSize() {
		panic(fmt.Sprintf("tensor: slice container out of range (parent=%d offset=%d size=%d)", parent.ByteSize(), offset, size))
	}
	return &sliceContainer{parent: parent, offset: offset, size: size}
}

func (c *sliceContainer) ByteSize() int { return c.size }
func (c *sliceContainer) Bytes() []byte { return c.parent.Bytes()[c.offset : c.offset+c.size] }
func (c *sliceContainer) Offset() int   { return c.parent.Offset() + c.offset }

// Unwrap returns the container this slice was taken from, letting callers
// that need the root storage (e.g. binding a GPU buffer handle to a
// kernel argument) walk past any number of chained slices.
func (c *sliceContainer) Unwrap() Container { return c.parent }
