package tensor

import "fmt"

// MaxRank bounds the rank of any View. A runtime rank with a compile-time
// max is used rather than a const-generic rank, since model tensors here
// never exceed rank 4 (batch, seq, heads, head_dim) and kernel wrappers
// flatten higher ranks down before dispatch.
const MaxRank = 8

// Layout is the packed sizes/strides/offsets struct passed verbatim to
// kernels as argument encoding. Fields are int32 to match typical GPU
// shader argument widths.
type Layout struct {
	Rank    int32
	Sizes   [MaxRank]int32
	Strides [MaxRank]int32
	Offsets [MaxRank]int32
}

// View is a shape/stride/offset descriptor over a shared Container. Views
// alias their container's bytes; callers are responsible for ordering
// writes (see future.Tensor).
type View struct {
	dtype     DType
	sizes     []int
	strides   []int
	offsets   []int
	container Container
}

// New constructs a tensor from sizes alone with row-major strides and zero
// offsets.
func New(container Container, dtype DType, sizes ...int) *View {
	strides := rowMajorStrides(sizes)
	return &View{
		dtype:     dtype,
		sizes:     append([]int(nil), sizes...),
		strides:   strides,
		offsets:   make([]int, len(sizes)),
		container: container,
	}
}

func rowMajorStrides(sizes []int) []int {
	strides := make([]int, len(sizes))
	acc := 1
	for i := len(sizes) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= sizes[i]
	}
	return strides
}

// Rank returns the number of dimensions.
func (v *View) Rank() int { return len(v.sizes) }

// DType returns the element type.
func (v *View) DType() DType { return v.dtype }

// Container returns the shared backing container.
func (v *View) Container() Container { return v.container }

// Size returns sizes[dim].
func (v *View) Size(dim int) int { return v.sizes[dim] }

// Stride returns strides[dim], in units of element T.
func (v *View) Stride(dim int) int { return v.strides[dim] }

// Offset returns offsets[dim], in units of element T.
func (v *View) Offset(dim int) int { return v.offsets[dim] }

// Sizes returns a copy of the size vector.
func (v *View) Sizes() []int { return append([]int(nil), v.sizes...) }

// Strides returns a copy of the stride vector.
func (v *View) Strides() []int { return append([]int(nil), v.strides...) }

// Numel returns the product of sizes.
func (v *View) Numel() int {
	n := 1
	for _, s := range v.sizes {
		n *= s
	}
	return n
}

// usableExtent returns the maximum element index (+1) reachable through
// this view's strides/offsets/sizes, used to validate the invariant that
// strides[i]*(sizes[i]-1) + offsets[i] never exceeds the container's
// usable extent (in elements).
func (v *View) usableExtent() int {
	extent := 0
	for i := range v.sizes {
		reach := v.strides[i]*(v.sizes[i]-1) + v.offsets[i]
		if reach+1 > extent {
			extent = reach + 1
		}
	}
	return extent
}

// Validate checks the container-extent invariant; Narrow and View call
// it before returning, while New, Transpose and Flatten do not.
func (v *View) Validate() error {
	size := v.container.ByteSize() / v.dtype.Size()
	if v.usableExtent() > size {
		return fmt.Errorf("%w: view reaches byte %d beyond container extent %d", ErrInvalidArgument, v.usableExtent()*v.dtype.Size(), v.container.ByteSize())
	}
	return nil
}

// Layout packs sizes/strides/offsets for kernel argument encoding.
func (v *View) Layout() Layout {
	var l Layout
	l.Rank = int32(len(v.sizes))
	for i := range v.sizes {
		l.Sizes[i] = int32(v.sizes[i])
		l.Strides[i] = int32(v.strides[i])
		l.Offsets[i] = int32(v.offsets[i])
	}
	return l
}

// byteOffset returns the byte offset of index 0 of this view within its
// container, accounting for the per-dim offsets.
func (v *View) byteOffset() int {
	off := 0
	for i := range v.offsets {
		off += v.offsets[i]
	}
	return off * v.dtype.Size()
}

// Bytes returns the raw bytes backing this view, starting at byteOffset
// and running to the end of the container.
// Note this does not compact non-contiguous views — callers that need
// packed bytes must first make the view contiguous via a copy kernel.
func (v *View) Bytes() []byte {
	b := v.container.Bytes()
	start := v.byteOffset()
	end := v.container.ByteSize()
	return b[start:end]
}
