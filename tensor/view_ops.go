package tensor

import "fmt"

// Narrow adds start*stride[dim] to offset[dim] and sets size[dim] = length;
// never copies.
func (v *View) Narrow(dim, start, length int) (*View, error) {
	if dim < 0 || dim >= v.Rank() {
		return nil, fmt.Errorf("%w: narrow: dim %d out of range [0,%d)", ErrInvalidArgument, dim, v.Rank())
	}
	if start < 0 || length < 0 || start+length > v.sizes[dim] {
		return nil, fmt.Errorf("%w: narrow: start=%d length=%d exceeds size %d on dim %d", ErrInvalidArgument, start, length, v.sizes[dim], dim)
	}

	out := &View{
		dtype:     v.dtype,
		sizes:     v.Sizes(),
		strides:   v.Strides(),
		offsets:   append([]int(nil), v.offsets...),
		container: v.container,
	}
	out.offsets[dim] += start * out.strides[dim]
	out.sizes[dim] = length

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Slice is Narrow expressed with [low,high) bounds and an optional step.
// step must be 1 or -1 is not supported here; strided slicing beyond a
// contiguous narrow is not needed by any kernel wrapper in this package.
func (v *View) Slice(dim, low, high, step int) (*View, error) {
	if step != 1 {
		return nil, fmt.Errorf("%w: slice: only step=1 is supported", ErrInvalidArgument)
	}
	return v.Narrow(dim, low, high-low)
}

// Transpose permutes sizes/strides/offsets; never copies.
func (v *View) Transpose(perm ...int) (*View, error) {
	if len(perm) != v.Rank() {
		return nil, fmt.Errorf("%w: transpose: permutation length %d does not match rank %d", ErrInvalidArgument, len(perm), v.Rank())
	}
	seen := make([]bool, v.Rank())
	sizes := make([]int, v.Rank())
	strides := make([]int, v.Rank())
	offsets := make([]int, v.Rank())
	for i, p := range perm {
		if p < 0 || p >= v.Rank() || seen[p] {
			return nil, fmt.Errorf("%w: transpose: invalid permutation %v", ErrInvalidArgument, perm)
		}
		seen[p] = true
		sizes[i] = v.sizes[p]
		strides[i] = v.strides[p]
		offsets[i] = v.offsets[p]
	}

	return &View{dtype: v.dtype, sizes: sizes, strides: strides, offsets: offsets, container: v.container}, nil
}

// View succeeds iff the implied row-major walk over newShape matches a
// legal walk over the current strides; otherwise it fails with
// ErrNonContiguousView. At most one size may be -1 (deduced).
func (v *View) View(newShape ...int) (*View, error) {
	shape, err := deduceShape(newShape, v.Numel())
	if err != nil {
		return nil, err
	}

	if !v.isContiguous() {
		return nil, fmt.Errorf("%w: non-contiguous view", ErrNonContiguousView)
	}

	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != v.Numel() {
		return nil, fmt.Errorf("%w: view: shape %v does not match numel %d", ErrInvalidArgument, shape, v.Numel())
	}

	out := &View{
		dtype:     v.dtype,
		sizes:     shape,
		strides:   rowMajorStrides(shape),
		offsets:   make([]int, len(shape)),
		container: v.container,
	}
	// Preserve the byte position of element 0 by sliding the container
	// offset forward: row-major reshape of a contiguous view starts at
	// the same flat offset as the source view.
	base := v.byteOffset() / v.dtype.Size()
	if base != 0 {
		out.container = NewSliceContainer(v.container, base*v.dtype.Size(), v.container.ByteSize()-base*v.dtype.Size())
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// deduceShape resolves at most one -1 entry against numel.
func deduceShape(shape []int, numel int) ([]int, error) {
	out := append([]int(nil), shape...)
	deduceIdx := -1
	known := 1
	for i, s := range out {
		if s == -1 {
			if deduceIdx != -1 {
				return nil, fmt.Errorf("%w: at most one size may be -1", ErrInvalidArgument)
			}
			deduceIdx = i
			continue
		}
		if s <= 0 {
			return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidArgument, s)
		}
		known *= s
	}
	if deduceIdx != -1 {
		if known == 0 || numel%known != 0 {
			return nil, fmt.Errorf("%w: cannot deduce size: numel %d not divisible by %d", ErrInvalidArgument, numel, known)
		}
		out[deduceIdx] = numel / known
	}
	return out, nil
}

// isContiguous reports whether a row-major walk over v.sizes visits the
// same flat element order as the underlying strides, ignoring size-1 dims.
func (v *View) isContiguous() bool {
	expected := 1
	for i := v.Rank() - 1; i >= 0; i-- {
		if v.sizes[i] == 1 {
			continue
		}
		if v.strides[i] != expected {
			return false
		}
		expected *= v.sizes[i]
	}
	return true
}

// Contiguous reports whether the view can be reshaped without copying.
func (v *View) Contiguous() bool { return v.isContiguous() }

// Flatten collapses dims [from, to] (inclusive) into a single dimension,
// used by kernel wrappers that operate on a fixed rank and must fold
// leading batch dimensions down before dispatch and restore them after.
func (v *View) Flatten(from, to int) (*View, error) {
	if from < 0 || to >= v.Rank() || from > to {
		return nil, fmt.Errorf("%w: flatten: invalid range [%d,%d] for rank %d", ErrInvalidArgument, from, to, v.Rank())
	}
	for d := from; d < to; d++ {
		if v.strides[d] != v.sizes[d+1]*v.strides[d+1] {
			return nil, fmt.Errorf("%w: flatten: dims [%d,%d] are not contiguous", ErrNonContiguousView, from, to)
		}
	}

	newSizes := make([]int, 0, v.Rank()-(to-from))
	newStrides := make([]int, 0, cap(newSizes))
	newOffsets := make([]int, 0, cap(newSizes))
	flat := 1
	for d := from; d <= to; d++ {
		flat *= v.sizes[d]
	}
	for d := 0; d < from; d++ {
		newSizes = append(newSizes, v.sizes[d])
		newStrides = append(newStrides, v.strides[d])
		newOffsets = append(newOffsets, v.offsets[d])
	}
	newSizes = append(newSizes, flat)
	newStrides = append(newStrides, v.strides[to])
	newOffsets = append(newOffsets, 0)
	for d := to + 1; d < v.Rank(); d++ {
		newSizes = append(newSizes, v.sizes[d])
		newStrides = append(newStrides, v.strides[d])
		newOffsets = append(newOffsets, v.offsets[d])
	}

	return &View{dtype: v.dtype, sizes: newSizes, strides: newStrides, offsets: newOffsets, container: v.container}, nil
}
