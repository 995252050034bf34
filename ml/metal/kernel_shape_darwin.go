//go:build darwin && arm64

package metal

import (
	"fmt"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// Copy writes src into dst, which may be a narrowed destination view;
// numel must match after flattening both sides to rank 2.
func (r *Runtime) Copy(dst, src *future.Tensor) (*future.Tensor, error) {
	dv, sv := dst.GetNoWait(), src.GetNoWait()
	if dv.Numel() != sv.Numel() {
		return nil, fmt.Errorf("%w: copy: numel mismatch %d vs %d", tensor.ErrInvalidArgument, dv.Numel(), sv.Numel())
	}
	kernel := "copy_" + dv.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(dv.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(dv), TensorArg(sv))
	return r.dispatch(dv, task)
}

// Scatter sets the cells of a selected by mask to value, elementwise.
func (r *Runtime) Scatter(a, mask *future.Tensor, value float32) (*future.Tensor, error) {
	av, mv := a.GetNoWait(), mask.GetNoWait()
	if !sameShape(av, mv) {
		return nil, fmt.Errorf("%w: scatter: mask shape %v does not match %v", tensor.ErrInvalidArgument, mv.Sizes(), av.Sizes())
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "scatter_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(mv), ScalarArg(scalarBytesFor(av.DType(), value)))
	return r.dispatch(out, task)
}

// Gather selects, for each row, the J values named by int32 indices.
func (r *Runtime) Gather(values, indices *future.Tensor) (*future.Tensor, error) {
	vv, iv := values.GetNoWait(), indices.GetNoWait()
	if vv.Rank() != 2 || iv.Rank() != 2 || vv.Size(0) != iv.Size(0) {
		return nil, fmt.Errorf("%w: gather: expected (B,K) values and (B,J) indices", tensor.ErrInvalidArgument)
	}
	out, err := r.allocOutput(vv.DType(), iv.Size(0), iv.Size(1))
	if err != nil {
		return nil, err
	}
	kernel := "gather_" + vv.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(out.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(vv), TensorArg(iv))
	return r.dispatch(out, task)
}

// Roll shifts a along dim by shift, normalizing a negative shift into
// [0, size(dim)). It dispatches one thread per element over a's own
// layout, passing shift and dim as scalars; a is not flattened to a
// rank-1 view first.
func (r *Runtime) Roll(a *future.Tensor, shift, dim int) (*future.Tensor, error) {
	av := a.GetNoWait()
	if dim < 0 || dim >= av.Rank() {
		return nil, fmt.Errorf("%w: roll: dim %d out of range", tensor.ErrInvalidArgument, dim)
	}
	n := av.Size(dim)
	shift = ((shift % n) + n) % n

	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "roll_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	shiftBytes := int32Bytes(int32(shift))
	dimBytes := int32Bytes(int32(dim))
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), ScalarArg(shiftBytes), ScalarArg(dimBytes))
	return r.dispatch(out, task)
}

func int32Bytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
