//go:build darwin && arm64

package metal

import (
	"fmt"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

func elementwiseGrid(numel, maxThreads int) (Dim3, Dim3) {
	group := NewDim3(defaultGroup1D(numel, maxThreads))
	grid := NewDim3(ceilDiv(numel, group.X) * group.X)
	return grid, group
}

func sameShape(a, b *tensor.View) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for i := 0; i < a.Rank(); i++ {
		if a.Size(i) != b.Size(i) {
			return false
		}
	}
	return true
}

// Hadamard computes a ⊙ b elementwise; a and b must share an identical
// shape and numel.
func (r *Runtime) Hadamard(a, b *future.Tensor) (*future.Tensor, error) {
	av, bv := a.GetNoWait(), b.GetNoWait()
	if !sameShape(av, bv) {
		return nil, fmt.Errorf("%w: hadamard: shape mismatch %v vs %v", tensor.ErrInvalidArgument, av.Sizes(), bv.Sizes())
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	max, err := r.maxThreadsFor("hadamard_" + av.DType().String())
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask("hadamard_"+av.DType().String(), grid, group, TensorArg(out), TensorArg(av), TensorArg(bv))
	return r.dispatch(out, task)
}

// HadamardBroadcast multiplies (D0,D1,1) by (D0,D1,G), broadcasting the
// last dim of a across b's groups — used to dequantize int8 weights by
// per-group float scales. The output dtype is chosen by the caller.
func (r *Runtime) HadamardBroadcast(a, b *future.Tensor, outDType tensor.DType) (*future.Tensor, error) {
	av, bv := a.GetNoWait(), b.GetNoWait()
	if av.Rank() != 3 || bv.Rank() != 3 || av.Size(2) != 1 {
		return nil, fmt.Errorf("%w: hadamard_broadcast: expected (D0,D1,1) x (D0,D1,G)", tensor.ErrInvalidArgument)
	}
	if av.Size(0) != bv.Size(0) || av.Size(1) != bv.Size(1) {
		return nil, fmt.Errorf("%w: hadamard_broadcast: leading dims mismatch", tensor.ErrInvalidArgument)
	}
	out, err := r.allocOutput(outDType, bv.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := fmt.Sprintf("hadamard_broadcast_%s_%s", av.DType().String(), outDType.String())
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(bv.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(bv))
	return r.dispatch(out, task)
}

// ScalarMul multiplies every element of a by scalar.
func (r *Runtime) ScalarMul(a *future.Tensor, scalar float32) (*future.Tensor, error) {
	av := a.GetNoWait()
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "scalar_mul_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), ScalarArg(scalarBytesFor(av.DType(), scalar)))
	return r.dispatch(out, task)
}

func (r *Runtime) binaryElementwise(op string, a, b *future.Tensor) (*future.Tensor, error) {
	av, bv := a.GetNoWait(), b.GetNoWait()
	if !sameShape(av, bv) {
		return nil, fmt.Errorf("%w: %s: shape mismatch %v vs %v", tensor.ErrInvalidArgument, op, av.Sizes(), bv.Sizes())
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := op + "_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(bv))
	return r.dispatch(out, task)
}

// Add computes a + b elementwise over identically-shaped tensors.
func (r *Runtime) Add(a, b *future.Tensor) (*future.Tensor, error) { return r.binaryElementwise("add", a, b) }

// Sub computes a - b elementwise over identically-shaped tensors.
func (r *Runtime) Sub(a, b *future.Tensor) (*future.Tensor, error) { return r.binaryElementwise("sub", a, b) }

// Div computes a / b elementwise over identically-shaped tensors.
func (r *Runtime) Div(a, b *future.Tensor) (*future.Tensor, error) { return r.binaryElementwise("div", a, b) }

// Add2 adds b, shaped (M,N), broadcast across every leading dim of a,
// shaped (...,M,N).
func (r *Runtime) Add2(a, b *future.Tensor) (*future.Tensor, error) {
	av, bv := a.GetNoWait(), b.GetNoWait()
	if bv.Rank() != 2 {
		return nil, fmt.Errorf("%w: add2: second operand must be rank 2", tensor.ErrInvalidArgument)
	}
	if av.Rank() < 2 || av.Size(av.Rank()-2) != bv.Size(0) || av.Size(av.Rank()-1) != bv.Size(1) {
		return nil, fmt.Errorf("%w: add2: trailing dims of %v do not match %v", tensor.ErrInvalidArgument, av.Sizes(), bv.Sizes())
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "add2_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(bv))
	return r.dispatch(out, task)
}
