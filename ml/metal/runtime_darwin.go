//go:build darwin && arm64

package metal

import (
	"fmt"

	"github.com/ybubnov/metalchat/alloc"
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// Runtime is the host-side entry point every kernel wrapper dispatches
// through: a device, the single stream its tasks are submitted on, and
// the allocator new outputs are drawn from.
type Runtime struct {
	Device *Device
	Stream *Stream
	Alloc  alloc.Allocator
}

// NewRuntime binds a stream and an output allocator to device. Kernel
// wrappers in this package are all methods of (or plain functions taking)
// *Runtime.
func NewRuntime(device *Device, stream *Stream, allocator alloc.Allocator) *Runtime {
	return &Runtime{Device: device, Stream: stream, Alloc: allocator}
}

// allocOutput reserves a fresh, uninitialized view of the given shape.
func (r *Runtime) allocOutput(dtype tensor.DType, sizes ...int) (*tensor.View, error) {
	numel := 1
	for _, s := range sizes {
		numel *= s
	}
	c, err := r.Alloc.Allocate(numel * dtype.Size())
	if err != nil {
		return nil, err
	}
	return tensor.New(c, dtype, sizes...), nil
}

// Zeros allocates a fresh, ready future tensor of the given shape. Every
// concrete allocator in this package hands back freshly made([]byte, n)
// or freshly created device memory, both zero-filled, so no explicit
// clear kernel is dispatched.
func (r *Runtime) Zeros(dtype tensor.DType, sizes ...int) (*future.Tensor, error) {
	v, err := r.allocOutput(dtype, sizes...)
	if err != nil {
		return nil, err
	}
	return future.New(v), nil
}

// UploadF32 copies data to the device and wraps it as a ready future
// tensor of the given shape, used by callers outside this package (e.g.
// a sink-cache mask builder) that need to hand the GPU a host-computed
// table without a kernel dispatch.
func (r *Runtime) UploadF32(data []float32, sizes ...int) (*future.Tensor, error) {
	v, err := r.uploadF32(data, sizes...)
	if err != nil {
		return nil, err
	}
	return future.New(v), nil
}

// UploadI32 copies data to the device and wraps it as a ready future
// tensor of the given shape.
func (r *Runtime) UploadI32(data []int32, sizes ...int) (*future.Tensor, error) {
	bytes := make([]byte, len(data)*4)
	for i, v := range data {
		copy(bytes[i*4:], int32Bytes(v))
	}
	c, err := r.Alloc.AllocateFrom(bytes, len(bytes))
	if err != nil {
		return nil, err
	}
	return future.New(tensor.New(c, tensor.DTypeI32, sizes...)), nil
}

// dispatch submits task and returns a future.Tensor over out whose wait
// closure blocks on the task's command buffer completion. Inputs are read
// by their bound Layout/Container at encode time, not wait time: ordering
// across tasks on the same Stream is guaranteed by Metal's in-queue
// command buffer ordering, and across partitions by the MTLEvent
// signal/wait chain Stream.Submit already maintains, so a kernel wrapper
// never needs to Wait() on its own inputs before encoding the next task.
func (r *Runtime) dispatch(out *tensor.View, task *Task) (*future.Tensor, error) {
	done, err := r.Stream.Submit(task)
	if err != nil {
		return nil, err
	}
	return future.NewTask(out, func() error {
		<-done
		return nil
	}), nil
}

// defaultGroup1D picks a 1-D threadgroup size not exceeding max and not
// exceeding n, rounded down to a multiple of 32 (one SIMD group) when
// possible.
func defaultGroup1D(n, max int) int {
	if n < max {
		if n < 1 {
			return 1
		}
		return n
	}
	g := max - max%32
	if g == 0 {
		g = max
	}
	return g
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// maxThreadsFor returns the compiled pipeline's maxTotalThreadsPerThreadgroup
// for name, used by wrappers that size their own threadgroup rather than
// relying on ValidateGrid to reject an oversized one after the fact.
func (r *Runtime) maxThreadsFor(name string) (int, error) {
	if r.Device.lib == nil {
		return 0, fmt.Errorf("metal: no kernel library loaded; call Device.Library first")
	}
	kf, err := r.Device.lib.lookup(name)
	if err != nil {
		return 0, err
	}
	return kf.maxThreadsPerGroup(), nil
}
