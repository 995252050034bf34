package metal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/ybubnov/metalchat/tensor"
)

// Arg is one bound kernel argument. A tensor argument is encoded as its
// packed layout followed by its backing buffer; a scalar argument is
// inlined directly.
type Arg struct {
	scalar []byte
	view   *tensor.View
}

// ScalarArg inlines b directly into the argument table.
func ScalarArg(b []byte) Arg { return Arg{scalar: b} }

// TensorArg binds v's layout and backing buffer.
func TensorArg(v *tensor.View) Arg { return Arg{view: v} }

// IsTensor reports whether this argument binds a tensor view.
func (a Arg) IsTensor() bool { return a.view != nil }

// Task names a kernel, a grid and threadgroup size, and its bound
// arguments. A Task may be submitted to a Stream exactly once.
type Task struct {
	Kernel string
	Grid   Dim3
	Group  Dim3
	Args   []Arg

	invoked bool
}

// NewTask builds a task for kernel with the given grid/group sizes and
// bound arguments, in encoding order.
func NewTask(kernel string, grid, group Dim3, args ...Arg) *Task {
	return &Task{Kernel: kernel, Grid: grid, Group: group, Args: args}
}

// BindFront returns a new, not-yet-submitted task with args prepended.
func (t *Task) BindFront(args ...Arg) *Task {
	merged := append(append([]Arg(nil), args...), t.Args...)
	return &Task{Kernel: t.Kernel, Grid: t.Grid, Group: t.Group, Args: merged}
}

// BindBack returns a new, not-yet-submitted task with args appended.
func (t *Task) BindBack(args ...Arg) *Task {
	merged := append(append([]Arg(nil), t.Args...), args...)
	return &Task{Kernel: t.Kernel, Grid: t.Grid, Group: t.Group, Args: merged}
}

// float32Bytes little-endian encodes f as the 4-byte IEEE-754 scalar
// argument most kernels expect.
func float32Bytes(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

// scalarBytesFor encodes f to match dtype's element width, so a scalar
// argument bound alongside a tensor argument of that dtype lands in the
// shader's constant buffer at the same width the buffer's own elements
// use. Only F16 narrows from the default float32 encoding today; every
// other recognized dtype takes its scalar arguments as float32 regardless
// of storage width (matching the accumulate-in-float convention the
// kernel table's rmsnorm/rope host wrappers already rely on). Mirrors
// x/ml/backend/mlx's Fromfloat32/Frombits round trip for moving a Go
// float32 in and out of the packed 16-bit representation.
func scalarBytesFor(dtype tensor.DType, f float32) []byte {
	if dtype != tensor.DTypeF16 {
		return float32Bytes(f)
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(float16.Fromfloat32(f)))
	return b
}

// ValidateGrid enforces threadgroup.Volume() <= maxThreadsPerGroup and
// grid.Volume() >= threadgroup.Volume().
func ValidateGrid(grid, group Dim3, maxThreadsPerGroup int) error {
	if group.Volume() > maxThreadsPerGroup {
		return fmt.Errorf("%w: threadgroup volume %d exceeds device max %d", ErrInvalidGrid, group.Volume(), maxThreadsPerGroup)
	}
	if grid.Volume() < group.Volume() {
		return fmt.Errorf("%w: grid volume %d smaller than threadgroup volume %d", ErrInvalidGrid, grid.Volume(), group.Volume())
	}
	return nil
}
