package kvcache

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// fakeRuntime executes every dispatch synchronously on the host against
// tensor.NewRandomContainer-backed views, so the cache's roll/write
// control flow can be exercised without a GPU device.
type fakeRuntime struct{}

func (fakeRuntime) Zeros(dtype tensor.DType, sizes ...int) (*future.Tensor, error) {
	n := 1
	for _, s := range sizes {
		n *= s
	}
	c := tensor.NewRandomContainer(n * dtype.Size())
	return future.New(tensor.New(c, dtype, sizes...)), nil
}

func (fakeRuntime) Copy(dst, src *future.Tensor) (*future.Tensor, error) {
	dv, sv := dst.GetNoWait(), src.GetNoWait()
	copy(dv.Bytes(), sv.Bytes()[:dv.Numel()*dv.DType().Size()])
	return future.New(dv), nil
}

func (fakeRuntime) Roll(a *future.Tensor, shift, dim int) (*future.Tensor, error) {
	av := a.GetNoWait()
	n := av.Size(dim)
	shift = ((shift % n) + n) % n

	c := tensor.NewRandomContainer(av.Numel() * av.DType().Size())
	out := tensor.New(c, av.DType(), av.Sizes()...)

	elemSize := av.DType().Size()
	rowSize := av.Numel() / n * elemSize
	src := av.Bytes()
	dst := out.Bytes()
	for i := 0; i < n; i++ {
		j := ((i + shift) % n)
		copy(dst[j*rowSize:(j+1)*rowSize], src[i*rowSize:(i+1)*rowSize])
	}
	return future.New(out), nil
}

func (fakeRuntime) UploadF32(data []float32, sizes ...int) (*future.Tensor, error) {
	c := tensor.NewRandomContainer(len(data) * 4)
	v := tensor.New(c, tensor.DTypeF32, sizes...)
	bytes := v.Bytes()
	for i, f := range data {
		b := float32Bytes(f)
		copy(bytes[i*4:], b)
	}
	return future.New(v), nil
}

func float32Bytes(f float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
	return b
}

func TestSinkPrefixLen(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 8: 3, 1024: 10}
	for size, want := range cases {
		if got := sinkPrefixLen(size); got != want {
			t.Fatalf("sinkPrefixLen(%d) = %d, want %d", size, got, want)
		}
	}
}

func newEntry(t *testing.T, batch, length, heads, dim int, fill float32) *future.Tensor {
	t.Helper()
	n := batch * length * heads * dim
	c := tensor.NewRandomContainer(n * 4)
	v := tensor.New(c, tensor.DTypeF32, batch, length, heads, dim)
	data := make([]float32, n)
	for i := range data {
		data[i] = fill
	}
	bytes := v.Bytes()
	for i, f := range data {
		copy(bytes[i*4:], float32Bytes(f))
	}
	return future.New(v)
}

func TestStepWritesWithinCapacity(t *testing.T) {
	c, err := New(fakeRuntime{}, 1, 8, 1, 4, tensor.DTypeF32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	k := newEntry(t, 1, 2, 1, 4, 1)
	v := newEntry(t, 1, 2, 1, 4, 1)
	step, err := c.Step(k, v)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.EndPos != 2 {
		t.Fatalf("EndPos = %d, want 2", step.EndPos)
	}
	if step.Mask == nil {
		t.Fatalf("expected a causal mask for L=2")
	}
}

func TestStepBuildsMaskWhenLengthGreaterThanOne(t *testing.T) {
	c, err := New(fakeRuntime{}, 1, 8, 1, 4, tensor.DTypeF32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k := newEntry(t, 1, 3, 1, 4, 1)
	v := newEntry(t, 1, 3, 1, 4, 1)
	step, err := c.Step(k, v)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.Mask == nil {
		t.Fatalf("expected a causal mask for L=3")
	}
}

func TestStepRollsPastCapacity(t *testing.T) {
	c, err := New(fakeRuntime{}, 1, 4, 1, 1, tensor.DTypeF32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// sinkLen(4) == 2; fill to capacity, then one more token must roll.
	for i := 0; i < 2; i++ {
		fill := float32(i + 1)
		if _, err := c.Step(newEntry(t, 1, 2, 1, 1, fill), newEntry(t, 1, 2, 1, 1, fill)); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if c.startPos != 4 {
		t.Fatalf("startPos = %d, want 4 (cache full)", c.startPos)
	}

	step, err := c.Step(newEntry(t, 1, 1, 1, 1, 9), newEntry(t, 1, 1, 1, 1, 9))
	if err != nil {
		t.Fatalf("Step after full: %v", err)
	}
	// After rolling by length=1: startPos' = cacheSize-1 = 3, then write 1 -> endPos=4.
	if step.EndPos != 4 {
		t.Fatalf("EndPos = %d, want 4", step.EndPos)
	}

	sunk, err := step.Keys.Narrow(1, 0, c.sinkLen)
	if err != nil {
		t.Fatalf("Narrow sink: %v", err)
	}
	sv := sunk.GetNoWait()
	got := math.Float32frombits(binary.LittleEndian.Uint32(sv.Bytes()[:4]))
	if got != 1 {
		t.Fatalf("sink prefix first element = %v, want 1 (the value written before the cache ever rolled)", got)
	}
}

func TestStepRejectsEntryLargerThanUsableCapacity(t *testing.T) {
	c, err := New(fakeRuntime{}, 1, 4, 1, 1, tensor.DTypeF32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Step(newEntry(t, 1, 10, 1, 1, 1), newEntry(t, 1, 10, 1, 1, 1))
	if err != ErrEntryTooLarge {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
}
