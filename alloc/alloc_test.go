package alloc

import (
	"errors"
	"testing"

	"github.com/ybubnov/metalchat/tensor"
)

// fakeDevice backs GPUBuffer allocations with plain process memory so the
// decorator stack can be exercised without a real accelerator.
type fakeDevice struct {
	residentCalls int
	endCalls      int
}

type fakeBuffer struct {
	tensor.Container
	released bool
}

func (b *fakeBuffer) Release() { b.released = true }

func (d *fakeDevice) NewBuffer(size int) (GPUBuffer, error) {
	return &fakeBuffer{Container: tensor.NewRandomContainer(size)}, nil
}

func (d *fakeDevice) NewBufferFrom(src []byte, size int) (GPUBuffer, error) {
	return &fakeBuffer{Container: tensor.NewRandomContainerFrom(src, size)}, nil
}

func (d *fakeDevice) WrapNoCopy(ptr []byte) (GPUBuffer, error) {
	return &fakeBuffer{Container: tensor.NewSliceContainer(tensor.NewRandomContainerFrom(ptr, len(ptr)), 0, len(ptr))}, nil
}

func (d *fakeDevice) MakeResident(bufs ...GPUBuffer) error {
	d.residentCalls += len(bufs)
	return nil
}

func (d *fakeDevice) EndResidency(bufs ...GPUBuffer) error {
	d.endCalls += len(bufs)
	return nil
}

func TestRandomAllocate(t *testing.T) {
	a := NewRandom()
	c, err := a.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if c.ByteSize() != 16 {
		t.Fatalf("ByteSize = %d, want 16", c.ByteSize())
	}
}

func TestGPUResidentTracksAndDetaches(t *testing.T) {
	dev := &fakeDevice{}
	base := NewGPUMemory(dev)
	res := NewGPUResident(base, dev, 0)

	if _, err := res.Allocate(8); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := res.Allocate(8); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if dev.residentCalls != 2 {
		t.Fatalf("residentCalls = %d, want 2", dev.residentCalls)
	}

	if err := res.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if dev.endCalls != 2 {
		t.Fatalf("endCalls = %d, want 2", dev.endCalls)
	}

	// A second Detach with nothing tracked since must be a no-op.
	if err := res.Detach(); err != nil {
		t.Fatalf("second Detach: %v", err)
	}
	if dev.endCalls != 2 {
		t.Fatalf("endCalls after no-op Detach = %d, want 2", dev.endCalls)
	}
}

func TestGPUResidentCapacityExceeded(t *testing.T) {
	dev := &fakeDevice{}
	base := NewGPUMemory(dev)
	res := NewGPUResident(base, dev, 1)

	if _, err := res.Allocate(8); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := res.Allocate(8); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Allocate past capacity: err = %v, want ErrCapacityExceeded", err)
	}
	if dev.residentCalls != 1 {
		t.Fatalf("residentCalls = %d, want 1", dev.residentCalls)
	}
}

func TestGPUResidentForbidsAllocationAfterDetach(t *testing.T) {
	dev := &fakeDevice{}
	base := NewGPUMemory(dev)
	res := NewGPUResident(base, dev, 0)

	if _, err := res.Allocate(8); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := res.Detach(); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if _, err := res.Allocate(8); !errors.Is(err, ErrClosed) {
		t.Fatalf("Allocate after Detach: err = %v, want ErrClosed", err)
	}
}

func TestGPUHeapExhaustion(t *testing.T) {
	dev := &fakeDevice{}
	heap, err := NewGPUHeap(dev, 32)
	if err != nil {
		t.Fatalf("NewGPUHeap: %v", err)
	}

	if _, err := heap.Allocate(20); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := heap.Allocate(20); err == nil {
		t.Fatalf("expected ErrOutOfMemory on overflow")
	}
}

func TestGPUBufferSliceSequentialOffsets(t *testing.T) {
	dev := &fakeDevice{}
	backing, err := dev.NewBuffer(64)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	base := NewRandom()
	slicer := NewGPUBufferSlice(base, backing)

	first, err := slicer.AllocateFrom([]byte{1, 2, 3, 4}, 4)
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	if first.Offset() != 0 {
		t.Fatalf("first.Offset() = %d, want 0", first.Offset())
	}

	second, err := slicer.AllocateFrom([]byte{5, 6}, 2)
	if err != nil {
		t.Fatalf("AllocateFrom: %v", err)
	}
	if second.Offset() != 4 {
		t.Fatalf("second.Offset() = %d, want 4", second.Offset())
	}

	if _, err := slicer.AllocateFrom(make([]byte, 64), 64); err == nil {
		t.Fatalf("expected ErrOutOfMemory past backing extent")
	}
}

func TestPolymorphicSet(t *testing.T) {
	dev := &fakeDevice{}
	p := NewPolymorphic(NewRandom())

	if _, err := p.Allocate(4); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	p.Set(NewGPUMemory(dev))
	c, err := p.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate after Set: %v", err)
	}
	if _, ok := c.(GPUBuffer); !ok {
		t.Fatalf("expected GPUBuffer after switching to GPUMemory")
	}
}

func TestRebindCountsInElements(t *testing.T) {
	r := NewRebind[float32](NewRandom())
	c, err := r.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if c.ByteSize() != 16 {
		t.Fatalf("ByteSize = %d, want 16 (4 float32)", c.ByteSize())
	}
}
