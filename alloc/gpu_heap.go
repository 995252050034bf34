package alloc

import (
	"fmt"
	"sync"

	"github.com/ybubnov/metalchat/tensor"
)

// GPUHeap pre-allocates a fixed-size, CPU/GPU shared region and makes it
// resident once. All subsequent allocations bump-allocate out of that
// region instead of creating a new tracked buffer per call; when the
// heap cannot satisfy a request it fails with ErrOutOfMemory rather than
// growing, since growing would require re-wiring the whole region.
type GPUHeap struct {
	device Device

	mu     sync.Mutex
	region GPUBuffer
	offset int
}

// NewGPUHeap allocates capacity bytes on device and makes them resident.
func NewGPUHeap(device Device, capacity int) (*GPUHeap, error) {
	region, err := device.NewBuffer(capacity)
	if err != nil {
		return nil, fmt.Errorf("alloc: gpu heap: %w", err)
	}
	if err := device.MakeResident(region); err != nil {
		return nil, fmt.Errorf("alloc: gpu heap: %w", err)
	}
	return &GPUHeap{device: device, region: region}, nil
}

func (h *GPUHeap) Allocate(size int) (tensor.Container, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offset+size > h.region.ByteSize() {
		return nil, fmt.Errorf("%w: gpu heap: offset %d + size %d exceeds capacity %d", ErrOutOfMemory, h.offset, size, h.region.ByteSize())
	}
	region := tensor.NewSliceContainer(h.region, h.offset, size)
	h.offset += size
	return region, nil
}

func (h *GPUHeap) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	c, err := h.Allocate(size)
	if err != nil {
		return nil, err
	}
	copy(c.Bytes(), src)
	return c, nil
}

// Close releases the heap's backing region. The heap must not be used
// afterward.
func (h *GPUHeap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.device.EndResidency(h.region); err != nil {
		return err
	}
	h.region.Release()
	return nil
}
