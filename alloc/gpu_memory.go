package alloc

import "github.com/ybubnov/metalchat/tensor"

// GPUMemory is the default device allocator: every allocation is a
// tracked, CPU-shared buffer created directly from the device. It is
// simple and correct but pays allocation/deallocation/wiring cost on
// every call; GPUHeap and GPUResident exist to amortize that for hot
// paths.
type GPUMemory struct {
	device Device
}

// NewGPUMemory wraps device as an Allocator.
func NewGPUMemory(device Device) *GPUMemory {
	return &GPUMemory{device: device}
}

func (a *GPUMemory) Allocate(size int) (tensor.Container, error) {
	buf, err := a.device.NewBuffer(size)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (a *GPUMemory) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	buf, err := a.device.NewBufferFrom(src, size)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
