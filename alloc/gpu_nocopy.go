package alloc

import "github.com/ybubnov/metalchat/tensor"

// GPUNocopy decorates an inner Allocator so that AllocateFrom wraps the
// caller's memory directly instead of copying it into a new buffer.
// Allocate (uninitialized) is unaffected and delegates to inner.
//
// Used when a tensor already lives in memory the device can address
// without a copy (a memory-mapped archive region); the caller stays
// responsible for keeping that memory alive for as long as the resulting
// container is in use.
type GPUNocopy struct {
	inner  Allocator
	device Device
}

// NewGPUNocopy decorates inner with no-copy semantics on device.
func NewGPUNocopy(inner Allocator, device Device) *GPUNocopy {
	return &GPUNocopy{inner: inner, device: device}
}

func (a *GPUNocopy) Allocate(size int) (tensor.Container, error) {
	return a.inner.Allocate(size)
}

func (a *GPUNocopy) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	if len(src) < size {
		return a.inner.AllocateFrom(src, size)
	}
	buf, err := a.device.WrapNoCopy(src[:size])
	if err != nil {
		return nil, err
	}
	return buf, nil
}
