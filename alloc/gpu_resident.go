package alloc

import (
	"fmt"
	"sync"

	"github.com/ybubnov/metalchat/tensor"
)

// GPUResident decorates an inner Allocator so that every allocation it
// produces is added to the device's residency set. The set has a fixed
// capacity (the number of buffers it may hold before Detach commits it as
// final); allocating past that cap fails with ErrCapacityExceeded rather
// than silently growing the set. Residency ends only when Detach is
// called; discarding the allocator or releasing its tracked buffers does
// not end it. Until then, the set stays resident as a unit, which is cheaper than paging
// each buffer in and out on every kernel dispatch.
type GPUResident struct {
	inner    Allocator
	device   Device
	capacity int

	mu       sync.Mutex
	tracked  []GPUBuffer
	detached bool
}

// NewGPUResident decorates inner, keeping its allocations resident on
// device until Detach is called. capacity bounds how many buffers may be
// tracked before Detach commits the set as final; 0 means unbounded.
func NewGPUResident(inner Allocator, device Device, capacity int) *GPUResident {
	return &GPUResident{inner: inner, device: device, capacity: capacity}
}

func (a *GPUResident) Allocate(size int) (tensor.Container, error) {
	c, err := a.inner.Allocate(size)
	if err != nil {
		return nil, err
	}
	return a.track(c)
}

func (a *GPUResident) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	c, err := a.inner.AllocateFrom(src, size)
	if err != nil {
		return nil, err
	}
	return a.track(c)
}

func (a *GPUResident) track(c tensor.Container) (tensor.Container, error) {
	buf, ok := c.(GPUBuffer)
	if !ok {
		return c, nil
	}

	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: gpu resident: set already committed by Detach", ErrClosed)
	}
	if a.capacity > 0 && len(a.tracked) >= a.capacity {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: gpu resident: set capacity %d reached", ErrCapacityExceeded, a.capacity)
	}
	a.mu.Unlock()

	if err := a.device.MakeResident(buf); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.tracked = append(a.tracked, buf)
	a.mu.Unlock()
	return buf, nil
}

// Detach commits this decorator's residency set as final: no further
// allocation may be tracked through it (subsequent Allocate/AllocateFrom
// calls fail with ErrClosed), and residency for every buffer tracked so
// far ends. Calling Detach again is a no-op that returns nil.
func (a *GPUResident) Detach() error {
	a.mu.Lock()
	bufs := a.tracked
	a.tracked = nil
	a.detached = true
	a.mu.Unlock()

	if len(bufs) == 0 {
		return nil
	}
	return a.device.EndResidency(bufs...)
}
