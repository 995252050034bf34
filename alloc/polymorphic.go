package alloc

import (
	"sync"

	"github.com/ybubnov/metalchat/tensor"
)

// Polymorphic holds a single swappable Allocator behind a mutex so a
// device's allocation strategy can change at runtime — e.g. switching from
// GPUMemory to a GPUHeap once its capacity has been sized — without every
// holder of the Polymorphic value needing to know the switch happened.
type Polymorphic struct {
	mu    sync.RWMutex
	inner Allocator
}

// NewPolymorphic wraps alloc as the initial allocation strategy.
func NewPolymorphic(alloc Allocator) *Polymorphic {
	return &Polymorphic{inner: alloc}
}

func (p *Polymorphic) Allocate(size int) (tensor.Container, error) {
	p.mu.RLock()
	inner := p.inner
	p.mu.RUnlock()
	return inner.Allocate(size)
}

func (p *Polymorphic) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	p.mu.RLock()
	inner := p.inner
	p.mu.RUnlock()
	return inner.AllocateFrom(src, size)
}

// Set replaces the allocation strategy used by subsequent calls.
func (p *Polymorphic) Set(alloc Allocator) {
	p.mu.Lock()
	p.inner = alloc
	p.mu.Unlock()
}
