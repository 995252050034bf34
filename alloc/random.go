package alloc

import "github.com/ybubnov/metalchat/tensor"

// Random allocates process-heap memory exclusively owned by its
// container. It needs no device and backs host-side scratch tensors
// (sampling intermediates, id buffers) that never cross to the GPU.
type Random struct{}

// NewRandom returns a Random allocator.
func NewRandom() Random { return Random{} }

func (Random) Allocate(size int) (tensor.Container, error) {
	return tensor.NewRandomContainer(size), nil
}

func (Random) AllocateFrom(src []byte, size int) (tensor.Container, error) {
	return tensor.NewRandomContainerFrom(src, size), nil
}
