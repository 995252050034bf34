package alloc

import (
	"unsafe"

	"github.com/ybubnov/metalchat/tensor"
)

// Rebind adapts a byte-oriented Allocator to a typed element count: Allocate
// and AllocateFrom take a count of T rather than a byte size. It exists
// because the underlying allocator stack always deals in bytes, but model
// code naturally thinks in elements (e.g. "512 float32 values").
type Rebind[T any] struct {
	alloc Allocator
}

// NewRebind wraps alloc so its size arguments are counts of T.
func NewRebind[T any](alloc Allocator) Rebind[T] {
	return Rebind[T]{alloc: alloc}
}

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Allocate reserves count elements of T.
func (r Rebind[T]) Allocate(count int) (tensor.Container, error) {
	return r.alloc.Allocate(count * sizeOf[T]())
}

// AllocateFrom reserves count elements of T initialized from src, where
// src holds count*sizeof(T) bytes.
func (r Rebind[T]) AllocateFrom(src []byte, count int) (tensor.Container, error) {
	return r.alloc.AllocateFrom(src, count*sizeOf[T]())
}
