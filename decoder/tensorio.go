package decoder

import (
	"encoding/binary"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// uploadIDs packs ids into a (1,len(ids)) int32 tensor backed by a fresh
// random-mode container, ready to wrap in future.New and pass to
// Transformer.Forward. Building the container host-side (rather than
// through an allocator) keeps this package portable: the transformer
// implementation is free to copy these bytes into GPU-visible storage
// itself on its first kernel dispatch.
func uploadIDs(ids []int32) *future.Tensor {
	c := tensor.NewRandomContainer(len(ids) * 4)
	b := c.Bytes()
	for i, id := range ids {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(id))
	}
	v := tensor.New(c, tensor.DTypeI32, 1, len(ids))
	return future.New(v)
}
