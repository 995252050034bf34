// Package kvcache implements the rolling sink KV cache each attention
// block owns: a fixed-capacity key/value buffer pair that, once full,
// preserves a sink prefix and rolls the remainder left to make room for
// new positions, rather than growing without bound or evicting outright.
package kvcache

import (
	"math"

	"github.com/ybubnov/metalchat/alloc"
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// runtime is the subset of *ml/metal.Runtime the cache dispatches
// through, narrowed to a local interface so the roll/write control flow
// is testable without a GPU device.
type runtime interface {
	Zeros(dtype tensor.DType, sizes ...int) (*future.Tensor, error)
	Copy(dst, src *future.Tensor) (*future.Tensor, error)
	Roll(a *future.Tensor, shift, dim int) (*future.Tensor, error)
	UploadF32(data []float32, sizes ...int) (*future.Tensor, error)
}

// Cache holds one block's key/value history as two (batch, cacheSize,
// nKVHeads, headDim) future tensors, plus the write cursor into them.
type Cache struct {
	runtime runtime

	keys, values *future.Tensor
	startPos     int

	cacheSize int
	sinkLen   int
	batch     int
	nKVHeads  int
	headDim   int
	dtype     tensor.DType
}

// New allocates an empty cache of the given capacity. The sink prefix
// length defaults to floor(log2(cacheSize)).
func New(rt runtime, batch, cacheSize, nKVHeads, headDim int, dtype tensor.DType) (*Cache, error) {
	keys, err := rt.Zeros(dtype, batch, cacheSize, nKVHeads, headDim)
	if err != nil {
		return nil, err
	}
	values, err := rt.Zeros(dtype, batch, cacheSize, nKVHeads, headDim)
	if err != nil {
		return nil, err
	}

	return &Cache{
		runtime:   rt,
		keys:      keys,
		values:    values,
		cacheSize: cacheSize,
		sinkLen:   sinkPrefixLen(cacheSize),
		batch:     batch,
		nKVHeads:  nKVHeads,
		headDim:   headDim,
		dtype:     dtype,
	}, nil
}

func sinkPrefixLen(cacheSize int) int {
	if cacheSize <= 1 {
		return 0
	}
	return int(math.Floor(math.Log2(float64(cacheSize))))
}

// Close releases the underlying GPU buffers if the allocator that built
// them produced releasable resources. It satisfies layer.Closer; the
// owning model.Attention calls it from its own Close.
func (c *Cache) Close() error {
	releaseIfGPUBuffer(c.keys)
	releaseIfGPUBuffer(c.values)
	return nil
}

func releaseIfGPUBuffer(t *future.Tensor) {
	if t == nil {
		return
	}
	if buf, ok := t.GetNoWait().Container().(alloc.GPUBuffer); ok {
		buf.Release()
	}
}
