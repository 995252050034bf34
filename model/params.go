package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// placeholder registers a minimal, rank-correct stand-in for a parameter
// that archive binding (safetensors.Bind) will replace before the first
// forward pass. Only dtype and rank need to match the eventual archive
// entry; binding resets sizes and swaps the container wholesale.
func placeholder(dtype tensor.DType, rank int) *tensor.View {
	sizes := make([]int, rank)
	for i := range sizes {
		sizes[i] = 1
	}
	return tensor.New(tensor.NewRandomContainer(dtype.Size()), dtype, sizes...)
}

// linear computes x @ w^T, matching the reference/HuggingFace convention
// of storing a linear layer's weight as (out_features, in_features):
// transposing the weight view costs nothing (Matmul's rank-2 right-hand
// side is read through its own Layout, not flattened), so no data ever
// moves for the transpose itself.
func linear(rt *metal.Runtime, x *future.Tensor, weight *tensor.View) (*future.Tensor, error) {
	wt, err := weight.Transpose(1, 0)
	if err != nil {
		return nil, err
	}
	return rt.Matmul(x, future.New(wt))
}

// materialize copies t into a freshly allocated, row-major contiguous
// buffer of the same shape. Kernels read any view through its Layout
// regardless of contiguity, but Matmul's batch folding above rank 3
// requires Flatten, which fails on dims a prior Transpose left
// non-contiguous; materialize is the one-shot fix for that before a
// batched matmul.
func materialize(rt *metal.Runtime, t *future.Tensor) (*future.Tensor, error) {
	v := t.GetNoWait()
	fresh, err := rt.Zeros(v.DType(), v.Sizes()...)
	if err != nil {
		return nil, err
	}
	return rt.Copy(fresh, t)
}

// repeatKV expands a (B,L,nKV,D) key/value tensor to (B,L,nHeads,D) by
// repeating each KV head nHeads/nKV times along the head axis, the GQA
// head-group broadcast. Each output head is written with its own Copy
// dispatch and the writes are folded into one future via Join.
func repeatKV(rt *metal.Runtime, kv *future.Tensor, nHeads, nKV int) (*future.Tensor, error) {
	if nHeads == nKV {
		return kv, nil
	}
	repeat := nHeads / nKV
	kvv := kv.GetNoWait()

	out, err := rt.Zeros(kvv.DType(), kvv.Size(0), kvv.Size(1), nHeads, kvv.Size(3))
	if err != nil {
		return nil, err
	}

	writes := make([]*future.Tensor, 0, nHeads)
	for h := 0; h < nHeads; h++ {
		src, err := kv.Narrow(2, h/repeat, 1)
		if err != nil {
			return nil, err
		}
		dst, err := out.Narrow(2, h, 1)
		if err != nil {
			return nil, err
		}
		w, err := rt.Copy(dst, src)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	return future.Join(out.GetNoWait(), writes...), nil
}
