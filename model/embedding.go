package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// Embedding maps int32 token ids to rows of a (V,E) weight table.
type Embedding struct {
	*layer.Basic
	runtime *metal.Runtime
}

// NewEmbedding registers an (vocab,dim) weight placeholder for archive
// binding.
func NewEmbedding(rt *metal.Runtime, vocab, dim int) *Embedding {
	b := layer.NewBasic(".")
	b.RegisterParameter("weight", placeholder(tensor.DTypeF32, 2))
	return &Embedding{Basic: b, runtime: rt}
}

// Forward gathers one row per id in ids, a (B,L) int32 tensor, returning
// a (B,L,E) tensor of embedding rows.
func (e *Embedding) Forward(ids *future.Tensor) (*future.Tensor, error) {
	weight, err := e.GetParameter("weight")
	if err != nil {
		return nil, err
	}
	return e.runtime.Embedding(ids, future.New(weight))
}
