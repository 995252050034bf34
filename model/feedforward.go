package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// FeedForward is the gated SwiGLU feed-forward block: w2(silu(w1(x)) ⊙
// w3(x)), with w1/w3 projecting dim->ffnDim and w2 projecting back.
type FeedForward struct {
	*layer.Basic
	runtime *metal.Runtime
}

// NewFeedForward registers w1/w3 (ffnDim,dim) and w2 (dim,ffnDim) weight
// placeholders, stored (out_features, in_features) as linear expects.
func NewFeedForward(rt *metal.Runtime, dim, ffnDim int) *FeedForward {
	b := layer.NewBasic(".")
	b.RegisterParameter("w1", placeholder(tensor.DTypeF32, 2))
	b.RegisterParameter("w3", placeholder(tensor.DTypeF32, 2))
	b.RegisterParameter("w2", placeholder(tensor.DTypeF32, 2))
	return &FeedForward{Basic: b, runtime: rt}
}

func (f *FeedForward) Forward(x *future.Tensor) (*future.Tensor, error) {
	w1, err := f.GetParameter("w1")
	if err != nil {
		return nil, err
	}
	w3, err := f.GetParameter("w3")
	if err != nil {
		return nil, err
	}
	w2, err := f.GetParameter("w2")
	if err != nil {
		return nil, err
	}

	gate, err := linear(f.runtime, x, w1)
	if err != nil {
		return nil, err
	}
	up, err := linear(f.runtime, x, w3)
	if err != nil {
		return nil, err
	}
	activated, err := f.runtime.Silu(gate)
	if err != nil {
		return nil, err
	}
	gated, err := f.runtime.Hadamard(activated, up)
	if err != nil {
		return nil, err
	}
	return linear(f.runtime, gated, w2)
}
