package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// RMSNorm normalizes its input's last dimension by root-mean-square and
// scales it by a learned (D,) weight.
type RMSNorm struct {
	*layer.Basic
	runtime *metal.Runtime
	eps     float32
}

// NewRMSNorm registers a (dim,) weight placeholder for archive binding.
func NewRMSNorm(rt *metal.Runtime, dim int, eps float32) *RMSNorm {
	b := layer.NewBasic(".")
	b.RegisterParameter("weight", placeholder(tensor.DTypeF32, 1))
	return &RMSNorm{Basic: b, runtime: rt, eps: eps}
}

func (n *RMSNorm) Forward(x *future.Tensor) (*future.Tensor, error) {
	weight, err := n.GetParameter("weight")
	if err != nil {
		return nil, err
	}
	return n.runtime.RMSNorm(x, future.New(weight), n.eps)
}
