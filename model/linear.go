package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// Linear is a single (out,in) weight projecting its input's last
// dimension from in to out, used for the output head (and, were tied
// embeddings not aliased by the adapter, would equally serve as one).
type Linear struct {
	*layer.Basic
	runtime *metal.Runtime
}

func NewLinear(rt *metal.Runtime, out, in int) *Linear {
	b := layer.NewBasic(".")
	b.RegisterParameter("weight", placeholder(tensor.DTypeF32, 2))
	return &Linear{Basic: b, runtime: rt}
}

func (l *Linear) Forward(x *future.Tensor) (*future.Tensor, error) {
	w, err := l.GetParameter("weight")
	if err != nil {
		return nil, err
	}
	return linear(l.runtime, x, w)
}
