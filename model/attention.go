package model

import (
	"math"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/kvcache"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/tensor"
)

// Attention is grouped-query attention with rotary positional encoding
// and a rolling sink KV cache: linears wq/wk/wv/wo, a reshape to
// (B,L,H,D)/(B,L,Hkv,D), RoPE, a cache step, KV head repetition up to
// nHeads, and softmax(Q·K/√D + mask)·V projected back through wo.
type Attention struct {
	*layer.Basic
	runtime *metal.Runtime
	cache   *kvcache.Cache

	headDim, nHeads, nKVHeads int
}

// NewAttention registers wq (nHeads*headDim,dim), wk/wv
// (nKVHeads*headDim,dim), and wo (dim,nHeads*headDim) placeholders, and
// allocates this block's KV cache.
func NewAttention(rt *metal.Runtime, batch, dim, headDim, nHeads, nKVHeads, cacheSize int) (*Attention, error) {
	b := layer.NewBasic(".")
	b.RegisterParameter("wq", placeholder(tensor.DTypeF32, 2))
	b.RegisterParameter("wk", placeholder(tensor.DTypeF32, 2))
	b.RegisterParameter("wv", placeholder(tensor.DTypeF32, 2))
	b.RegisterParameter("wo", placeholder(tensor.DTypeF32, 2))

	cache, err := kvcache.New(rt, batch, cacheSize, nKVHeads, headDim, tensor.DTypeF32)
	if err != nil {
		return nil, err
	}

	return &Attention{
		Basic:    b,
		runtime:  rt,
		cache:    cache,
		headDim:  headDim,
		nHeads:   nHeads,
		nKVHeads: nKVHeads,
	}, nil
}

// Close releases this attention block's KV cache buffers.
func (a *Attention) Close() error { return a.cache.Close() }

func (a *Attention) Forward(x, cos, sin *future.Tensor, startPos int32) (*future.Tensor, error) {
	wq, err := a.GetParameter("wq")
	if err != nil {
		return nil, err
	}
	wk, err := a.GetParameter("wk")
	if err != nil {
		return nil, err
	}
	wv, err := a.GetParameter("wv")
	if err != nil {
		return nil, err
	}
	wo, err := a.GetParameter("wo")
	if err != nil {
		return nil, err
	}

	xv := x.GetNoWait()
	B, L := xv.Size(0), xv.Size(1)

	q, err := linear(a.runtime, x, wq)
	if err != nil {
		return nil, err
	}
	k, err := linear(a.runtime, x, wk)
	if err != nil {
		return nil, err
	}
	v, err := linear(a.runtime, x, wv)
	if err != nil {
		return nil, err
	}

	qv, err := q.View(B, L, a.nHeads, a.headDim)
	if err != nil {
		return nil, err
	}
	kv, err := k.View(B, L, a.nKVHeads, a.headDim)
	if err != nil {
		return nil, err
	}
	vv, err := v.View(B, L, a.nKVHeads, a.headDim)
	if err != nil {
		return nil, err
	}

	qv, err = a.runtime.Rope(qv, cos, sin, startPos)
	if err != nil {
		return nil, err
	}
	kv, err = a.runtime.Rope(kv, cos, sin, startPos)
	if err != nil {
		return nil, err
	}

	step, err := a.cache.Step(kv, vv)
	if err != nil {
		return nil, err
	}

	keys, err := repeatKV(a.runtime, step.Keys, a.nHeads, a.nKVHeads)
	if err != nil {
		return nil, err
	}
	values, err := repeatKV(a.runtime, step.Values, a.nHeads, a.nKVHeads)
	if err != nil {
		return nil, err
	}

	qt, err := qv.Transpose(0, 2, 1, 3) // (B,H,L,D)
	if err != nil {
		return nil, err
	}
	qt, err = materialize(a.runtime, qt)
	if err != nil {
		return nil, err
	}
	kt, err := keys.Transpose(0, 2, 3, 1) // (B,H,D,Lk)
	if err != nil {
		return nil, err
	}
	kt, err = materialize(a.runtime, kt)
	if err != nil {
		return nil, err
	}
	vt, err := values.Transpose(0, 2, 1, 3) // (B,H,Lk,D)
	if err != nil {
		return nil, err
	}
	vt, err = materialize(a.runtime, vt)
	if err != nil {
		return nil, err
	}

	scores, err := a.runtime.Matmul(qt, kt)
	if err != nil {
		return nil, err
	}
	scores, err = a.runtime.ScalarMul(scores, float32(1/math.Sqrt(float64(a.headDim))))
	if err != nil {
		return nil, err
	}
	if step.Mask != nil {
		scores, err = a.runtime.Add2(scores, step.Mask)
		if err != nil {
			return nil, err
		}
	}
	probs, err := a.runtime.Softmax(scores)
	if err != nil {
		return nil, err
	}

	out, err := a.runtime.Matmul(probs, vt) // (B,H,L,D)
	if err != nil {
		return nil, err
	}
	out, err = out.Transpose(0, 2, 1, 3) // (B,L,H,D)
	if err != nil {
		return nil, err
	}
	out, err = materialize(a.runtime, out)
	if err != nil {
		return nil, err
	}
	outv := out.GetNoWait()
	flat, err := outv.View(B, L, a.nHeads*a.headDim)
	if err != nil {
		return nil, err
	}

	return linear(a.runtime, future.New(flat), wo)
}
