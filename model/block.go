package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
)

// Block is one transformer layer: x + attn(rmsnorm(x)), then
// x + ff(rmsnorm(x)).
type Block struct {
	*layer.Basic
	runtime *metal.Runtime

	attentionNorm *RMSNorm
	attention     *Attention
	ffnNorm       *RMSNorm
	feedForward   *FeedForward
}

func NewBlock(rt *metal.Runtime, batch, dim, headDim, nHeads, nKVHeads, ffnDim, cacheSize int, normEps float32) (*Block, error) {
	attention, err := NewAttention(rt, batch, dim, headDim, nHeads, nKVHeads, cacheSize)
	if err != nil {
		return nil, err
	}

	b := layer.NewBasic(".")
	blk := &Block{
		Basic:         b,
		runtime:       rt,
		attentionNorm: NewRMSNorm(rt, dim, normEps),
		attention:     attention,
		ffnNorm:       NewRMSNorm(rt, dim, normEps),
		feedForward:   NewFeedForward(rt, dim, ffnDim),
	}
	b.RegisterChild("attention_norm", blk.attentionNorm)
	b.RegisterChild("attention", blk.attention)
	b.RegisterChild("ffn_norm", blk.ffnNorm)
	b.RegisterChild("feed_forward", blk.feedForward)
	return blk, nil
}

// Close releases this block's KV cache.
func (b *Block) Close() error { return b.attention.Close() }

func (b *Block) Forward(x, cos, sin *future.Tensor, startPos int32) (*future.Tensor, error) {
	normed, err := b.attentionNorm.Forward(x)
	if err != nil {
		return nil, err
	}
	attnOut, err := b.attention.Forward(normed, cos, sin, startPos)
	if err != nil {
		return nil, err
	}
	x, err = b.runtime.Add(x, attnOut)
	if err != nil {
		return nil, err
	}

	normed, err = b.ffnNorm.Forward(x)
	if err != nil {
		return nil, err
	}
	ffOut, err := b.feedForward.Forward(normed)
	if err != nil {
		return nil, err
	}
	return b.runtime.Add(x, ffOut)
}
