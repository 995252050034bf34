package model

import (
	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/ml/metal"
	"github.com/ybubnov/metalchat/modelopts"
	"github.com/ybubnov/metalchat/safetensors"
	"github.com/ybubnov/metalchat/tensor"
)

// Model is the full stacked transformer: token embedding, N blocks,
// final RMSNorm, and an output projection to vocabulary logits.
type Model struct {
	*layer.Basic
	runtime *metal.Runtime
	opts    modelopts.Options

	tokEmbeddings *Embedding
	blocks        *layer.Array[*Block]
	norm          *RMSNorm
	output        *Linear

	cos, sin *future.Tensor
	startPos int32
}

// New builds the layer graph for opts, with every parameter registered
// as a rank-correct placeholder awaiting Load.
func New(rt *metal.Runtime, opts modelopts.Options, batch int) (*Model, error) {
	b := layer.NewBasic(".")
	dim := opts.HeadDim * opts.NHeads
	m := &Model{
		Basic:         b,
		runtime:       rt,
		opts:          opts,
		tokEmbeddings: NewEmbedding(rt, opts.VocabSize, dim),
		norm:          NewRMSNorm(rt, dim, float32(opts.NormEps)),
		output:        NewLinear(rt, opts.VocabSize, dim),
	}
	b.RegisterChild("tok_embeddings", m.tokEmbeddings)
	b.RegisterChild("norm", m.norm)
	b.RegisterChild("output", m.output)

	blocks := layer.NewArray[*Block](".")
	m.blocks = blocks
	for i := 0; i < opts.NLayers; i++ {
		blk, err := NewBlock(rt, batch, dim, opts.HeadDim, opts.NHeads, opts.NKVHeads, opts.FFNDim, opts.MaxSeqLen, float32(opts.NormEps))
		if err != nil {
			return nil, err
		}
		blocks.PushBack(blk)
	}
	b.RegisterChild("layers", blocks)

	var llama3 *metal.RopeLlama3Thresholds
	if opts.UseScaledRope {
		llama3 = &opts.RopeLlama3
	}
	cos, sin, err := rt.RopeFreqs(opts.MaxSeqLen, opts.HeadDim, opts.RopeTheta, 0, llama3)
	if err != nil {
		return nil, err
	}
	m.cos, m.sin = cos, sin

	return m, nil
}

// Load binds every registered parameter against archive, then (for
// HuggingFace-origin checkpoints) re-orders wq/wk's rotary row pairs to
// match this runtime's RoPE shader.
func (m *Model) Load(archive *safetensors.Archive, huggingfaceOrigin bool) error {
	if err := safetensors.Bind(m, archive); err != nil {
		return err
	}
	if !huggingfaceOrigin {
		return nil
	}
	for i := 0; i < m.blocks.Size(); i++ {
		blk := m.blocks.At(i)
		if err := permuteAttentionRope(blk.attention); err != nil {
			return err
		}
	}
	return nil
}

// permuteAttentionRope rebuilds wq/wk against a freshly allocated
// container holding the row-permuted weights, then rebinds the
// parameter. It must not write through the bound parameter's existing
// bytes: those alias the archive's no-copy GPU buffer, itself backed by
// a read-only memory-mapped file region, and a write there faults.
// Mirrors permute_attention_heads building a fresh container via
// concatenate and rebinding with set_container, rather than mutating the
// mapped bytes in place.
func permuteAttentionRope(a *Attention) error {
	for _, name := range []string{"wq", "wk"} {
		v, err := a.GetParameter(name)
		if err != nil {
			return err
		}
		rowBytes := v.Size(1) * v.DType().Size()
		heads := a.nHeads
		if name == "wk" {
			heads = a.nKVHeads
		}
		permuted := permuteRopeRows(v.Bytes(), rowBytes, heads, a.headDim)

		container, err := a.runtime.Alloc.AllocateFrom(permuted, len(permuted))
		if err != nil {
			return err
		}
		out := tensor.New(container, v.DType(), v.Sizes()...)
		if err := out.Validate(); err != nil {
			return err
		}
		if err := a.SetParameter(name, out); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every block's KV cache.
func (m *Model) Close() error {
	for i := 0; i < m.blocks.Size(); i++ {
		if err := m.blocks.At(i).Close(); err != nil {
			return err
		}
	}
	return nil
}

// Forward runs ids (a (1,L) int32 tensor) through the full stack,
// returning (1,1,V) logits for the last position and advancing the
// model's position counter by L.
func (m *Model) Forward(ids *future.Tensor) (*future.Tensor, error) {
	x, err := m.tokEmbeddings.Forward(ids)
	if err != nil {
		return nil, err
	}

	startPos := m.startPos
	for i := 0; i < m.blocks.Size(); i++ {
		x, err = m.blocks.At(i).Forward(x, m.cos, m.sin, startPos)
		if err != nil {
			return nil, err
		}
	}

	x, err = m.norm.Forward(x)
	if err != nil {
		return nil, err
	}

	xv := x.GetNoWait()
	L := xv.Size(1)
	last, err := x.Narrow(1, L-1, 1)
	if err != nil {
		return nil, err
	}

	outputWeight, err := m.GetParameter("output.weight")
	if err != nil {
		return nil, err
	}
	logits, err := linear(m.runtime, last, outputWeight)
	if err != nil {
		return nil, err
	}

	m.startPos += int32(L)
	return logits, nil
}
