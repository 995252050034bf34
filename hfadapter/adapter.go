// Package hfadapter renames a loaded archive's tensor names between
// naming conventions. The *reference* adapter leaves names untouched; the
// *huggingface* adapter maps HuggingFace checkpoint names onto the
// reference layer-graph paths this runtime expects. Both alias the output
// projection to the input embedding when the archive does not carry a
// separate tied-weight entry.
//
// The huggingface rename table is a strings.Replacer over literal
// substrings; the per-layer index passes through unchanged, mirroring
// convert/convert_model.go's
// strings.NewReplacer(conv.Replacements()...) pattern — adapted from
// "rewrite names while converting to a different file format" to
// "rewrite names once, in memory, right after load".
package hfadapter

import (
	"regexp"
	"strings"

	"github.com/ybubnov/metalchat/safetensors"
)

// Adapter renames and/or aliases entries in an archive.
type Adapter interface {
	Adapt(entries []safetensors.Entry) []safetensors.Entry
}

// AdapterFunc adapts the function type to Adapter.
type AdapterFunc func([]safetensors.Entry) []safetensors.Entry

func (f AdapterFunc) Adapt(entries []safetensors.Entry) []safetensors.Entry { return f(entries) }

// Reference is the identity adapter: names are left alone, and
// output.weight is aliased to tok_embeddings.weight when not already
// present (tied embeddings).
var Reference Adapter = AdapterFunc(func(entries []safetensors.Entry) []safetensors.Entry {
	return aliasOutputWeight(entries, "tok_embeddings.weight", "output.weight")
})

var layerIndex = regexp.MustCompile(`\.(\d+)\.`)

// huggingfaceReplacements is an ordered literal-substring rename table,
// applied left to right the way strings.Replacer applies its pairs; the
// per-layer numeric index is preserved untouched since none of these
// substrings themselves contain digits (layerIndex is not applied).
var huggingfaceReplacements = []string{
	"model.embed_tokens.weight", "tok_embeddings.weight",
	"model.layers.", "layers.",
	"model.norm.weight", "norm.weight",
	"lm_head.weight", "output.weight",
	".self_attn.q_proj.", ".attention.wq.",
	".self_attn.k_proj.", ".attention.wk.",
	".self_attn.v_proj.", ".attention.wv.",
	".self_attn.o_proj.", ".attention.wo.",
	".mlp.gate_proj.", ".feed_forward.w1.",
	".mlp.down_proj.", ".feed_forward.w2.",
	".mlp.up_proj.", ".feed_forward.w3.",
	".input_layernorm.weight", ".attention_norm.weight",
	".post_attention_layernorm.weight", ".ffn_norm.weight",
}

// Huggingface renames entries from HuggingFace transformers checkpoint
// names to this runtime's reference layer paths, then aliases the output
// projection to the input embedding if the checkpoint did not carry a
// separate lm_head (tied embeddings).
var Huggingface Adapter = AdapterFunc(func(entries []safetensors.Entry) []safetensors.Entry {
	replacer := strings.NewReplacer(huggingfaceReplacements...)
	renamed := make([]safetensors.Entry, len(entries))
	for i, e := range entries {
		e.Name = replacer.Replace(e.Name)
		renamed[i] = e
	}
	return aliasOutputWeight(renamed, "tok_embeddings.weight", "output.weight")
})

// aliasOutputWeight adds an alias entry named to pointing at the same
// container as from, unless an entry named to already exists.
func aliasOutputWeight(entries []safetensors.Entry, from, to string) []safetensors.Entry {
	var fromEntry *safetensors.Entry
	for i := range entries {
		if entries[i].Name == from {
			fromEntry = &entries[i]
		}
		if entries[i].Name == to {
			return entries
		}
	}
	if fromEntry == nil {
		return entries
	}
	alias := *fromEntry
	alias.Name = to
	return append(entries, alias)
}
