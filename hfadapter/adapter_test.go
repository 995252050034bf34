package hfadapter

import (
	"testing"

	"github.com/ybubnov/metalchat/safetensors"
)

func TestHuggingfaceRenamesLayerTensors(t *testing.T) {
	in := []safetensors.Entry{
		{Name: "model.embed_tokens.weight"},
		{Name: "model.layers.3.self_attn.q_proj.weight"},
		{Name: "model.layers.3.mlp.down_proj.weight"},
		{Name: "model.norm.weight"},
	}
	out := Huggingface.Adapt(in)

	want := map[string]bool{
		"tok_embeddings.weight":           true,
		"layers.3.attention.wq.weight":    true,
		"layers.3.feed_forward.w2.weight": true,
		"norm.weight":                     true,
	}
	for _, e := range out {
		if e.Name == "output.weight" {
			continue
		}
		if !want[e.Name] {
			t.Fatalf("unexpected renamed tensor %q", e.Name)
		}
		delete(want, e.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing renamed tensors: %v", want)
	}
}

func TestHuggingfaceAliasesOutputWeight(t *testing.T) {
	in := []safetensors.Entry{{Name: "model.embed_tokens.weight", Container: fakeContainer{}}}
	out := Huggingface.Adapt(in)

	var found bool
	for _, e := range out {
		if e.Name == "output.weight" {
			found = true
			if e.Container != (fakeContainer{}) {
				t.Fatalf("aliased entry does not share the embedding's container")
			}
		}
	}
	if !found {
		t.Fatalf("expected output.weight alias to be added")
	}
}

func TestHuggingfaceDoesNotOverrideExistingOutputWeight(t *testing.T) {
	in := []safetensors.Entry{
		{Name: "model.embed_tokens.weight"},
		{Name: "lm_head.weight", Shape: []int{99}},
	}
	out := Huggingface.Adapt(in)

	count := 0
	for _, e := range out {
		if e.Name == "output.weight" {
			count++
			if e.Shape[0] != 99 {
				t.Fatalf("existing output.weight entry was overwritten")
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one output.weight entry, got %d", count)
	}
}

type fakeContainer struct{}

func (fakeContainer) ByteSize() int  { return 0 }
func (fakeContainer) Bytes() []byte  { return nil }
func (fakeContainer) Offset() int    { return 0 }
