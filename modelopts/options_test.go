package modelopts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "opts.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadReferenceMapsHeadDim(t *testing.T) {
	path := writeJSON(t, map[string]any{
		"dim": 4096, "n_layers": 32, "n_heads": 32, "n_kv_heads": 8,
		"vocab_size": 128256, "multiple_of": 1024, "ffn_dim_multiplier": 1.3,
		"norm_eps": 1e-5, "rope_theta": 500000.0, "use_scaled_rope": true,
	})

	opts, err := LoadReference(path, 8192, 0)
	if err != nil {
		t.Fatalf("LoadReference: %v", err)
	}
	if opts.HeadDim != 128 {
		t.Fatalf("head_dim = %d, want 128", opts.HeadDim)
	}
	if opts.NKVHeads != 8 || opts.NLayers != 32 {
		t.Fatalf("unexpected opts: %+v", opts)
	}
	if !opts.UseScaledRope {
		t.Fatalf("expected UseScaledRope")
	}
	if opts.FFNDim%1024 != 0 {
		t.Fatalf("ffn_dim %d not a multiple of 1024", opts.FFNDim)
	}
}

func TestLoadHuggingfaceRenamesFields(t *testing.T) {
	path := writeJSON(t, map[string]any{
		"hidden_size": 4096, "num_hidden_layers": 32, "num_attention_heads": 32,
		"num_key_value_heads": 8, "vocab_size": 128256, "intermediate_size": 14336,
		"rms_norm_eps": 1e-5, "rope_theta": 500000.0,
	})

	opts, err := LoadHuggingface(path, 8192, 0)
	if err != nil {
		t.Fatalf("LoadHuggingface: %v", err)
	}
	if opts.HeadDim != 128 || opts.FFNDim != 14336 {
		t.Fatalf("unexpected opts: %+v", opts)
	}
	if opts.UseScaledRope {
		t.Fatalf("did not expect UseScaledRope without rope_scaling")
	}
}

func TestLoadReferenceRejectsUnrelatedJSON(t *testing.T) {
	path := writeJSON(t, map[string]any{"foo": "bar"})
	if _, err := LoadReference(path, 0, 0); err != ErrUnknownFormat {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
