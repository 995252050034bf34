package modelopts

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/ybubnov/metalchat/ml/metal"
)

// referenceFile is the reference llama options file shape.
type referenceFile struct {
	Dim              int     `json:"dim"`
	NLayers          int     `json:"n_layers"`
	NHeads           int     `json:"n_heads"`
	NKVHeads         int     `json:"n_kv_heads"`
	VocabSize        int     `json:"vocab_size"`
	FFNDimMultiplier float64 `json:"ffn_dim_multiplier"`
	MultipleOf       int     `json:"multiple_of"`
	NormEps          float64 `json:"norm_eps"`
	RopeTheta        float64 `json:"rope_theta"`
	UseScaledRope    bool    `json:"use_scaled_rope"`
}

// LoadReference decodes a reference options file and maps dim/n_heads to
// head_dim, passing the rest through unchanged. maxSeqLen and heapSize are
// not carried by the file and must be supplied by the caller.
func LoadReference(path string, maxSeqLen, heapSize int) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}

	var f referenceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Options{}, err
	}
	if f.Dim == 0 || f.NHeads == 0 {
		return Options{}, ErrUnknownFormat
	}

	normEps := f.NormEps
	if normEps == 0 {
		normEps = 1e-5
	}
	nKVHeads := f.NKVHeads
	if nKVHeads == 0 {
		nKVHeads = f.NHeads
	}

	opts := Options{
		HeadDim:       f.Dim / f.NHeads,
		NHeads:        f.NHeads,
		NKVHeads:      nKVHeads,
		NLayers:       f.NLayers,
		VocabSize:     f.VocabSize,
		FFNDim:        ffnDim(f.Dim, f.FFNDimMultiplier, f.MultipleOf),
		NormEps:       normEps,
		RopeTheta:     f.RopeTheta,
		UseScaledRope: f.UseScaledRope,
		RopeLlama3:    metal.DefaultRopeLlama3Thresholds,
		MaxSeqLen:     maxSeqLen,
		HeapSize:      heapSize,
	}
	slog.Debug("modelopts: loaded reference options", "path", path, "head_dim", opts.HeadDim, "n_layers", opts.NLayers)
	return opts, nil
}
