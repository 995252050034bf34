package modelopts

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/ybubnov/metalchat/ml/metal"
)

// huggingfaceFile is the huggingface config.json shape: the same logical
// fields as referenceFile under different keys.
type huggingfaceFile struct {
	HiddenSize         int     `json:"hidden_size"`
	NumHiddenLayers    int     `json:"num_hidden_layers"`
	NumAttentionHeads  int     `json:"num_attention_heads"`
	NumKeyValueHeads   int     `json:"num_key_value_heads"`
	VocabSize          int     `json:"vocab_size"`
	IntermediateSize   int     `json:"intermediate_size"`
	RMSNormEps         float64 `json:"rms_norm_eps"`
	RopeTheta          float64 `json:"rope_theta"`
	RopeScaling        *struct {
		Type            string  `json:"rope_type"`
		Factor          float64 `json:"factor"`
		LowFreqFactor   float64 `json:"low_freq_factor"`
		HighFreqFactor  float64 `json:"high_freq_factor"`
		OrigMaxPosition int     `json:"original_max_position_embeddings"`
	} `json:"rope_scaling"`
}

// LoadHuggingface decodes a huggingface config.json and renames its
// fields onto Options. maxSeqLen and heapSize are runtime parameters, not
// carried by the file.
func LoadHuggingface(path string, maxSeqLen, heapSize int) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}

	var f huggingfaceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Options{}, err
	}
	if f.HiddenSize == 0 || f.NumAttentionHeads == 0 {
		return Options{}, ErrUnknownFormat
	}

	normEps := f.RMSNormEps
	if normEps == 0 {
		normEps = 1e-5
	}
	nKVHeads := f.NumKeyValueHeads
	if nKVHeads == 0 {
		nKVHeads = f.NumAttentionHeads
	}

	opts := Options{
		HeadDim:   f.HiddenSize / f.NumAttentionHeads,
		NHeads:    f.NumAttentionHeads,
		NKVHeads:  nKVHeads,
		NLayers:   f.NumHiddenLayers,
		VocabSize: f.VocabSize,
		FFNDim:    f.IntermediateSize,
		NormEps:   normEps,
		RopeTheta: f.RopeTheta,
		MaxSeqLen: maxSeqLen,
		HeapSize:  heapSize,
	}

	if f.RopeScaling != nil && f.RopeScaling.Type == "llama3" {
		opts.UseScaledRope = true
		opts.RopeLlama3 = metal.RopeLlama3Thresholds{
			OrigMaxPosition: f.RopeScaling.OrigMaxPosition,
			LowFreqFactor:   f.RopeScaling.LowFreqFactor,
			HighFreqFactor:  f.RopeScaling.HighFreqFactor,
			ScaleFactor:     f.RopeScaling.Factor,
		}
	} else {
		opts.RopeLlama3 = metal.DefaultRopeLlama3Thresholds
	}

	slog.Debug("modelopts: loaded huggingface options", "path", path, "head_dim", opts.HeadDim, "n_layers", opts.NLayers)
	return opts, nil
}
