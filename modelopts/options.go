package modelopts

import "github.com/ybubnov/metalchat/ml/metal"

// Options is the normalized shape the transformer is built from,
// regardless of which loader produced it.
type Options struct {
	HeadDim   int
	NHeads    int
	NKVHeads  int
	NLayers   int
	VocabSize int
	FFNDim    int
	NormEps   float64
	RopeTheta float64

	// UseScaledRope selects the llama3 wavelength-piecewise rescale;
	// when false RopeFreqs is called with a nil threshold set.
	UseScaledRope bool
	RopeLlama3    metal.RopeLlama3Thresholds

	// MaxSeqLen and HeapSize are not carried by either options file —
	// they are runtime parameters the driver program supplies (command
	// line or its own config format, both out of scope here).
	MaxSeqLen int
	HeapSize  int
}

// ffnDim computes the feed-forward hidden width from the reference
// file's dim/multiplier/multiple_of triple: hidden = 2*4*dim/3, optionally
// scaled by ffnDimMultiplier, then rounded up to a multiple of multipleOf.
func ffnDim(dim int, ffnDimMultiplier float64, multipleOf int) int {
	hidden := 2 * 4 * dim / 3
	if ffnDimMultiplier != 0 {
		hidden = int(ffnDimMultiplier * float64(hidden))
	}
	if multipleOf > 0 {
		hidden = multipleOf * ((hidden + multipleOf - 1) / multipleOf)
	}
	return hidden
}
