//go:build darwin && arm64

package metal

import (
	"fmt"
	"math"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// rowGrid lays out one threadgroup per row of a (...,D) tensor, the shape
// every last-dim reduction/normalization kernel here shares.
func rowGrid(rows, d, maxThreads int) (Dim3, Dim3) {
	group := NewDim3(defaultGroup1D(d, maxThreads))
	return NewDim3(rows * group.X), group
}

// Softmax applies a numerically stable softmax along the last dimension.
func (r *Runtime) Softmax(a *future.Tensor) (*future.Tensor, error) {
	av := a.GetNoWait()
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "softmax_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	d := av.Size(av.Rank() - 1)
	rows := av.Numel() / d
	grid, group := rowGrid(rows, d, max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av))
	return r.dispatch(out, task)
}

// Silu computes x·σ(x) elementwise.
func (r *Runtime) Silu(a *future.Tensor) (*future.Tensor, error) {
	av := a.GetNoWait()
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "silu_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av))
	return r.dispatch(out, task)
}

// RMSNorm computes x·rsqrt(mean(x²)+ε)·w along the last dim.
func (r *Runtime) RMSNorm(a, weight *future.Tensor, eps float32) (*future.Tensor, error) {
	av, wv := a.GetNoWait(), weight.GetNoWait()
	d := av.Size(av.Rank() - 1)
	if wv.Rank() != 1 || wv.Size(0) != d {
		return nil, fmt.Errorf("%w: rmsnorm: weight shape %v does not match last dim %d", tensor.ErrInvalidArgument, wv.Sizes(), d)
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "rmsnorm_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	rows := av.Numel() / d
	grid, group := rowGrid(rows, d, max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(wv), ScalarArg(float32Bytes(eps)))
	return r.dispatch(out, task)
}

// Rope applies rotary pair rotation per head to a (B,L,H,D) tensor, using
// precomputed cos/sin tables of shape (max_seq_len, D/2) starting at
// startPos.
func (r *Runtime) Rope(a, cos, sin *future.Tensor, startPos int32) (*future.Tensor, error) {
	av, cosv := a.GetNoWait(), cos.GetNoWait()
	sinv := sin.GetNoWait()
	if av.Rank() != 4 {
		return nil, fmt.Errorf("%w: rope: expected rank 4 (B,L,H,D), got %v", tensor.ErrInvalidArgument, av.Sizes())
	}
	d := av.Size(3)
	if cosv.Size(1) != d/2 || sinv.Size(1) != d/2 {
		return nil, fmt.Errorf("%w: rope: cos/sin last dim must be D/2=%d", tensor.ErrInvalidArgument, d/2)
	}
	out, err := r.allocOutput(av.DType(), av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "rope_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	B, L, H := av.Size(0), av.Size(1), av.Size(2)
	group := NewDim3(defaultGroup1D(d/2, max))
	grid := NewDim3(B * L * H * group.X)
	startBytes := make([]byte, 4)
	startBytes[0] = byte(startPos)
	startBytes[1] = byte(startPos >> 8)
	startBytes[2] = byte(startPos >> 16)
	startBytes[3] = byte(startPos >> 24)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), TensorArg(cosv), TensorArg(sinv), ScalarArg(startBytes))
	return r.dispatch(out, task)
}

// RopeLlama3Thresholds is the llama3 wavelength-piecewise rescale parameter set:
// low/high frequency factors and the original context length, as
// (8192, 1, 4, 32) — orig_max_position, low_freq_factor, high_freq_factor,
// scale_factor.
type RopeLlama3Thresholds struct {
	OrigMaxPosition int
	LowFreqFactor   float64
	HighFreqFactor  float64
	ScaleFactor     float64
}

// DefaultRopeLlama3Thresholds is the standard llama3 rescale parameter
// set used unless a model's options override it.
var DefaultRopeLlama3Thresholds = RopeLlama3Thresholds{
	OrigMaxPosition: 8192,
	LowFreqFactor:   1,
	HighFreqFactor:  4,
	ScaleFactor:     32,
}

// RopeFreqs computes (cos, sin) host-side for positions
// [startPos, startPos+maxSeqLen), optionally applying the llama3
// wavelength-piecewise rescale. theta_i = 1/base^(2i/D). This table is
// small and computed once per context extension, so it is built on the
// host in float32 and uploaded, rather than dispatched as a kernel.
func (r *Runtime) RopeFreqs(maxSeqLen, dim int, base float64, startPos int, llama3 *RopeLlama3Thresholds) (cos, sin *future.Tensor, err error) {
	half := dim / 2
	cosBuf := make([]float32, maxSeqLen*half)
	sinBuf := make([]float32, maxSeqLen*half)

	freqs := make([]float64, half)
	for i := 0; i < half; i++ {
		theta := 1.0 / math.Pow(base, float64(2*i)/float64(dim))
		if llama3 != nil {
			theta = rescaleLlama3(theta, *llama3)
		}
		freqs[i] = theta
	}

	for p := 0; p < maxSeqLen; p++ {
		pos := float64(startPos + p)
		for i := 0; i < half; i++ {
			angle := pos * freqs[i]
			cosBuf[p*half+i] = float32(math.Cos(angle))
			sinBuf[p*half+i] = float32(math.Sin(angle))
		}
	}

	cosView, err := r.uploadF32(cosBuf, maxSeqLen, half)
	if err != nil {
		return nil, nil, err
	}
	sinView, err := r.uploadF32(sinBuf, maxSeqLen, half)
	if err != nil {
		return nil, nil, err
	}
	return future.New(cosView), future.New(sinView), nil
}

// rescaleLlama3 applies the wavelength-piecewise frequency rescale:
// wavelengths shorter than high_freq_wavelen pass through unscaled,
// longer than low_freq_wavelen divide by scale_factor, and the band
// between is linearly interpolated.
func rescaleLlama3(theta float64, t RopeLlama3Thresholds) float64 {
	wavelen := 2 * math.Pi / theta
	lowFreqWavelen := float64(t.OrigMaxPosition) / t.LowFreqFactor
	highFreqWavelen := float64(t.OrigMaxPosition) / t.HighFreqFactor

	if wavelen < highFreqWavelen {
		return theta
	}
	if wavelen > lowFreqWavelen {
		return theta / t.ScaleFactor
	}
	smooth := (float64(t.OrigMaxPosition)/wavelen - t.LowFreqFactor) / (t.HighFreqFactor - t.LowFreqFactor)
	return (1-smooth)*theta/t.ScaleFactor + smooth*theta
}

func (r *Runtime) uploadF32(data []float32, sizes ...int) (*tensor.View, error) {
	bytes := make([]byte, len(data)*4)
	for i, f := range data {
		copy(bytes[i*4:], float32Bytes(f))
	}
	c, err := r.Alloc.AllocateFrom(bytes, len(bytes))
	if err != nil {
		return nil, err
	}
	return tensor.New(c, tensor.DTypeF32, sizes...), nil
}
