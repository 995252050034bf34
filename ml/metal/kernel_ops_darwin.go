//go:build darwin && arm64

package metal

import (
	"fmt"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// Sort returns (values, indices) sorted descending along the last dim.
// The dimension is rounded up to the next power of two for the internal
// bitonic pass; the output is sliced back to the original extent.
func (r *Runtime) Sort(a *future.Tensor) (values, indices *future.Tensor, err error) {
	av := a.GetNoWait()
	d := av.Size(av.Rank() - 1)
	padded := nextPow2(d)

	valuesOut, err := r.allocOutput(av.DType(), append(av.Sizes()[:av.Rank()-1:av.Rank()-1], padded)...)
	if err != nil {
		return nil, nil, err
	}
	indicesOut, err := r.allocOutput(tensor.DTypeI32, append(av.Sizes()[:av.Rank()-1:av.Rank()-1], padded)...)
	if err != nil {
		return nil, nil, err
	}

	kernel := "sort_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, nil, err
	}
	rows := av.Numel() / d
	grid, group := rowGrid(rows, padded, max)
	task := NewTask(kernel, grid, group, TensorArg(valuesOut), TensorArg(indicesOut), TensorArg(av))

	valuesFut, err := r.dispatch(valuesOut, task)
	if err != nil {
		return nil, nil, err
	}
	indicesFut := future.NewTask(indicesOut, func() error { _, err := valuesFut.Get(); return err })

	slicedValues, err := narrowLastDim(valuesOut, d)
	if err != nil {
		return nil, nil, err
	}
	slicedIndices, err := narrowLastDim(indicesOut, d)
	if err != nil {
		return nil, nil, err
	}
	return future.NewTask(slicedValues, func() error { _, err := valuesFut.Get(); return err }),
		future.NewTask(slicedIndices, func() error { _, err := indicesFut.Get(); return err }), nil
}

func narrowLastDim(v *tensor.View, length int) (*tensor.View, error) {
	return v.Narrow(v.Rank()-1, 0, length)
}

// reduceLastDim dispatches a reduction kernel along the last dim, with a
// block size chosen as the next power of two of ceil(D/maxThreads).
func (r *Runtime) reduceLastDim(kernelPrefix string, a *future.Tensor, dropDim bool) (*future.Tensor, error) {
	av := a.GetNoWait()
	d := av.Size(av.Rank() - 1)
	kernel := kernelPrefix + "_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	block := nextPow2(ceilDiv(d, max))

	outSizes := av.Sizes()
	if dropDim {
		outSizes = outSizes[:av.Rank()-1]
	}
	out, err := r.allocOutput(av.DType(), outSizes...)
	if err != nil {
		return nil, err
	}

	rows := av.Numel() / d
	group := NewDim3(defaultGroup1D(max, max))
	grid := NewDim3(rows * group.X)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), ScalarArg(int32Bytes(int32(block))))
	return r.dispatch(out, task)
}

// Cumsum computes the running sum along the last dim, preserving shape.
func (r *Runtime) Cumsum(a *future.Tensor) (*future.Tensor, error) {
	return r.reduceLastDim("cumsum", a, false)
}

// Sum reduces the last dim to a scalar per row, dropping it.
func (r *Runtime) Sum(a *future.Tensor) (*future.Tensor, error) {
	return r.reduceLastDim("sum", a, true)
}

// Multinomial draws S int32 samples per row from (...,D) probabilities,
// expecting descending-order probabilities when used for top-p.
func (r *Runtime) Multinomial(probs *future.Tensor, samples int, seed uint64) (*future.Tensor, error) {
	pv := probs.GetNoWait()
	outSizes := append(pv.Sizes()[:pv.Rank()-1:pv.Rank()-1], samples)
	out, err := r.allocOutput(tensor.DTypeI32, outSizes...)
	if err != nil {
		return nil, err
	}
	kernel := "multinomial_" + pv.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	rows := pv.Numel() / pv.Size(pv.Rank()-1)
	group := NewDim3(defaultGroup1D(samples, max))
	grid := NewDim3(rows * group.X)
	seedBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> (8 * i))
	}
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(pv), ScalarArg(seedBytes))
	return r.dispatch(out, task)
}

// Embedding looks up int32 ids (B,L) against weight (V,E), producing
// float (B,L,E). The shader performs no bounds check; the caller must
// ensure every id is < V.
func (r *Runtime) Embedding(ids, weight *future.Tensor) (*future.Tensor, error) {
	idv, wv := ids.GetNoWait(), weight.GetNoWait()
	if idv.Rank() != 2 || wv.Rank() != 2 {
		return nil, fmt.Errorf("%w: embedding: expected (B,L) ids and (V,E) weight", tensor.ErrInvalidArgument)
	}
	B, L := idv.Size(0), idv.Size(1)
	E := wv.Size(1)
	out, err := r.allocOutput(wv.DType(), B, L, E)
	if err != nil {
		return nil, err
	}
	kernel := "embedding_" + wv.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	group := NewDim3(defaultGroup1D(E, max))
	grid := NewDim3(B * L * group.X)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(idv), TensorArg(wv))
	return r.dispatch(out, task)
}

// NucleusSample implements top-p sampling over raw logits, scaling them
// by 1/temperature first: scalar_mul -> softmax -> sort -> cumsum ->
// sub(cumsum, sorted) -> gt(p) -> scatter(zero) -> multinomial ->
// gather(indices). It is the default sampler.
func (r *Runtime) NucleusSample(logits *future.Tensor, temperature, p float32, samples int, seed uint64) (*future.Tensor, error) {
	scaled, err := r.ScalarMul(logits, 1/temperature)
	if err != nil {
		return nil, err
	}
	probs, err := r.Softmax(scaled)
	if err != nil {
		return nil, err
	}
	sortedValues, sortedIndices, err := r.Sort(probs)
	if err != nil {
		return nil, err
	}
	cum, err := r.Cumsum(sortedValues)
	if err != nil {
		return nil, err
	}
	excess, err := r.Sub(cum, sortedValues)
	if err != nil {
		return nil, err
	}
	mask, err := r.gt(excess, p)
	if err != nil {
		return nil, err
	}
	truncated, err := r.Scatter(sortedValues, mask, 0)
	if err != nil {
		return nil, err
	}
	sampledInSortedOrder, err := r.Multinomial(truncated, samples, seed)
	if err != nil {
		return nil, err
	}
	return r.Gather(sortedIndices, sampledInSortedOrder)
}

// gt produces a 0/1 mask of a > threshold, used by NucleusSample to
// truncate the cumulative-probability tail beyond p.
func (r *Runtime) gt(a *future.Tensor, threshold float32) (*future.Tensor, error) {
	av := a.GetNoWait()
	out, err := r.allocOutput(tensor.DTypeBool, av.Sizes()...)
	if err != nil {
		return nil, err
	}
	kernel := "gt_" + av.DType().String()
	max, err := r.maxThreadsFor(kernel)
	if err != nil {
		return nil, err
	}
	grid, group := elementwiseGrid(av.Numel(), max)
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(av), ScalarArg(float32Bytes(threshold)))
	return r.dispatch(out, task)
}
