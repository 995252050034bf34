//go:build darwin && arm64

package metal

import (
	"fmt"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
)

// Matmul computes a @ b, broadcasting a (B,M,K) batch against an
// unbatched (K,N) right-hand side, and flattening any rank above 3 down
// to (B,M,K) before dispatch and restoring it on the output. Fails on
// mismatched contraction or batch dimensions.
func (r *Runtime) Matmul(a, b *future.Tensor) (*future.Tensor, error) {
	av, bv := a.GetNoWait(), b.GetNoWait()

	af, leading, err := flattenBatch(av)
	if err != nil {
		return nil, err
	}
	bf := bv
	if bv.Rank() == 2 {
		// Broadcast: every batch of af shares the same (K,N) matrix.
	} else {
		var berr error
		bf, _, berr = flattenBatch(bv)
		if berr != nil {
			return nil, berr
		}
	}

	B, M, K := af.Size(0), af.Size(1), af.Size(2)
	var bK, N int
	if bf.Rank() == 2 {
		bK, N = bf.Size(0), bf.Size(1)
	} else {
		if bf.Size(0) != B {
			return nil, fmt.Errorf("%w: matmul: batch %d != %d", tensor.ErrInvalidArgument, bf.Size(0), B)
		}
		bK, N = bf.Size(1), bf.Size(2)
	}
	if bK != K {
		return nil, fmt.Errorf("%w: matmul: contraction dim %d != %d", tensor.ErrInvalidArgument, K, bK)
	}

	out, err := r.allocOutput(av.DType(), B, M, N)
	if err != nil {
		return nil, err
	}
	outRestored, err := restoreBatch(out, leading)
	if err != nil {
		return nil, err
	}

	group := NewDim3(16, 16, 1)
	grid := NewDim3(ceilDiv(N, 16)*16, ceilDiv(M, 16)*16, B)
	if err := ValidateGrid(grid, group, 16*16); err != nil {
		return nil, err
	}

	kernel := "matmul_" + av.DType().String()
	task := NewTask(kernel, grid, group, TensorArg(out), TensorArg(af), TensorArg(bf))
	fut, err := r.dispatch(out, task)
	if err != nil {
		return nil, err
	}
	return future.NewTask(outRestored, func() error { _, err := fut.Get(); return err }), nil
}

// flattenBatch collapses every leading dim above rank 3 into the batch
// dim, returning the folded view and the leading sizes to restore later.
func flattenBatch(v *tensor.View) (*tensor.View, []int, error) {
	if v.Rank() <= 3 {
		return v, nil, nil
	}
	leading := v.Sizes()[:v.Rank()-2]
	folded, err := v.Flatten(0, v.Rank()-3)
	if err != nil {
		return nil, nil, err
	}
	return folded, leading, nil
}

func restoreBatch(v *tensor.View, leading []int) (*tensor.View, error) {
	if leading == nil {
		return v, nil
	}
	shape := append(append([]int(nil), leading...), v.Size(1), v.Size(2))
	return v.View(shape...)
}
