package safetensors

import (
	"fmt"

	"github.com/ybubnov/metalchat/layer"
	"github.com/ybubnov/metalchat/tensor"
)

// Bind resolves every parameter path registered on l against a, in
// breadth-first order: the archive is queried by path, the parameter's
// sizes are reset to the archive shape, and its container is replaced by
// the archive entry's container. A dtype or rank mismatch between the
// placeholder a path was registered with and the archive entry bound to
// it is reported as ErrBindMismatch.
func Bind(l layer.Layer, a *Archive) error {
	return l.Apply(func(path string, placeholder *tensor.View) error {
		e, err := a.Entry(path)
		if err != nil {
			return err
		}
		if e.DType != placeholder.DType() || len(e.Shape) != placeholder.Rank() {
			return fmt.Errorf("%w: %s: registered as %s rank %d, archive has %s shape %v",
				ErrBindMismatch, path, placeholder.DType(), placeholder.Rank(), e.DType, e.Shape)
		}
		return l.SetParameter(path, tensor.New(e.Container, e.DType, e.Shape...))
	}, true)
}
