package layer

import "github.com/ybubnov/metalchat/tensor"

// Layer is the polymorphic interface every node in the layer graph
// implements: named parameter access, named child access, and a
// breadth-first visitor over both.
type Layer interface {
	// GetParameter resolves a dotted path (joined by this layer's
	// delimiter) to a registered parameter view.
	GetParameter(path string) (*tensor.View, error)

	// SetParameter resolves path and replaces its storage and layout
	// with v's, failing with ErrParameterTypeMismatch if v's dtype or
	// rank does not match the slot v was registered with.
	SetParameter(path string, v *tensor.View) error

	// Child resolves a single path segment to a registered child layer.
	Child(name string) (Layer, bool)

	// Apply visits every registered parameter in breadth-first order,
	// joining path segments with this layer's delimiter: this layer's own
	// parameters first, then its children's when recurse is true.
	Apply(fn func(path string, v *tensor.View) error, recurse bool) error
}
