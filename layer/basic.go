package layer

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ybubnov/metalchat/tensor"
)

// Basic is the concrete layer every architecture composes: an
// insertion-ordered parameter table, an insertion-ordered child table,
// and the path delimiter used to join segments in Apply/GetParameter.
type Basic struct {
	delimiter string
	params    *orderedmap.OrderedMap[string, *tensor.View]
	children  *orderedmap.OrderedMap[string, Layer]
}

// NewBasic constructs an empty layer joining path segments with
// delimiter (conventionally ".").
func NewBasic(delimiter string) *Basic {
	return &Basic{
		delimiter: delimiter,
		params:    orderedmap.New[string, *tensor.View](),
		children:  orderedmap.New[string, Layer](),
	}
}

// RegisterParameter declares a named parameter slot, in insertion order.
// Re-registering a name replaces its current view without changing its
// position.
func (b *Basic) RegisterParameter(name string, v *tensor.View) {
	b.params.Set(name, v)
}

// RegisterChild declares a named child layer, in insertion order.
func (b *Basic) RegisterChild(name string, l Layer) {
	b.children.Set(name, l)
}

// splitPath separates path's first segment from the remainder, using
// this layer's delimiter.
func (b *Basic) splitPath(path string) (head, rest string, hasRest bool) {
	idx := strings.Index(path, b.delimiter)
	if idx < 0 {
		return path, "", false
	}
	return path[:idx], path[idx+len(b.delimiter):], true
}

// GetParameter resolves path against this layer's parameter table,
// descending into a child layer for every leading path segment that
// names one.
func (b *Basic) GetParameter(path string) (*tensor.View, error) {
	head, rest, hasRest := b.splitPath(path)
	if !hasRest {
		v, ok := b.params.Get(head)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotRegistered, path)
		}
		return v, nil
	}

	child, ok := b.children.Get(head)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChildNotRegistered, head)
	}
	return child.GetParameter(rest)
}

// SetParameter resolves path the same way GetParameter does, then
// replaces the resolved slot's view, failing with
// ErrParameterTypeMismatch if v's dtype or rank does not match the
// slot currently registered there.
func (b *Basic) SetParameter(path string, v *tensor.View) error {
	head, rest, hasRest := b.splitPath(path)
	if !hasRest {
		existing, ok := b.params.Get(head)
		if !ok {
			return fmt.Errorf("%w: %s", ErrParameterNotRegistered, path)
		}
		if existing.DType() != v.DType() || existing.Rank() != v.Rank() {
			return fmt.Errorf("%w: %s: registered as %s rank %d, got %s rank %d",
				ErrParameterTypeMismatch, path, existing.DType(), existing.Rank(), v.DType(), v.Rank())
		}
		b.params.Set(head, v)
		return nil
	}

	child, ok := b.children.Get(head)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChildNotRegistered, head)
	}
	return child.SetParameter(rest, v)
}

// Child resolves a single path segment to a registered child layer.
func (b *Basic) Child(name string) (Layer, bool) {
	return b.children.Get(name)
}

// Apply visits every parameter breadth-first: first this layer's own
// parameters, then (if recurse) every child's parameters in turn, each
// path prefixed by the child's registered name.
func (b *Basic) Apply(fn func(path string, v *tensor.View) error, recurse bool) error {
	type queued struct {
		prefix string
		layer  Layer
	}
	queue := []queued{{prefix: "", layer: b}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		basic, ok := cur.layer.(*Basic)
		if !ok {
			// A non-Basic Layer only exposes Apply itself; delegate and
			// let it prefix its own paths.
			if err := cur.layer.Apply(func(path string, v *tensor.View) error {
				return fn(joinPath(b.delimiter, cur.prefix, path), v)
			}, recurse); err != nil {
				return err
			}
			continue
		}

		for pair := basic.params.Oldest(); pair != nil; pair = pair.Next() {
			if err := fn(joinPath(b.delimiter, cur.prefix, pair.Key), pair.Value); err != nil {
				return err
			}
		}

		if !recurse {
			continue
		}
		for pair := basic.children.Oldest(); pair != nil; pair = pair.Next() {
			queue = append(queue, queued{prefix: joinPath(b.delimiter, cur.prefix, pair.Key), layer: pair.Value})
		}
	}
	return nil
}

func joinPath(delimiter, prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + delimiter + segment
}
