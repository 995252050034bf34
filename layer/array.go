package layer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ybubnov/metalchat/tensor"
)

// Array holds children under integer names 0,1,2,… and is itself a Layer,
// so a model registers the whole array as a single named child (e.g.
// "layers") and paths like "layers.0.attention.wq.weight" resolve by
// descending through the array into the indexed item.
type Array[L Layer] struct {
	delimiter string
	items     []L
}

// NewArray builds an empty Array joining path segments with delimiter,
// matching the Basic layer it will be registered under.
func NewArray[L Layer](delimiter string) *Array[L] {
	return &Array[L]{delimiter: delimiter}
}

// PushBack appends item under the next integer index.
func (a *Array[L]) PushBack(item L) {
	a.items = append(a.items, item)
}

// EmplaceBack is PushBack under the name the original layer_array API
// uses; Go has no in-place construction to distinguish it by.
func (a *Array[L]) EmplaceBack(item L) { a.PushBack(item) }

// At returns the item registered at index i.
func (a *Array[L]) At(i int) L { return a.items[i] }

// Size returns the number of registered items.
func (a *Array[L]) Size() int { return len(a.items) }

func (a *Array[L]) splitPath(path string) (head, rest string, hasRest bool) {
	idx := strings.Index(path, a.delimiter)
	if idx < 0 {
		return path, "", false
	}
	return path[:idx], path[idx+len(a.delimiter):], true
}

// Child resolves name as a decimal index into the array.
func (a *Array[L]) Child(name string) (Layer, bool) {
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 || idx >= len(a.items) {
		return nil, false
	}
	return a.items[idx], true
}

// GetParameter descends into the indexed item named by path's first
// segment; the array itself never holds a leaf parameter.
func (a *Array[L]) GetParameter(path string) (*tensor.View, error) {
	head, rest, hasRest := a.splitPath(path)
	child, ok := a.Child(head)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChildNotRegistered, head)
	}
	if !hasRest {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotRegistered, path)
	}
	return child.GetParameter(rest)
}

// SetParameter resolves path the same way GetParameter does.
func (a *Array[L]) SetParameter(path string, v *tensor.View) error {
	head, rest, hasRest := a.splitPath(path)
	child, ok := a.Child(head)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChildNotRegistered, head)
	}
	if !hasRest {
		return fmt.Errorf("%w: %s", ErrParameterNotRegistered, path)
	}
	return child.SetParameter(rest, v)
}

// Apply visits every item's parameters in order, prefixing each path
// with the item's decimal index. The array itself owns no parameters,
// so recurse==false yields nothing.
func (a *Array[L]) Apply(fn func(path string, v *tensor.View) error, recurse bool) error {
	if !recurse {
		return nil
	}
	for i, item := range a.items {
		idx := strconv.Itoa(i)
		if err := item.Apply(func(path string, v *tensor.View) error {
			return fn(joinPath(a.delimiter, idx, path), v)
		}, recurse); err != nil {
			return err
		}
	}
	return nil
}
