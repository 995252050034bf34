package layer

import (
	"errors"
	"testing"

	"github.com/ybubnov/metalchat/tensor"
)

func newParam(sizes ...int) *tensor.View {
	c := tensor.NewRandomContainer(numel(sizes) * tensor.DTypeF32.Size())
	return tensor.New(c, tensor.DTypeF32, sizes...)
}

func numel(sizes []int) int {
	n := 1
	for _, s := range sizes {
		n *= s
	}
	return n
}

func TestGetSetParameterNested(t *testing.T) {
	child := NewBasic(".")
	child.RegisterParameter("weight", newParam(4))

	root := NewBasic(".")
	root.RegisterChild("norm", child)

	v, err := root.GetParameter("norm.weight")
	if err != nil {
		t.Fatalf("GetParameter: %v", err)
	}
	if v.Size(0) != 4 {
		t.Fatalf("unexpected size %d", v.Size(0))
	}

	replacement := newParam(4)
	if err := root.SetParameter("norm.weight", replacement); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	got, _ := root.GetParameter("norm.weight")
	if got != replacement {
		t.Fatalf("SetParameter did not replace the registered view")
	}
}

func TestSetParameterRejectsRankMismatch(t *testing.T) {
	root := NewBasic(".")
	root.RegisterParameter("weight", newParam(4))

	err := root.SetParameter("weight", newParam(2, 2))
	if !errors.Is(err, ErrParameterTypeMismatch) {
		t.Fatalf("expected ErrParameterTypeMismatch, got %v", err)
	}
}

func TestGetParameterMissingReturnsNotRegistered(t *testing.T) {
	root := NewBasic(".")
	if _, err := root.GetParameter("missing"); !errors.Is(err, ErrParameterNotRegistered) {
		t.Fatalf("expected ErrParameterNotRegistered, got %v", err)
	}
}

func TestApplyVisitsBreadthFirstInInsertionOrder(t *testing.T) {
	root := NewBasic(".")
	root.RegisterParameter("a", newParam(1))

	child := NewBasic(".")
	child.RegisterParameter("b", newParam(1))
	root.RegisterChild("layers", child)

	root.RegisterParameter("c", newParam(1))

	var paths []string
	err := root.Apply(func(path string, v *tensor.View) error {
		paths = append(paths, path)
		return nil
	}, true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []string{"a", "c", "layers.b"}
	if len(paths) != len(want) {
		t.Fatalf("Apply visited %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("Apply visited %v, want %v", paths, want)
		}
	}
}

func TestArrayRegistersChildrenByIndex(t *testing.T) {
	root := NewBasic(".")
	arr := NewArray[*Basic](".")
	root.RegisterChild("layers", arr)

	for i := 0; i < 3; i++ {
		l := NewBasic(".")
		l.RegisterParameter("weight", newParam(1))
		arr.PushBack(l)
	}

	if arr.Size() != 3 {
		t.Fatalf("expected 3 items, got %d", arr.Size())
	}
	v, err := root.GetParameter("layers.1.weight")
	if err != nil {
		t.Fatalf("GetParameter: %v", err)
	}
	if v == nil {
		t.Fatalf("expected a resolved parameter")
	}
}

type closeableLayer struct {
	*Basic
	closed bool
}

func (c *closeableLayer) Close() error {
	c.closed = true
	return nil
}

func TestIndirectReleasesOnLastReference(t *testing.T) {
	inner := &closeableLayer{Basic: NewBasic(".")}
	h := NewIndirect[*closeableLayer](inner)
	h2 := h.Retain()

	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if inner.closed {
		t.Fatalf("closed after first release with a reference still outstanding")
	}

	if err := h2.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !inner.closed {
		t.Fatalf("expected Close to run once the last reference released")
	}
}
