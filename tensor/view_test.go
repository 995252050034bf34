package tensor

import "testing"

func TestViewRoundTrip(t *testing.T) {
	c := NewRandomContainer(24 * 4)
	v := New(c, DTypeF32, 2, 3, 4)

	out, err := v.View(v.Sizes()...)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if out.Container() != v.Container() {
		t.Fatalf("View should alias the same container")
	}
	for i := 0; i < v.Rank(); i++ {
		if out.Stride(i) != v.Stride(i) {
			t.Fatalf("dim %d: stride mismatch got %d want %d", i, out.Stride(i), v.Stride(i))
		}
	}
}

func TestNarrowNumel(t *testing.T) {
	c := NewRandomContainer(2 * 3 * 4 * 4)
	v := New(c, DTypeF32, 2, 3, 4)

	n, err := v.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	rest := 1
	for i, s := range v.Sizes() {
		if i != 1 {
			rest *= s
		}
	}
	if n.Numel() != 2*rest {
		t.Fatalf("numel = %d, want %d", n.Numel(), 2*rest)
	}
}

func TestTransposeInverse(t *testing.T) {
	c := NewRandomContainer(2 * 3 * 4 * 4)
	v := New(c, DTypeF32, 2, 3, 4)

	perm := []int{2, 0, 1}
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}

	tp, err := v.Transpose(perm...)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}
	back, err := tp.Transpose(inv...)
	if err != nil {
		t.Fatalf("Transpose inverse: %v", err)
	}

	for i := 0; i < v.Rank(); i++ {
		if back.Size(i) != v.Size(i) || back.Stride(i) != v.Stride(i) {
			t.Fatalf("dim %d: round trip mismatch", i)
		}
	}
}

func TestViewDeducesSingleDim(t *testing.T) {
	c := NewRandomContainer(24 * 4)
	v := New(c, DTypeF32, 2, 3, 4)

	out, err := v.View(6, -1)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if out.Size(1) != 4 {
		t.Fatalf("deduced size = %d, want 4", out.Size(1))
	}

	if _, err := v.View(-1, -1); err == nil {
		t.Fatalf("expected error for two deduced dims")
	}
}

func TestViewRejectsNonContiguous(t *testing.T) {
	c := NewRandomContainer(2 * 3 * 4 * 4)
	v := New(c, DTypeF32, 2, 3, 4)

	tp, err := v.Transpose(0, 2, 1)
	if err != nil {
		t.Fatalf("Transpose: %v", err)
	}
	if _, err := tp.View(24); err == nil {
		t.Fatalf("expected non-contiguous view error")
	}
}
