package model

import "testing"

func TestPermuteRopeRowsReordersPairedHalves(t *testing.T) {
	// 1 head, headDim=4 (half=2), rowBytes=1: rows tagged by their
	// logical (part,i) identity so the reorder is easy to check.
	heads, headDim, rowBytes := 1, 4, 1
	// (heads,2,half) order: part0/i0, part0/i1, part1/i0, part1/i1
	buf := []byte{10, 11, 20, 21}
	out := permuteRopeRows(buf, rowBytes, heads, headDim)
	// (heads,half,2) order: i0/part0, i0/part1, i1/part0, i1/part1
	want := []byte{10, 20, 11, 21}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
	if string(buf) != string([]byte{10, 11, 20, 21}) {
		t.Fatalf("buf mutated in place: %v", buf)
	}
}

func TestPermuteRopeRowsMultiHead(t *testing.T) {
	heads, headDim, rowBytes := 2, 4, 1
	buf := []byte{
		10, 11, 20, 21, // head 0
		110, 111, 120, 121, // head 1
	}
	out := permuteRopeRows(buf, rowBytes, heads, headDim)
	want := []byte{
		10, 20, 11, 21,
		110, 120, 111, 121,
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}
