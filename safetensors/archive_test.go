package safetensors

import (
	"testing"

	"github.com/ybubnov/metalchat/alloc"
)

func TestPartitionSplitsAtMaxBufferSize(t *testing.T) {
	body := make([]byte, 10)
	for i := range body {
		body[i] = byte(i)
	}

	buffers, bounds, err := partition(alloc.NewRandom(), body, 4)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(buffers) != 3 {
		t.Fatalf("expected 3 buffers for 10 bytes split by 4, got %d", len(buffers))
	}
	wantBounds := [][2]int64{{0, 4}, {4, 8}, {8, 10}}
	for i, b := range bounds {
		if b != wantBounds[i] {
			t.Fatalf("bound %d = %v, want %v", i, b, wantBounds[i])
		}
	}
}

func TestLocateFindsContainingBuffer(t *testing.T) {
	bounds := [][2]int64{{0, 4}, {4, 8}, {8, 10}}

	idx, local, err := locate(bounds, 5, 8)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if idx != 1 || local != 1 {
		t.Fatalf("locate(5,8) = (%d,%d), want (1,1)", idx, local)
	}
}

func TestLocateRejectsSpanningRange(t *testing.T) {
	bounds := [][2]int64{{0, 4}, {4, 8}}
	if _, _, err := locate(bounds, 2, 6); err == nil {
		t.Fatalf("expected error for a range spanning two buffers")
	}
}
