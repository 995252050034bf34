package metal

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/x448/float16"

	"github.com/ybubnov/metalchat/tensor"
)

func TestValidateGrid(t *testing.T) {
	if err := ValidateGrid(NewDim3(64), NewDim3(32), 1024); err != nil {
		t.Fatalf("ValidateGrid: %v", err)
	}
	if err := ValidateGrid(NewDim3(64), NewDim3(2048), 1024); err == nil {
		t.Fatalf("expected error: threadgroup exceeds max")
	}
	if err := ValidateGrid(NewDim3(16), NewDim3(32), 1024); err == nil {
		t.Fatalf("expected error: grid smaller than threadgroup")
	}
}

func TestTaskBindFrontBackDoNotMutateBase(t *testing.T) {
	base := NewTask("softmax_f32", NewDim3(8), NewDim3(8), ScalarArg([]byte{1}))

	front := base.BindFront(ScalarArg([]byte{0}))
	if len(front.Args) != 2 {
		t.Fatalf("BindFront: len = %d, want 2", len(front.Args))
	}

	back := base.BindBack(ScalarArg([]byte{2}))
	if len(back.Args) != 2 {
		t.Fatalf("BindBack: len = %d, want 2", len(back.Args))
	}

	if len(base.Args) != 1 {
		t.Fatalf("base mutated: len = %d, want 1", len(base.Args))
	}
}

func TestScalarBytesForF32UsesFourBytes(t *testing.T) {
	b := scalarBytesFor(tensor.DTypeF32, 1.5)
	if len(b) != 4 {
		t.Fatalf("len = %d, want 4", len(b))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b)); got != 1.5 {
		t.Fatalf("decoded = %v, want 1.5", got)
	}
}

func TestScalarBytesForF16RoundTrips(t *testing.T) {
	b := scalarBytesFor(tensor.DTypeF16, 2.25)
	if len(b) != 2 {
		t.Fatalf("len = %d, want 2", len(b))
	}
	h := float16.Frombits(binary.LittleEndian.Uint16(b))
	if got := h.Float32(); got != 2.25 {
		t.Fatalf("decoded = %v, want 2.25", got)
	}
}

func TestDim3Volume(t *testing.T) {
	d := NewDim3(4, 5, 6)
	if d.Volume() != 120 {
		t.Fatalf("Volume() = %d, want 120", d.Volume())
	}
	if NewDim3(7).Volume() != 7 {
		t.Fatalf("default Y/Z should be 1")
	}
}
