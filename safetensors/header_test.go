package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"testing"
)

func buildHeaderBytes(t *testing.T, entries map[string]rawEntry, metadata map[string]string) []byte {
	t.Helper()
	raw := make(map[string]json.RawMessage, len(entries)+1)
	for name, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal entry: %v", err)
		}
		raw[name] = b
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			t.Fatalf("marshal metadata: %v", err)
		}
		raw["__metadata__"] = b
	}
	body, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	var out []byte
	var lengthPrefix [8]byte
	binary.LittleEndian.PutUint64(lengthPrefix[:], uint64(len(body)))
	out = append(out, lengthPrefix[:]...)
	out = append(out, body...)
	out = append(out, []byte("tensorbytes")...)
	return out
}

func TestParseHeaderSortsByOffset(t *testing.T) {
	data := buildHeaderBytes(t, map[string]rawEntry{
		"b": {DType: "F32", Shape: []int{2}, DataOffsets: [2]int64{4, 12}},
		"a": {DType: "F32", Shape: []int{1}, DataOffsets: [2]int64{0, 4}},
	}, map[string]string{"format": "pt"})

	hdr, bodyOffset, err := parseHeader(data)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if len(hdr.names) != 2 || hdr.names[0] != "a" || hdr.names[1] != "b" {
		t.Fatalf("names not sorted by offset: %v", hdr.names)
	}
	if hdr.metadata["format"] != "pt" {
		t.Fatalf("metadata not parsed: %v", hdr.metadata)
	}
	if int(bodyOffset) != 8+len(data)-8-len("tensorbytes") {
		t.Fatalf("unexpected body offset %d", bodyOffset)
	}
}

func TestParseHeaderRejectsShortFile(t *testing.T) {
	if _, _, err := parseHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for file shorter than length prefix")
	}
}

func TestParseHeaderRejectsTruncatedBody(t *testing.T) {
	data := buildHeaderBytes(t, map[string]rawEntry{
		"a": {DType: "F32", Shape: []int{1}, DataOffsets: [2]int64{0, 4}},
	}, nil)
	truncated := data[:10]
	if _, _, err := parseHeader(truncated); err == nil {
		t.Fatalf("expected error for truncated header body")
	}
}
