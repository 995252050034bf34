package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
)

// rawEntry is one JSON header value, as declared by the safetensors wire
// format.
type rawEntry struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// header is the fully parsed JSON header: every non-metadata key in
// entries, sorted by DataOffsets[0], plus the reserved __metadata__
// string map.
type header struct {
	names    []string
	entries  map[string]rawEntry
	metadata map[string]string
}

// parseHeader reads the 8-byte length prefix and the JSON header that
// follows it, returning the header and the byte offset where raw tensor
// data begins.
func parseHeader(data []byte) (*header, int64, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("%w: file shorter than length prefix", ErrBadHeader)
	}
	length := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)) < 8+length {
		return nil, 0, fmt.Errorf("%w: declared length %d exceeds file size", ErrBadHeader, length)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+length], &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}

	h := &header{entries: make(map[string]rawEntry, len(raw))}
	for name, msg := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(msg, &h.metadata); err != nil {
				return nil, 0, fmt.Errorf("%w: __metadata__: %w", ErrBadHeader, err)
			}
			continue
		}
		var e rawEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %w", ErrBadHeader, name, err)
		}
		h.entries[name] = e
		h.names = append(h.names, name)
	}

	sort.Slice(h.names, func(i, j int) bool {
		return h.entries[h.names[i]].DataOffsets[0] < h.entries[h.names[j]].DataOffsets[0]
	})

	return h, int64(8 + length), nil
}
