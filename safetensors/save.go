package safetensors

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Save writes entries to path in insertion order, re-encoding the JSON
// header and writing every tensor's bytes in parallel (one goroutine per
// entry, capped at GOMAXPROCS), mirroring
// fs/ggml/gguf_write.go's WriteGGUF offset-then-parallel-body shape,
// adapted to the single safetensors JSON header instead of GGUF's binary
// magic/KV/tensor-info sections. Aliased entries (sharing one Container)
// are detected by pointer identity and emitted once, every alias pointing
// at the same data_offsets range.
func Save(path string, entries []Entry, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	type rawOut struct {
		DType       string   `json:"dtype"`
		Shape       []int    `json:"shape"`
		DataOffsets [2]int64 `json:"data_offsets"`
	}
	raw := make(map[string]json.RawMessage, len(entries)+1)

	seen := make(map[any][2]int64)
	var offset int64
	order := make([]Entry, 0, len(entries))
	ranges := make(map[string][2]int64, len(entries))

	for _, e := range entries {
		key := e.Container
		if rng, ok := seen[key]; ok {
			ranges[e.Name] = rng
			continue
		}
		size := int64(e.Container.ByteSize())
		rng := [2]int64{offset, offset + size}
		seen[key] = rng
		ranges[e.Name] = rng
		offset += size
		order = append(order, e)
	}

	for _, e := range entries {
		b, err := json.Marshal(rawOut{DType: e.DType.String(), Shape: e.Shape, DataOffsets: ranges[e.Name]})
		if err != nil {
			return err
		}
		raw[e.Name] = b
	}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw["__metadata__"] = b
	}

	headerBytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	var lengthPrefix [8]byte
	binary.LittleEndian.PutUint64(lengthPrefix[:], uint64(len(headerBytes)))
	if _, err := f.Write(lengthPrefix[:]); err != nil {
		return err
	}
	if _, err := f.Write(headerBytes); err != nil {
		return err
	}

	bodyStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range order {
		e := e
		rng := ranges[e.Name]
		g.Go(func() error {
			w := io.NewOffsetWriter(f, bodyStart+rng[0])
			_, err := w.Write(e.Container.Bytes())
			return err
		})
	}
	return g.Wait()
}
