package safetensors

import (
	"fmt"

	"github.com/ybubnov/metalchat/alloc"
	"github.com/ybubnov/metalchat/tensor"
)

// Entry is one named tensor in an archive: its declared dtype, shape, and
// the container backing it.
type Entry struct {
	Name      string
	DType     tensor.DType
	Shape     []int
	Container tensor.Container
}

// bufferSizer is implemented by alloc.Device implementations that can
// report their maximum single-buffer size (ml/metal.Device does). An
// archive whose raw region exceeds this must be split across more than
// one GPU buffer.
type bufferSizer interface {
	MaxBufferLength() int
}

// Archive is a loaded, named sequence of tensors plus any
// __metadata__ carried in the header. Archive values are immutable once
// returned by Open; adapters (see the hfadapter package) build new Archives rather
// than mutating one in place.
type Archive struct {
	entries  []Entry
	byName   map[string]int
	metadata map[string]string
	mapped   *mappedFile
	resident *alloc.GPUResident

	// shards holds the per-file archives a sharded OpenSharded merge was
	// built from, keyed by shard filename, so Close/Detach can fan out
	// over them. nil for a single-file archive.
	shards map[string]*Archive
}

// Open parses path's header, memory-maps the file, and partitions its raw
// tensor region into one or more GPU buffers (each bounded by device's
// reported maximum buffer size), binding each tensor's container to a
// zero-copy slice of the buffer it falls within. Buffers are made
// resident; callers that are done issuing kernels against this archive
// should call Detach to release that residency (the mapping itself stays
// open until Close).
func Open(path string, device alloc.Device) (*Archive, error) {
	mapped, err := openMapped(path)
	if err != nil {
		return nil, err
	}

	hdr, bodyOffset, err := parseHeader(mapped.data)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	body := mapped.data[bodyOffset:]

	maxBufferSize := len(body)
	if sizer, ok := device.(bufferSizer); ok && sizer.MaxBufferLength() > 0 {
		maxBufferSize = sizer.MaxBufferLength()
	}

	partitionCount := 0
	if maxBufferSize > 0 {
		partitionCount = (len(body) + maxBufferSize - 1) / maxBufferSize
	}

	nocopy := alloc.NewGPUNocopy(alloc.NewRandom(), device)
	resident := alloc.NewGPUResident(nocopy, device, partitionCount)

	buffers, bounds, err := partition(resident, body, maxBufferSize)
	if err != nil {
		mapped.Close()
		return nil, err
	}

	entries := make([]Entry, 0, len(hdr.names))
	byName := make(map[string]int, len(hdr.names))
	for _, name := range hdr.names {
		raw := hdr.entries[name]
		dtype, ok := tensor.ParseDType(raw.DType)
		if !ok {
			mapped.Close()
			return nil, fmt.Errorf("%w: %s: unknown dtype %q", ErrBadHeader, name, raw.DType)
		}

		begin, end := raw.DataOffsets[0], raw.DataOffsets[1]
		bufIdx, localOffset, err := locate(bounds, begin, end)
		if err != nil {
			mapped.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		container := tensor.NewSliceContainer(buffers[bufIdx], localOffset, int(end-begin))
		byName[name] = len(entries)
		entries = append(entries, Entry{Name: name, DType: dtype, Shape: raw.Shape, Container: container})
	}

	return &Archive{entries: entries, byName: byName, metadata: hdr.metadata, mapped: mapped, resident: resident}, nil
}

// partition wraps body as one or more no-copy GPU buffers, each at most
// maxBufferSize bytes, and returns the buffers alongside the [start,end)
// byte range (within body) each one covers.
func partition(a alloc.Allocator, body []byte, maxBufferSize int) ([]tensor.Container, [][2]int64, error) {
	var buffers []tensor.Container
	var bounds [][2]int64
	for start := 0; start < len(body); start += maxBufferSize {
		end := start + maxBufferSize
		if end > len(body) {
			end = len(body)
		}
		chunk := body[start:end]
		c, err := a.AllocateFrom(chunk, len(chunk))
		if err != nil {
			return nil, nil, err
		}
		buffers = append(buffers, c)
		bounds = append(bounds, [2]int64{int64(start), int64(end)})
	}
	return buffers, bounds, nil
}

// locate finds which partition buffer a [begin,end) byte range (relative
// to the whole raw region) falls within, and that range's offset local to
// the buffer. A tensor's data_offsets never span a buffer boundary,
// because Open never splits body except along partition boundaries laid
// out before any tensor is located.
func locate(bounds [][2]int64, begin, end int64) (int, int, error) {
	for i, b := range bounds {
		if begin >= b[0] && end <= b[1] {
			return i, int(begin - b[0]), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: data range [%d,%d) is not contained in a single partition", ErrBadHeader, begin, end)
}

// Entries returns every tensor entry. For an archive from Open they are in
// header (sorted-by-offset) order; an OpenSharded archive lists them in no
// fixed order.
func (a *Archive) Entries() []Entry { return a.entries }

// Entry looks up name, reporting ErrNotFound if absent.
func (a *Archive) Entry(name string) (Entry, error) {
	idx, ok := a.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return a.entries[idx], nil
}

// Metadata returns the archive's __metadata__ string map, or nil if it
// carried none.
func (a *Archive) Metadata() map[string]string { return a.metadata }

// Detach ends residency for every GPU buffer this archive (or, for a
// sharded archive, any of its shard files) allocated.
// Kernels bound to its tensors must not be dispatched afterward.
func (a *Archive) Detach() error {
	if a.shards != nil {
		for _, s := range a.shards {
			if err := s.Detach(); err != nil {
				return err
			}
		}
		return nil
	}
	return a.resident.Detach()
}

// Close ends residency (if not already detached) and unmaps the
// underlying file(s).
func (a *Archive) Close() error {
	if a.shards != nil {
		var err error
		for _, s := range a.shards {
			if cerr := s.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	_ = a.resident.Detach()
	return a.mapped.Close()
}

// WithEntries returns a shallow copy of a with entries replaced — the
// mechanism adapters (see the hfadapter package) use to produce a
// renamed/aliased view of the same underlying containers without copying
// tensor data.
func (a *Archive) WithEntries(entries []Entry) *Archive {
	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}
	return &Archive{entries: entries, byName: byName, metadata: a.metadata, mapped: a.mapped, resident: a.resident, shards: a.shards}
}
