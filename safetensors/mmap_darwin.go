//go:build darwin

package safetensors

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a read-only memory-mapped archive file. Its Bytes stay
// valid, and CPU/GPU-visible, for the lifetime of the Archive built from
// it — buffers wrapped no-copy over these bytes keep the mapping alive by
// reference, not by pinning pages explicitly.
type mappedFile struct {
	file *os.File
	data []byte
}

func openMapped(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("safetensors: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors: mmap %s: %w", path, err)
	}
	return &mappedFile{file: f, data: data}, nil
}

func (m *mappedFile) Close() error {
	err := unix.Munmap(m.data)
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
