package mmap

import (
	"fmt"
	"io"
	"os"

	mmapgo "github.com/edsrzf/mmap-go"
)

// MmapStore is a read-only memory map of a whole archive file.
type MmapStore struct {
	file *os.File
	data mmapgo.MMap
}

// NewMmapStore opens the file and maps it into memory.
// It handles the edge case where the file is empty (0 bytes).
func NewMmapStore(path string) (*MmapStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close() // Don't leak the fd if stat fails
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// Mapping a zero-length file fails with EINVAL.
	if fi.Size() == 0 {
		return &MmapStore{file: f}, nil
	}

	data, err := mmapgo.Map(f, mmapgo.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap: %w", err)
	}

	return &MmapStore{
		file: f,
		data: data,
	}, nil
}

// Close cleans up the memory map and closes the file handle.
func (m *MmapStore) Close() error {
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			// Try to close file anyway before returning
			m.file.Close()
			return fmt.Errorf("munmap failed: %w", err)
		}
		m.data = nil
	}

	return m.file.Close()
}

// Slice returns a view of the mapped bytes (zero copy). The view is only
// valid until Close.
func (m *MmapStore) Slice(offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(m.data)) {
		return nil, fmt.Errorf("out of bounds: len=%d, req_off=%d, req_len=%d", len(m.data), offset, length)
	}

	return m.data[offset : offset+int64(length)], nil
}

// ReadAt implements io.ReaderAt over the mapping.
func (m *MmapStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MmapStore) Size() int64 {
	return int64(len(m.data))
}

var _ io.ReaderAt = (*MmapStore)(nil)
