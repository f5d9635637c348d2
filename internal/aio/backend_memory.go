package aio

import "fmt"

// MemoryBackend implements Backend over an in-memory byte slice, for
// tests and benchmarks that want to exercise the scheduler and
// transaction engine without touching a filesystem.
type MemoryBackend struct {
	data []byte
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns a backend pre-sized to size bytes.
func NewMemoryBackend(size int64) *MemoryBackend {
	return &MemoryBackend{data: make([]byte, size)}
}

func (m *MemoryBackend) ReadAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return fmt.Errorf("aio: read at %d len %d out of range (size %d)", off, len(p), len(m.data))
	}
	copy(p, m.data[off:])
	return nil
}

func (m *MemoryBackend) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return fmt.Errorf("aio: write at %d len %d out of range (size %d)", off, len(p), len(m.data))
	}
	copy(m.data[off:], p)
	return nil
}

func (m *MemoryBackend) Truncate(size int64) error {
	if int64(len(m.data)) == size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *MemoryBackend) Size() (int64, error) {
	return int64(len(m.data)), nil
}

func (m *MemoryBackend) Sync() error { return nil }

func (m *MemoryBackend) Close() error { return nil }
