package aio

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileBackend implements Backend against a regular file on disk. When
// DirectIO is requested and the platform supports O_DIRECT, callers
// must supply page-aligned buffers of a multiple of 512 bytes --
// AlignedBuffer below allocates buffers meeting that requirement.
type FileBackend struct {
	f *os.File
}

var _ Backend = (*FileBackend)(nil)

// OpenFileBackend opens path for read/write, creating it if create is
// true. directIO requests O_DIRECT on platforms where unix.O_DIRECT is
// defined; it is silently ignored elsewhere.
func OpenFileBackend(path string, create, directIO bool) (*FileBackend, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	if directIO && runtime.GOOS == "linux" {
		flags |= unix.O_DIRECT
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("aio: opening %s: %w", path, err)
	}
	return &FileBackend{f: f}, nil
}

func (b *FileBackend) ReadAt(p []byte, off int64) error {
	n, err := b.f.ReadAt(p, off)
	if err != nil && n != len(p) {
		return fmt.Errorf("aio: read at %d: %w", off, err)
	}
	return nil
}

func (b *FileBackend) WriteAt(p []byte, off int64) error {
	if _, err := b.f.WriteAt(p, off); err != nil {
		return fmt.Errorf("aio: write at %d: %w", off, err)
	}
	return nil
}

func (b *FileBackend) Truncate(size int64) error {
	if err := b.f.Truncate(size); err != nil {
		return fmt.Errorf("aio: truncate to %d: %w", size, err)
	}
	return nil
}

func (b *FileBackend) Size() (int64, error) {
	stat, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (b *FileBackend) Sync() error {
	if err := b.f.Sync(); err != nil {
		return fmt.Errorf("aio: sync: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	if err := b.f.Close(); err != nil {
		return fmt.Errorf("aio: close: %w", err)
	}
	return nil
}

// AlignedBuffer returns a byte slice of length n whose first byte sits
// on a page boundary, as O_DIRECT requires on Linux.
func AlignedBuffer(n int) []byte {
	const pageSize = 4096
	buf := make([]byte, n+pageSize)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := 0
	if rem := addr % pageSize; rem != 0 {
		offset = int(pageSize - rem)
	}
	return buf[offset : offset+n]
}
