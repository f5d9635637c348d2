package vhd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blocktap/govhd/internal/aio"
	"github.com/blocktap/govhd/internal/config"
	"github.com/blocktap/govhd/internal/vhdformat"
)

// newFaultTestDriver builds a sparse image on an in-memory backend
// wrapped in a FaultBackend, with a single AIO worker so writes land
// in deterministic submission order -- required for FailOnCall's
// numbered-call targeting to hit the operation the test intends.
func newFaultTestDriver(t *testing.T) (*Driver, *aio.FaultBackend) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.vhd")
	require.NoError(t, vhdformat.Create(path, vhdformat.CreateOptions{
		SizeBytes: 64 * 1024,
		Sparse:    true,
		BlockSize: 4096,
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	mem := aio.NewMemoryBackend(int64(len(raw)))
	require.NoError(t, mem.WriteAt(raw, 0))
	fault := aio.NewFaultBackend(mem)

	cfg := config.Default()
	cfg.AIOWorkers = 1
	cfg.AIOQueueDepth = 64
	cfg.DataReqs = 64

	d, err := openBackend(fault, path, OpenOptions{Config: cfg}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { d.aioCtx.Close() })
	return d, fault
}

// TestAllocatingWriteSurfacesZeroBitmapWriteFailure: an allocating
// write submits its zero-bitmap write first. If that write fails, the
// reservation must be aborted (so a retry can reuse the slot) and the
// caller's write must see the error rather than silently succeeding.
func TestAllocatingWriteSurfacesZeroBitmapWriteFailure(t *testing.T) {
	d, fault := newFaultTestDriver(t)
	injected := errors.New("zero-bitmap write failed")
	fault.FailOnCall("write", 1, injected)

	buf := make([]byte, 8*vhdformat.SectorSize)
	var gotErr error
	done := false
	require.NoError(t, d.QueueWrite(0, 8, buf, func(req *Request, err error) {
		gotErr = err
		done = true
	}, nil))
	pumpUntil(t, d, func() bool { return done })

	require.ErrorIs(t, gotErr, injected)
	require.True(t, d.bat.isUnused(0), "a failed allocation leaves the block unused")
	require.False(t, d.bat.locked, "the reservation slot must be released on failure")
}

// TestAllocatingWriteSurfacesBATWriteFailure lets the zero-bitmap
// write (call 1) and the data write (call 2) land, then fails the BAT
// sector write (call 3) that the zero-bitmap write's own finisher
// schedules -- verifying the same abort-and-surface behavior fires no
// matter which of the transaction's metadata writes fails.
func TestAllocatingWriteSurfacesBATWriteFailure(t *testing.T) {
	d, fault := newFaultTestDriver(t)
	injected := errors.New("bat write failed")
	fault.FailOnCall("write", 3, injected)

	buf := make([]byte, 8*vhdformat.SectorSize)
	var gotErr error
	done := false
	require.NoError(t, d.QueueWrite(0, 8, buf, func(req *Request, err error) {
		gotErr = err
		done = true
	}, nil))
	pumpUntil(t, d, func() bool { return done })

	require.ErrorIs(t, gotErr, injected)
	require.True(t, d.bat.isUnused(0))
	require.False(t, d.bat.locked)
}
