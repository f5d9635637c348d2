package aio

import "sync"

// FaultBackend wraps another Backend and lets tests inject a failure
// into one specific, numbered call of a chosen operation, for
// exercising the state machine's I/O-failure recovery paths (a bitmap
// write that fails, a BAT write that fails) without a real disk ever
// misbehaving.
type FaultBackend struct {
	inner Backend

	mu    sync.Mutex
	calls map[string]int
	faset map[string]int
	ferr  map[string]error
}

var _ Backend = (*FaultBackend)(nil)

// NewFaultBackend wraps inner, initially passing every call through.
func NewFaultBackend(inner Backend) *FaultBackend {
	return &FaultBackend{
		inner: inner,
		calls: make(map[string]int),
		faset: make(map[string]int),
		ferr:  make(map[string]error),
	}
}

// FailOnCall arranges for the callIndex-th (1-indexed) call to the
// named operation ("read", "write", "sync") to return err instead of
// reaching inner. Every other call passes through.
func (f *FaultBackend) FailOnCall(op string, callIndex int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faset[op] = callIndex
	f.ferr[op] = err
}

func (f *FaultBackend) shouldFail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.faset[op] != 0 && f.calls[op] == f.faset[op] {
		return f.ferr[op]
	}
	return nil
}

func (f *FaultBackend) ReadAt(p []byte, off int64) error {
	if err := f.shouldFail("read"); err != nil {
		return err
	}
	return f.inner.ReadAt(p, off)
}

func (f *FaultBackend) WriteAt(p []byte, off int64) error {
	if err := f.shouldFail("write"); err != nil {
		return err
	}
	return f.inner.WriteAt(p, off)
}

func (f *FaultBackend) Truncate(size int64) error { return f.inner.Truncate(size) }
func (f *FaultBackend) Size() (int64, error)      { return f.inner.Size() }

func (f *FaultBackend) Sync() error {
	if err := f.shouldFail("sync"); err != nil {
		return err
	}
	return f.inner.Sync()
}

func (f *FaultBackend) Close() error { return f.inner.Close() }
