package aio

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is the Err of the completion Submit synthesizes for a
// control block it could not admit because the context's in-flight
// depth was already saturated. Package vhd's DoCallbacks records it on
// the request and runs the finisher like any other failed I/O.
var ErrQueueFull = errors.New("aio: queue full")

// Context stands in for a kernel AIO context: a fixed in-flight event
// capacity, a batch submit call, and a non-blocking completion drain.
// Submission crosses into a worker pool; draining never blocks, so the
// caller's single-threaded scheduling loop never stalls on I/O.
type Context struct {
	backend Backend
	log     *zap.Logger

	jobCh  chan *IOCB
	doneCh chan Completion
	sem    *semaphore.Weighted

	wg sync.WaitGroup
}

// NewContext starts workers workers draining a job queue of depth
// queueDepth, all reading/writing against backend. Closing the
// returned Context stops every worker once in-flight work drains.
func NewContext(backend Backend, workers, queueDepth int, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Context{
		backend: backend,
		log:     log,
		jobCh:   make(chan *IOCB, queueDepth),
		doneCh:  make(chan Completion, queueDepth),
		sem:     semaphore.NewWeighted(int64(queueDepth)),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Context) worker() {
	defer c.wg.Done()
	for job := range c.jobCh {
		c.execute(job)
	}
}

func (c *Context) execute(job *IOCB) {
	var err error
	switch job.Op {
	case OpRead:
		err = c.backend.ReadAt(job.Buffer, job.Offset)
	case OpWrite:
		err = c.backend.WriteAt(job.Buffer, job.Offset)
	default:
		err = fmt.Errorf("aio: unknown op kind %d", job.Op)
	}

	n := len(job.Buffer)
	if err != nil {
		n = 0
	}
	c.sem.Release(1)
	c.doneCh <- Completion{IOCB: job, N: n, Err: err}
}

// Submit enqueues a batch of control blocks. Any control block that
// cannot be admitted because the context is already at its in-flight
// capacity is synthesized into an immediate failure completion, the
// same treatment a kernel AIO context's submission failure gets --
// the caller finds out through the normal completion path, not
// through Submit's return value alone.
func (c *Context) Submit(batch []*IOCB) error {
	// Synthesized failures are delivered from their own goroutine so a
	// full completion channel never blocks the submitting caller.
	fail := func(job *IOCB) {
		go func() { c.doneCh <- Completion{IOCB: job, N: 0, Err: ErrQueueFull} }()
	}
	for _, job := range batch {
		if !c.sem.TryAcquire(1) {
			fail(job)
			continue
		}
		select {
		case c.jobCh <- job:
		default:
			c.sem.Release(1)
			fail(job)
		}
	}
	return nil
}

// Poll drains every completion currently available without blocking.
// It is the Go analogue of a non-blocking io_getevents call.
func (c *Context) Poll() []Completion {
	var out []Completion
	for {
		select {
		case comp := <-c.doneCh:
			out = append(out, comp)
		default:
			return out
		}
	}
}

// Close stops accepting new work and waits for in-flight and
// already-queued jobs to finish. It does not close the backend.
func (c *Context) Close() error {
	close(c.jobCh)
	c.wg.Wait()
	return nil
}
