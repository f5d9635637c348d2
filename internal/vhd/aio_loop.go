package vhd

import (
	"github.com/blocktap/govhd/internal/aio"
)

// submitData appends a caller-visible data request to the pending
// submission vector at the given byte offset into the backing file.
func (d *Driver) submitData(req *Request, offsetBytes int64) {
	op := aio.OpRead
	if req.op == OpDataWrite {
		op = aio.OpWrite
	}
	d.submission = append(d.submission, &aio.IOCB{Op: op, Offset: offsetBytes, Buffer: req.buf, UserData: req})
}

// submitMeta appends one of the state machine's own metadata requests
// (bitmap read/write, zero-bitmap write, BAT write) to the submission
// vector. buf is retained on req so the finisher can inspect it.
func (d *Driver) submitMeta(req *Request, offsetBytes int64, buf []byte) {
	req.buf = buf
	op := aio.OpWrite
	if req.op == OpBitmapRead {
		op = aio.OpRead
	}
	d.submission = append(d.submission, &aio.IOCB{Op: op, Offset: offsetBytes, Buffer: buf, UserData: req})
}

// Submit flushes the pending submission vector to the AIO context. If
// the scheduler's run built up multiple IOCBs across several calls,
// a single Submit call issues them all in one batch.
func (d *Driver) Submit() error {
	if len(d.submission) == 0 {
		return nil
	}
	batch := d.submission
	d.submission = nil
	return d.aioCtx.Submit(batch)
}

// DoCallbacks drains every completion currently available, dispatches
// each to its finisher, and re-submits if finishers enqueued further
// I/O as a result.
func (d *Driver) DoCallbacks() error {
	if err := d.Submit(); err != nil {
		return err
	}

	completions := d.aioCtx.Poll()
	for _, comp := range completions {
		req, ok := comp.IOCB.UserData.(*Request)
		if !ok {
			continue
		}
		if comp.Err != nil {
			req.err = comp.Err
		} else if comp.N != len(comp.IOCB.Buffer) {
			req.err = ErrIO
		}
		d.finish(req)
	}

	if len(d.submission) > 0 {
		return d.Submit()
	}
	return nil
}
