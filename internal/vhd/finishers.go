package vhd

import "github.com/blocktap/govhd/internal/vhdformat"

// finish dispatches a completed request to its op-specific finisher --
// the one state-machine entry point every AIO completion passes
// through.
func (d *Driver) finish(req *Request) {
	switch req.op {
	case OpDataRead:
		d.finishDataRead(req)
	case OpDataWrite:
		d.finishDataWrite(req)
	case OpBitmapRead:
		d.finishBitmapRead(req)
	case OpZeroBMWrite:
		d.finishZeroBMWrite(req)
	case OpBATWrite:
		d.finishBATWrite(req)
	case OpBitmapWrite:
		d.finishBitmapWrite(req)
	}
}

func (d *Driver) finishDataRead(req *Request) {
	if req.callback != nil {
		req.callback(req, req.err)
	}
	d.pool.release(req)
	d.outstanding--
}

// finishDataWrite marks the request finished. A write enrolled in a
// transaction sets its shadow bits (DIFF only) and advances the tx
// toward closing; a queued write records completion but waits for its
// bitmap's next transaction to drain it; a write with no transaction
// at all (the BIT_SET fast path) completes immediately.
func (d *Driver) finishDataWrite(req *Request) {
	req.finished = true

	var entry *bitmapEntry
	if d.cache != nil { // nil for FIXED images
		entry = d.cache.lookup(req.block)
	}
	if req.err == nil && entry != nil && d.footer.DiskType == vhdformat.DiskTypeDifferencing {
		secInBlock := req.sector % d.sectorsPerBlock
		vhdformat.SetBitRange(entry.shadow, secInBlock, req.nrSecs)
	}

	switch {
	case req.tx != nil && !req.queued:
		if req.err != nil {
			req.tx.setError(req.err)
		}
		if req.tx.dataWriteComplete() {
			if req.tx.batReady() {
				req.tx.batScheduled = true
				d.scheduleBATWrite(req.tx, req.block)
			}
			d.finishDataTransaction(req.tx, req.block)
		}
	case req.queued:
		if req.err != nil {
			req.tx.setError(req.err)
		}
		// Stays parked until finalizeBitmapTransaction drains the
		// bitmap's queue into a fresh transaction.
	default:
		if req.callback != nil {
			req.callback(req, req.err)
		}
		d.pool.release(req)
		d.outstanding--
	}
}

// finishBitmapRead clears READ_PENDING and, on success, copies the
// newly read map into shadow before re-dispatching every request that
// was blocked on this read -- their classification will now succeed.
// On failure the cache entry is evicted and its waiters fail outright.
func (d *Driver) finishBitmapRead(req *Request) {
	entry := d.cache.lookup(req.block)
	if entry == nil {
		return
	}
	entry.clearFlag(flagReadPending)

	waiters := entry.waiting
	entry.waiting = nil

	if req.err != nil {
		for _, w := range waiters {
			if w.callback != nil {
				w.callback(w, req.err)
			}
			d.pool.release(w)
		}
		d.cache.remove(entry)
		return
	}

	copy(entry.shadow, entry.mapBits)
	for _, w := range waiters {
		d.redispatch(w)
	}
}

// redispatch re-runs a previously blocked waiter through the
// scheduler now that its bitmap is cached and readable, splitting
// again if the waiter's range covers a mix of classifications. w only
// staged the parked arguments; scheduleRunSparse draws its own
// request(s) from the pool, so w is released back to the pool once
// its fields have been read.
func (d *Driver) redispatch(w *Request) {
	write := w.op == OpDataWrite
	remaining := w.nrSecs
	off := w.sector
	bufOff := uint32(0)
	buf := w.buf
	callback := w.callback
	tag := w.userTag
	block := w.block
	d.pool.release(w)

	for remaining > 0 {
		secInBlock := off % d.sectorsPerBlock
		runCap := d.sectorsPerBlock - secInBlock
		if runCap > remaining {
			runCap = remaining
		}

		run, err := d.scheduleRunSparse(block, secInBlock, runCap, off, buf[bufOff*vhdformat.SectorSize:], callback, tag, write)
		if err != nil {
			if callback != nil {
				callback(nil, err)
			}
			return
		}
		if run == 0 {
			run = runCap
		}
		off += run
		bufOff += run
		remaining -= run
	}
}

// finishZeroBMWrite advances a BAT-and-bitmap tx's zero-bitmap member.
// On success it schedules the BAT write only once the tx's data writes
// have also landed -- if they haven't, scheduling is left to whichever
// data write closes the tx last, via batReady. On failure it aborts
// the reservation and taints the tx, then finalizes immediately if the
// data side is already done.
func (d *Driver) finishZeroBMWrite(req *Request) {
	tx := req.tx
	tx.zeroBMDone = true

	if req.err != nil {
		tx.setError(req.err)
		d.bat.abort()
		tx.status = txLive // no BAT entry will ever commit for this tx
		if tx.complete() {
			d.finishDataTransaction(tx, req.block)
		}
		return
	}

	if tx.batReady() {
		tx.batScheduled = true
		d.scheduleBATWrite(tx, req.block)
	}
	if tx.complete() {
		d.finishDataTransaction(tx, req.block)
	}
}

// scheduleBATWrite patches the BAT sector containing blk's entry with
// the reserved offset and submits it using the BAT manager's single
// embedded descriptor -- at most one allocation, and therefore at
// most one BAT write, is ever in flight.
func (d *Driver) scheduleBATWrite(tx *transaction, blk uint32) {
	entriesPerSector := uint32(vhdformat.SectorSize / 4)
	sectorIdx := blk / entriesPerSector
	entryInSector := int(blk % entriesPerSector)

	base := sectorIdx * entriesPerSector
	sectorEntries := make([]uint32, entriesPerSector)
	for i := range sectorEntries {
		idx := base + uint32(i)
		if int(idx) < len(d.bat.entries) {
			sectorEntries[i] = d.bat.entries[idx]
		} else {
			sectorEntries[i] = batUnused
		}
	}
	sectorBuf := vhdformat.EncodeBAT(sectorEntries)
	vhdformat.PatchBATSector(sectorBuf, entryInSector, d.bat.pbwOffset)

	batSectorOffset := d.header.TableOffset + uint64(sectorIdx)*vhdformat.SectorSize
	d.bat.batReq = Request{op: OpBATWrite, block: blk, tx: tx}
	d.submitMeta(&d.bat.batReq, int64(batSectorOffset), sectorBuf)
}

// finishBATWrite commits (or aborts) the reservation and, if the
// bitmap-transaction finalizer was parked waiting for this event,
// completes it now. If the tx's bitmap write is still in flight, its
// own finisher finalizes instead.
func (d *Driver) finishBATWrite(req *Request) {
	tx := req.tx
	if req.err != nil {
		tx.setError(req.err)
		d.bat.abort()
	} else {
		d.bat.commit()
	}
	tx.batDone = true
	if entry := d.cache.lookup(req.block); entry != nil && entry.writePending() {
		return
	}
	d.finalizeBitmapTransaction(tx, req.block)
}

// finishBitmapWrite clears WRITE_PENDING and makes the shadow bitmap
// visible (or reverts it on failure), then finalizes the transaction
// that scheduled this write.
func (d *Driver) finishBitmapWrite(req *Request) {
	entry := d.cache.lookup(req.block)
	if entry == nil {
		return
	}
	entry.clearFlag(flagWritePending)

	if req.err == nil {
		copy(entry.mapBits, entry.shadow)
	} else {
		copy(entry.shadow, entry.mapBits)
		if entry.tx != nil {
			entry.tx.setError(req.err)
		}
	}
	d.finalizeBitmapTransaction(entry.tx, req.block)
}

// finishDataTransaction is the data-transaction finisher: it closes
// the tx to new members (already done by dataWriteComplete) and, for
// an error-free DIFF write, schedules the bitmap write whose own
// finisher will finalize. Everything else finalizes directly.
func (d *Driver) finishDataTransaction(tx *transaction, blk uint32) {
	tx.closed = true

	if d.footer.DiskType == vhdformat.DiskTypeDifferencing && tx.err == nil {
		entry := d.cache.lookup(blk)
		if entry != nil {
			d.scheduleBitmapWrite(entry, blk)
			return
		}
	}
	d.finalizeBitmapTransaction(tx, blk)
}

func (d *Driver) scheduleBitmapWrite(entry *bitmapEntry, blk uint32) {
	entry.setFlag(flagWritePending)
	offset, ok := d.bat.offsetOf(blk)
	if !ok {
		offset = d.bat.pbwOffset
	}
	entry.ownReq = Request{op: OpBitmapWrite, block: blk, tx: entry.tx}
	shadowCopy := make([]byte, len(entry.shadow))
	copy(shadowCopy, entry.shadow)
	d.submitMeta(&entry.ownReq, int64(offset)*vhdformat.SectorSize, shadowCopy)
}

// finalizeBitmapTransaction is the bitmap-transaction finalizer. If
// the tx is still waiting on its BAT write it parks and returns;
// otherwise it signals every member with the tx's terminal error,
// resets the bitmap entry, and drains any writes deferred past this
// tx into a fresh one.
func (d *Driver) finalizeBitmapTransaction(tx *transaction, blk uint32) {
	if tx == nil {
		return
	}
	if tx.status == txUpdateBAT && !tx.batDone {
		return
	}

	for _, r := range tx.requests {
		if r.callback != nil {
			r.callback(r, tx.err)
		}
		d.pool.release(r)
		d.outstanding--
	}

	entry := d.cache.lookup(blk)
	if entry == nil {
		return
	}
	entry.tx = nil
	entry.clearFlag(flagLocked)

	if len(entry.queue) == 0 {
		return
	}

	drained := entry.queue
	entry.queue = nil
	fresh := newTransaction()
	entry.tx = fresh
	entry.setFlag(flagLocked)

	for _, r := range drained {
		r.queued = false
		r.tx = fresh
		fresh.requests = append(fresh.requests, r)
		fresh.started++
		if r.finished {
			fresh.finished++
			if r.err != nil {
				fresh.setError(r.err)
			}
		}
	}

	if fresh.started == fresh.finished {
		d.finishDataTransaction(fresh, blk)
	}
}
