package vhd

import "github.com/blocktap/govhd/internal/vhdformat"

// scheduleDataRead issues a plain data read over a BIT_SET run; it
// never joins a transaction since reads never mutate shared state.
func (d *Driver) scheduleDataRead(entry *bitmapEntry, blk, secInBlock, nrSecs, absSector uint32, buf []byte, callback Callback, tag interface{}) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}
	req.op = OpDataRead
	req.block = blk
	req.sector = absSector
	req.nrSecs = nrSecs
	req.buf = buf[:nrSecs*vhdformat.SectorSize]
	req.callback = callback
	req.userTag = tag

	offset, _ := d.bat.offsetOf(blk)
	dataOffset := int64(offset+d.bitmapSectors+secInBlock) * vhdformat.SectorSize
	d.submitData(req, dataOffset)
	d.outstanding++
	return nil
}

// scheduleBitSetWrite issues a data write over a run already marked
// present. For DIFF images this still needs no bitmap update (the
// bits are already set), so it completes independently of any
// transaction -- matching the scheduler table's BIT_SET write action.
func (d *Driver) scheduleBitSetWrite(entry *bitmapEntry, blk, secInBlock, nrSecs, absSector uint32, buf []byte, callback Callback, tag interface{}) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}
	req.op = OpDataWrite
	req.block = blk
	req.sector = absSector
	req.nrSecs = nrSecs
	req.buf = buf[:nrSecs*vhdformat.SectorSize]
	req.callback = callback
	req.userTag = tag

	offset, _ := d.bat.offsetOf(blk)
	dataOffset := int64(offset+d.bitmapSectors+secInBlock) * vhdformat.SectorSize
	d.submitData(req, dataOffset)
	d.outstanding++
	return nil
}

// scheduleBitClearWrite issues a data write that must also set newly
// written bits in the block's bitmap: it joins the bitmap's current
// open transaction, or opens a fresh bitmap-only tx if none is open.
func (d *Driver) scheduleBitClearWrite(entry *bitmapEntry, blk, secInBlock, nrSecs, absSector uint32, buf []byte, callback Callback, tag interface{}) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}
	req.op = OpDataWrite
	req.block = blk
	req.sector = absSector
	req.nrSecs = nrSecs
	req.buf = buf[:nrSecs*vhdformat.SectorSize]
	req.callback = callback
	req.userTag = tag

	entry.setFlag(flagLocked)
	d.joinOrQueue(entry, req)

	offset, _ := d.bat.offsetOf(blk)
	dataOffset := int64(offset+d.bitmapSectors+secInBlock) * vhdformat.SectorSize
	d.submitData(req, dataOffset)
	d.outstanding++
	return nil
}

// joinOrQueue enrolls req in entry's currently open transaction,
// opening a fresh bitmap-only tx if none is live, or appends req to
// the deferred queue if the current tx has already closed to new
// members.
func (d *Driver) joinOrQueue(entry *bitmapEntry, req *Request) {
	if entry.tx == nil {
		entry.tx = newTransaction()
	}
	if entry.tx.closed {
		req.queued = true
		entry.queue = append(entry.queue, req)
		return
	}
	entry.tx.join(req)
}

// scheduleAllocatingWrite opens a BAT-and-bitmap transaction for a
// write targeting an unallocated block: it reserves a new block,
// schedules the zero-bitmap write, and joins the data write to the
// same transaction.
func (d *Driver) scheduleAllocatingWrite(blk, secInBlock, nrSecs, absSector uint32, buf []byte, callback Callback, tag interface{}) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}

	entry := d.cache.allocate(blk)
	if entry == nil {
		d.pool.release(req)
		return ErrBusy
	}
	if !d.bat.reserveNewBlock(blk) {
		d.pool.release(req)
		return ErrBusy
	}
	entry.setFlag(flagLocked)

	tx := newTransaction()
	tx.status = txUpdateBAT
	tx.zeroBMPending = true
	entry.tx = tx

	req.op = OpDataWrite
	req.block = blk
	req.sector = absSector
	req.nrSecs = nrSecs
	req.buf = buf[:nrSecs*vhdformat.SectorSize]
	req.callback = callback
	req.userTag = tag
	tx.join(req)

	pbwOffset := d.bat.pbwOffset
	// The new block lands at or past the backend's current end. Grow the
	// backend first, as Close does before writing the footer, since a
	// Backend need not extend itself on a write past its end.
	blockEnd := int64(pbwOffset+d.bitmapSectors+d.sectorsPerBlock) * vhdformat.SectorSize
	if size, err := d.backend.Size(); err == nil && size < blockEnd {
		d.backend.Truncate(blockEnd)
	}
	entry.ownReq = Request{op: OpZeroBMWrite, block: blk, tx: tx}
	zeroBuf := make([]byte, int(d.bitmapSectors)*vhdformat.SectorSize)
	d.submitMeta(&entry.ownReq, int64(pbwOffset)*vhdformat.SectorSize, zeroBuf)

	dataOffset := int64(pbwOffset+d.bitmapSectors+secInBlock) * vhdformat.SectorSize
	d.submitData(req, dataOffset)
	d.outstanding++ // only the data write is caller-visible; the zero-bm write is internal
	return nil
}
