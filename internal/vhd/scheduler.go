package vhd

import (
	"fmt"

	"github.com/blocktap/govhd/internal/vhdformat"
)

// cacheState is the classification a run of sectors within one block
// falls into, driving which path the scheduler takes.
type cacheState int

const (
	stateBATClear  cacheState = iota // block unallocated, slot free
	stateBATLocked                   // block unallocated, another allocation in flight
	stateBitSet                      // bitmap cached, bit set for this run
	stateBitClear                    // bitmap cached, bit clear for this run
	stateNotCached                   // block allocated, bitmap not in cache
	stateReadPending                 // bitmap cached but its read is still in flight
)

// QueueRead schedules an asynchronous read of nrSecs sectors starting
// at sector into buf, splitting across block boundaries and cache
// states as needed. callback fires once per resulting run.
func (d *Driver) QueueRead(sector, nrSecs uint32, buf []byte, callback Callback, tag interface{}) error {
	return d.queue(sector, nrSecs, buf, callback, tag, false)
}

// QueueWrite schedules an asynchronous write of nrSecs sectors
// starting at sector from buf, splitting across block boundaries and
// cache states as needed. callback fires once per resulting run.
func (d *Driver) QueueWrite(sector, nrSecs uint32, buf []byte, callback Callback, tag interface{}) error {
	return d.queue(sector, nrSecs, buf, callback, tag, true)
}

func (d *Driver) queue(sector, nrSecs uint32, buf []byte, callback Callback, tag interface{}, write bool) error {
	if nrSecs == 0 {
		if callback != nil {
			callback(nil, nil)
		}
		return nil
	}
	totalSecs := uint32(d.sizeBytes() / vhdformat.SectorSize)
	if uint64(sector)+uint64(nrSecs) > uint64(totalSecs) {
		return fmt.Errorf("%w: range [%d,%d) exceeds image size %d sectors", ErrInvalidArg, sector, sector+nrSecs, totalSecs)
	}

	if d.IsFixed() {
		return d.scheduleFixed(sector, nrSecs, buf, callback, tag, write)
	}

	remaining := nrSecs
	off := sector
	bufOff := uint32(0)
	for remaining > 0 {
		blk := off / d.sectorsPerBlock
		secInBlock := off % d.sectorsPerBlock
		runCap := d.sectorsPerBlock - secInBlock
		if runCap > remaining {
			runCap = remaining
		}

		run, err := d.scheduleRunSparse(blk, secInBlock, runCap, off, buf[bufOff*vhdformat.SectorSize:], callback, tag, write)
		if err != nil {
			return err
		}
		if run == 0 {
			run = runCap
		}

		off += run
		bufOff += run
		remaining -= run
	}
	return nil
}

func (d *Driver) scheduleFixed(sector, nrSecs uint32, buf []byte, callback Callback, tag interface{}, write bool) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}
	req.op = OpDataRead
	if write {
		req.op = OpDataWrite
	}
	req.sector = sector
	req.nrSecs = nrSecs
	req.buf = buf
	req.callback = callback
	req.userTag = tag

	offset := int64(sector) * vhdformat.SectorSize
	d.submitData(req, offset)
	d.outstanding++
	return nil
}

// scheduleRunSparse classifies the state of the run starting at
// secInBlock within blk, dispatches it, and returns how many sectors
// of runCap it actually consumed (it may be less than runCap when the
// classification only covers a shorter maximal run, e.g. a bitmap
// run of set/clear bits).
func (d *Driver) scheduleRunSparse(blk, secInBlock, runCap, absSector uint32, buf []byte, callback Callback, tag interface{}, write bool) (uint32, error) {
	state, entry := d.classify(blk, secInBlock)

	switch state {
	case stateBATLocked:
		if write {
			return 0, ErrBusy
		}
		// Reads never observe BAT_LOCKED: an unallocated block is
		// simply a hole regardless of another block's in-flight
		// allocation.
		if callback != nil {
			callback(nil, ErrNotAllocated)
		}
		return runCap, nil

	case stateBATClear:
		if !write {
			if callback != nil {
				callback(nil, ErrNotAllocated)
			}
			return runCap, nil
		}
		return runCap, d.scheduleAllocatingWrite(blk, secInBlock, runCap, absSector, buf, callback, tag)

	case stateNotCached:
		d.scheduleBitmapRead(entry, blk)
		if err := d.queueWaiter(entry, blk, secInBlock, runCap, absSector, buf, callback, tag, write); err != nil {
			return 0, err
		}
		return runCap, nil

	case stateReadPending:
		if err := d.queueWaiter(entry, blk, secInBlock, runCap, absSector, buf, callback, tag, write); err != nil {
			return 0, err
		}
		return runCap, nil

	case stateBitSet:
		run := d.runLength(entry, secInBlock, runCap, true)
		if write {
			return run, d.scheduleBitSetWrite(entry, blk, secInBlock, run, absSector, buf, callback, tag)
		}
		return run, d.scheduleDataRead(entry, blk, secInBlock, run, absSector, buf, callback, tag)

	case stateBitClear:
		run := d.runLength(entry, secInBlock, runCap, false)
		if !write {
			if callback != nil {
				callback(nil, ErrNotAllocated)
			}
			return run, nil
		}
		return run, d.scheduleBitClearWrite(entry, blk, secInBlock, run, absSector, buf, callback, tag)
	}

	return runCap, fmt.Errorf("%w: unreachable cache state %d", ErrInvalidArg, state)
}

// classify determines the cache state for blk/secInBlock per the
// scheduler's classification table. DYNAMIC images report BIT_SET for
// every allocated block unconditionally without consulting the bitmap
// contents; only DIFF tracks real presence bits.
func (d *Driver) classify(blk, secInBlock uint32) (cacheState, *bitmapEntry) {
	if d.bat.isUnused(blk) {
		if d.bat.locked {
			return stateBATLocked, nil
		}
		return stateBATClear, nil
	}

	entry := d.cache.lookup(blk)
	if entry == nil {
		return stateNotCached, nil
	}
	if entry.readPending() {
		return stateReadPending, entry
	}

	if d.footer.DiskType != vhdformat.DiskTypeDifferencing {
		return stateBitSet, entry
	}
	if vhdformat.BitSet(entry.shadow, secInBlock) {
		return stateBitSet, entry
	}
	return stateBitClear, entry
}

func (d *Driver) runLength(entry *bitmapEntry, start, cap uint32, set bool) uint32 {
	if d.footer.DiskType != vhdformat.DiskTypeDifferencing {
		return cap
	}
	run := vhdformat.RunLength(entry.shadow, start, start+cap, set)
	if run == 0 {
		run = 1
	}
	if run > cap {
		run = cap
	}
	return run
}

// queueWaiter parks a request on entry's waiting list until its
// bitmap read lands (NOT_CACHED, READ_PENDING). Like every other data
// request, it is drawn from the bounded pool rather than heap
// allocated, so a pile-up of parked requests is subject to the same
// ErrBusy back-pressure as the hot path.
func (d *Driver) queueWaiter(entry *bitmapEntry, blk, secInBlock, runCap, absSector uint32, buf []byte, callback Callback, tag interface{}, write bool) error {
	req := d.pool.alloc()
	if req == nil {
		return ErrBusy
	}
	req.op = OpDataRead
	if write {
		req.op = OpDataWrite
	}
	req.block = blk
	req.sector = absSector
	req.nrSecs = runCap
	req.buf = buf[:runCap*vhdformat.SectorSize]
	req.callback = callback
	req.userTag = tag

	if entry == nil {
		entry = d.cache.allocate(blk)
	}
	if entry == nil {
		d.pool.release(req)
		return ErrBusy
	}
	entry.waiting = append(entry.waiting, req)
	return nil
}

func (d *Driver) scheduleBitmapRead(entry *bitmapEntry, blk uint32) {
	if entry == nil {
		entry = d.cache.allocate(blk)
	}
	if entry == nil || entry.readPending() {
		return
	}
	entry.setFlag(flagReadPending)
	offset, _ := d.bat.offsetOf(blk)
	entry.ownReq = Request{op: OpBitmapRead, block: blk}
	d.submitMeta(&entry.ownReq, int64(offset)*vhdformat.SectorSize, entry.mapBits)
}
