package vhd

// batManager owns the in-memory BAT array, the single-entry pending
// allocation slot, and the next_db allocation cursor. At most one
// block allocation is in flight image-wide: reserve_new_block locks
// the slot and nothing else may reserve until the BAT write finisher
// (or its failure path) unlocks it.
type batManager struct {
	entries []uint32 // BATUnused sentinel for holes
	nextDB  uint32   // next sector at which a new block's bitmap+data will land

	locked    bool
	pbwBlk    uint32
	pbwOffset uint32

	batReq Request // embedded descriptor for the BAT sector write

	sectorsPerBlock uint32
	bitmapSectors   uint32
	sectorsPerPage  uint32
}

const batUnused = uint32(0xFFFFFFFF)

func newBATManager(entries []uint32, sectorsPerBlock, bitmapSectors, sectorsPerPage uint32, nextDB uint32) *batManager {
	return &batManager{
		entries:         entries,
		nextDB:          nextDB,
		sectorsPerBlock: sectorsPerBlock,
		bitmapSectors:   bitmapSectors,
		sectorsPerPage:  sectorsPerPage,
	}
}

func (m *batManager) isUnused(blk uint32) bool {
	if int(blk) >= len(m.entries) {
		return true
	}
	return m.entries[blk] == batUnused
}

func (m *batManager) offsetOf(blk uint32) (uint32, bool) {
	if int(blk) >= len(m.entries) || m.entries[blk] == batUnused {
		return 0, false
	}
	return m.entries[blk], true
}

// reserveNewBlock locks the pending slot for blk at the current
// next_db cursor. The in-memory BAT entry and next_db are not updated
// here -- only the BAT write finisher's success path commits them.
// Returns false if another allocation is already in flight.
func (m *batManager) reserveNewBlock(blk uint32) bool {
	if m.locked {
		return false
	}
	m.locked = true
	m.pbwBlk = blk
	m.pbwOffset = m.nextDB
	return true
}

// commit is invoked by the BAT-write finisher on success: the
// reservation becomes the real BAT entry, and next_db advances past
// this block's bitmap and data region, then re-aligns so the next
// block's data region starts on a page boundary.
func (m *batManager) commit() {
	if int(m.pbwBlk) < len(m.entries) {
		m.entries[m.pbwBlk] = m.pbwOffset
	}
	m.nextDB = m.pbwOffset + m.bitmapSectors + m.sectorsPerBlock
	m.alignNextDB()
	m.unlock()
}

// alignNextDB advances next_db so that, once the next block's bitmap
// is skipped, its data region begins on a page boundary.
func (m *batManager) alignNextDB() {
	if m.sectorsPerPage == 0 {
		return
	}
	for (m.nextDB+m.bitmapSectors)%m.sectorsPerPage != 0 {
		m.nextDB++
	}
}

// abort is invoked on reservation or BAT-write failure: the BAT entry
// stays unused so a later write to blk may re-attempt allocation at
// the (unchanged) next_db.
func (m *batManager) abort() {
	m.unlock()
}

func (m *batManager) unlock() {
	m.locked = false
	m.pbwBlk = 0
	m.pbwOffset = 0
}
