package vhd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBATManager() *batManager {
	entries := []uint32{batUnused, batUnused, batUnused}
	return newBATManager(entries, 8, 1, sectorsPerPage, 64)
}

func TestBATManagerReserveLocksSingleSlot(t *testing.T) {
	m := newTestBATManager()
	require.True(t, m.reserveNewBlock(0))
	require.False(t, m.reserveNewBlock(1), "only one allocation may be in flight")
}

func TestBATManagerCommitAdvancesAndAligns(t *testing.T) {
	m := newTestBATManager()
	require.True(t, m.reserveNewBlock(1))
	pending := m.pbwOffset
	m.commit()

	require.Equal(t, pending, m.entries[1])
	require.False(t, m.locked)
	require.Equal(t, uint32(0), (m.nextDB+m.bitmapSectors)%m.sectorsPerPage, "next_db realigned to a page boundary")
}

func TestBATManagerAbortLeavesEntryUnused(t *testing.T) {
	m := newTestBATManager()
	before := m.nextDB
	require.True(t, m.reserveNewBlock(2))
	m.abort()

	require.Equal(t, batUnused, m.entries[2])
	require.False(t, m.locked)
	require.Equal(t, before, m.nextDB, "a failed reservation doesn't consume next_db")
}

func TestBATManagerOffsetOf(t *testing.T) {
	m := newTestBATManager()
	_, ok := m.offsetOf(0)
	require.False(t, ok)

	require.True(t, m.reserveNewBlock(0))
	m.commit()

	off, ok := m.offsetOf(0)
	require.True(t, ok)
	require.NotZero(t, off)
}

func TestBATManagerIsUnusedOutOfRangeBlock(t *testing.T) {
	m := newTestBATManager()
	require.True(t, m.isUnused(999), "block beyond the BAT's length reports unused")
}
