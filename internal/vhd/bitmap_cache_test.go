package vhd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapCacheLookupMiss(t *testing.T) {
	c := newBitmapCache(2, 64)
	require.Nil(t, c.lookup(5))
}

func TestBitmapCacheAllocateReturnsSameEntryOnRepeat(t *testing.T) {
	c := newBitmapCache(2, 64)
	a := c.allocate(1)
	require.NotNil(t, a)
	b := c.allocate(1)
	require.Same(t, a, b)
}

// TestBitmapCacheEvictsLeastRecentlyUsed fills a two-entry cache, then
// touches one via a second lookup before requesting a third block --
// the untouched entry must be the one evicted.
func TestBitmapCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newBitmapCache(2, 64)
	first := c.allocate(1)
	_ = c.allocate(2)

	c.allocate(1) // touch block 1 again, making block 2 the LRU victim

	third := c.allocate(3)
	require.NotNil(t, third)
	require.Same(t, first, c.lookup(1), "block 1 survives eviction")
	require.Nil(t, c.lookup(2), "block 2 was evicted")
}

func TestBitmapCacheWontEvictLockedOrInUseEntries(t *testing.T) {
	c := newBitmapCache(1, 64)
	e := c.allocate(1)
	e.setFlag(flagLocked)

	require.Nil(t, c.allocate(2), "sole entry is locked, nothing to evict")
}

// TestBitmapCacheEvictionCandidateTieBreaksOnBlockNumber covers the
// rare case where two entries share the same seqno -- touch's
// periodic halving can collapse two counters that differed by one.
// The tie must resolve deterministically by lowest block number, not
// by entries' scan order.
func TestBitmapCacheEvictionCandidateTieBreaksOnBlockNumber(t *testing.T) {
	c := newBitmapCache(2, 64)
	hi := &bitmapEntry{blk: 9, seqno: 5}
	lo := &bitmapEntry{blk: 3, seqno: 5}
	c.entries = append(c.entries, hi, lo)

	require.Same(t, lo, c.evictionCandidate(), "lower block number wins a seqno tie")
}

func TestBitmapCacheRemove(t *testing.T) {
	c := newBitmapCache(2, 64)
	e := c.allocate(1)
	c.remove(e)
	require.Nil(t, c.lookup(1))
}

func TestBitmapEntryInUse(t *testing.T) {
	e := &bitmapEntry{}
	require.False(t, e.inUse())

	e.setFlag(flagReadPending)
	require.True(t, e.inUse())
	e.clearFlag(flagReadPending)
	require.False(t, e.inUse())

	e.waiting = append(e.waiting, &Request{})
	require.True(t, e.inUse())
}
