package vhdformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapIsMSBFirst(t *testing.T) {
	bitmap := make([]byte, 1)
	SetBit(bitmap, 0)
	// Sector 0 must land in the high bit of byte 0 (MSB-first), not the low bit.
	assert.Equal(t, byte(0x80), bitmap[0])
}

func TestBitmapSetClearRoundTrip(t *testing.T) {
	bitmap := make([]byte, 2)
	SetBit(bitmap, 3)
	SetBit(bitmap, 15)
	assert.True(t, BitSet(bitmap, 3))
	assert.True(t, BitSet(bitmap, 15))
	assert.False(t, BitSet(bitmap, 4))

	ClearBit(bitmap, 3)
	assert.False(t, BitSet(bitmap, 3))
	assert.True(t, BitSet(bitmap, 15))
}

func TestSetBitRange(t *testing.T) {
	bitmap := make([]byte, 2)
	SetBitRange(bitmap, 2, 5)
	for i := uint32(0); i < 16; i++ {
		want := i >= 2 && i < 7
		assert.Equal(t, want, BitSet(bitmap, i), "sector %d", i)
	}
}

func TestRunLength(t *testing.T) {
	bitmap := make([]byte, 2)
	SetBitRange(bitmap, 0, 8)

	assert.Equal(t, uint32(8), RunLength(bitmap, 0, 16, true))
	assert.Equal(t, uint32(8), RunLength(bitmap, 8, 16, false))
	assert.Equal(t, uint32(0), RunLength(bitmap, 8, 16, true))
}
