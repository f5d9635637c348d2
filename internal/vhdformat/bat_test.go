package vhdformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBATRoundTrip(t *testing.T) {
	entries := []uint32{BATUnused, 128, 256, BATUnused}
	buf := EncodeBAT(entries)
	require.Len(t, buf, int(BATSizeBytes(uint32(len(entries)))))

	got := DecodeBAT(buf, uint32(len(entries)))
	assert.Equal(t, entries, got)
}

func TestPatchBATSectorLeavesOtherEntriesUntouched(t *testing.T) {
	entries := make([]uint32, 128) // exactly one 512-byte sector's worth
	for i := range entries {
		entries[i] = BATUnused
	}
	buf := EncodeBAT(entries)

	PatchBATSector(buf, 5, 999)

	got := DecodeBAT(buf, 128)
	for i, v := range got {
		if i == 5 {
			assert.Equal(t, uint32(999), v)
		} else {
			assert.Equal(t, BATUnused, v)
		}
	}
}

func TestBATSizeBytesPadsToSector(t *testing.T) {
	// 100 entries * 4 bytes = 400 bytes, padded up to one 512-byte sector.
	assert.Equal(t, uint32(SectorSize), BATSizeBytes(100))
}
