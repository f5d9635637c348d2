package vhdformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFooter() *Footer {
	return &Footer{
		Features:     0,
		DataOffset:   FooterSize,
		Timestamp:    123456,
		CreatorApp:   [4]byte{'t', 'a', 'p', ' '},
		CreatorHostOS: [4]byte{'L', 'i', 'n', 'x'},
		OriginalSize: 10 * 1024 * 1024,
		CurrentSize:  10 * 1024 * 1024,
		Geometry:     CalcGeometry(10 * 1024 * 1024),
		DiskType:     DiskTypeDynamic,
		UniqueID:     newImageUUID(),
	}
}

func TestFooterRoundTrip(t *testing.T) {
	f := sampleFooter()
	buf := f.Encode()
	require.Len(t, buf, FooterSize)

	got, err := DecodeFooter(buf)
	require.NoError(t, err)

	assert.Equal(t, f.DataOffset, got.DataOffset)
	assert.Equal(t, f.Timestamp, got.Timestamp)
	assert.Equal(t, f.OriginalSize, got.OriginalSize)
	assert.Equal(t, f.CurrentSize, got.CurrentSize)
	assert.Equal(t, f.Geometry, got.Geometry)
	assert.Equal(t, f.DiskType, got.DiskType)
	assert.Equal(t, f.UniqueID, got.UniqueID)

	// Re-encoding the decoded value must reproduce the exact same bytes.
	assert.Equal(t, buf, got.Encode())
}

func TestFooterChecksumDetectsBitFlip(t *testing.T) {
	f := sampleFooter()
	buf := f.Encode()

	// Flip a single bit within the stored checksum field itself.
	buf[64] ^= 0x01

	_, err := DecodeFooter(buf)
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestFooterChecksumDetectsDataCorruption(t *testing.T) {
	f := sampleFooter()
	buf := f.Encode()

	buf[50] ^= 0xFF

	_, err := DecodeFooter(buf)
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestFooterBadCookieRejected(t *testing.T) {
	f := sampleFooter()
	buf := f.Encode()
	copy(buf[0:8], "notvhdxx")

	_, err := DecodeFooter(buf)
	assert.ErrorIs(t, err, ErrBadCookie)
}

func TestFooterTruncatedRejected(t *testing.T) {
	_, err := DecodeFooter(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCalcGeometrySmallDisk(t *testing.T) {
	g := CalcGeometry(10 * 1024 * 1024)
	assert.NotZero(t, g.Cylinders)
	assert.NotZero(t, g.SectorsPerTrack)

	encoded := g.Encode()
	assert.Equal(t, g, DecodeGeometry(encoded))
}

func TestSectorsPerBlockAndBitmapSectors(t *testing.T) {
	// 2 MiB block -> 4096 sectors per block -> 1 bitmap sector.
	assert.Equal(t, uint32(4096), SectorsPerBlock(2*1024*1024))
	assert.Equal(t, uint32(1), BitmapSectors(2*1024*1024))
}
