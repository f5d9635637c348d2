package vhdformat

import (
	"encoding/binary"
	"fmt"
)

// SectorSize is the fixed unit every VHD offset/length is expressed in.
const SectorSize = 512

// FooterSize is the on-disk size of the footer structure, always
// SectorSize -- the footer is exactly one sector, appearing once at EOF
// for every image type and additionally at byte 0 for non-FIXED images.
const FooterSize = 512

// DiskType identifies which of the three VHD layouts an image uses.
type DiskType uint32

const (
	DiskTypeFixed      DiskType = 2
	DiskTypeDynamic    DiskType = 3
	DiskTypeDifferencing DiskType = 4
)

func (t DiskType) String() string {
	switch t {
	case DiskTypeFixed:
		return "fixed"
	case DiskTypeDynamic:
		return "dynamic"
	case DiskTypeDifferencing:
		return "differencing"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

const (
	footerCookie   = "conectix"
	fileFormatVersion = uint32(0x00010000)

	// NoDataOffset marks a FIXED image's footer: it has no dynamic-disk
	// header, so data_offset is all-ones rather than a real pointer.
	NoDataOffset = uint64(0xFFFFFFFFFFFFFFFF)

	featureTemporary = uint32(1 << 0)
	featureReserved  = uint32(1 << 1) // always set
)

// Footer is the 512-byte structure every VHD image carries at EOF (and,
// for non-FIXED images, as a backup copy at byte 0).
type Footer struct {
	Features        uint32
	FileFormatVersion uint32
	DataOffset      uint64 // byte offset of the dynamic-disk header, or NoDataOffset for FIXED
	Timestamp       uint32 // seconds since 2000-01-01, see toVHDTimestamp
	CreatorApp      [4]byte
	CreatorVersion  uint32
	CreatorHostOS   [4]byte
	OriginalSize    uint64
	CurrentSize     uint64
	Geometry        Geometry
	DiskType        DiskType
	Checksum        uint32
	UniqueID        [16]byte
	SavedState      bool
}

// Encode serializes f into a 512-byte, big-endian buffer with a freshly
// computed checksum.
func (f *Footer) Encode() []byte {
	buf := make([]byte, FooterSize)
	f.encodeInto(buf, 0)
	binary.BigEndian.PutUint32(buf[64:68], checksum(buf))
	return buf
}

func (f *Footer) encodeInto(buf []byte, checksumValue uint32) {
	copy(buf[0:8], footerCookie)
	binary.BigEndian.PutUint32(buf[8:12], f.Features|featureReserved)
	binary.BigEndian.PutUint32(buf[12:16], fileFormatVersion)
	binary.BigEndian.PutUint64(buf[16:24], f.DataOffset)
	binary.BigEndian.PutUint32(buf[24:28], f.Timestamp)
	copy(buf[28:32], f.CreatorApp[:])
	binary.BigEndian.PutUint32(buf[32:36], f.CreatorVersion)
	copy(buf[36:40], f.CreatorHostOS[:])
	binary.BigEndian.PutUint64(buf[40:48], f.OriginalSize)
	binary.BigEndian.PutUint64(buf[48:56], f.CurrentSize)
	binary.BigEndian.PutUint32(buf[56:60], f.Geometry.Encode())
	binary.BigEndian.PutUint32(buf[60:64], uint32(f.DiskType))
	binary.BigEndian.PutUint32(buf[64:68], checksumValue)
	copy(buf[68:84], f.UniqueID[:])
	if f.SavedState {
		buf[84] = 1
	} else {
		buf[84] = 0
	}
	// buf[85:512] is reserved padding, left zero.
}

// DecodeFooter parses and validates a 512-byte footer buffer. A bad
// cookie or a failing checksum is a corruption error, surfaced only at
// open/create time.
func DecodeFooter(buf []byte) (*Footer, error) {
	if len(buf) < FooterSize {
		return nil, ErrTruncated
	}
	buf = buf[:FooterSize]

	if string(buf[0:8]) != footerCookie {
		return nil, fmt.Errorf("%w: got %q", ErrBadCookie, buf[0:8])
	}

	storedChecksum := binary.BigEndian.Uint32(buf[64:68])

	verifyBuf := make([]byte, FooterSize)
	copy(verifyBuf, buf)
	binary.BigEndian.PutUint32(verifyBuf[64:68], 0)
	if computed := checksum(verifyBuf); computed != storedChecksum {
		return nil, fmt.Errorf("%w: stored 0x%08x computed 0x%08x", ErrBadChecksum, storedChecksum, computed)
	}

	f := &Footer{
		Features:        binary.BigEndian.Uint32(buf[8:12]) &^ featureReserved,
		FileFormatVersion: binary.BigEndian.Uint32(buf[12:16]),
		DataOffset:      binary.BigEndian.Uint64(buf[16:24]),
		Timestamp:       binary.BigEndian.Uint32(buf[24:28]),
		CreatorVersion:  binary.BigEndian.Uint32(buf[32:36]),
		OriginalSize:    binary.BigEndian.Uint64(buf[40:48]),
		CurrentSize:     binary.BigEndian.Uint64(buf[48:56]),
		Geometry:        DecodeGeometry(binary.BigEndian.Uint32(buf[56:60])),
		DiskType:        DiskType(binary.BigEndian.Uint32(buf[60:64])),
		Checksum:        storedChecksum,
		SavedState:      buf[84] != 0,
	}
	copy(f.CreatorApp[:], buf[28:32])
	copy(f.CreatorHostOS[:], buf[36:40])
	copy(f.UniqueID[:], buf[68:84])

	switch f.DiskType {
	case DiskTypeFixed, DiskTypeDynamic, DiskTypeDifferencing:
	default:
		return nil, fmt.Errorf("%w: disk type %d", ErrUnsupportedType, f.DiskType)
	}

	return f, nil
}

// ReadFooterWithFallback decodes an image's footer, preferring the copy
// at EOF and falling back to the backup copy at byte 0 (written for
// every non-FIXED image) if the EOF copy fails to decode or fails its
// checksum. It reports whether the backup copy was the one used, so
// callers can log a warning.
func ReadFooterWithFallback(readAt func(p []byte, off int64) error, size int64) (*Footer, bool, error) {
	buf := make([]byte, FooterSize)
	if err := readAt(buf, size-FooterSize); err == nil {
		if f, ferr := DecodeFooter(buf); ferr == nil {
			return f, false, nil
		}
	}
	if err := readAt(buf, 0); err != nil {
		return nil, false, fmt.Errorf("reading backup footer at byte 0: %w", err)
	}
	f, err := DecodeFooter(buf)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// SectorsPerBlock and BitmapSectors are invariants of a dynamic-disk
// header's block size: sectors_per_block = block_size/512, and
// bitmap_sectors = ceil(sectors_per_block/8/512).
func SectorsPerBlock(blockSize uint32) uint32 {
	return blockSize / SectorSize
}

func BitmapSectors(blockSize uint32) uint32 {
	spb := SectorsPerBlock(blockSize)
	bits := spb
	bytesNeeded := (bits + 7) / 8
	return (bytesNeeded + SectorSize - 1) / SectorSize
}
