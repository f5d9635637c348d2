package vhdformat

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the on-disk size of the dynamic-disk header.
const HeaderSize = 1024

const (
	headerCookie        = "cxsparse"
	headerVersion uint32 = 0x00010000
	numParentLocators    = 8
)

// PlatformCode identifies a parent-locator's encoding. Only MACX and
// W2KU are honored on open; the rest are preserved on round-trip but
// otherwise ignored.
type PlatformCode uint32

const (
	PlatformNone PlatformCode = 0
	PlatformMacX PlatformCode = 0x4d414358 // "MACX"
	PlatformW2KU PlatformCode = 0x57324b55 // "W2KU"
)

// ParentLocator is one of the eight slots in a dynamic-disk header used
// to record where a differencing disk's parent can be found.
type ParentLocator struct {
	PlatformCode PlatformCode
	// DataSpace is nominally sectors, but some writers store bytes
	// instead; LocatorDataSpaceSectors below accepts both.
	DataSpace  uint32
	DataLength uint32
	DataOffset uint64
	// RawData holds the locator payload (a UTF-8 file:// URI for MACX,
	// a UTF-16LE Windows path for W2KU) once read from its DataOffset.
	// Encode/Decode of the header itself never touches this -- the
	// payload is a separate I/O the caller (GetParentID) performs.
	RawData []byte
}

func (l ParentLocator) used() bool {
	return l.PlatformCode != PlatformNone
}

// DynamicHeader is the 1024-byte structure located at a non-FIXED
// footer's DataOffset: BAT location/size, block size, and the parent
// chain for differencing disks.
type DynamicHeader struct {
	TableOffset      uint64
	HeaderVersion    uint32
	MaxBATEntries    uint32
	BlockSize        uint32
	ParentUniqueID   [16]byte
	ParentTimestamp  uint32
	ParentName       string // decoded from UTF-16LE, length-limited on encode
	ParentLocators   [numParentLocators]ParentLocator
}

// Encode serializes h into a 1024-byte, big-endian buffer with a fresh
// checksum: byte-sum of the whole struct with the checksum field
// zeroed, then complemented.
func (h *DynamicHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.encodeInto(buf)
	binary.BigEndian.PutUint32(buf[36:40], 0)
	cksm := checksum(buf)
	binary.BigEndian.PutUint32(buf[36:40], cksm)
	return buf
}

func (h *DynamicHeader) encodeInto(buf []byte) {
	copy(buf[0:8], headerCookie)
	binary.BigEndian.PutUint64(buf[8:16], NoDataOffset) // data_offset, unused for headers-of-headers
	binary.BigEndian.PutUint64(buf[16:24], h.TableOffset)
	binary.BigEndian.PutUint32(buf[24:28], headerVersion)
	binary.BigEndian.PutUint32(buf[28:32], h.MaxBATEntries)
	binary.BigEndian.PutUint32(buf[32:36], h.BlockSize)
	// buf[36:40] checksum, filled by caller.
	copy(buf[40:56], h.ParentUniqueID[:])
	binary.BigEndian.PutUint32(buf[56:60], h.ParentTimestamp)
	binary.BigEndian.PutUint32(buf[60:64], 0) // reserved

	nameUTF16 := encodeUTF16LE(h.ParentName, 256)
	copy(buf[64:320], nameUTF16)

	for i, loc := range h.ParentLocators {
		base := 320 + i*24
		binary.BigEndian.PutUint32(buf[base:base+4], uint32(loc.PlatformCode))
		binary.BigEndian.PutUint32(buf[base+4:base+8], loc.DataSpace)
		binary.BigEndian.PutUint32(buf[base+8:base+12], loc.DataLength)
		binary.BigEndian.PutUint32(buf[base+12:base+16], 0) // reserved
		binary.BigEndian.PutUint64(buf[base+16:base+24], loc.DataOffset)
	}
	// buf[512:1024] is reserved padding, left zero.
}

// DecodeHeader parses and validates a 1024-byte dynamic-disk header.
func DecodeHeader(buf []byte) (*DynamicHeader, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	buf = buf[:HeaderSize]

	if string(buf[0:8]) != headerCookie {
		return nil, fmt.Errorf("%w: got %q", ErrBadCookie, buf[0:8])
	}

	storedChecksum := binary.BigEndian.Uint32(buf[36:40])
	verifyBuf := make([]byte, HeaderSize)
	copy(verifyBuf, buf)
	binary.BigEndian.PutUint32(verifyBuf[36:40], 0)
	if computed := checksum(verifyBuf); computed != storedChecksum {
		return nil, fmt.Errorf("%w: stored 0x%08x computed 0x%08x", ErrBadChecksum, storedChecksum, computed)
	}

	version := binary.BigEndian.Uint32(buf[24:28])
	if version != headerVersion {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBadVersion, version)
	}

	h := &DynamicHeader{
		TableOffset:   binary.BigEndian.Uint64(buf[16:24]),
		HeaderVersion: version,
		MaxBATEntries: binary.BigEndian.Uint32(buf[28:32]),
		BlockSize:     binary.BigEndian.Uint32(buf[32:36]),
		ParentTimestamp: binary.BigEndian.Uint32(buf[56:60]),
	}
	copy(h.ParentUniqueID[:], buf[40:56])
	h.ParentName = decodeUTF16LE(buf[64:320])

	for i := range h.ParentLocators {
		base := 320 + i*24
		code := PlatformCode(binary.BigEndian.Uint32(buf[base : base+4]))
		h.ParentLocators[i] = ParentLocator{
			PlatformCode: code,
			DataSpace:    binary.BigEndian.Uint32(buf[base+4 : base+8]),
			DataLength:   binary.BigEndian.Uint32(buf[base+8 : base+12]),
			DataOffset:   binary.BigEndian.Uint64(buf[base+16 : base+24]),
		}
	}

	if h.BlockSize == 0 || h.BlockSize%SectorSize != 0 {
		return nil, fmt.Errorf("vhdformat: block_size %d is not a multiple of %d", h.BlockSize, SectorSize)
	}
	if (h.BlockSize/SectorSize)&((h.BlockSize/SectorSize)-1) != 0 {
		return nil, fmt.Errorf("vhdformat: sectors-per-block %d is not a power of two", h.BlockSize/SectorSize)
	}

	return h, nil
}

// LocatorDataSpaceSectors resolves a parent locator's DataSpace field to
// a sector count, accepting either encoding: some writers store it in
// sectors, others in bytes.
func LocatorDataSpaceSectors(l ParentLocator) uint32 {
	if l.DataSpace < SectorSize {
		return l.DataSpace
	}
	if l.DataSpace%SectorSize == 0 {
		return l.DataSpace / SectorSize
	}
	return (l.DataSpace + SectorSize - 1) / SectorSize
}
