package vhdformat

import "encoding/binary"

// BATUnused is the sentinel BAT entry value meaning "block not yet
// allocated" (all-ones).
const BATUnused = uint32(0xFFFFFFFF)

// BATSizeBytes returns the padded on-disk size, in bytes, of a BAT with
// maxEntries entries: a packed array of big-endian u32, padded to a
// 512-byte sector boundary.
func BATSizeBytes(maxEntries uint32) uint32 {
	raw := maxEntries * 4
	return (raw + SectorSize - 1) / SectorSize * SectorSize
}

// EncodeBAT serializes a BAT array into its padded on-disk form.
func EncodeBAT(entries []uint32) []byte {
	buf := make([]byte, BATSizeBytes(uint32(len(entries))))
	for i, e := range entries {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], e)
	}
	for i := len(entries) * 4; i+4 <= len(buf); i += 4 {
		binary.BigEndian.PutUint32(buf[i:i+4], BATUnused)
	}
	return buf
}

// DecodeBAT parses a BAT buffer into maxEntries uint32 entries.
func DecodeBAT(buf []byte, maxEntries uint32) []uint32 {
	entries := make([]uint32, maxEntries)
	for i := range entries {
		off := i * 4
		if off+4 > len(buf) {
			entries[i] = BATUnused
			continue
		}
		entries[i] = binary.BigEndian.Uint32(buf[off : off+4])
	}
	return entries
}

// PatchBATSector rewrites a single entry within one 512-byte BAT sector,
// leaving every other entry in that sector unchanged. A BAT write only
// ever touches the sector containing the block being allocated, never
// the whole table.
func PatchBATSector(sectorBuf []byte, entryIndexInSector int, value uint32) {
	off := entryIndexInSector * 4
	binary.BigEndian.PutUint32(sectorBuf[off:off+4], value)
}
