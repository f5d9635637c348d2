package vhdformat

import (
	"time"

	"github.com/google/uuid"
)

// vhdEpoch is "seconds since 2000-01-01 00:00:00 UTC", the epoch every
// timestamp field in the footer and dynamic-disk header is relative to.
var vhdEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// toVHDTimestamp converts a wall-clock time to the VHD 32-bit
// seconds-since-epoch encoding used by Footer.Timestamp and
// DynamicHeader.ParentTimestamp.
func toVHDTimestamp(t time.Time) uint32 {
	d := t.UTC().Sub(vhdEpoch)
	if d < 0 {
		return 0
	}
	return uint32(d.Seconds())
}

// fromVHDTimestamp converts a VHD timestamp back to wall-clock time.
func fromVHDTimestamp(v uint32) time.Time {
	return vhdEpoch.Add(time.Duration(v) * time.Second)
}

// newImageUUID generates the 16-byte unique identifier stored in a
// footer's UUID field.
func newImageUUID() [16]byte {
	var out [16]byte
	id := uuid.New()
	copy(out[:], id[:])
	return out
}

// parseUUID renders a 16-byte field as a uuid.UUID for display/compare.
func parseUUID(b [16]byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b[:])
	return id
}
