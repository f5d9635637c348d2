package vhdformat

import "errors"

// Corruption errors are only ever raised at open/create time (per the
// backend's error taxonomy): a bad cookie, a failed checksum, or an
// unsupported header version reject the image outright rather than being
// surfaced per-request.
var (
	ErrBadCookie      = errors.New("vhdformat: bad cookie")
	ErrBadChecksum    = errors.New("vhdformat: checksum mismatch")
	ErrBadVersion     = errors.New("vhdformat: unsupported header version")
	ErrTruncated      = errors.New("vhdformat: file too short for a valid image")
	ErrUnsupportedType = errors.New("vhdformat: unsupported disk type")
	ErrBadGeometry    = errors.New("vhdformat: size does not fit the geometry encoding")
	ErrNoParent       = errors.New("vhdformat: image has no parent locator")
	ErrParentMismatch = errors.New("vhdformat: parent uuid/timestamp does not match child's recorded values")
)
