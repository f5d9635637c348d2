package vhd

import "errors"

// Error surface mirrors the errno-style taxonomy: transient conditions
// the caller should retry, I/O failures tied to one request, and
// corruption detected only at open/create time.
var (
	ErrBusy        = errors.New("vhd: busy, retry")
	ErrIO          = errors.New("vhd: i/o error")
	ErrInvalidArg  = errors.New("vhd: invalid argument")
	ErrNoMem       = errors.New("vhd: out of memory")
	ErrNotAllocated = errors.New("vhd: sector not allocated in this image")
	ErrClosed      = errors.New("vhd: requests outstanding at close")
)
