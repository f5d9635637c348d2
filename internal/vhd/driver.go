// Package vhd implements the write-path state machine for a
// sector-granular, asynchronous VHD block backend: a bounded bitmap
// cache with LRU eviction, a two-phase BAT-and-bitmap transaction
// engine, an AIO submit/poll loop, and the completion finishers that
// drive every state transition. All scheduling and finisher logic
// runs on whichever goroutine calls into the Driver; only I/O
// completion delivery crosses a goroutine boundary.
package vhd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/blocktap/govhd/internal/aio"
	"github.com/blocktap/govhd/internal/config"
	"github.com/blocktap/govhd/internal/logging"
	"github.com/blocktap/govhd/internal/vhdformat"
)

const sectorsPerPage = 8 // 4096-byte page / 512-byte sector

// Driver is one open image's live state: everything needed to
// classify, schedule, and complete sector-granular reads and writes
// against it.
type Driver struct {
	path     string
	readOnly bool

	backend aio.Backend
	aioCtx  *aio.Context
	log     *zap.Logger

	footer *vhdformat.Footer
	header *vhdformat.DynamicHeader // nil for FIXED

	sectorsPerBlock uint32
	bitmapSectors   uint32
	cacheSize       int

	pool  *requestPool
	cache *bitmapCache
	bat   *batManager // nil for FIXED

	submission  []*aio.IOCB
	outstanding int // requests with I/O in flight or awaiting finalization
}

// OpenOptions configures Open.
type OpenOptions struct {
	ReadOnly bool
	Config   *config.Config
}

// Open loads an image's footer (and, for non-FIXED images, its
// dynamic-disk header and BAT) and returns a ready driver handle.
func Open(path string, opts OpenOptions) (*Driver, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	backend, err := aio.OpenFileBackend(path, false, cfg.DirectIO)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	d, err := openBackend(backend, path, opts, cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return d, nil
}

// openBackend is Open's body generalized over any aio.Backend, so
// tests can drive the full state machine against an in-memory backend
// without touching a filesystem.
func openBackend(backend aio.Backend, path string, opts OpenOptions, cfg *config.Config) (*Driver, error) {
	d := &Driver{
		path:      path,
		readOnly:  opts.ReadOnly,
		backend:   backend,
		log:       logging.For("vhd.driver"),
		pool:      newRequestPool(cfg.DataReqs),
		cacheSize: cfg.CacheSize,
	}

	if err := d.loadHeaderState(); err != nil {
		return nil, err
	}

	d.aioCtx = aio.NewContext(backend, cfg.AIOWorkers, cfg.AIOQueueDepth, d.log)
	return d, nil
}

func (d *Driver) loadHeaderState() error {
	size, err := d.backend.Size()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	footer, usedBackup, err := vhdformat.ReadFooterWithFallback(d.backend.ReadAt, size)
	if err != nil {
		return err // corruption errors propagate unwrapped
	}
	if usedBackup {
		d.log.Warn("primary footer unreadable, opened from backup copy at byte 0", zap.String("path", d.path))
	}
	d.footer = footer

	if footer.DiskType == vhdformat.DiskTypeFixed {
		return nil
	}

	headerBuf := make([]byte, vhdformat.HeaderSize)
	if err := d.backend.ReadAt(headerBuf, int64(footer.DataOffset)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	header, err := vhdformat.DecodeHeader(headerBuf)
	if err != nil {
		return err
	}
	d.header = header

	d.sectorsPerBlock = vhdformat.SectorsPerBlock(header.BlockSize)
	d.bitmapSectors = vhdformat.BitmapSectors(header.BlockSize)

	batBuf := make([]byte, vhdformat.BATSizeBytes(header.MaxBATEntries))
	if err := d.backend.ReadAt(batBuf, int64(header.TableOffset)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	entries := vhdformat.DecodeBAT(batBuf, header.MaxBATEntries)

	nextDB := d.rederiveNextDB(entries)
	d.bat = newBATManager(entries, d.sectorsPerBlock, d.bitmapSectors, sectorsPerPage, nextDB)

	cacheSize := d.cacheSize
	if cacheSize <= 0 {
		cacheSize = 32
	}
	d.cache = newBitmapCache(cacheSize, int(d.bitmapSectors)*vhdformat.SectorSize)
	return nil
}

// rederiveNextDB scans the BAT for the highest allocated offset and
// places next_db just past that block's bitmap and data region --
// images don't persist next_db, so it must be recomputed on every
// open.
func (d *Driver) rederiveNextDB(entries []uint32) uint32 {
	var maxOffset uint32
	var found bool
	for _, e := range entries {
		if e == batUnused {
			continue
		}
		if !found || e > maxOffset {
			maxOffset = e
			found = true
		}
	}
	if !found {
		base := d.header.TableOffset + uint64(vhdformat.BATSizeBytes(d.header.MaxBATEntries))
		if d.footer.DiskType == vhdformat.DiskTypeDifferencing {
			if locEnd := differencingLocatorEnd(d.header); locEnd > base {
				base = locEnd
			}
		}
		return uint32(base / vhdformat.SectorSize)
	}
	next := maxOffset + d.bitmapSectors + d.sectorsPerBlock
	for (next+d.bitmapSectors)%sectorsPerPage != 0 {
		next++
	}
	return next
}

// differencingLocatorEnd returns the byte offset just past the
// farthest-reaching used parent locator's payload. A differencing
// image's data region starts only after this payload (vhdformat.Create
// writes it immediately after the BAT), so a freshly opened image with
// an empty BAT must not let next_db land inside it.
func differencingLocatorEnd(header *vhdformat.DynamicHeader) uint64 {
	var end uint64
	for _, loc := range header.ParentLocators {
		if loc.PlatformCode != vhdformat.PlatformMacX && loc.PlatformCode != vhdformat.PlatformW2KU {
			continue
		}
		locEnd := loc.DataOffset + uint64(vhdformat.LocatorDataSpaceSectors(loc))*vhdformat.SectorSize
		if locEnd > end {
			end = locEnd
		}
	}
	return end
}

// Close flushes the footer (for writable opens) and releases state.
// It is only legal when no requests are outstanding.
func (d *Driver) Close() error {
	if d.outstanding != 0 {
		return ErrClosed
	}
	if d.aioCtx != nil {
		d.aioCtx.Close()
	}
	if !d.readOnly && d.footer != nil {
		footerOffset, err := d.footerOffset()
		if err == nil {
			end := footerOffset + int64(vhdformat.FooterSize)
			if size, serr := d.backend.Size(); serr == nil && size < end {
				d.backend.Truncate(end)
			}
			d.backend.WriteAt(d.footer.Encode(), footerOffset)
			d.backend.Sync()
		}
	}
	return d.backend.Close()
}

// footerOffset is where the footer belongs on close: right after the
// static data region for FIXED images, or at next_db for
// dynamic/differencing images. next_db sits page-aligned past the last
// block actually written (alignNextDB routinely leaves a gap of up to
// sectorsPerPage-1 sectors), so writing at the backend's raw current
// size instead would overwrite the tail of whatever was last written.
func (d *Driver) footerOffset() (int64, error) {
	if d.IsFixed() {
		size, err := d.backend.Size()
		if err != nil {
			return 0, err
		}
		return size - vhdformat.FooterSize, nil
	}
	return int64(d.bat.nextDB) * vhdformat.SectorSize, nil
}

// IsFixed reports whether the open image is a FIXED disk, which
// bypasses the bitmap cache and BAT manager entirely.
func (d *Driver) IsFixed() bool {
	return d.footer.DiskType == vhdformat.DiskTypeFixed
}

func (d *Driver) sizeBytes() uint64 {
	return d.footer.CurrentSize
}

// SizeSectors returns the image's logical size in 512-byte sectors.
func (d *Driver) SizeSectors() uint64 {
	return d.sizeBytes() / vhdformat.SectorSize
}

