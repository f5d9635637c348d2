package vhdformat

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CreateOptions configures Create.
type CreateOptions struct {
	// SizeBytes is the logical (current) size of the new image. For a
	// differencing image this is overridden with the parent's size.
	SizeBytes uint64

	// Sparse selects DYNAMIC (no BackingPath) or DIFFERENCING
	// (BackingPath set) layout. Sparse=false always creates FIXED.
	Sparse bool

	// BackingPath, if set, makes this a differencing disk pointing at
	// the named parent.
	BackingPath string

	// BlockSize is the dynamic/differencing block size in bytes. Must
	// be a power-of-two multiple of 512. Zero selects 2 MiB.
	BlockSize uint32

	CreatorApp    [4]byte
	CreatorHostOS [4]byte
}

// Create constructs a new VHD image at path per opts.
func Create(path string, opts CreateOptions) error {
	if opts.BlockSize == 0 {
		opts.BlockSize = 2 * 1024 * 1024
	}
	if opts.BlockSize%SectorSize != 0 || opts.BlockSize&(opts.BlockSize-1) != 0 {
		return fmt.Errorf("vhdformat: block size %d is not a power-of-two multiple of %d", opts.BlockSize, SectorSize)
	}

	var diskType DiskType
	var parentFooter *Footer
	var parentHeader *DynamicHeader
	if opts.BackingPath != "" {
		diskType = DiskTypeDifferencing
		pf, ph, err := readFooterAndHeader(opts.BackingPath)
		if err != nil {
			return fmt.Errorf("vhdformat: reading parent %s: %w", opts.BackingPath, err)
		}
		parentFooter = pf
		parentHeader = ph
		opts.SizeBytes = pf.CurrentSize
	} else if opts.Sparse {
		diskType = DiskTypeDynamic
	} else {
		diskType = DiskTypeFixed
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("vhdformat: creating %s: %w", path, err)
	}
	defer f.Close()

	footer := &Footer{
		Timestamp:    toVHDTimestamp(time.Now()),
		CreatorApp:   opts.CreatorApp,
		CreatorHostOS: opts.CreatorHostOS,
		OriginalSize: opts.SizeBytes,
		CurrentSize:  opts.SizeBytes,
		Geometry:     CalcGeometry(opts.SizeBytes),
		DiskType:     diskType,
		UniqueID:     newImageUUID(),
	}

	if diskType == DiskTypeFixed {
		footer.DataOffset = NoDataOffset
		if err := f.Truncate(int64(opts.SizeBytes) + FooterSize); err != nil {
			return fmt.Errorf("vhdformat: truncating: %w", err)
		}
		if _, err := f.WriteAt(footer.Encode(), int64(opts.SizeBytes)); err != nil {
			return fmt.Errorf("vhdformat: writing footer: %w", err)
		}
		return nil
	}

	// Non-FIXED: footer backup at byte 0, header right after, then BAT,
	// then the (initially empty) data region.
	footer.DataOffset = FooterSize

	maxBAT := uint32((opts.SizeBytes + uint64(opts.BlockSize) - 1) / uint64(opts.BlockSize))
	if maxBAT == 0 {
		maxBAT = 1
	}

	header := &DynamicHeader{
		TableOffset:   FooterSize + HeaderSize,
		HeaderVersion: headerVersion,
		MaxBATEntries: maxBAT,
		BlockSize:     opts.BlockSize,
	}

	if diskType == DiskTypeDifferencing {
		header.ParentUniqueID = parentFooter.UniqueID
		header.ParentTimestamp = parentFooter.Timestamp
		_ = parentHeader
		absParent, err := filepath.Abs(opts.BackingPath)
		if err != nil {
			return fmt.Errorf("vhdformat: resolving parent path: %w", err)
		}
		header.ParentName = filepath.Base(absParent)
		macxPayload := encodeMACXLocation(absParent)
		header.ParentLocators[0] = ParentLocator{
			PlatformCode: PlatformMacX,
			DataSpace:    uint32((len(macxPayload) + SectorSize - 1) / SectorSize),
			DataLength:   uint32(len(macxPayload)),
			DataOffset:   header.TableOffset + uint64(BATSizeBytes(maxBAT)),
		}
	}

	batOffset := header.TableOffset
	locatorOffset := batOffset + uint64(BATSizeBytes(maxBAT))
	dataStart := locatorOffset

	if diskType == DiskTypeDifferencing {
		loc := header.ParentLocators[0]
		payload := encodeMACXLocation(filepathAbsOrEmpty(opts.BackingPath))
		padded := padToSector(payload)
		dataStart = loc.DataOffset + uint64(len(padded))
	}

	bat := make([]uint32, maxBAT)
	for i := range bat {
		bat[i] = BATUnused
	}

	if err := f.Truncate(int64(dataStart)); err != nil {
		return fmt.Errorf("vhdformat: truncating: %w", err)
	}
	if _, err := f.WriteAt(footer.Encode(), 0); err != nil {
		return fmt.Errorf("vhdformat: writing backup footer: %w", err)
	}
	if _, err := f.WriteAt(header.Encode(), int64(footer.DataOffset)); err != nil {
		return fmt.Errorf("vhdformat: writing header: %w", err)
	}
	if _, err := f.WriteAt(EncodeBAT(bat), int64(batOffset)); err != nil {
		return fmt.Errorf("vhdformat: writing BAT: %w", err)
	}
	if diskType == DiskTypeDifferencing {
		payload := padToSector(encodeMACXLocation(filepathAbsOrEmpty(opts.BackingPath)))
		if _, err := f.WriteAt(payload, int64(header.ParentLocators[0].DataOffset)); err != nil {
			return fmt.Errorf("vhdformat: writing parent locator: %w", err)
		}
	}
	if _, err := f.WriteAt(footer.Encode(), int64(dataStart)); err != nil {
		return fmt.Errorf("vhdformat: writing footer: %w", err)
	}

	return nil
}

// Snapshot is a convenience wrapper over Create that builds a sparse
// differencing image pointed at parentPath.
func Snapshot(parentPath, childPath string) error {
	return Create(childPath, CreateOptions{Sparse: true, BackingPath: parentPath})
}

func readFooterAndHeader(path string) (*Footer, *DynamicHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	footer, _, err := ReadFooterWithFallback(func(p []byte, off int64) error {
		_, err := f.ReadAt(p, off)
		return err
	}, stat.Size())
	if err != nil {
		return nil, nil, err
	}

	if footer.DiskType == DiskTypeFixed {
		return footer, nil, nil
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBuf, int64(footer.DataOffset)); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DecodeHeader(headerBuf)
	if err != nil {
		return nil, nil, err
	}
	return footer, header, nil
}

func padToSector(b []byte) []byte {
	n := (len(b) + SectorSize - 1) / SectorSize * SectorSize
	out := make([]byte, n)
	copy(out, b)
	return out
}

func filepathAbsOrEmpty(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
