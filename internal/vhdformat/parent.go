package vhdformat

import (
	"fmt"
	"os"
)

// GetParentID decodes a differencing image's parent locators and
// returns the parent's path. A non-DIFF image, or a DIFF image with no
// MACX/W2KU locator populated, returns ErrNoParent.
func GetParentID(childPath string) (string, error) {
	footer, header, err := readFooterAndHeader(childPath)
	if err != nil {
		return "", err
	}
	if footer.DiskType != DiskTypeDifferencing {
		return "", ErrNoParent
	}
	if header == nil {
		return "", ErrNoParent
	}

	f, err := os.Open(childPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	for _, loc := range header.ParentLocators {
		if loc.PlatformCode != PlatformMacX && loc.PlatformCode != PlatformW2KU {
			continue
		}

		size := LocatorDataSpaceSectors(loc) * SectorSize
		if loc.DataLength > 0 && loc.DataLength < size {
			size = loc.DataLength
		}
		raw := make([]byte, size)
		if _, err := f.ReadAt(raw, int64(loc.DataOffset)); err != nil {
			continue
		}
		loc.RawData = raw[:loc.DataLength]

		if path, ok := DecodeLocatorPayload(loc); ok {
			return path, nil
		}
	}

	return "", ErrNoParent
}

// ValidateParent checks that parentPath's UUID and mtime match
// childPath's recorded parent UUID and timestamp.
func ValidateParent(childPath, parentPath string) error {
	_, childHeader, err := readFooterAndHeader(childPath)
	if err != nil {
		return err
	}
	if childHeader == nil {
		return ErrNoParent
	}

	parentFooter, _, err := readFooterAndHeader(parentPath)
	if err != nil {
		return err
	}

	if parentFooter.UniqueID != childHeader.ParentUniqueID {
		return fmt.Errorf("%w: uuid %x != %x", ErrParentMismatch, parentFooter.UniqueID, childHeader.ParentUniqueID)
	}

	stat, err := os.Stat(parentPath)
	if err != nil {
		return err
	}
	if toVHDTimestamp(stat.ModTime()) != childHeader.ParentTimestamp {
		return fmt.Errorf("%w: mtime %d != %d", ErrParentMismatch, toVHDTimestamp(stat.ModTime()), childHeader.ParentTimestamp)
	}

	return nil
}
