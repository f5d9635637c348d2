package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blocktap/govhd/internal/vhdformat"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Dump an image's footer, header, BAT occupancy, and parent chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	footerBuf := make([]byte, vhdformat.FooterSize)
	if _, err := f.ReadAt(footerBuf, stat.Size()-vhdformat.FooterSize); err != nil {
		return fmt.Errorf("reading footer: %w", err)
	}
	footer, err := vhdformat.DecodeFooter(footerBuf)
	if err != nil {
		return fmt.Errorf("decoding footer: %w", err)
	}

	fmt.Printf("path:          %s\n", path)
	fmt.Printf("type:          %s\n", footer.DiskType)
	fmt.Printf("uuid:          %s\n", uuid.UUID(footer.UniqueID))
	fmt.Printf("current size:  %d bytes\n", footer.CurrentSize)
	fmt.Printf("original size: %d bytes\n", footer.OriginalSize)
	fmt.Printf("geometry:      %d/%d/%d (c/h/s)\n", footer.Geometry.Cylinders, footer.Geometry.Heads, footer.Geometry.SectorsPerTrack)

	if footer.DiskType == vhdformat.DiskTypeFixed {
		return nil
	}

	headerBuf := make([]byte, vhdformat.HeaderSize)
	if _, err := f.ReadAt(headerBuf, int64(footer.DataOffset)); err != nil {
		return fmt.Errorf("reading dynamic-disk header: %w", err)
	}
	header, err := vhdformat.DecodeHeader(headerBuf)
	if err != nil {
		return fmt.Errorf("decoding dynamic-disk header: %w", err)
	}

	fmt.Printf("block size:    %d bytes\n", header.BlockSize)
	fmt.Printf("max BAT entries: %d\n", header.MaxBATEntries)

	batBuf := make([]byte, vhdformat.BATSizeBytes(header.MaxBATEntries))
	if _, err := f.ReadAt(batBuf, int64(header.TableOffset)); err != nil {
		return fmt.Errorf("reading BAT: %w", err)
	}
	bat := vhdformat.DecodeBAT(batBuf, header.MaxBATEntries)
	allocated := 0
	for _, entry := range bat {
		if entry != vhdformat.BATUnused {
			allocated++
		}
	}
	fmt.Printf("blocks allocated: %d / %d\n", allocated, len(bat))

	if footer.DiskType != vhdformat.DiskTypeDifferencing {
		return nil
	}

	parentPath, err := vhdformat.GetParentID(path)
	if err != nil {
		fmt.Printf("parent:        <unresolved: %v>\n", err)
		return nil
	}
	fmt.Printf("parent:        %s\n", parentPath)
	if err := vhdformat.ValidateParent(path, parentPath); err != nil {
		fmt.Printf("parent check:  %v\n", err)
	} else {
		fmt.Printf("parent check:  ok\n")
	}

	return nil
}
