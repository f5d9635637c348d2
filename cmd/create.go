package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blocktap/govhd/internal/config"
	"github.com/blocktap/govhd/internal/vhdformat"
)

var (
	createSizeBytes  uint64
	createType       string
	createBacking    string
	createBlockSize  uint32
)

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new fixed, dynamic, or differencing image",
	Long: `Create a new VHD image.

Examples:
  vhd create disk.vhd --size 1073741824 --type fixed
  vhd create disk.vhd --size 10737418240 --type dynamic --block-size 2097152
  vhd create snap.vhd --type diff --backing disk.vhd`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0])
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().Uint64Var(&createSizeBytes, "size", 0, "logical size in bytes (ignored for --type diff, taken from the parent)")
	createCmd.Flags().StringVar(&createType, "type", "dynamic", "image layout: fixed, dynamic, or diff")
	createCmd.Flags().StringVar(&createBacking, "backing", "", "parent image path, required for --type diff")
	createCmd.Flags().Uint32Var(&createBlockSize, "block-size", 0, "block size in bytes for dynamic/diff layouts (0 selects the default)")
}

func runCreate(path string) error {
	opts := vhdformat.CreateOptions{
		SizeBytes: createSizeBytes,
		BlockSize: createBlockSize,
	}
	if opts.BlockSize == 0 {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		opts.BlockSize = uint32(cfg.DefaultBlockSizeBytes)
	}

	switch createType {
	case "fixed":
		opts.Sparse = false
	case "dynamic":
		opts.Sparse = true
	case "diff", "differencing":
		if createBacking == "" {
			return fmt.Errorf("vhd create: --backing is required for --type %s", createType)
		}
		opts.Sparse = true
		opts.BackingPath = createBacking
	default:
		return fmt.Errorf("vhd create: unknown --type %q (want fixed, dynamic, or diff)", createType)
	}

	if err := vhdformat.Create(path, opts); err != nil {
		return err
	}

	if !GetQuiet() {
		fmt.Printf("created %s (%s)\n", path, createType)
	}
	return nil
}
