package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blocktap/govhd/internal/vhdformat"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <parent> <child>",
	Short: "Create a differencing child pointed at a parent image",
	Long: `Create a new differencing disk at <child> whose parent is <parent>.
The child inherits the parent's logical size and is empty: every read
falls through to the parent until the child is written to.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(parentPath, childPath string) error {
	if err := vhdformat.Snapshot(parentPath, childPath); err != nil {
		return err
	}
	if !GetQuiet() {
		fmt.Printf("created %s as a differencing child of %s\n", childPath, parentPath)
	}
	return nil
}
