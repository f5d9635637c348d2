package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blocktap/govhd/internal/logging"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "vhd",
	Short: "Create, inspect, and drive VHD-family virtual disk images",
	Long: `vhd is a command-line tool for working with VHD-family virtual disk
images: fixed, dynamic (sparse), and differencing layouts, driven
through the same asynchronous block backend a hypervisor's block tap
would use.

Commands:
  create    Create a new fixed, dynamic, or differencing image
  snapshot  Create a differencing child pointed at a parent image
  inspect   Dump an image's footer, header, BAT occupancy, and parent chain
  bench     Drive the block backend with a synthetic read/write workload`,
	Version: "0.1.0-dev",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json); no subcommand reads it")
}

// GetVerbose returns the verbose flag value.
func GetVerbose() bool { return verbose }

// GetQuiet returns the quiet flag value.
func GetQuiet() bool { return quiet }

// GetOutputFormat returns the output format flag value.
func GetOutputFormat() string { return outputFormat }
