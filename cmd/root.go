// Package cmd provides the command-line interface for fmscript. It wires
// the script client packages to a small set of cobra commands: configure a
// server connection, run scripts, and inspect the stored state. All
// user-facing output goes through pterm; secrets are masked before display.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fmscript",
	Short: "Run FileMaker server scripts from the command line",
	Long: `fmscript executes named scripts on a FileMaker server and prints their
results. It speaks both server protocols: the stateless OData API (preferred)
and the session-token based Data API. Configure a connection once with
"fmscript connect"; the connection URL is stored in the OS keychain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("fmscript %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}
