package cmd

import (
	"fmscript/cli/internal/config"
	"fmscript/cli/internal/keychain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// disconnectCmd removes the stored connection URL and configuration.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the saved connection and configuration",
	Long: `The disconnect command clears the connection URL from the OS keychain and
removes the stored protocol and layout configuration. Session tokens are
per-invocation and released after each run, so nothing is left server-side.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if km, err := keychain.GetManager(); err == nil {
			_ = km.ClearConnection()
		}
		_ = config.Clear()

		pterm.Println("✅ Connection details removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
