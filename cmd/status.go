package cmd

import (
	"fmscript/cli/internal/config"
	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/keychain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// statusCmd shows the stored connection and protocol configuration with
// credentials masked.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured connection and protocol",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			pterm.Println("⚠️  Secure storage unavailable:", err.Error())
			return nil
		}

		rawURL, err := km.LoadConnectionURL()
		if err != nil {
			pterm.Println("⚠️  No connection configured.")
			pterm.Println("   Please run: fmscript connect")
			return nil
		}

		conn, err := connection.Parse(rawURL)
		if err != nil {
			pterm.Println("⚠️  The stored connection URL is invalid; run fmscript connect again.")
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		tls := "enabled"
		if conn.DisableTLS {
			tls = "disabled"
		}
		pterm.Printf("Server:    %s (TLS %s)\n", conn.HostPort(), tls)
		pterm.Printf("Database:  %s\n", conn.Database)
		pterm.Printf("Username:  %s\n", conn.Username)
		pterm.Printf("Protocol:  %s\n", cfg.Protocol)
		if cfg.Layout.Name != "" {
			pterm.Printf("Layout:    %s (%s = %s)\n", cfg.Layout.Name, cfg.Layout.SearchField, cfg.Layout.SearchValue)
		} else if cfg.Protocol == config.ProtocolDataAPI {
			pterm.Println("Layout:    not configured (required for the data protocol)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
