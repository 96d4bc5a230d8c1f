// Package config loads and stores fmscript configuration in the XDG config
// dir. Only non-secret settings live here; the connection URL goes to the
// OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"fmscript/cli/internal/xdg"
)

// Protocol names for the two script transports.
const (
	ProtocolOData   = "odata"
	ProtocolDataAPI = "data"
)

// Config holds non-sensitive fmscript settings.
type Config struct {
	Protocol string       `json:"protocol"`
	Layout   LayoutConfig `json:"layout"`
}

// LayoutConfig holds the Data API script layout context: the layout and the
// single-record find the script execution rides on.
type LayoutConfig struct {
	Name        string `json:"name"`
	SearchField string `json:"search_field"`
	SearchValue string `json:"search_value"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	var c Config
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// OData is the preferred transport when available.
			c.Protocol = ProtocolOData
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.Protocol == "" {
		c.Protocol = ProtocolOData
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Clear removes the stored configuration file.
func Clear() error {
	p, err := path()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
