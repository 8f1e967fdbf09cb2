// Package config loads vmsession configuration from defaults, a yaml file
// and VMSESSION_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for vmsession.
type Paths struct {
	// ConfigDir is the directory searched for config.yaml.
	// macOS: ~/Library/Application Support/vmsession
	// Linux: ~/.config/vmsession (or XDG_CONFIG_HOME)
	ConfigDir string

	// ConfigFile is the path to the default config file.
	ConfigFile string
}

// GetPaths returns platform-aware paths for vmsession.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "vmsession")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "vmsession")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "vmsession")
		}
	}

	p.ConfigFile = filepath.Join(p.ConfigDir, "config.yaml")

	return p, nil
}
