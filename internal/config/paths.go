package config

import (
	"fmt"
	"os"

	"github.com/wizardry/host/internal/pathutil"
)

// Dir returns the wizardry configuration directory path.
// By default, this is ~/.config/wizardry/. If the XDG_CONFIG_HOME
// environment variable is set, it uses $XDG_CONFIG_HOME/wizardry/ instead.
// The returned path always has a trailing slash.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = "~/.config"
	}
	return pathutil.ExpandHome(base) + "/wizardry/"
}

// EnsureDir creates the configuration directory if it doesn't exist. It
// uses 0700 permissions (user-only access).
func EnsureDir() error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the configuration file.
// This is Dir() + "config.yaml".
func ConfigPath() string {
	return Dir() + "config.yaml"
}
