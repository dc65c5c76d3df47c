package config

import (
	"errors"
	"fmt"
	"os"
)

// WriteDefaultConfig creates the default configuration file with helpful comments.
// If the config file already exists, it returns nil without overwriting.
// The config directory is created if it doesn't exist.
// The file is written with 0600 permissions (user read/write only).
func WriteDefaultConfig() error {
	path := ConfigPath()

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := EnsureDir(); err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// WriteConfig writes cfg to ConfigPath(), overwriting any existing file.
// The config directory is created if it doesn't exist.
func WriteConfig(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	data, err := MarshalConfig(cfg)
	if err != nil {
		return err
	}

	if err = os.WriteFile(ConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
