package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/pathutil"
)

// Load loads the configuration from path, or from ConfigPath() when path
// is empty, then applies environment overrides and validates the result.
//
// A missing file at the default path yields DefaultConfig() and the default
// file is created for the user to edit. A missing file at an explicit path
// is an error. All paths containing ~ are expanded.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = ConfigPath()
	}
	clog.Debug("config: loading %s", path)

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err = ParseConfig(data)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		clog.Debug("config: file not found, creating defaults")
		if writeErr := WriteDefaultConfig(); writeErr != nil {
			clog.Warn("config: failed to create default config: %v", writeErr)
		}
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	expandPaths(cfg)
	return cfg, nil
}

// expandPaths expands ~ to the home directory in all path fields.
func expandPaths(cfg *Config) {
	cfg.Log.File = pathutil.ExpandHome(cfg.Log.File)
	cfg.Log.AuditFile = pathutil.ExpandHome(cfg.Log.AuditFile)
}
