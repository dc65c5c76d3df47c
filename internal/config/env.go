package config

import (
	"fmt"
	"strconv"

	"github.com/kelseyhightower/envconfig"

	"github.com/wizardry/host/internal/clog"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "WIZARDRY"

// envOverrides holds the settings that may be overridden from the
// environment. Empty values leave the file settings alone. Fields must not
// carry envconfig tags: a tag makes envconfig also read the unprefixed name.
type envOverrides struct {
	Debug    string
	Listen   string
	Open     string
	Timeout  string
	LogLevel string `split_words:"true"`
}

// ApplyEnv overrides cfg with WIZARDRY_* environment variables.
// WIZARDRY_DEBUG takes precedence over WIZARDRY_LOG_LEVEL.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	if env.Listen != "" {
		cfg.Host.Listen = env.Listen
	}
	if env.Open != "" {
		cfg.Host.Open = env.Open
	}
	if env.Timeout != "" {
		cfg.Bridge.Timeout = env.Timeout
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if debugEnabled(env.Debug) {
		cfg.Log.Level = "debug"
	}
	return nil
}

// debugEnabled reports whether a WIZARDRY_DEBUG value turns debug logging
// on. Anything that is not a true boolean leaves it off.
func debugEnabled(v string) bool {
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		clog.Warn("ignoring %s_DEBUG=%q: not a boolean", EnvPrefix, v)
		return false
	}
	return on
}
