package config

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// validLogLevels defines the allowed log level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validOpenModes defines the allowed host.open values.
var validOpenModes = map[string]bool{
	"browser": true,
	"none":    true,
}

// Validate checks that all fields contain valid values. It validates:
//   - host.listen is host:port or :port with a port of 0-65535
//   - host.entry is a relative path inside the application directory
//   - host.open is browser or none
//   - resources.hidden patterns are valid globs
//   - bridge.timeout is a non-negative duration
//   - bridge.max_concurrent and bridge.rate_limit are non-negative
//   - bridge.allow patterns compile
//   - log.level is one of: debug, info, warn, error (if non-empty)
//
// Returns nil if the config is valid, or an error naming the invalid field.
func Validate(cfg *Config) error {
	if cfg.Host.Listen != "" {
		if err := validateListenAddr(cfg.Host.Listen, "host.listen"); err != nil {
			return err
		}
	}
	if cfg.Host.Entry != "" {
		if err := validateEntry(cfg.Host.Entry, "host.entry"); err != nil {
			return err
		}
	}
	if cfg.Host.Open != "" && !validOpenModes[cfg.Host.Open] {
		return fmt.Errorf("host.open: invalid value %q, must be one of: browser, none", cfg.Host.Open)
	}

	for i, pattern := range cfg.Resources.Hidden {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("resources.hidden[%d]: invalid pattern %q", i, pattern)
		}
	}

	if cfg.Bridge.Timeout != "" {
		if err := validateDuration(cfg.Bridge.Timeout, "bridge.timeout"); err != nil {
			return err
		}
	}
	if cfg.Bridge.MaxConcurrent < 0 {
		return fmt.Errorf("bridge.max_concurrent: must be non-negative, got %d", cfg.Bridge.MaxConcurrent)
	}
	if cfg.Bridge.RateLimit < 0 {
		return fmt.Errorf("bridge.rate_limit: must be non-negative, got %g", cfg.Bridge.RateLimit)
	}
	for i, pattern := range cfg.Bridge.Allow {
		if err := validateRegex(pattern, fmt.Sprintf("bridge.allow[%d]", i)); err != nil {
			return err
		}
	}

	if cfg.Log.Level != "" && !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level: invalid value %q, must be one of: debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// validateListenAddr validates a listen address in the format ":port" or "host:port".
// Port must be in the range 0-65535; 0 selects a free port.
func validateListenAddr(addr, field string) error {
	colonIdx := strings.LastIndex(addr, ":")
	if colonIdx == -1 {
		return fmt.Errorf("%s: invalid format %q, expected host:port or :port", field, addr)
	}

	portStr := addr[colonIdx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%s: invalid port %q in %q", field, portStr, addr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s: invalid port number %d, must be 0-65535", field, port)
	}

	return nil
}

// validateEntry rejects absolute entry paths and paths leaving the
// application directory.
func validateEntry(entry, field string) error {
	if strings.HasPrefix(entry, "/") || strings.HasPrefix(entry, `\`) {
		return fmt.Errorf("%s: %q must be relative to the application directory", field, entry)
	}
	clean := path.Clean(strings.ReplaceAll(entry, `\`, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%s: %q leaves the application directory", field, entry)
	}
	return nil
}

// validateDuration validates that a duration string can be parsed by
// time.ParseDuration and is not negative.
func validateDuration(d, field string) error {
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", field, d)
	}
	if parsed < 0 {
		return fmt.Errorf("%s: must be non-negative, got %q", field, d)
	}
	return nil
}

// validateRegex validates that a pattern compiles as a valid regular expression.
// Empty patterns are considered valid (no-op).
func validateRegex(pattern, field string) error {
	if pattern == "" {
		return nil
	}
	_, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%s: invalid regex %q: %v", field, pattern, err)
	}
	return nil
}
