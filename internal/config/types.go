// Package config provides configuration types for wizardry-host. These
// types map to the YAML configuration file.
package config

import "time"

// Config represents the wizardry-host configuration.
// It is typically stored at ~/.config/wizardry/config.yaml.
type Config struct {
	Host      HostConfig      `yaml:"host,omitempty"`
	Resources ResourcesConfig `yaml:"resources,omitempty"`
	Bridge    BridgeConfig    `yaml:"bridge,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// HostConfig contains settings for the loopback HTTP server and window.
type HostConfig struct {
	Listen string `yaml:"listen,omitempty"`
	Entry  string `yaml:"entry,omitempty"`
	Open   string `yaml:"open,omitempty"`
}

// ResourcesConfig contains settings for serving application files.
type ResourcesConfig struct {
	StrictStatus bool     `yaml:"strict_status,omitempty"`
	SniffUnknown bool     `yaml:"sniff_unknown,omitempty"`
	Gzip         *bool    `yaml:"gzip,omitempty"`
	Hidden       []string `yaml:"hidden,omitempty"`
}

// BridgeConfig contains settings for the command bridge.
type BridgeConfig struct {
	Timeout       string   `yaml:"timeout,omitempty"`
	MaxConcurrent int      `yaml:"max_concurrent,omitempty"`
	RateLimit     float64  `yaml:"rate_limit,omitempty"`
	Allow         []string `yaml:"allow,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	File      string `yaml:"file,omitempty"`
	Level     string `yaml:"level,omitempty"`
	Audit     *bool  `yaml:"audit,omitempty"`
	AuditFile string `yaml:"audit_file,omitempty"`
}

// GzipEnabled reports whether resource responses are compressed.
// Unset means enabled.
func (c ResourcesConfig) GzipEnabled() bool {
	return c.Gzip == nil || *c.Gzip
}

// AuditEnabled reports whether bridge audit lines are written.
// Unset means enabled.
func (c LogConfig) AuditEnabled() bool {
	return c.Audit == nil || *c.Audit
}

// TimeoutDuration returns the per-invocation deadline. An empty or
// unparseable value means no deadline; Validate rejects the latter.
func (c BridgeConfig) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}
