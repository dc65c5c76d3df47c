package config

// boolPtr returns a pointer to a bool value.
func boolPtr(b bool) *bool {
	return &b
}

// DefaultConfig returns a Config with all defaults populated.
// The host listens on loopback only and the bridge allows every command,
// matching a single-user desktop host.
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			Listen: "127.0.0.1:0",
			Entry:  "index.html",
			Open:   "browser",
		},
		Resources: ResourcesConfig{
			StrictStatus: false,
			SniffUnknown: false,
			Gzip:         boolPtr(true),
			Hidden:       []string{"**/.*", "**/.*/**"},
		},
		Bridge: BridgeConfig{
			Timeout:       "",
			MaxConcurrent: 0,
			RateLimit:     0,
		},
		Log: LogConfig{
			File:      "~/.local/state/wizardry/wizardry.log",
			Level:     "info",
			Audit:     boolPtr(true),
			AuditFile: "~/.local/state/wizardry/audit.log",
		},
	}
}

// defaultConfigTemplate is written by WriteDefaultConfig. It must parse to
// the same values as DefaultConfig.
const defaultConfigTemplate = `# wizardry-host configuration
#
# Environment overrides: WIZARDRY_DEBUG, WIZARDRY_LISTEN, WIZARDRY_OPEN,
# WIZARDRY_TIMEOUT, WIZARDRY_LOG_LEVEL. Command-line flags override both.

host:
  # Loopback address for the application server. Port 0 picks a free port.
  listen: "127.0.0.1:0"
  # Entry document, relative to the application directory.
  entry: index.html
  # How to present the page: browser (system default) or none (print the URL).
  open: browser

resources:
  # Answer requests that escape the application directory with 403
  # instead of 404.
  strict_status: false
  # Detect the content type of files with unknown extensions.
  sniff_unknown: false
  # Compress responses for clients that accept gzip.
  gzip: true
  # Glob patterns (with **) of application files that are never served.
  # The defaults hide dotfiles and dot-directories such as .git.
  hidden:
    - "**/.*"
    - "**/.*/**"

bridge:
  # Deadline for each command, e.g. "30s". Empty means none.
  timeout: ""
  # Maximum commands running at once. 0 means unlimited.
  max_concurrent: 0
  # Messages per second per page connection. 0 means unlimited.
  rate_limit: 0
  # Regular expressions matched against the shell-quoted command line.
  # Empty allows every command.
  allow: []

log:
  file: ~/.local/state/wizardry/wizardry.log
  level: info
  # Record every bridge invocation.
  audit: true
  audit_file: ~/.local/state/wizardry/audit.log
`
