package bridge

import (
	"regexp"

	"github.com/wizardry/host/internal/clog"
)

// Policy decides whether a command may run. When it refuses, the reason is
// reported to the page.
type Policy interface {
	Allow(command []string) (bool, string)
}

// PolicyFunc adapts an ordinary function to the Policy interface.
type PolicyFunc func(command []string) (bool, string)

// Allow calls f(command).
func (f PolicyFunc) Allow(command []string) (bool, string) {
	return f(command)
}

// compiledPattern holds a compiled regex and its original pattern string.
type compiledPattern struct {
	regex   *regexp.Regexp
	pattern string
}

// PatternPolicy allows commands whose canonical form matches at least one
// regular expression. With no patterns every command is allowed.
type PatternPolicy struct {
	allow      []compiledPattern
	restricted bool
}

// NewPatternPolicy compiles the given patterns. Invalid patterns are logged
// and skipped, not fatal.
func NewPatternPolicy(patterns []string) *PatternPolicy {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			clog.Warn("invalid allow pattern %q: %v (skipped)", p, err)
			continue
		}
		compiled = append(compiled, compiledPattern{regex: re, pattern: p})
	}
	return &PatternPolicy{allow: compiled, restricted: len(patterns) > 0}
}

// Allow matches the canonical command string against the allow list.
func (p *PatternPolicy) Allow(command []string) (bool, string) {
	if !p.restricted {
		return true, ""
	}

	cmd := canonicalCmd(command)
	for _, cp := range p.allow {
		if cp.regex.MatchString(cmd) {
			clog.Debug("policy: %q matched %q", cmd, cp.pattern)
			return true, ""
		}
	}
	return false, "command not allowed"
}
