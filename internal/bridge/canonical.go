package bridge

import "strings"

// canonicalCmd renders a command list as a single display string. It is
// used for audit lines, log messages and policy matching, never for
// execution.
//
//	["ls", "-la"]           → "ls -la"
//	["echo", "hello world"] → "echo 'hello world'"
//	["echo", "it's"]        → "echo 'it'\''s'"
func canonicalCmd(args []string) string {
	if len(args) == 0 {
		return ""
	}

	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

// shellQuote returns s unchanged when every character is safe, otherwise
// wraps it in single quotes with embedded quotes written as '\''.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(c rune) bool { return !isSafeChar(c) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// isSafeChar reports whether c can appear unquoted.
func isSafeChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '/' || c == ':' || c == '@' || c == '+' || c == '='
}
