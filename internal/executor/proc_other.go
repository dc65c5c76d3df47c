//go:build !unix

package executor

import "os/exec"

// configureProcessGroup is a no-op where process groups are unavailable;
// exec.CommandContext kills the direct child on cancellation.
func configureProcessGroup(_ *exec.Cmd) {}
