// Package version provides version information for wizardry-host.
// The Version variable is set at build time via ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of wizardry-host.
// Set at build time via: -ldflags "-X github.com/wizardry/host/internal/version.Version=v1.0.0"
// Defaults to "dev" for development builds.
var Version = "dev"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Revision returns the VCS revision recorded by the Go toolchain, shortened
// to 12 characters, with a "-dirty" suffix for modified trees. It returns
// "" when the binary carries no VCS information.
func Revision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// String returns the version line printed by --version.
func String() string {
	v := Version
	if rev := Revision(); rev != "" {
		v += " (" + rev + ")"
	}
	return fmt.Sprintf("%s %s/%s", v, runtime.GOOS, runtime.GOARCH)
}
