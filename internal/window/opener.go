// Package window opens the application page for the user.
package window

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/executor"
	"github.com/wizardry/host/internal/term"
)

// Open modes accepted by ForMode.
const (
	ModeBrowser = "browser"
	ModeNone    = "none"
)

// ErrUnknownMode is returned by ForMode for an unrecognized mode.
var ErrUnknownMode = errors.New("unknown open mode")

// Opener presents a URL to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// SystemOpener opens URLs with the platform's default handler.
type SystemOpener struct {
	Exec executor.Executor
	// GOOS selects the platform command. Empty means runtime.GOOS.
	GOOS string
}

// Command returns the program and arguments that open url on goos.
func Command(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// Open runs the platform opener and waits for it to hand off the URL.
func (o *SystemOpener) Open(ctx context.Context, url string) error {
	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	program, args := Command(goos, url)

	clog.Debug("window: opening %s with %s", url, program)
	res := o.Exec.Execute(ctx, executor.Request{Program: program, Args: args})

	switch {
	case res.Status != executor.StatusCompleted:
		return fmt.Errorf("failed to run %s: %s", program, res.Error)
	case res.ExitCode != 0:
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return fmt.Errorf("%s failed: %s", program, msg)
	}
	return nil
}

// NoopOpener prints the URL instead of opening it.
type NoopOpener struct{}

// Open prints url for the user.
func (NoopOpener) Open(_ context.Context, url string) error {
	clog.Info("window: open disabled, serving %s", url)
	term.Println("Open this address in a browser to use the application:")
	term.Link(url)
	return nil
}

// ForMode returns the opener for an open mode. An empty mode means
// ModeBrowser.
func ForMode(mode string, exec executor.Executor) (Opener, error) {
	switch mode {
	case "", ModeBrowser:
		return &SystemOpener{Exec: exec}, nil
	case ModeNone:
		return NoopOpener{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %q or %q)", ErrUnknownMode, mode, ModeBrowser, ModeNone)
	}
}
