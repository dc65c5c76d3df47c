package cmd

import (
	"errors"
	"fmt"

	"github.com/wizardry/host/internal/shell"
)

// ExitCodeError carries a process exit code out of a command. Execute does
// not print it; whatever the user needs to see has already been written.
type ExitCodeError struct {
	Code int
}

// NewExitCodeError returns an ExitCodeError for code.
func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// usageLine is printed for a missing or extra application directory.
const usageLine = "Usage: wizardry-host <app-directory>"

// startupError turns a launch failure into a message for the terminal.
// Returns nil if the error is not a recognized startup error.
func startupError(err error) error {
	switch {
	case errors.Is(err, shell.ErrAppDirNotFound):
		return fmt.Errorf("%w; pass the directory containing the application's index.html", err)
	case errors.Is(err, shell.ErrEntryNotFound):
		return fmt.Errorf("%w; the application directory must contain its entry document", err)
	case errors.Is(err, shell.ErrEntryUnreadable):
		return fmt.Errorf("%w; check the file's permissions", err)
	}
	return nil
}
