// Package cmd implements the wizardry-host command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/config"
	"github.com/wizardry/host/internal/executor"
	"github.com/wizardry/host/internal/pathutil"
	"github.com/wizardry/host/internal/shell"
	"github.com/wizardry/host/internal/term"
	"github.com/wizardry/host/internal/version"
	"github.com/wizardry/host/internal/window"
)

// rootFlags holds the values of the root command's flags.
var rootFlags struct {
	configPath string
	debug      bool
	quiet      bool
	strict     bool
	listen     string
	open       string
	timeout    string
}

// rootCmd hosts an application directory.
var rootCmd = &cobra.Command{
	Use:   "wizardry-host [flags] <app-directory>",
	Short: "Host a local web application with a native command bridge",
	Long: `wizardry-host serves a local web application from a directory and lets the
page run native commands through window.wizardry.exec.

The application's files are served from a sandbox rooted at <app-directory>;
requests that resolve outside it are refused. The entry document (index.html
by default) is loaded with a per-launch token, and only a page holding that
token can open the command channel.

Settings are read from ~/.config/wizardry/config.yaml (see 'wizardry-host
config'), overridden by WIZARDRY_* environment variables and then by flags.`,
	Version:       version.String(),
	Args:          appDirArg,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHost,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&rootFlags.configPath, "config", "", "config file (default ~/.config/wizardry/config.yaml)")
	f.BoolVar(&rootFlags.debug, "debug", false, "enable debug logging")
	f.BoolVarP(&rootFlags.quiet, "quiet", "q", false, "suppress informational output")
	f.StringVar(&rootFlags.listen, "listen", "", "listen address, host:port (port 0 picks a free port)")
	f.StringVar(&rootFlags.open, "open", "", "how to present the page: browser or none")
	f.StringVar(&rootFlags.timeout, "timeout", "", "per-command deadline, e.g. 30s (empty for none)")
	f.BoolVar(&rootFlags.strict, "strict", false, "answer sandbox escapes with 403 instead of 404")
}

// Execute runs the root command and returns any error. Errors other than
// ExitCodeError are reported on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) {
		term.Error("%v", err)
	}
	return err
}

// appDirArg requires exactly one application directory.
func appDirArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), usageLine)
		return NewExitCodeError(1)
	}
	return nil
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	term.SetSilent(rootFlags.quiet)
	if err := clog.Configure(cfg.Log.File, clog.ParseLevel(cfg.Log.Level), false); err != nil {
		clog.Warn("log file unavailable, logging to stderr only: %v", err)
	}
	defer func() { _ = clog.Close() }()
	clog.RedirectStdLog(clog.LevelWarn)

	appDir, err := pathutil.Abs(args[0])
	if err != nil {
		return fmt.Errorf("application directory: %w", err)
	}

	auditOut, closeAudit := openAudit(cfg)
	defer closeAudit()

	exec := executor.NewRealExecutor()
	opener, err := window.ForMode(cfg.Host.Open, exec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = shell.Launch(ctx, shell.Options{
		AppDir:        appDir,
		Entry:         cfg.Host.Entry,
		Listen:        cfg.Host.Listen,
		Opener:        opener,
		Executor:      exec,
		Strict:        cfg.Resources.StrictStatus,
		SniffUnknown:  cfg.Resources.SniffUnknown,
		Hidden:        cfg.Resources.Hidden,
		Gzip:          cfg.Resources.GzipEnabled(),
		Timeout:       cfg.Bridge.TimeoutDuration(),
		MaxConcurrent: cfg.Bridge.MaxConcurrent,
		RateLimit:     cfg.Bridge.RateLimit,
		Allow:         cfg.Bridge.Allow,
		Audit:         auditOut,
		Ready:         readyBanner(appDir, cfg.Host.Open),
	})
	if err != nil {
		if friendly := startupError(err); friendly != nil {
			return friendly
		}
		return err
	}
	clog.Info("wizardry-host: stopped")
	return nil
}

// applyFlags overrides cfg with flags set on the command line and validates
// the result.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Host.Listen = rootFlags.listen
	}
	if f.Changed("open") {
		cfg.Host.Open = rootFlags.open
	}
	if f.Changed("timeout") {
		cfg.Bridge.Timeout = rootFlags.timeout
	}
	if f.Changed("strict") {
		cfg.Resources.StrictStatus = rootFlags.strict
	}
	if rootFlags.debug {
		cfg.Log.Level = "debug"
	}
	return config.Validate(cfg)
}

// openAudit opens the audit log when auditing is enabled. The returned
// close function is always safe to call.
func openAudit(cfg *config.Config) (io.Writer, func()) {
	if !cfg.Log.AuditEnabled() || cfg.Log.AuditFile == "" {
		return nil, func() {}
	}
	f, err := clog.OpenLogFile(cfg.Log.AuditFile)
	if err != nil {
		clog.Warn("audit log unavailable: %v", err)
		return nil, func() {}
	}
	return f, func() { _ = f.Close() }
}

// readyBanner returns the callback that tells the user the host is up.
func readyBanner(appDir, openMode string) func(string) {
	return func(url string) {
		term.Printf("Serving %s\n", appDir)
		if openMode != window.ModeNone {
			term.Println("Opening the application in your browser:")
			term.Link(url)
		}
		if term.IsInteractive() {
			term.Println("Press Ctrl+C to stop.")
		}
	}
}
