package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wizardry/host/internal/audit"
	"github.com/wizardry/host/internal/bridge"
	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/executor"
	"github.com/wizardry/host/internal/ipc"
	"github.com/wizardry/host/internal/resource"
	"github.com/wizardry/host/internal/token"
	"github.com/wizardry/host/internal/window"
)

// Startup errors. Launch wraps them with the offending path.
var (
	ErrAppDirNotFound  = errors.New("application directory not found")
	ErrEntryNotFound   = errors.New("entry document not found")
	ErrEntryUnreadable = errors.New("entry document unreadable")
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Options configures Launch.
type Options struct {
	// AppDir is the application directory. Required.
	AppDir string
	// Entry is the entry document, relative to AppDir. Default index.html.
	Entry string
	// Listen is the host listen address. Default DefaultListen.
	Listen string

	// Opener presents the page. Default window.NoopOpener.
	Opener window.Opener
	// Executor runs bridge commands. Default executor.NewRealExecutor.
	Executor executor.Executor

	Strict       bool
	SniffUnknown bool
	Gzip         bool
	// Hidden lists doublestar patterns of application files never served.
	Hidden []string

	Timeout       time.Duration
	MaxConcurrent int
	RateLimit     float64
	Allow         []string
	Workdir       string

	// Audit receives bridge audit lines. Nil disables auditing.
	Audit io.Writer

	// Ready is called with the page URL once the host is serving.
	Ready func(url string)
}

// Launch hosts the application in opts.AppDir until ctx is canceled.
//
// Missing or unreadable application directories and entry documents are
// reported before anything starts listening.
func Launch(ctx context.Context, opts Options) error {
	if opts.Entry == "" {
		opts.Entry = "index.html"
	}
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}
	if opts.Opener == nil {
		opts.Opener = window.NoopOpener{}
	}
	if opts.Executor == nil {
		opts.Executor = executor.NewRealExecutor()
	}

	res, err := openApp(opts.AppDir, opts.Entry,
		resource.WithSniffing(opts.SniffUnknown),
		resource.WithHidden(opts.Hidden),
	)
	if err != nil {
		return err
	}

	title := Title(res.Root())
	secret := token.Generate()

	bopts := []bridge.Option{
		bridge.WithTimeout(opts.Timeout),
		bridge.WithMaxConcurrent(opts.MaxConcurrent),
	}
	if len(opts.Allow) > 0 {
		bopts = append(bopts, bridge.WithPolicy(bridge.NewPatternPolicy(opts.Allow)))
	}
	if opts.Audit != nil {
		bopts = append(bopts, bridge.WithAuditLogger(audit.NewLogger(opts.Audit, filepath.Base(res.Root()))))
	}
	if opts.Workdir != "" {
		bopts = append(bopts, bridge.WithWorkdir(opts.Workdir))
	}
	b := bridge.New(opts.Executor, bopts...)

	host := NewHost(res, ipc.NewHandler(b, secret, opts.RateLimit), secret)
	host.Addr = opts.Listen
	host.Entry = opts.Entry
	host.Title = title
	host.Strict = opts.Strict
	host.Gzip = opts.Gzip

	if err := host.Start(); err != nil {
		b.Close()
		return err
	}
	url := host.URL()
	clog.Info("shell: serving %s from %s on %s", title, res.Root(), host.ListenAddr())
	if opts.Ready != nil {
		opts.Ready(url)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-host.Done():
			if err != nil {
				return fmt.Errorf("host stopped: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		if err := opts.Opener.Open(gctx, url); err != nil {
			// The page can still be opened by hand.
			clog.Warn("shell: failed to open window: %v", err)
		}
		return nil
	})
	runErr := g.Wait()

	clog.Info("shell: shutting down, %d invocation(s) pending", b.Pending())
	b.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := host.Stop(stopCtx); err != nil {
		clog.Warn("shell: shutdown: %v", err)
	}

	return runErr
}

// openApp validates the application directory and entry document and
// returns the resource server for the directory.
func openApp(appDir, entry string, opts ...resource.Option) (*resource.Server, error) {
	info, err := os.Stat(appDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrAppDirNotFound, appDir)
	}

	res, err := resource.New(appDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAppDirNotFound, appDir, err)
	}

	path := filepath.Join(res.Root(), filepath.FromSlash(entry))
	info, err = os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %v", ErrEntryUnreadable, path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEntryUnreadable, path, err)
	}
	_ = f.Close()

	if resp := res.Serve(entry); resp.Status == resource.StatusForbidden {
		return nil, fmt.Errorf("%w: %s is outside the application directory", ErrEntryNotFound, entry)
	}

	return res, nil
}
