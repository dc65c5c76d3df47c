// Package shell hosts an application directory: it serves the entry
// document with the bridge bootstrap, the application's resources and the
// page's IPC channel from one loopback HTTP server.
package shell

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/ipc"
	"github.com/wizardry/host/internal/resource"
	"github.com/wizardry/host/internal/token"
)

// Reserved paths. Application files under /__wizardry/ are not reachable.
const (
	ScriptPath = "/__wizardry/bridge.js"
	IPCPath    = "/__wizardry/ipc"
)

// DefaultListen is the default listen address: loopback on a random port.
const DefaultListen = "127.0.0.1:0"

//go:embed static/bridge.js
var bridgeScript []byte

// Host is the loopback HTTP server for one application.
type Host struct {
	// Addr is the address to listen on.
	Addr string
	// Entry is the entry document path relative to the application root.
	Entry string
	// Title is used when the entry document has no <title>.
	Title string
	// Token is the launch secret. It is required in the entry document URL
	// and handed to the page through the bootstrap.
	Token string
	// Resources serves application files.
	Resources *resource.Server
	// IPC handles the page connection. If nil, the IPC path is not routed.
	IPC http.Handler
	// Strict reports sandbox escapes as 403 instead of 404.
	Strict bool
	// Gzip compresses resource responses for clients that accept it.
	Gzip bool

	server   *http.Server
	listener net.Listener
	done     chan error
	mu       sync.Mutex
	running  bool
}

// NewHost creates a host for res with default settings.
func NewHost(res *resource.Server, ipcHandler http.Handler, secret string) *Host {
	return &Host{
		Addr:      DefaultListen,
		Entry:     "index.html",
		Title:     Title(res.Root()),
		Token:     secret,
		Resources: res,
		IPC:       ipcHandler,
		Gzip:      true,
	}
}

// Handler returns the host's routes.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()

	entry := h.entryHandler()
	mux.Handle("GET /{$}", entry)
	mux.HandleFunc("GET "+ScriptPath, serveScript)
	if h.IPC != nil {
		mux.Handle("GET "+IPCPath, h.IPC)
	}
	mux.Handle("/__wizardry/", http.NotFoundHandler())

	var files http.Handler = resource.Handler(h.Resources, h.Strict)
	if h.Gzip {
		files = gzhttp.GzipHandler(files)
	}
	entryPath := "/" + strings.TrimLeft(h.Entry, "/")
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == entryPath && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			entry.ServeHTTP(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}))

	return mux
}

// Start begins accepting connections.
// Returns an error if the host is already running or fails to listen.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return errors.New("host already running")
	}

	listener, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.Addr, err)
	}

	h.listener = listener
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	h.done = make(chan error, 1)
	h.running = true

	srv, done := h.server, h.done
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()

	return nil
}

// Done returns a channel that receives the serve error, or nil on a clean
// shutdown, once the host stops. It is nil before Start.
func (h *Host) Done() <-chan error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Stop gracefully shuts down the host.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}
	h.running = false
	return h.server.Shutdown(ctx)
}

// ListenAddr returns the actual address the host is listening on.
// Returns empty string if the host has not started.
func (h *Host) ListenAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// URL returns the address a window should open.
func (h *Host) URL() string {
	addr := h.ListenAddr()
	if addr == "" {
		return ""
	}
	u := "http://" + addr + "/"
	if h.Token != "" {
		u += "?" + ipc.TokenParam + "=" + h.Token
	}
	return u
}

// entryHandler serves the entry document with the bridge bootstrap.
func (h *Host) entryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Token != "" && !token.Equal(h.Token, r.URL.Query().Get(ipc.TokenParam)) {
			clog.Warn("shell: entry document requested without launch token from %s", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		resp := h.Resources.Serve(h.Entry)
		if resp.Status != resource.StatusOK {
			clog.Warn("shell: entry document %q: %s", h.Entry, resp.Status)
			http.NotFound(w, r)
			return
		}

		page, err := injectBootstrap(resp.Body, h.Token, h.Title)
		if err != nil {
			clog.Error("shell: %v", err)
			http.Error(w, "entry document could not be prepared", http.StatusInternalServerError)
			return
		}

		hdr := w.Header()
		hdr.Set("Content-Type", "text/html; charset=utf-8")
		hdr.Set("Content-Length", strconv.Itoa(len(page)))
		hdr.Set("Cache-Control", "no-store")
		hdr.Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(page)
		}
	})
}

func serveScript(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Content-Type", "application/javascript")
	hdr.Set("Content-Length", strconv.Itoa(len(bridgeScript)))
	hdr.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(bridgeScript)
	}
}
