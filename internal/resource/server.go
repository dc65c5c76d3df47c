// Package resource serves application files from a sandboxed root directory.
//
// Every request path is treated as relative to the application root. The
// resolved file must stay inside the root after symlink resolution; anything
// that escapes is reported as Forbidden and never read.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/wizardry/host/internal/clog"
)

// Status is the outcome of a resource lookup.
type Status int

const (
	// StatusOK means the file was found and read.
	StatusOK Status = iota
	// StatusNotFound means the path does not name a readable regular file,
	// or names a hidden one.
	StatusNotFound
	// StatusForbidden means the path resolves outside the application root.
	StatusForbidden
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Response is the result of serving a virtual path.
// ContentType and Body are only set when Status is StatusOK.
type Response struct {
	Status      Status
	ContentType string
	Body        []byte
}

// ErrNotDirectory is returned by New when the root is not a directory.
var ErrNotDirectory = errors.New("application root is not a directory")

// Server resolves virtual paths against an application root.
// The root is canonicalized once in New and never changes afterwards,
// so a Server is safe for concurrent use.
type Server struct {
	root   string
	sniff  bool
	hidden []string
}

// Option configures a Server.
type Option func(*Server)

// WithSniffing enables content sniffing for files whose extension is not
// in the content type table. Known extensions are never sniffed.
func WithSniffing(enabled bool) Option {
	return func(s *Server) {
		s.sniff = enabled
	}
}

// WithHidden hides files whose slash-separated path relative to the root
// matches any of the doublestar patterns, e.g. "**/.*" for dotfiles.
// Hidden files are reported as not found. Invalid patterns are logged and
// skipped.
func WithHidden(patterns []string) Option {
	return func(s *Server) {
		s.hidden = s.hidden[:0]
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				clog.Warn("resource: skipping invalid hidden pattern %q", p)
				continue
			}
			s.hidden = append(s.hidden, p)
		}
	}
}

// New creates a Server rooted at root. The root is made absolute and all
// symlinks in it are resolved so that containment checks compare canonical
// paths.
func New(root string, opts ...Option) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve application root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve application root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat application root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", canonical, ErrNotDirectory)
	}

	s := &Server{root: canonical}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the canonical application root.
func (s *Server) Root() string {
	return s.root
}

// Serve resolves virtualPath inside the application root and returns the
// file content. It never fails: every problem is reported through the
// response status.
func (s *Server) Serve(virtualPath string) Response {
	rel := filepath.FromSlash(strings.TrimLeft(virtualPath, `/\`))
	joined := filepath.Join(s.root, rel)

	// A lexical escape is forbidden whether or not the target exists.
	if !within(s.root, joined) {
		return Response{Status: StatusForbidden}
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return Response{Status: StatusNotFound}
	}
	if !within(s.root, resolved) {
		return Response{Status: StatusForbidden}
	}
	if s.isHidden(joined) || s.isHidden(resolved) {
		return Response{Status: StatusNotFound}
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return Response{Status: StatusNotFound}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Response{Status: StatusNotFound}
	}

	return Response{
		Status:      StatusOK,
		ContentType: s.contentType(joined, data),
		Body:        data,
	}
}

func (s *Server) contentType(name string, data []byte) string {
	if ct, ok := lookupContentType(name); ok {
		return ct
	}
	if s.sniff {
		return mimetype.Detect(data).String()
	}
	return DefaultContentType
}

// isHidden reports whether path, which must lie within the root, matches a
// hidden pattern.
func (s *Server) isHidden(path string) bool {
	if len(s.hidden) == 0 {
		return false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range s.hidden {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

// within reports whether path is root itself or lies beneath it.
// Both arguments must be absolute and clean.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
