package resource

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wizardry/host/internal/clog"
)

// newTestRoot creates an application root with a few files and returns
// the root path and the server.
func newTestRoot(t *testing.T, opts ...Option) (string, *Server) {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"index.html":         "<html><body>hi</body></html>",
		"css/site.css":       "body { color: red; }",
		"js/app.js":          "console.log('app');",
		"data/config.json":   `{"a":1}`,
		"img/logo.PNG":       "\x89PNG\r\n\x1a\n",
		"notes.txt":          "plain text notes\n",
		"deep/a/b/c/page.md": "# heading\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	s, err := New(root, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return root, s
}

func TestNew_CanonicalRoot(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	s, err := New(link)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want, _ := filepath.EvalSymlinks(root)
	if s.Root() != want {
		t.Errorf("Root() = %q, want %q", s.Root(), want)
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(filepath.Join(dir, "missing")); err == nil {
		t.Error("New(missing) should fail")
	}

	_, err := New(file)
	if !errors.Is(err, ErrNotDirectory) {
		t.Errorf("New(file) error = %v, want ErrNotDirectory", err)
	}
}

func TestServe_ExistingFiles(t *testing.T) {
	root, s := newTestRoot(t)

	tests := []struct {
		path        string
		file        string
		contentType string
	}{
		{"/index.html", "index.html", "text/html"},
		{"index.html", "index.html", "text/html"},
		{"//index.html", "index.html", "text/html"},
		{"/css/site.css", "css/site.css", "text/css"},
		{"/js/app.js", "js/app.js", "application/javascript"},
		{"/data/config.json", "data/config.json", "application/json"},
		{"/img/logo.PNG", "img/logo.PNG", "image/png"},
		{"/notes.txt", "notes.txt", "application/octet-stream"},
		{"/deep/a/b/c/page.md", "deep/a/b/c/page.md", "application/octet-stream"},
		{"/js/../index.html", "index.html", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := s.Serve(tt.path)
			if resp.Status != StatusOK {
				t.Fatalf("Status = %v, want ok", resp.Status)
			}
			want, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(tt.file)))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(resp.Body, want) {
				t.Errorf("Body = %q, want %q", resp.Body, want)
			}
			if resp.ContentType != tt.contentType {
				t.Errorf("ContentType = %q, want %q", resp.ContentType, tt.contentType)
			}
		})
	}
}

func TestServe_Traversal(t *testing.T) {
	_, s := newTestRoot(t)

	paths := []string{
		"/../../etc/passwd",
		"../../etc/passwd",
		"/../outside.txt",
		"/css/../../outside.txt",
		"/deep/a/../../../../../../etc/hosts",
		"..",
		`\..\..\etc\passwd`,
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			resp := s.Serve(p)
			if resp.Status == StatusOK {
				t.Fatalf("Serve(%q) returned ok", p)
			}
			if filepath.Separator == '/' && strings.Contains(p, `\`) {
				// Backslashes are ordinary file name characters on Unix.
				return
			}
			if resp.Status != StatusForbidden {
				t.Errorf("Serve(%q) = %v, want forbidden", p, resp.Status)
			}
			if resp.Body != nil {
				t.Errorf("forbidden response should have no body")
			}
		})
	}
}

func TestServe_TraversalToExistingSibling(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "app")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if resp := s.Serve("/../secret.txt"); resp.Status != StatusForbidden {
		t.Errorf("Status = %v, want forbidden", resp.Status)
	}
}

func TestServe_SymlinkEscape(t *testing.T) {
	root, s := newTestRoot(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(secret, filepath.Join(root, "escape.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "escape-dir")); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"/escape.txt", "/escape-dir/secret.txt"} {
		if resp := s.Serve(p); resp.Status != StatusForbidden {
			t.Errorf("Serve(%q) = %v, want forbidden", p, resp.Status)
		}
	}
}

func TestServe_SymlinkInsideRoot(t *testing.T) {
	root, s := newTestRoot(t)

	if err := os.Symlink(filepath.Join(root, "js", "app.js"), filepath.Join(root, "alias.js")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	resp := s.Serve("/alias.js")
	if resp.Status != StatusOK {
		t.Fatalf("Status = %v, want ok", resp.Status)
	}
	if string(resp.Body) != "console.log('app');" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestServe_NotFound(t *testing.T) {
	_, s := newTestRoot(t)

	for _, p := range []string{"/missing.html", "/css", "/", "", "/deep/a/", "/js/app.js/extra"} {
		t.Run(p, func(t *testing.T) {
			if resp := s.Serve(p); resp.Status != StatusNotFound {
				t.Errorf("Serve(%q) = %v, want not_found", p, resp.Status)
			}
		})
	}
}

func TestServe_Sniffing(t *testing.T) {
	_, plain := newTestRoot(t)
	if got := plain.Serve("/notes.txt").ContentType; got != DefaultContentType {
		t.Errorf("without sniffing ContentType = %q, want %q", got, DefaultContentType)
	}

	_, sniffing := newTestRoot(t, WithSniffing(true))
	got := sniffing.Serve("/notes.txt").ContentType
	if !strings.HasPrefix(got, "text/plain") {
		t.Errorf("with sniffing ContentType = %q, want text/plain", got)
	}

	// Known extensions are never sniffed.
	if got := sniffing.Serve("/js/app.js").ContentType; got != "application/javascript" {
		t.Errorf("ContentType = %q, want application/javascript", got)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"index.html", "text/html"},
		{"INDEX.HTML", "text/html"},
		{"style.css", "text/css"},
		{"app.js", "application/javascript"},
		{"data.json", "application/json"},
		{"a.png", "image/png"},
		{"a.jpg", "image/jpeg"},
		{"a.jpeg", "image/jpeg"},
		{"a.gif", "image/gif"},
		{"a.svg", "image/svg+xml"},
		{"a.htm", DefaultContentType},
		{"a.wasm", DefaultContentType},
		{"Makefile", DefaultContentType},
		{"archive.tar.gz", DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentType(tt.name); got != tt.want {
				t.Errorf("ContentType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusNotFound, "not_found"},
		{StatusForbidden, "forbidden"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestServe_Hidden(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	root, s := newTestRoot(t, WithHidden([]string{"**/.*", "**/.*/**", "[bad"}))

	files := map[string]string{
		".env":             "SECRET=1",
		".git/config":      "[core]",
		"js/.cache/app.js": "stale",
		"css/.hidden.css":  "x",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(filepath.Join(root, ".env"), filepath.Join(root, "env.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	tests := []struct {
		path string
		want Status
	}{
		{"/.env", StatusNotFound},
		{"/.git/config", StatusNotFound},
		{"/js/.cache/app.js", StatusNotFound},
		{"/css/.hidden.css", StatusNotFound},
		{"/env.txt", StatusNotFound},
		{"/index.html", StatusOK},
		{"/js/app.js", StatusOK},
		{"/../outside/.env", StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := s.Serve(tt.path).Status; got != tt.want {
				t.Errorf("Serve(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
