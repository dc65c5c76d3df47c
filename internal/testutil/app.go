// Package testutil holds helpers shared by tests that host an application
// directory.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteApp creates an application directory named name under a fresh temp
// dir and fills it with files, keyed by slash-separated relative path.
// It returns the directory's path.
func WriteApp(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create app dir: %v", err)
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return dir
}
