package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte. Useful for
// staging fake downloaded artifacts on an in-memory filesystem.
func WriteFile(t testing.TB, fs afero.Fs, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := afero.WriteFile(fs, path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
