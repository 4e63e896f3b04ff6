// Package fileutil provides filesystem helpers over an afero filesystem so
// callers and tests can run against an in-memory tree.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Exists reports whether path exists on fs.
func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// IsDir reports whether path exists and is a directory.
func IsDir(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// EnsureDir creates path and any missing parents.
func EnsureDir(fs afero.Fs, path string) error {
	return fs.MkdirAll(path, 0o755)
}

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(fs afero.Fs, src, dst string) error {
	return CopyFileMode(fs, src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// CopyFileVerified streams src to dst with SHA256 + size integrity
// verification. Removes dst on mismatch.
func CopyFileVerified(fs afero.Fs, src, dst string) error {
	srcInfo, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = fs.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = fs.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}

// Siblings returns every file sharing stem's basename plus an extension,
// such as the media file, thumbnail, and info JSON written next to each
// other. Stem is a path without extension.
func Siblings(fs afero.Fs, stem string) ([]string, error) {
	if stem == "" {
		return nil, nil
	}
	matches, err := afero.Glob(fs, globEscape(stem)+".*")
	if err != nil {
		return nil, fmt.Errorf("glob siblings of %s: %w", stem, err)
	}
	return matches, nil
}

// RemoveSiblings deletes every file sharing stem's basename. Returns the
// paths removed.
func RemoveSiblings(fs afero.Fs, stem string) ([]string, error) {
	matches, err := Siblings(fs, stem)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, match := range matches {
		if err := fs.Remove(match); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", match, err)
		}
		removed = append(removed, match)
	}
	return removed, nil
}

// WriteFile writes data to path, creating parent directories first.
func WriteFile(fs afero.Fs, path string, data []byte, mode os.FileMode) error {
	if err := EnsureDir(fs, filepath.Dir(path)); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, mode)
}

// globEscape quotes filepath.Match metacharacters so media titles with
// brackets match literally.
func globEscape(path string) string {
	var sb strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
