package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/collagebot/internal/pathutil"
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

// FileOptions sets the permissions of the written file and of any parent
// directory created for it. Zero values mean 0700 and 0600.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// WriteFileAtomic writes content next to path and renames it into place, so
// readers never observe a partially written file. A leading "~" is expanded.
func WriteFileAtomic(path string, content []byte, opts FileOptions) error {
	target, err := targetPath(path)
	if err != nil {
		return err
	}
	if opts.DirPerm == 0 {
		opts.DirPerm = 0o700
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = 0o600
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, opts.DirPerm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", dir, err)
	}
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, target)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, target, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"write", func() error { _, err := tmp.Write(content); return err }},
		{"sync", tmp.Sync},
		{"chmod", func() error { return tmp.Chmod(opts.FilePerm) }},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmpPath, target) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%w: %s temp for %s: %v", ErrAtomicWriteFailed, step.name, target, err)
		}
	}
	return nil
}

func targetPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s names a directory", ErrInvalidPath, path)
	}
	return filepath.Clean(pathutil.ExpandHomePath(path)), nil
}
