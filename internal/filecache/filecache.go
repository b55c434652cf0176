package filecache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/quailyquaily/collagebot/internal/pathutil"
)

const dirPerm = 0o700

type Options struct {
	Dir           string
	MaxAge        time.Duration
	MaxFiles      int
	MaxTotalBytes int64
}

// Cache is a private on-disk directory for downloaded files.
type Cache struct {
	dir  string
	opts Options
}

type cachedFile struct {
	path    string
	modTime time.Time
	size    int64
}

// Open resolves opts.Dir and makes sure it is a private directory owned by
// the current user.
func Open(opts Options) (*Cache, error) {
	dir := pathutil.ExpandHomePath(opts.Dir)
	if dir == "" {
		return nil, fmt.Errorf("missing cache dir")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := ensurePrivateDir(abs); err != nil {
		return nil, err
	}
	opts.Dir = abs
	return &Cache{dir: abs, opts: opts}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

// ChildDir returns a private sub directory, creating it when missing.
func (c *Cache) ChildDir(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid cache child dir: %q", name)
	}
	child := filepath.Join(c.dir, name)
	if err := ensurePrivateDir(child); err != nil {
		return "", err
	}
	return child, nil
}

// Prune removes files older than MaxAge, then the oldest files until both
// MaxFiles and MaxTotalBytes hold, then empty sub directories.
func (c *Cache) Prune(now time.Time) (int, error) {
	if c.opts.MaxAge <= 0 && c.opts.MaxFiles <= 0 && c.opts.MaxTotalBytes <= 0 {
		return 0, nil
	}
	removed := 0
	var kept []cachedFile
	var total int64
	var dirs []string

	walkErr := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			if path != c.dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if c.opts.MaxAge > 0 && now.Sub(info.ModTime()) > c.opts.MaxAge {
			if os.Remove(path) == nil {
				removed++
			}
			return nil
		}
		kept = append(kept, cachedFile{path: path, modTime: info.ModTime(), size: info.Size()})
		total += info.Size()
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return removed, walkErr
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].modTime.Before(kept[j].modTime) })
	for len(kept) > 0 && c.overLimit(len(kept), total) {
		oldest := kept[0]
		kept = kept[1:]
		total -= oldest.size
		if os.Remove(oldest.path) == nil {
			removed++
		}
	}

	// Deepest first so parents become empty before they are tried.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		_ = os.Remove(d)
	}
	return removed, nil
}

func (c *Cache) overLimit(files int, total int64) bool {
	if c.opts.MaxFiles > 0 && files > c.opts.MaxFiles {
		return true
	}
	return c.opts.MaxTotalBytes > 0 && total > c.opts.MaxTotalBytes
}

func ensurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	fi, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing symlink path: %s", dir)
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return fmt.Errorf("unsupported stat for: %s", dir)
	}
	if uid := uint32(os.Getuid()); st.Uid != uid {
		return fmt.Errorf("cache dir not owned by current user (uid=%d, owner=%d): %s", uid, st.Uid, dir)
	}
	if perm := fi.Mode().Perm(); perm != dirPerm {
		if err := os.Chmod(dir, dirPerm); err != nil {
			return fmt.Errorf("cache dir has insecure perms (%#o) and chmod failed: %w", perm, err)
		}
	}
	return nil
}
