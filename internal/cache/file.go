package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

// FileCache stores blobs as files under a root directory.
// Layout: {root}/{tileset}/{z}/{x}/{y}.pbf[.gz]
type FileCache struct {
	root string
}

func NewFileCache(root string) (*FileCache, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("file cache: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("file cache root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %q: %w", abs, err)
	}
	return &FileCache{root: abs}, nil
}

func (c *FileCache) Name() string { return "file" }

func (c *FileCache) Root() string { return c.root }

// resolves key below root, rejecting anything that would escape it
func (c *FileCache) path(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) || strings.HasPrefix(key, "/") || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	p := filepath.Join(c.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(c.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes cache root", ErrInvalidKey, key)
	}
	return p, nil
}

func (c *FileCache) Exists(_ context.Context, key string) (bool, error) {
	start := time.Now()
	p, err := c.path(key)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(p)
	switch {
	case err == nil:
		observability.ObserveCacheOp("file", "exists", nil, time.Since(start).Seconds())
		return fi.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		observability.ObserveCacheOp("file", "exists", nil, time.Since(start).Seconds())
		return false, nil
	default:
		observability.ObserveCacheOp("file", "exists", err, time.Since(start).Seconds())
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
}

func (c *FileCache) Read(_ context.Context, key string, fn func(io.Reader) error) (bool, error) {
	start := time.Now()
	p, err := c.path(key)
	if err != nil {
		return false, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			observability.ObserveCacheOp("file", "read", nil, time.Since(start).Seconds())
			return false, nil
		}
		observability.ObserveCacheOp("file", "read", err, time.Since(start).Seconds())
		return false, fmt.Errorf("open %q: %w", key, err)
	}
	defer func() { _ = f.Close() }()

	err = fn(f)
	observability.ObserveCacheOp("file", "read", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

// Write goes through a temp file in the target directory and renames it
// into place, so readers never open a half-written tile.
func (c *FileCache) Write(_ context.Context, key string, data []byte) (err error) {
	start := time.Now()
	defer func() { observability.ObserveCacheOp("file", "write", err, time.Since(start).Seconds()) }()

	p, err := c.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %q: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename %q: %w", key, err)
	}
	return nil
}

func (c *FileCache) Delete(_ context.Context, keys ...string) error {
	start := time.Now()
	var errs []error
	for _, k := range keys {
		p, err := c.path(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %q: %w", k, err))
		}
	}
	err := errors.Join(errs...)
	observability.ObserveCacheOp("file", "delete", err, time.Since(start).Seconds())
	return err
}

// Purge removes the directory subtree named by prefix.
func (c *FileCache) Purge(_ context.Context, prefix string) error {
	start := time.Now()
	p, err := c.path(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	err = os.RemoveAll(p)
	observability.ObserveCacheOp("file", "purge", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("purge %q: %w", prefix, err)
	}
	return nil
}

var (
	_ Store   = (*FileCache)(nil)
	_ Deleter = (*FileCache)(nil)
	_ Purger  = (*FileCache)(nil)
)
