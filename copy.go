package vpk

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/vpk/internal/fsys"
	"github.com/meigma/vpk/internal/tree"
)

// CopyOption configures CopyTo and CopyDir operations.
type CopyOption func(*copyConfig)

type copyConfig struct {
	overwrite bool
	workers   int
	progress  ProgressFunc
}

// CopyWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func CopyWithOverwrite(overwrite bool) CopyOption {
	return func(c *copyConfig) {
		c.overwrite = overwrite
	}
}

// CopyWithWorkers sets the number of entries extracted concurrently.
// Values < 0 force serial extraction. Zero uses GOMAXPROCS.
func CopyWithWorkers(n int) CopyOption {
	return func(c *copyConfig) {
		c.workers = n
	}
}

// CopyWithProgress sets a callback that receives a StageExtracting event
// after each file is written.
func CopyWithProgress(fn ProgressFunc) CopyOption {
	return func(c *copyConfig) {
		c.progress = fn
	}
}

// CopyStats summarizes an extraction.
type CopyStats struct {
	FileCount  int
	TotalBytes uint64
	// Skipped counts files left alone because they already existed.
	Skipped int
}

// CopyTo extracts the entries stored under keys into destDir, each at its
// fs.FS name. An unknown key fails with ErrDoesNotExist before anything is
// written.
//
// Files are written atomically using temp files and renames.
// Parent directories are created as needed.
func (a *Archive) CopyTo(ctx context.Context, destDir string, keys []string, opts ...CopyOption) (CopyStats, error) {
	if len(keys) == 0 {
		return CopyStats{}, nil
	}
	handles := make([]*tree.Handle, 0, len(keys))
	for _, key := range keys {
		h, ok := a.dir.Lookup(key)
		if !ok {
			return CopyStats{}, fmt.Errorf("copy: %w: %s", ErrDoesNotExist, key)
		}
		handles = append(handles, h)
	}
	return a.copyHandles(ctx, destDir, handles, opts)
}

// CopyDir extracts every entry whose fs.FS name is under prefix into
// destDir. If prefix is "" or ".", all visible entries are extracted.
//
// By default existing files are skipped (use CopyWithOverwrite to overwrite).
func (a *Archive) CopyDir(ctx context.Context, destDir, prefix string, opts ...CopyOption) (CopyStats, error) {
	prefix = NormalizePath(prefix)
	if !fs.ValidPath(prefix) {
		return CopyStats{}, &fs.PathError{Op: "copy", Path: prefix, Err: fs.ErrInvalid}
	}
	dirPrefix := fsys.DirPrefix(prefix)
	var handles []*tree.Handle //nolint:prealloc // size unknown until iteration
	for _, name := range a.sorted {
		if name == prefix || strings.HasPrefix(name, dirPrefix) {
			handles = append(handles, a.names[name])
		}
	}
	return a.copyHandles(ctx, destDir, handles, opts)
}

func (a *Archive) copyHandles(ctx context.Context, destDir string, handles []*tree.Handle, opts []CopyOption) (CopyStats, error) {
	cfg := copyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = fsName(h.Path, h.Filename, h.Extension)
		if !fs.ValidPath(names[i]) || names[i] == "." {
			return CopyStats{}, &fs.PathError{Op: "copy", Path: names[i], Err: fs.ErrInvalid}
		}
	}

	var (
		mu    sync.Mutex
		stats CopyStats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(copyWorkers(cfg.workers))
	for i, h := range handles {
		name := names[i]
		dest := filepath.Join(destDir, filepath.FromSlash(name))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !cfg.overwrite {
				if _, err := os.Lstat(dest); err == nil {
					mu.Lock()
					stats.Skipped++
					mu.Unlock()
					return nil
				}
			}
			n, err := a.copyFileAtomic(dest, h)
			if err != nil {
				return fmt.Errorf("copy %s: %w", h.Key, err)
			}
			mu.Lock()
			stats.FileCount++
			stats.TotalBytes += uint64(n) //nolint:gosec // n is non-negative
			ev := ProgressEvent{
				Stage:      StageExtracting,
				Path:       name,
				BytesDone:  stats.TotalBytes,
				FilesDone:  stats.FileCount,
				FilesTotal: len(handles),
			}
			mu.Unlock()
			if cfg.progress != nil {
				cfg.progress(ev)
			}
			return nil
		})
	}
	err := g.Wait()
	a.log().Debug("copied entries", "dest", destDir,
		"files", stats.FileCount, "bytes", stats.TotalBytes, "skipped", stats.Skipped)
	return stats, err
}

func copyWorkers(n int) int {
	switch {
	case n < 0:
		return 1
	case n == 0:
		return runtime.GOMAXPROCS(0)
	default:
		return n
	}
}

// copyFileAtomic writes the entry to a temp file next to dest and renames it
// into place once the content and CRC have been checked.
func (a *Archive) copyFileAtomic(dest string, h *tree.Handle) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".vpk-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := a.copyEntry(tmp, h)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // extracted files are world-readable like the source
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return n, fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return n, fmt.Errorf("rename to %s: %w", dest, err)
	}
	return n, nil
}
