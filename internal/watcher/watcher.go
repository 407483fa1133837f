// Package watcher marks the source directory dirty when files appear or
// change, so the next workflow tick scans immediately instead of waiting for
// the scan interval.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"recflow/internal/logging"
)

// Watcher flips a dirty flag on filesystem activity under a root directory.
type Watcher struct {
	root   string
	fs     *fsnotify.Watcher
	dirty  atomic.Bool
	logger *slog.Logger
}

// New watches root and every non-hidden directory below it.
func New(root string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, fs: fsw, logger: logging.NewComponentLogger(logger, "watcher")}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.fs.Add(path); addErr != nil && path == root {
			return addErr
		}
		return nil
	})
}

// Run consumes filesystem events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}
			w.dirty.Store(true)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new recordings are picked up on the regular scan interval"),
			)
		}
	}
}

// TakeDirty reports whether anything changed since the last call and resets
// the flag.
func (w *Watcher) TakeDirty() bool {
	return w.dirty.Swap(false)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
