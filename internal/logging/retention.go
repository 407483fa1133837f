package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneLogs removes rotated log files under dir older than maxAge. The active
// log file is never touched. A non-positive maxAge disables pruning.
func PruneLogs(logger *slog.Logger, dir string, maxAge time.Duration) int {
	dir = strings.TrimSpace(dir)
	if dir == "" || maxAge <= 0 {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == LogFileName || !strings.HasPrefix(name, "recflow") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}

// RotateIfLarge renames the active log file aside when it exceeds maxBytes, so
// the next logger opens a fresh file. Returns the rotated path or "".
func RotateIfLarge(dir string, maxBytes int64) (string, error) {
	if dir == "" || maxBytes <= 0 {
		return "", nil
	}
	active := filepath.Join(dir, LogFileName)
	info, err := os.Stat(active)
	if err != nil || info.Size() < maxBytes {
		return "", nil
	}
	rotated := filepath.Join(dir, "recflow-"+time.Now().UTC().Format("20060102T150405")+".log")
	if err := os.Rename(active, rotated); err != nil {
		return "", err
	}
	return rotated, nil
}
