package logging

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// RetentionTarget names a directory and a doublestar pattern, relative to
// that directory, selecting files to prune. Exclude lists paths that are
// never removed, typically the file the current process is writing.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files selected by targets whose modification time is
// older than retentionDays and returns how many were removed. A
// retentionDays value of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	pruned := 0
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "old log not pruned", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on paths.log_dir"),
					String(FieldImpact, "stale file keeps using disk space"),
				)
				continue
			}
			pruned++
		}
	}
	if pruned > 0 && logger != nil {
		logger.Info("old logs pruned", Int("count", pruned), String(FieldEventType, "log_pruned"))
	}
	return pruned
}

func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	skip := make(map[string]bool, len(t.Exclude))
	for _, p := range t.Exclude {
		if abs := absPath(p); abs != "" {
			skip[abs] = true
		}
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil
	}
	var out []string
	for _, rel := range matches {
		full := absPath(filepath.Join(dir, filepath.FromSlash(rel)))
		if full == "" || skip[full] {
			continue
		}
		info, err := fs.Stat(fsys, rel)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, full)
	}
	return out
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
