package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRotated removes rotated copies of the log file at path (path.1,
// path.2.gz, ...) last modified more than retentionDays ago. The live file is
// never touched and retentionDays <= 0 disables pruning. It returns how many
// files were removed.
func PruneRotated(logger *slog.Logger, path string, retentionDays int) (int, error) {
	if retentionDays <= 0 || path == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return 0, fmt.Errorf("match rotated logs: %w", err)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, candidate := range matches {
		info, err := os.Lstat(candidate)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(candidate); err != nil {
			WarnWithContext(logger, "could not remove expired log", "log_retention_failed",
				String("path", candidate),
				Error(err),
				String(FieldErrorHint, "check permissions on "+filepath.Dir(path)),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("expired log removed",
				String(FieldEventType, "log_pruned"),
				String("path", candidate),
			)
		}
	}
	return removed, nil
}
