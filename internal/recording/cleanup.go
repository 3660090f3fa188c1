package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// datePattern matches the date in a timestamped name: recording-YYYY-MM-DD-HH-MM-SS.wav
var datePattern = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2})-\d{2}-\d{2}-\d{2}\.`)

// Pruner deletes remote recordings older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time, dateOf func(name string) (time.Time, bool)) (int, error)
}

// CleanupResult counts what a retention pass removed.
type CleanupResult struct {
	Local  int
	Remote int
}

// Cleanup removes timestamped recordings in dir, and in the remote store when
// remote is non-nil, that are older than retentionDays before now. keep is
// never removed. A retention of zero keeps everything.
func Cleanup(ctx context.Context, dir string, retentionDays int, now time.Time, keep string, remote Pruner) (CleanupResult, error) {
	var result CleanupResult
	if retentionDays <= 0 {
		return result, nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return result, util.WrapError("read recording directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			continue
		}
		name := entry.Name()
		fileDate, ok := RecordingDate(name)
		if !ok || !fileDate.Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, name)
		if keep != "" && filepath.Clean(path) == filepath.Clean(keep) {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("cleanup: failed to delete local file", "path", path, "error", err)
			continue
		}
		result.Local++
		slog.Debug("cleanup: deleted local file", "file", name)
	}

	if remote != nil {
		n, err := remote.Prune(ctx, cutoff, RecordingDate)
		result.Remote = n
		if err != nil {
			return result, err
		}
	}

	if result.Local > 0 || result.Remote > 0 {
		slog.Info("cleanup: deleted old recordings", "local", result.Local, "remote", result.Remote, "retention_days", retentionDays)
	}
	return result, nil
}

// RecordingDate extracts the start date from a timestamped recording name.
func RecordingDate(filename string) (time.Time, bool) {
	matches := datePattern.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(time.DateOnly, matches[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
