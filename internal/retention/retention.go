// Package retention removes aged artifacts from a directory: archives
// after a backup round, operation logs alongside them. Deletion is
// best-effort per file; one stubborn entry never stops the sweep.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/lupppig/pgpair/internal/errors"
	"github.com/lupppig/pgpair/internal/logger"
)

// Sweeper deletes matching files strictly older than the cutoff.
type Sweeper struct {
	Log *logger.Logger
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// Result counts what one sweep did.
type Result struct {
	Removed int
	Kept    int
	Failed  int
}

// Sweep walks dir and removes every regular file whose name matches one
// of the patterns and whose modification time is strictly older than
// maxAgeDays ago. A maxAgeDays of zero or less disables the sweep; a
// missing directory means there is nothing to do. Per-file removal
// failures are logged and counted, the sweep continues.
func (s *Sweeper) Sweep(dir string, patterns []string, maxAgeDays int) (Result, error) {
	var res Result
	if maxAgeDays <= 0 {
		return res, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return res, nil
	}
	if err != nil {
		return res, apperrors.Wrap(err, apperrors.TypeResource,
			fmt.Sprintf("failed to list %s", dir), "Check directory permissions.")
	}

	cutoff := s.now().AddDate(0, 0, -maxAgeDays)
	for _, e := range entries {
		if e.IsDir() || !matches(e.Name(), patterns) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			res.Kept++
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			res.Failed++
			s.logger().Warn("Failed to remove expired file", "path", path, "error", err)
			continue
		}
		res.Removed++
		s.logger().Info("Removed expired file", "path", path, "age", s.now().Sub(info.ModTime()).Truncate(time.Hour).String())
	}
	return res, nil
}

func matches(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) logger() *logger.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.New(logger.Config{})
}
