package wordlist

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// Sweeper removes transient wordlists left behind by a worker that died
// before it could release them.
type Sweeper struct {
	dir    string
	maxAge time.Duration
	inUse  func(path string) bool
	cron   *cron.Cron
}

// NewSweeper creates a sweeper for dir that removes files older than maxAge.
// Paths for which inUse returns true belong to running jobs and are never
// removed, whatever their age; pass Provisioner.InUse. A nil inUse treats
// every file as orphaned.
func NewSweeper(dir string, maxAge time.Duration, inUse func(path string) bool) *Sweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	if inUse == nil {
		inUse = func(string) bool { return false }
	}
	return &Sweeper{dir: dir, maxAge: maxAge, inUse: inUse}
}

// Start runs Sweep on the given cron schedule
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(time.Now()); err != nil {
			debug.Error("Wordlist sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	debug.Info("Orphan wordlist sweeper scheduled (%s, max age %v)", schedule, s.maxAge)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep removes unowned transient wordlists last modified before now-maxAge
// and returns how many were removed.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, TransientPattern))
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-s.maxAge)
	removed := 0
	for _, path := range matches {
		if s.inUse(path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			debug.Warning("Failed to remove orphaned wordlist %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		debug.Info("Removed %d orphaned wordlist(s) from %s", removed, s.dir)
	}
	return removed, nil
}
