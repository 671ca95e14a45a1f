// Package wordlist resolves the dictionary a crack job runs against.
//
// An inline list is written to a transient file owned by the job; an absent
// or blank list falls back to the shared default corpus. The caller must
// Release the returned Wordlist on every exit path.
package wordlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// TransientPattern is the os.CreateTemp pattern for job-owned wordlists
const TransientPattern = "jwtworker-wordlist-*.txt"

// ErrCreate is returned when the transient wordlist cannot be written
var ErrCreate = errors.New("failed to create transient wordlist")

// ErrNoDefault is returned for a blank list when no default corpus is configured
var ErrNoDefault = errors.New("no default wordlist configured")

// Source identifies where a job's dictionary came from
type Source int

const (
	SourceDefault Source = iota
	SourceInline
)

// String returns a human-readable representation of the source
func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Wordlist is a resolved dictionary
type Wordlist struct {
	Path   string
	Source Source
	// Entries is the line count of inline content; zero for the default corpus
	Entries int

	owner       *Provisioner
	releaseOnce sync.Once
	releaseErr  error
}

// Describe returns the informational line relayed before the attack starts
func (w *Wordlist) Describe() string {
	if w.Source == SourceInline {
		return fmt.Sprintf("Using custom wordlist with %d entries", w.Entries)
	}
	return fmt.Sprintf("Using default wordlist: %s", w.Path)
}

// Release removes the transient file, if this wordlist owns one. Safe to call
// more than once; the default corpus is never touched.
func (w *Wordlist) Release() error {
	if w == nil || w.Source != SourceInline {
		return nil
	}
	w.releaseOnce.Do(func() {
		if w.owner != nil {
			defer w.owner.forget(w.Path)
		}
		if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
			w.releaseErr = fmt.Errorf("failed to remove transient wordlist %s: %w", w.Path, err)
			return
		}
		debug.Debug("Removed transient wordlist %s", w.Path)
	})
	return w.releaseErr
}

// Provisioner creates Wordlists for jobs
type Provisioner struct {
	dir      string
	fallback *Corpus

	mu   sync.Mutex
	live map[string]struct{}
}

// NewProvisioner creates a provisioner that writes transient files into dir
// (the OS temp dir when empty) and falls back to the given default corpus.
func NewProvisioner(dir string, fallback *Corpus) *Provisioner {
	return &Provisioner{
		dir:      dir,
		fallback: fallback,
		live:     make(map[string]struct{}),
	}
}

// InUse reports whether path is a transient wordlist that has been
// provisioned and not yet released
func (p *Provisioner) InUse(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[filepath.Clean(path)]
	return ok
}

func (p *Provisioner) forget(path string) {
	p.mu.Lock()
	delete(p.live, filepath.Clean(path))
	p.mu.Unlock()
}

// Provision resolves the dictionary for one job. Inline text is written
// verbatim; blank text means the default corpus.
func (p *Provisioner) Provision(inline string) (*Wordlist, error) {
	if strings.TrimSpace(inline) == "" {
		if p.fallback == nil {
			return nil, ErrNoDefault
		}
		path, err := p.fallback.Path()
		if err != nil {
			return nil, err
		}
		return &Wordlist{Path: path, Source: SourceDefault}, nil
	}

	f, err := os.CreateTemp(p.dir, TransientPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	path := f.Name()

	// registered before any content exists so a concurrent sweep never sees it unowned
	p.mu.Lock()
	p.live[filepath.Clean(path)] = struct{}{}
	p.mu.Unlock()

	if _, err := f.WriteString(inline); err != nil {
		f.Close()
		os.Remove(path)
		p.forget(path)
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		p.forget(path)
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}

	w := &Wordlist{Path: path, Source: SourceInline, Entries: CountEntries(inline), owner: p}
	debug.Info("Provisioned transient wordlist %s with %d entries", path, w.Entries)
	return w, nil
}

// CountEntries returns the number of lines in text. A trailing newline does
// not start a new entry.
func CountEntries(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
