package wordlist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/sevenzip"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// Corpus is the shared default dictionary. Plain files are used as-is; a .7z
// archive is extracted once and the extracted file is reused by every job.
type Corpus struct {
	source     string
	extractDir string

	mu       sync.Mutex
	resolved string
}

// NewCorpus creates a corpus for source. Archives are extracted under
// workDir/default-corpus.
func NewCorpus(source, workDir string) *Corpus {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Corpus{
		source:     source,
		extractDir: filepath.Join(workDir, "default-corpus"),
	}
}

// Source returns the configured corpus location
func (c *Corpus) Source() string {
	return c.source
}

// Path returns the path jwt_tool should read
func (c *Corpus) Path() (string, error) {
	if !strings.EqualFold(filepath.Ext(c.source), ".7z") {
		return c.source, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != "" {
		if _, err := os.Stat(c.resolved); err == nil {
			return c.resolved, nil
		}
		debug.Warning("Extracted corpus %s disappeared, extracting again", c.resolved)
	}

	path, err := extractFirstFile(c.source, c.extractDir)
	if err != nil {
		return "", fmt.Errorf("failed to extract default corpus %s: %w", c.source, err)
	}
	c.resolved = path
	debug.Info("Extracted default corpus %s to %s", c.source, path)
	return path, nil
}

// extractFirstFile writes the first regular file of a 7z archive into dir
func extractFirstFile(archive, dir string) (string, error) {
	r, err := sevenzip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		dst := filepath.Join(dir, filepath.Base(f.Name))
		if err := copyEntry(f, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	return "", fmt.Errorf("archive contains no files")
}

func copyEntry(f *sevenzip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	// write to a temp name so a partial extraction is never picked up
	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
