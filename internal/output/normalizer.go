// Package output turns raw jwt_tool output into clean, classified lines.
package output

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// DefaultNoise lists lines jwt_tool prints on startup that carry no progress
// information. jwt_tool echoes its config file path on every run.
var DefaultNoise = []string{
	"/root/.jwt_tool/jwtconf.ini",
}

// Line is one normalized line of tool output
type Line struct {
	Text string
	// Suppressed lines are neither relayed nor passed to the detector
	Suppressed bool
}

// Forwardable reports whether the line should be relayed and detected on
func (l Line) Forwardable() bool {
	return !l.Suppressed
}

// Normalizer reassembles chunks into lines. It keeps the partial line between
// Feed calls and is not safe for concurrent use; each job owns one.
type Normalizer struct {
	noise   map[string]struct{}
	partial []byte
}

// NewNormalizer creates a normalizer suppressing DefaultNoise plus extra
func NewNormalizer(extra ...string) *Normalizer {
	noise := make(map[string]struct{}, len(DefaultNoise)+len(extra))
	for _, n := range append(append([]string{}, DefaultNoise...), extra...) {
		if n = strings.TrimSpace(n); n != "" {
			noise[n] = struct{}{}
		}
	}
	return &Normalizer{noise: noise}
}

// Feed consumes a raw chunk and returns every line it completes
func (n *Normalizer) Feed(chunk []byte) []Line {
	n.partial = append(n.partial, chunk...)

	var lines []Line
	for {
		i := bytes.IndexByte(n.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, n.classify(string(n.partial[:i])))
		n.partial = n.partial[i+1:]
	}

	// reclaim the consumed prefix
	if len(n.partial) == 0 {
		n.partial = nil
	}
	return lines
}

// Flush returns the trailing unterminated line, if any, at end of stream
func (n *Normalizer) Flush() []Line {
	if len(n.partial) == 0 {
		return nil
	}
	line := n.classify(string(n.partial))
	n.partial = nil
	return []Line{line}
}

// Normalize strips terminal control sequences and surrounding whitespace
func Normalize(raw string) string {
	return strings.TrimSpace(ansi.Strip(raw))
}

func (n *Normalizer) classify(raw string) Line {
	text := Normalize(raw)
	if text == "" {
		return Line{Suppressed: true}
	}
	if _, ok := n.noise[text]; ok {
		return Line{Text: text, Suppressed: true}
	}
	return Line{Text: text}
}
