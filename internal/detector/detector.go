// Package detector recognizes "secret found" messages in jwt_tool output.
//
// jwt_tool's success message has changed between releases, so detection is an
// ordered list of independent rules rather than one parser. Rules are tried
// in order and the first one that matches decides the transition. New
// phrasings are supported by appending a rule.
package detector

import (
	"regexp"
	"strings"
)

// State is the detection progress of one job
type State int

const (
	// StateSearching is the initial state
	StateSearching State = iota
	// StateAwaitingValue means a success marker was seen without its value;
	// the next non-empty line is the secret
	StateAwaitingValue
	// StateFound is terminal
	StateFound
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateAwaitingValue:
		return "AWAITING_VALUE"
	case StateFound:
		return "FOUND"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what a matching rule decided
type Outcome struct {
	State  State
	Secret string
}

// Rule is one recognized success phrasing
type Rule interface {
	Name() string
	// Match inspects a normalized line; ok is false when the rule does not apply
	Match(state State, line string) (out Outcome, ok bool)
}

// Detector applies rules in order
type Detector struct {
	rules []Rule
}

// New creates a detector with the built-in rules followed by extra
func New(extra ...Rule) *Detector {
	rules := append(DefaultRules(), extra...)
	return &Detector{rules: rules}
}

// Rules returns the active rules in evaluation order
func (d *Detector) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Next feeds one forwardable line. Once FOUND, the state is absorbing and
// no line is evaluated.
func (d *Detector) Next(state State, line string) (State, string) {
	if state == StateFound {
		return state, ""
	}
	for _, r := range d.rules {
		if out, ok := r.Match(state, line); ok {
			return out.State, out.Secret
		}
	}
	return state, ""
}

// DefaultRules returns the known jwt_tool phrasings
func DefaultRules() []Rule {
	return []Rule{
		&PatternRule{
			RuleName: "correct-key-marker",
			// "CORRECT key: value", "CORRECT key found: value", "CORRECT key found:"
			Pattern: regexp.MustCompile(`CORRECT key(?:\s+found)?\s*:\s*(.*)$`),
		},
		&PatternRule{
			RuleName: "correct-key-sentence",
			Pattern:  regexp.MustCompile(`^\[\+\]\s+(.+?)\s+is the CORRECT key!?$`),
		},
		awaitingValueRule{},
	}
}

// PatternRule matches a regexp whose first capture group is the secret. An
// empty capture means the value follows on the next line.
type PatternRule struct {
	RuleName string
	Pattern  *regexp.Regexp
}

// Name returns the rule name
func (r *PatternRule) Name() string {
	return r.RuleName
}

// Match implements Rule
func (r *PatternRule) Match(_ State, line string) (Outcome, bool) {
	m := r.Pattern.FindStringSubmatch(line)
	if m == nil {
		return Outcome{}, false
	}
	var value string
	if len(m) > 1 {
		value = strings.TrimSpace(m[1])
	}
	if value == "" {
		return Outcome{State: StateAwaitingValue}, true
	}
	return Outcome{State: StateFound, Secret: value}, true
}

// awaitingValueRule takes the whole line as the secret after a bare marker
type awaitingValueRule struct{}

func (awaitingValueRule) Name() string {
	return "awaiting-value"
}

func (awaitingValueRule) Match(state State, line string) (Outcome, bool) {
	line = strings.TrimSpace(line)
	if state != StateAwaitingValue || line == "" {
		return Outcome{}, false
	}
	return Outcome{State: StateFound, Secret: line}, true
}
