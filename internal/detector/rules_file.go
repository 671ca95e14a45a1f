package detector

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// rulesFile is the on-disk format for extra success patterns:
//
//	rules:
//	  - name: legacy-cracked
//	    pattern: 'Cracked secret => (.*)$'
type rulesFile struct {
	Rules []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// LoadRules reads extra pattern rules from a YAML file. Each pattern needs
// exactly one capture group holding the secret.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses the YAML rules format
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse detector rules: %w", err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("custom-%d", i+1)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.Name, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("rule %s: pattern must have exactly one capture group, has %d", r.Name, re.NumSubexp())
		}
		rules = append(rules, &PatternRule{RuleName: r.Name, Pattern: re})
	}
	return rules, nil
}
