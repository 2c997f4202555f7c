// Package rules loads operator-maintained dismiss rules: display-name
// patterns for recording bots, test users and other participants that should
// never become identities. Matching observations are parked as dismissed
// review items instead of entering the review queue.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule matches a raw display name either by regexp or by case-insensitive
// substring. Exactly one of Pattern or Contains should be set.
type Rule struct {
	Pattern  string `yaml:"pattern,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Reason   string `yaml:"reason,omitempty"`

	re *regexp.Regexp
}

type ruleFile struct {
	Dismiss []Rule `yaml:"dismiss"`
}

// DismissRules is the compiled rule set.
type DismissRules struct {
	rules []Rule
}

// Load reads and compiles a rules file. A missing file is not an error: it
// yields an empty rule set, since most deployments start without one.
func Load(path string) (*DismissRules, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &DismissRules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dismiss rules: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML rule document.
func Parse(data []byte) (*DismissRules, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse dismiss rules: %w", err)
	}

	for i := range file.Dismiss {
		r := &file.Dismiss[i]
		if r.Pattern == "" && r.Contains == "" {
			return nil, fmt.Errorf("dismiss rule %d has neither pattern nor contains", i)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("dismiss rule %d has invalid pattern: %w", i, err)
			}
			r.re = re
		}
	}

	return &DismissRules{rules: file.Dismiss}, nil
}

// Len returns the number of loaded rules.
func (d *DismissRules) Len() int {
	return len(d.rules)
}

// Match reports whether the raw name hits a dismiss rule, and the rule's
// reason when it does.
func (d *DismissRules) Match(rawName string) (string, bool) {
	if d == nil {
		return "", false
	}
	lower := strings.ToLower(rawName)
	for _, r := range d.rules {
		if r.re != nil && r.re.MatchString(rawName) {
			return r.reason(), true
		}
		if r.Contains != "" && strings.Contains(lower, strings.ToLower(r.Contains)) {
			return r.reason(), true
		}
	}
	return "", false
}

func (r *Rule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return "matched dismiss rule"
}
