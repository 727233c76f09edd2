// Package override suppresses selected findings after a report has been
// produced. Exceptions never reach the engine.
package override

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/report"
	"gopkg.in/yaml.v3"
)

// Exception as written in the exceptions file
type Exception struct {
	RuleID         string `yaml:"rule_id,omitempty" json:"rule_id,omitempty"`
	MessagePattern string `yaml:"message_pattern,omitempty" json:"message_pattern,omitempty"`
	Reason         string `yaml:"reason" json:"reason"`
}

type file struct {
	Exceptions []Exception `yaml:"exceptions"`
}

// Set is an ordered, validated list of exceptions.
type Set struct {
	entries []entry
}

type entry struct {
	Exception
	pattern *regexp.Regexp
}

// Parse validates an exceptions document. Every entry needs a reason and
// at least one matcher.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse exceptions: %w", err)
	}

	set := &Set{}
	var errs []error
	for i, ex := range f.Exceptions {
		if ex.Reason == "" {
			errs = append(errs, fmt.Errorf("exception %d: reason is required", i))
			continue
		}
		if ex.RuleID == "" && ex.MessagePattern == "" {
			errs = append(errs, fmt.Errorf("exception %d: needs rule_id or message_pattern", i))
			continue
		}
		e := entry{Exception: ex}
		if ex.MessagePattern != "" {
			re, err := regexp.Compile(ex.MessagePattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("exception %d: invalid message_pattern: %w", i, err))
				continue
			}
			e.pattern = re
		}
		set.entries = append(set.entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// Load reads an exceptions file. An empty path yields an empty set.
func Load(path string) (*Set, error) {
	if path == "" {
		return &Set{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exceptions: %w", err)
	}
	return Parse(data)
}

// Len returns the number of exceptions.
func (s *Set) Len() int {
	return len(s.entries)
}

// Match returns the first exception covering f. When both matchers are set
// both must match.
func (s *Set) Match(f models.Finding) (Exception, bool) {
	for _, e := range s.entries {
		if e.RuleID != "" && e.RuleID != f.RuleID {
			continue
		}
		if e.pattern != nil && !e.pattern.MatchString(f.Message) {
			continue
		}
		return e.Exception, true
	}
	return Exception{}, false
}

// Apply removes matched findings from rep and lists them with the reason.
func Apply(rep *report.Report, s *Set) (*report.Report, []models.Suppressed) {
	if s == nil || s.Len() == 0 {
		return rep, nil
	}

	var suppressed []models.Suppressed
	for _, f := range rep.All() {
		if ex, ok := s.Match(f); ok {
			suppressed = append(suppressed, models.Suppressed{
				RuleID:   f.RuleID,
				Category: f.Category,
				Message:  f.Message,
				Reason:   ex.Reason,
			})
		}
	}

	filtered := rep.Filter(func(f models.Finding) bool {
		_, ok := s.Match(f)
		return !ok
	})
	return filtered, suppressed
}
