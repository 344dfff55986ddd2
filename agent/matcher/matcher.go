package matcher

import (
	"fmt"
	"regexp"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

// Matcher tests utterances against an ordered list of trigger patterns.
type Matcher struct {
	triggers []*regexp.Regexp
	sources  []string
}

// Compile builds a case-insensitive matcher. Anchoring is left to the pattern.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{
		triggers: make([]*regexp.Regexp, 0, len(patterns)),
		sources:  make([]string, 0, len(patterns)),
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", contractx.ErrInvalidTrigger, p, err)
		}
		m.triggers = append(m.triggers, re)
		m.sources = append(m.sources, p)
	}
	return m, nil
}

func MustCompile(patterns []string) *Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the captures of the first trigger that matches text.
func (m *Matcher) Match(text string) (contractx.Captures, error) {
	for i, re := range m.triggers {
		groups := re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		return capturesOf(re, m.sources[i], groups), nil
	}
	return contractx.Captures{}, fmt.Errorf("%w: %q", contractx.ErrNoMatch, text)
}

// Patterns returns the trigger sources in declaration order.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.sources...)
}

func capturesOf(re *regexp.Regexp, source string, groups []string) contractx.Captures {
	out := contractx.Captures{Pattern: source}

	named := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		named[name] = groups[i]
	}
	if len(named) > 0 {
		out.Named = named
		return out
	}

	if len(groups) > 1 {
		out.Positional = append([]string(nil), groups[1:]...)
	}
	return out
}
