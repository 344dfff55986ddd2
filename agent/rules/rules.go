// Package rules compiles handlers declared in YAML.
//
//	handlers:
//	  - name: greet
//	    triggers: ['^hola$', '^hola (?P<name>\w+)$']
//	    slots:
//	      - name: name
//	        prompt: ¿Cómo te llamas?
//	        pattern: 'me llamo (\w+)'
//	    answer: Hola {{.name}}
package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/matcher"
)

var ErrInvalidRule = errors.New("invalid rule")

// TextVar names the utterance that closed the conversation in answer
// templates.
const TextVar = "text"

type File struct {
	Handlers []Rule `yaml:"handlers"`
}

type Rule struct {
	Name     string   `yaml:"name"`
	Weight   int      `yaml:"weight"`
	Triggers []string `yaml:"triggers"`
	Slots    []Slot   `yaml:"slots"`
	Answer   string   `yaml:"answer"`
}

// Slot declares how a slot is asked for, found and checked. Pattern, when
// set, must match a reply for it to fill the slot; its first group (or the
// whole match) is the raw value. The same pattern lets any utterance fill
// the slot before it is asked for. Choices and Integer are exclusive.
type Slot struct {
	Name    string   `yaml:"name"`
	Prompt  string   `yaml:"prompt"`
	Pattern string   `yaml:"pattern"`
	Choices []string `yaml:"choices"`
	Integer bool     `yaml:"integer"`
}

// LoadFile reads and compiles a rules file.
func LoadFile(path string) ([]contractx.Handler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a rules document and compiles every handler in it. Unknown
// keys are rejected.
func Load(r io.Reader) ([]contractx.Handler, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	seen := make(map[string]bool, len(file.Handlers))
	handlers := make([]contractx.Handler, 0, len(file.Handlers))
	for i, rule := range file.Handlers {
		h, err := Compile(rule)
		if err != nil {
			return nil, fmt.Errorf("handler #%d: %w", i+1, err)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("%w: duplicate handler %q", ErrInvalidRule, rule.Name)
		}
		seen[rule.Name] = true
		handlers = append(handlers, h)
	}
	return handlers, nil
}

type compiledSlot struct {
	Slot
	pattern *regexp.Regexp
	choices map[string]string
}

// Compile turns one rule into a handler.
func Compile(rule Rule) (contractx.Handler, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if len(rule.Triggers) == 0 {
		return nil, fmt.Errorf("%w: %s has no triggers", ErrInvalidRule, rule.Name)
	}
	if _, err := matcher.Compile(rule.Triggers); err != nil {
		return nil, fmt.Errorf("%s: %w", rule.Name, err)
	}

	answer, err := template.New(rule.Name).Option("missingkey=zero").Parse(rule.Answer)
	if err != nil {
		return nil, fmt.Errorf("%w: %s answer: %v", ErrInvalidRule, rule.Name, err)
	}
	if strings.TrimSpace(rule.Answer) == "" {
		return nil, fmt.Errorf("%w: %s has no answer", ErrInvalidRule, rule.Name)
	}

	slots := make(map[string]*compiledSlot, len(rule.Slots))
	names := make([]string, 0, len(rule.Slots))
	prompts := make(map[string]string, len(rule.Slots))
	for _, s := range rule.Slots {
		cs, err := compileSlot(rule.Name, s)
		if err != nil {
			return nil, err
		}
		if slots[cs.Name] != nil {
			return nil, fmt.Errorf("%w: %s declares slot %q twice", ErrInvalidRule, rule.Name, cs.Name)
		}
		slots[cs.Name] = cs
		names = append(names, cs.Name)
		if cs.Prompt != "" {
			prompts[cs.Name] = cs.Prompt
		}
	}

	def := contractx.Definition{Name: rule.Name, Weight: rule.Weight, Triggers: rule.Triggers, Slots: names}
	return handlerx.New(def,
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			vars := make(map[string]any, len(req.Slots)+len(req.Captures.Named)+1)
			for k, v := range req.Captures.Named {
				vars[k] = v
			}
			for k, v := range req.Slots {
				vars[k] = v
			}
			vars[TextVar] = req.Text
			var buf bytes.Buffer
			if err := answer.Execute(&buf, vars); err != nil {
				return "", err
			}
			return buf.String(), nil
		},
		handlerx.WithPrompts(prompts),
		handlerx.WithSlotExtractor(func(slot, text string) (string, bool) {
			cs := slots[slot]
			if cs == nil || cs.pattern == nil {
				text = strings.TrimSpace(text)
				return text, text != ""
			}
			return cs.find(text)
		}),
		handlerx.WithExtractor(func(text string) map[string]string {
			var found map[string]string
			for name, cs := range slots {
				if cs.pattern == nil {
					continue
				}
				if v, ok := cs.find(text); ok {
					if found == nil {
						found = make(map[string]string)
					}
					found[name] = v
				}
			}
			return found
		}),
		handlerx.WithValidator(func(slot, raw string) (any, error) {
			cs := slots[slot]
			if cs == nil {
				return nil, fmt.Errorf("%w: %s", contractx.ErrUndeclaredSlot, slot)
			}
			return cs.validate(raw)
		}),
	)
}

func compileSlot(handler string, s Slot) (*compiledSlot, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return nil, fmt.Errorf("%w: %s has a slot without a name", ErrInvalidRule, handler)
	}
	if s.Integer && len(s.Choices) > 0 {
		return nil, fmt.Errorf("%w: %s.%s mixes choices and integer", ErrInvalidRule, handler, s.Name)
	}

	cs := &compiledSlot{Slot: s}
	if s.Pattern != "" {
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s pattern: %v", ErrInvalidRule, handler, s.Name, err)
		}
		cs.pattern = re
	}
	if len(s.Choices) > 0 {
		cs.choices = make(map[string]string, len(s.Choices))
		for _, c := range s.Choices {
			cs.choices[strings.ToLower(strings.TrimSpace(c))] = c
		}
	}
	return cs, nil
}

func (cs *compiledSlot) find(text string) (string, bool) {
	m := cs.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	value := m[0]
	if len(m) > 1 {
		value = m[1]
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (cs *compiledSlot) validate(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case cs.Integer:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an integer", contractx.ErrInvalidSlotValue, cs.Name, raw)
		}
		return n, nil
	case cs.choices != nil:
		c, ok := cs.choices[strings.ToLower(raw)]
		if !ok {
			return nil, fmt.Errorf("%w: %s=%q", contractx.ErrInvalidSlotValue, cs.Name, raw)
		}
		return c, nil
	}
	return raw, nil
}
