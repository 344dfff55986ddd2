package contract

import (
	"fmt"
	"regexp"
	"strings"
)

type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

type MessageKind string

const (
	KindPlain   MessageKind = "plain"
	KindRequest MessageKind = "request"
	KindClosing MessageKind = "closing"
	KindFailure MessageKind = "failure"
)

// Message is an immutable utterance exchanged inside a conversation.
// What is only set on request messages and names the slot being asked for.
type Message struct {
	Author Author      `json:"author"`
	Kind   MessageKind `json:"kind"`
	Text   string      `json:"text"`
	What   string      `json:"what,omitempty"`
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// Sanitize collapses runs of whitespace into one space and trims both ends.
func Sanitize(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// NewUserMessage logs raw user text. Empty text is allowed here because some
// triggers intentionally match the empty utterance.
func NewUserMessage(text string) Message {
	return Message{Author: AuthorUser, Kind: KindPlain, Text: Sanitize(text)}
}

func NewAgentMessage(text string) (Message, error) {
	return newAgentMessage(KindPlain, text, "")
}

func NewRequestMessage(what, text string) (Message, error) {
	if strings.TrimSpace(what) == "" {
		return Message{}, fmt.Errorf("%w: request message needs a slot name", ErrUndeclaredSlot)
	}
	return newAgentMessage(KindRequest, text, what)
}

func NewClosingMessage(text string) (Message, error) {
	return newAgentMessage(KindClosing, text, "")
}

func NewFailureMessage(text string) (Message, error) {
	return newAgentMessage(KindFailure, text, "")
}

func newAgentMessage(kind MessageKind, text, what string) (Message, error) {
	clean := Sanitize(text)
	if clean == "" {
		return Message{}, ErrEmptyMessage
	}
	return Message{Author: AuthorAgent, Kind: kind, Text: clean, What: what}, nil
}

// IsClosing reports whether the message ends its conversation.
func (m Message) IsClosing() bool {
	return m.Kind == KindClosing || m.Kind == KindFailure
}

func (m Message) String() string {
	return m.Text
}

// DefaultPrompt is the request text for handlers that do not implement Prompter.
func DefaultPrompt(slot string) string {
	return fmt.Sprintf("I need '%s'", slot)
}

// Definition is the static declaration of a handler.
type Definition struct {
	Name     string   `json:"name" yaml:"name"`
	Weight   int      `json:"weight" yaml:"weight"`
	Triggers []string `json:"triggers" yaml:"triggers"`
	Slots    []string `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// SingleShot reports whether the handler answers without slot filling.
func (d Definition) SingleShot() bool {
	return len(d.Slots) == 0
}

// Captures holds the groups extracted by the trigger that matched.
// Positional is only filled when the pattern has no named groups.
type Captures struct {
	Pattern    string            `json:"pattern"`
	Named      map[string]string `json:"named,omitempty"`
	Positional []string          `json:"positional,omitempty"`
}

// Seeds maps captures onto declared slots: named groups by name, positional
// groups by declaration index. Empty groups are skipped.
func (c Captures) Seeds(slots []string) map[string]string {
	seeds := make(map[string]string, len(slots))
	declared := make(map[string]bool, len(slots))
	for _, s := range slots {
		declared[s] = true
	}

	for name, value := range c.Named {
		if declared[name] && value != "" {
			seeds[name] = value
		}
	}
	for i, value := range c.Positional {
		if i >= len(slots) {
			break
		}
		if value != "" {
			seeds[slots[i]] = value
		}
	}
	return seeds
}

// AnswerRequest is everything a handler receives to produce its final answer.
type AnswerRequest struct {
	Slots    map[string]any
	Captures Captures
	Text     string
}

// Slot returns the typed slot value, or the zero value when the slot is unset.
func (r AnswerRequest) Slot(name string) any {
	return r.Slots[name]
}

func (r AnswerRequest) String(name string) string {
	if v, ok := r.Slots[name]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
