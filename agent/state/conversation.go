package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

type Status string

const (
	StatusAwaitingUser  Status = "awaiting_user"
	StatusAwaitingAgent Status = "awaiting_agent"
	StatusClosed        Status = "closed"
)

var ErrInvalidTransition = errors.New("invalid conversation transition")

// Conversation is a turn-taking session bound to one handler.
//
// Turns alternate user/agent starting with the user. The conversation closes
// the moment a closing message is appended and never reopens.
type Conversation struct {
	handler  contractx.Handler
	def      contractx.Definition
	slots    *SlotStore
	captures contractx.Captures
	seeds    map[string]string

	log        []contractx.Message
	status     Status
	activeSlot string
	rejection  error

	OpenedAt time.Time
}

// NewConversation binds a conversation to h. Captures from the triggering
// utterance are applied as slot seeds before the first agent turn.
func NewConversation(h contractx.Handler, captures contractx.Captures, now time.Time) (*Conversation, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", contractx.ErrInvalidHandler)
	}
	def := h.Definition()
	slots, err := NewSlotStore(def.Slots)
	if err != nil {
		return nil, err
	}
	return &Conversation{
		handler:  h,
		def:      def,
		slots:    slots,
		captures: captures,
		seeds:    captures.Seeds(def.Slots),
		status:   StatusAwaitingUser,
		OpenedAt: now.UTC(),
	}, nil
}

func (c *Conversation) Handler() contractx.Handler {
	return c.handler
}

func (c *Conversation) Name() string {
	return c.def.Name
}

func (c *Conversation) Status() Status {
	return c.status
}

func (c *Conversation) Closed() bool {
	return c.status == StatusClosed
}

// Turn reports whose turn it is.
func (c *Conversation) Turn() contractx.Author {
	if c.status == StatusAwaitingAgent {
		return contractx.AuthorAgent
	}
	return contractx.AuthorUser
}

// ActiveSlot is the slot requested on the previous agent turn, if any.
func (c *Conversation) ActiveSlot() string {
	return c.activeSlot
}

func (c *Conversation) Slots() *SlotStore {
	return c.slots
}

// LastRejection returns why the latest fill attempt was dropped, or nil.
func (c *Conversation) LastRejection() error {
	return c.rejection
}

func (c *Conversation) Log() []contractx.Message {
	return append([]contractx.Message(nil), c.log...)
}

// Last returns the latest logged message.
func (c *Conversation) Last() (contractx.Message, bool) {
	if len(c.log) == 0 {
		return contractx.Message{}, false
	}
	return c.log[len(c.log)-1], true
}

// Handle logs the user's text and runs one agent turn.
func (c *Conversation) Handle(ctx context.Context, text string) (contractx.Message, error) {
	if c.Closed() {
		return contractx.Message{}, contractx.ErrConversationClosed
	}
	user := contractx.NewUserMessage(text)
	if err := c.append(user); err != nil {
		return contractx.Message{}, err
	}

	reply, err := c.respond(ctx, user.Text)
	if err != nil {
		return contractx.Message{}, err
	}
	if err := c.append(reply); err != nil {
		return contractx.Message{}, err
	}
	return reply, nil
}

// Abort force-closes the conversation, logging msg when it is an agent reply
// that fits the current turn.
func (c *Conversation) Abort(msg contractx.Message) {
	if c.Closed() {
		return
	}
	if msg.Author == contractx.AuthorAgent && c.status == StatusAwaitingAgent && msg.Text != "" {
		c.log = append(c.log, msg)
	}
	c.status = StatusClosed
	c.activeSlot = ""
}

func (c *Conversation) append(msg contractx.Message) error {
	switch {
	case c.status == StatusClosed:
		return contractx.ErrConversationClosed
	case c.status == StatusAwaitingUser && msg.Author != contractx.AuthorUser:
		return fmt.Errorf("%w: was user turn", ErrInvalidTransition)
	case c.status == StatusAwaitingAgent && msg.Author != contractx.AuthorAgent:
		return fmt.Errorf("%w: was agent turn", ErrInvalidTransition)
	}

	c.log = append(c.log, msg)
	switch {
	case msg.IsClosing():
		c.status = StatusClosed
	case c.status == StatusAwaitingUser:
		c.status = StatusAwaitingAgent
	default:
		c.status = StatusAwaitingUser
	}
	return nil
}

func (c *Conversation) respond(ctx context.Context, text string) (contractx.Message, error) {
	c.rejection = nil

	if c.seeds != nil {
		seeds := c.seeds
		c.seeds = nil
		for _, slot := range c.def.Slots {
			raw, ok := seeds[slot]
			if !ok {
				continue
			}
			if err := c.fill(slot, raw); err != nil {
				return contractx.Message{}, err
			}
		}
	}

	if active := c.activeSlot; active != "" {
		raw, ok := c.handler.ExtractSlot(active, text)
		if !ok || raw == "" {
			c.rejection = fmt.Errorf("%w: %s", contractx.ErrSlotExtractionAbsent, active)
		} else if err := c.fill(active, raw); err != nil {
			return contractx.Message{}, err
		}
	}

	if ex, ok := c.handler.(contractx.Extractor); ok && !c.def.SingleShot() {
		extracted := ex.Extract(text)
		for _, slot := range c.def.Slots {
			raw, ok := extracted[slot]
			if !ok || raw == "" {
				continue
			}
			if err := c.fill(slot, raw); err != nil {
				return contractx.Message{}, err
			}
		}
	}

	missing := c.slots.Missing()
	if len(missing) == 0 {
		return c.answer(ctx, text)
	}

	c.activeSlot = missing[0]
	prompt := contractx.DefaultPrompt(c.activeSlot)
	if p, ok := c.handler.(contractx.Prompter); ok {
		prompt = p.Prompt(c.activeSlot)
	}
	msg, err := contractx.NewRequestMessage(c.activeSlot, prompt)
	if err != nil {
		return contractx.Message{}, contractx.NewHandlerError(c.def.Name, err)
	}
	return msg, nil
}

// fill validates raw and stores it unless the slot is already set. Invalid
// values are dropped and remembered as the last rejection.
func (c *Conversation) fill(slot, raw string) error {
	set, err := c.slots.IsSet(slot)
	if err != nil || set {
		return nil
	}

	value, err := c.handler.ValidateSlot(slot, raw)
	switch {
	case err == nil:
		return c.slots.Set(slot, value)
	case errors.Is(err, contractx.ErrInvalidSlotValue):
		c.rejection = err
		return nil
	default:
		return contractx.NewHandlerError(c.def.Name, err)
	}
}

func (c *Conversation) answer(ctx context.Context, text string) (contractx.Message, error) {
	answer, err := c.handler.ProduceAnswer(ctx, contractx.AnswerRequest{
		Slots:    c.slots.Values(),
		Captures: c.captures,
		Text:     text,
	})
	if err != nil {
		return contractx.Message{}, contractx.NewHandlerError(c.def.Name, err)
	}
	msg, err := contractx.NewClosingMessage(answer)
	if err != nil {
		return contractx.Message{}, contractx.NewHandlerError(c.def.Name, err)
	}
	c.activeSlot = ""
	return msg, nil
}

// Dump writes the log as one line per message.
func (c *Conversation) Dump(w io.Writer) error {
	for _, msg := range c.log {
		dir, who := ">", "User "
		if msg.Author == contractx.AuthorAgent {
			dir, who = "<", "Agent"
		}
		if _, err := fmt.Fprintf(w, "[%s %s] %s\n", dir, who, msg.Text); err != nil {
			return err
		}
	}
	return nil
}
