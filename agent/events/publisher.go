// Package events forwards conversation outcomes to a message queue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

const (
	TypeClosed = "conversation.closed"
	TypeFailed = "conversation.failed"
)

type Event struct {
	Type     string    `json:"type"`
	Handler  string    `json:"handler"`
	Messages int       `json:"messages,omitempty"`
	Seconds  float64   `json:"elapsed_seconds,omitempty"`
	At       time.Time `json:"at"`
}

// Sender delivers one encoded event. *qstash.Client satisfies it.
type Sender interface {
	Publish(ctx context.Context, destination string, body []byte) (string, error)
}

// Publisher is a router.Observer that queues closed and failed conversations
// and sends them from Run. Events arriving while the queue is full are
// dropped.
type Publisher struct {
	sender      Sender
	destination string
	queue       chan Event
	logger      zerolog.Logger
	now         func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan Event, n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(sender Sender, destination string, opts ...Option) *Publisher {
	p := &Publisher{
		sender:      sender,
		destination: destination,
		queue:       make(chan Event, 256),
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Publisher) Matched(string) {}

func (p *Publisher) Unmatched() {}

func (p *Publisher) Closed(handler string, messages int, elapsed time.Duration) {
	p.enqueue(Event{Type: TypeClosed, Handler: handler, Messages: messages, Seconds: elapsed.Seconds(), At: p.now()})
}

func (p *Publisher) Failed(handler string) {
	p.enqueue(Event{Type: TypeFailed, Handler: handler, At: p.now()})
}

func (p *Publisher) enqueue(ev Event) {
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn().Str("type", ev.Type).Str("handler", ev.Handler).Msg("event queue full, dropping event")
	}
}

// Run sends queued events until ctx is done. Send failures are logged and the
// event is dropped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.queue:
			p.send(ctx, ev)
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Msg("encode event")
		return
	}
	id, err := p.sender.Publish(ctx, p.destination, body)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", ev.Type).Str("handler", ev.Handler).Msg("publish event")
		return
	}
	p.logger.Debug().Str("message_id", id).Str("type", ev.Type).Msg("event published")
}
