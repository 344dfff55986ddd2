// Package channel connects transports to the dialogue router.
package channel

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

// NoMatchReply is sent when no handler accepts an utterance.
const NoMatchReply = "I don't know how to handle that"

var exitWords = map[string]bool{"q": true, "bye": true}

// Dispatcher is the part of the router a transport loop drives.
type Dispatcher interface {
	Handle(ctx context.Context, text string) (contractx.Message, error)
	ActiveHandler() (string, bool)
}

type Option func(*loop)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *loop) {
		l.logger = logger
	}
}

// WithFirstUtterance handles text before the first Receive, as when the CLI
// is given words on its command line. Blank text is ignored.
func WithFirstUtterance(text string) Option {
	return func(l *loop) {
		l.first = strings.TrimSpace(text)
	}
}

type loop struct {
	logger zerolog.Logger
	first  string
}

// IsExit reports whether text ends the session. Exit words only count while
// no conversation is open, so "q" can still fill a slot.
func IsExit(text string, inConversation bool) bool {
	return !inConversation && exitWords[strings.ToLower(contractx.Sanitize(text))]
}

// Run reads utterances from t, routes them through d and writes the replies
// back until end of input, an exit word, or ctx is done. Calls into d are
// serialized.
func Run(ctx context.Context, t contractx.Transport, d Dispatcher, opts ...Option) error {
	l := &loop{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	t.NotifyActiveHandler("")
	pending := l.first
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		text := pending
		pending = ""
		if text == "" {
			var err error
			text, err = t.Receive(ctx)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		_, open := d.ActiveHandler()
		if IsExit(text, open) {
			l.logger.Debug().Msg("exit requested")
			return nil
		}

		reply, err := l.turn(ctx, d, text)
		if err != nil {
			return err
		}
		if err := t.Send(ctx, reply); err != nil {
			return err
		}

		name, _ := d.ActiveHandler()
		t.NotifyActiveHandler(name)
	}
}

func (l *loop) turn(ctx context.Context, d Dispatcher, text string) (contractx.Message, error) {
	msg, err := d.Handle(ctx, text)
	if err == nil {
		return msg, nil
	}

	var herr *contractx.HandlerError
	switch {
	case errors.Is(err, contractx.ErrNoMatch):
		l.logger.Debug().Str("text", text).Msg("no handler matched")
		return contractx.Message{Author: contractx.AuthorAgent, Kind: contractx.KindPlain, Text: NoMatchReply}, nil
	case errors.As(err, &herr):
		l.logger.Warn().Err(herr.Err).Str("handler", herr.Handler).Msg("handler failed")
		return msg, nil
	}
	return contractx.Message{}, err
}
