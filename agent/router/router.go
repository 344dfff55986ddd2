package router

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	matcherx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/matcher"
	statex "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/state"
)

// Observer receives lifecycle events from the router.
type Observer interface {
	Matched(handler string)
	Unmatched()
	Closed(handler string, messages int, elapsed time.Duration)
	Failed(handler string)
}

type noopObserver struct{}

func (noopObserver) Matched(string) {}
func (noopObserver) Unmatched() {}
func (noopObserver) Closed(string, int, time.Duration) {}
func (noopObserver) Failed(string) {}

// Observers fans events out to every non-nil observer in order.
type Observers []Observer

func (o Observers) Matched(handler string) {
	for _, obs := range o {
		if obs != nil {
			obs.Matched(handler)
		}
	}
}

func (o Observers) Unmatched() {
	for _, obs := range o {
		if obs != nil {
			obs.Unmatched()
		}
	}
}

func (o Observers) Closed(handler string, messages int, elapsed time.Duration) {
	for _, obs := range o {
		if obs != nil {
			obs.Closed(handler, messages, elapsed)
		}
	}
}

func (o Observers) Failed(handler string) {
	for _, obs := range o {
		if obs != nil {
			obs.Failed(handler)
		}
	}
}

type Option func(*Router)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Router) {
		if observer != nil {
			r.observer = observer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

type registration struct {
	handler contractx.Handler
	def     contractx.Definition
	matcher *matcherx.Matcher
}

// Selection is a handler chosen for an utterance plus the trigger captures.
type Selection struct {
	Handler  contractx.Handler
	Captures contractx.Captures
}

func (s Selection) Name() string {
	return s.Handler.Definition().Name
}

// Router dispatches utterances to handlers and owns at most one open
// conversation. It is not safe for concurrent use; transports must serialize
// calls, or keep one Router per session (see package session).
type Router struct {
	registry []registration
	active   *statex.Conversation

	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

func New(handlers []contractx.Handler, opts ...Option) (*Router, error) {
	r := &Router{
		logger:   zerolog.Nop(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if err := r.Register(handlers...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds handlers to the registry. Triggers and slot schemas are
// validated up front so dispatch never meets a malformed handler.
func (r *Router) Register(handlers ...contractx.Handler) error {
	for _, h := range handlers {
		if h == nil {
			return fmt.Errorf("%w: nil handler", contractx.ErrInvalidHandler)
		}
		def := h.Definition()
		if strings.TrimSpace(def.Name) == "" {
			return fmt.Errorf("%w: handler name is required", contractx.ErrInvalidHandler)
		}
		m, err := matcherx.Compile(def.Triggers)
		if err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
		if _, err := statex.NewSlotStore(def.Slots); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
		r.registry = append(r.registry, registration{handler: h, def: def, matcher: m})
		r.logger.Debug().Str("handler", def.Name).Int("weight", def.Weight).Msg("handler registered")
	}
	return nil
}

// Handlers lists registered definitions in match priority order.
func (r *Router) Handlers() []contractx.Definition {
	out := make([]contractx.Definition, 0, len(r.registry))
	for _, reg := range r.sorted() {
		out = append(out, reg.def)
	}
	return out
}

func (r *Router) sorted() []registration {
	regs := slices.Clone(r.registry)
	slices.SortStableFunc(regs, func(a, b registration) int {
		return cmp.Compare(a.def.Weight, b.def.Weight)
	})
	return regs
}

// matches yields the handlers matching text, lowest weight first and
// registration order within equal weights.
func (r *Router) matches(text string) iter.Seq[Selection] {
	return func(yield func(Selection) bool) {
		for _, reg := range r.sorted() {
			captures, err := reg.matcher.Match(text)
			if err != nil {
				continue
			}
			if !yield(Selection{Handler: reg.handler, Captures: captures}) {
				return
			}
		}
	}
}

// Candidates returns every handler matching text in priority order.
func (r *Router) Candidates(text string) []Selection {
	return slices.Collect(r.matches(text))
}

// SelectHandler returns the first candidate for text.
func (r *Router) SelectHandler(text string) (Selection, error) {
	for sel := range r.matches(text) {
		return sel, nil
	}
	return Selection{}, fmt.Errorf("%w: %q", contractx.ErrNoMatch, text)
}

func (r *Router) InConversation() bool {
	return r.active != nil && !r.active.Closed()
}

// ActiveHandler names the handler owning the open conversation.
func (r *Router) ActiveHandler() (string, bool) {
	if !r.InConversation() {
		return "", false
	}
	return r.active.Name(), true
}

// Conversation exposes the open conversation, or nil.
func (r *Router) Conversation() *statex.Conversation {
	return r.active
}

// Reset discards the open conversation, if any.
func (r *Router) Reset() {
	if r.active == nil {
		return
	}
	r.logger.Info().Str("handler", r.active.Name()).Msg("conversation reset")
	r.active = nil
}

// Handle routes one utterance. NoMatch leaves the router untouched. When
// handler code fails or panics the conversation is force-closed and a failure
// message is returned together with a *contract.HandlerError.
func (r *Router) Handle(ctx context.Context, raw string) (msg contractx.Message, err error) {
	text := contractx.Sanitize(raw)
	conv := r.active

	defer func() {
		if rec := recover(); rec != nil {
			name := "unknown"
			if conv != nil {
				name = conv.Name()
			}
			msg, err = r.fail(conv, contractx.NewHandlerError(name, fmt.Errorf("panic: %v", rec)))
		}
	}()

	if conv == nil {
		sel, selErr := r.SelectHandler(text)
		if selErr != nil {
			r.observer.Unmatched()
			r.logger.Warn().Str("text", text).Msg("no handler matched")
			return contractx.Message{}, selErr
		}
		conv, err = statex.NewConversation(sel.Handler, sel.Captures, r.now())
		if err != nil {
			return contractx.Message{}, err
		}
		r.active = conv
		r.observer.Matched(conv.Name())
		r.logger.Info().Str("handler", conv.Name()).Str("pattern", sel.Captures.Pattern).Msg("conversation opened")
	} else {
		r.logger.Debug().Str("handler", conv.Name()).Str("slot", conv.ActiveSlot()).Msg("continuing conversation")
	}

	reply, err := conv.Handle(ctx, text)
	if err != nil {
		var herr *contractx.HandlerError
		if errors.As(err, &herr) {
			return r.fail(conv, herr)
		}
		r.active = nil
		return contractx.Message{}, err
	}

	if rej := conv.LastRejection(); rej != nil {
		r.logger.Debug().Err(rej).Str("handler", conv.Name()).Msg("slot fill dropped")
	}

	if conv.Closed() {
		r.active = nil
		elapsed := r.now().Sub(conv.OpenedAt)
		r.observer.Closed(conv.Name(), len(conv.Log()), elapsed)
		r.logger.Info().Str("handler", conv.Name()).Dur("elapsed", elapsed).Msg("conversation closed")
	}
	return reply, nil
}

func (r *Router) fail(conv *statex.Conversation, herr *contractx.HandlerError) (contractx.Message, error) {
	msg, err := contractx.NewFailureMessage(fmt.Sprintf("Error in plugin %s: %v", herr.Handler, herr.Err))
	if err != nil {
		msg = contractx.Message{Author: contractx.AuthorAgent, Kind: contractx.KindFailure, Text: "Error in plugin " + herr.Handler}
	}
	if conv != nil {
		conv.Abort(msg)
	}
	r.active = nil
	r.observer.Failed(herr.Handler)
	r.logger.Error().Err(herr.Err).Str("handler", herr.Handler).Msg("handler failed")
	return msg, herr
}
