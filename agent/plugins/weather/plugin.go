package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
)

const Name = "weather"

var days = map[string]When{
	"hoy":    Today,
	"mañana": Tomorrow,
	"manana": Tomorrow,
}

// Forecaster is the part of Client the handler needs.
type Forecaster interface {
	Probability(ctx context.Context, when When, now time.Time) (Probability, error)
}

type Handler struct {
	handlerx.Base
	forecast Forecaster
	msgs     promptx.Messages
	now      func() time.Time
}

type HandlerOption func(*Handler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(forecast Forecaster, messages *promptx.Catalog, opts ...HandlerOption) *Handler {
	msgs := messages.For(Name)
	h := &Handler{
		Base: handlerx.Base{
			Def: contractx.Definition{
				Name:     Name,
				Triggers: []string{`^lloverá$`, `^lloverá (?P<when>.+)$`, `^llovera$`, `^llovera (?P<when>.+)$`},
				Slots:    []string{"when"},
			},
			Prompts: map[string]string{"when": msgs.T("REQUEST_WHEN", nil)},
		},
		forecast: forecast,
		msgs:     msgs,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ValidateSlot accepts "hoy" and "mañana" in any case.
func (h *Handler) ValidateSlot(slot, raw string) (any, error) {
	when, ok := days[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return nil, fmt.Errorf("%w: %s=%q, want hoy or mañana", contractx.ErrInvalidSlotValue, slot, raw)
	}
	return when, nil
}

func (h *Handler) ProduceAnswer(ctx context.Context, req contractx.AnswerRequest) (string, error) {
	when, ok := req.Slot("when").(When)
	if !ok {
		return "", fmt.Errorf("when slot holds %T", req.Slot("when"))
	}
	prob, err := h.forecast.Probability(ctx, when, h.now())
	if errors.Is(err, ErrNoForecast) {
		return h.msgs.T("NO_DATA", map[string]any{"when": label(when)}), nil
	}
	if err != nil {
		return "", err
	}
	return h.msgs.T(string(prob), nil), nil
}

func label(w When) string {
	if w == Tomorrow {
		return "mañana"
	}
	return "hoy"
}

var (
	_ contractx.Handler  = (*Handler)(nil)
	_ contractx.Prompter = (*Handler)(nil)
)
