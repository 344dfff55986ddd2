// Package plugins holds the built-in dialogue handlers.
package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
)

const (
	NameEcho  = "echo"
	NameSum   = "sum"
	NameCalc  = "calc"
	NameNotes = "notes"
	NameList  = "notes.list"
)

// Echo replies with the captured text reversed.
func Echo() contractx.Handler {
	return handlerx.MustNew(
		contractx.Definition{Name: NameEcho, Triggers: []string{`^echo (.+)$`}},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			if len(req.Captures.Positional) == 0 {
				return "", fmt.Errorf("echo matched without a capture")
			}
			return reverse(req.Captures.Positional[0]), nil
		},
	)
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Sum adds two integers, asking for whichever is missing. "7 + 5" fills both
// slots from the trigger.
func Sum(messages *promptx.Catalog) contractx.Handler {
	msgs := messages.For(NameSum)
	return handlerx.MustNew(
		contractx.Definition{
			Name:     NameSum,
			Triggers: []string{`^add$`, `^sum$`, `^(-?\d+)\s*\+\s*(-?\d+)$`},
			Slots:    []string{"x", "y"},
		},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			x, okX := req.Slot("x").(int)
			y, okY := req.Slot("y").(int)
			if !okX || !okY {
				return "", fmt.Errorf("sum slots are not integers: %v", req.Slots)
			}
			return msgs.T("RESULT", map[string]any{"x": x, "y": y, "sum": x + y}), nil
		},
		handlerx.WithValidator(validateInt),
		handlerx.WithPrompts(map[string]string{
			"x": msgs.T("REQUEST_X", nil),
			"y": msgs.T("REQUEST_Y", nil),
		}),
	)
}

func validateInt(slot, raw string) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not an integer", contractx.ErrInvalidSlotValue, slot, raw)
	}
	return n, nil
}

type calcValue struct {
	expression string
	result     float64
}

// Calc evaluates an arithmetic expression. Expressions that do not parse or
// divide by zero are rejected and asked for again. A bare expression also
// triggers it, behind sum's exact "a + b" form.
func Calc(messages *promptx.Catalog) contractx.Handler {
	msgs := messages.For(NameCalc)
	return handlerx.MustNew(
		contractx.Definition{
			Name:     NameCalc,
			Triggers: []string{`^calc$`, `^calc (?P<expression>.+)$`, `^(?P<expression>[\d\s\.\(\)\+\-\*/%\^]*\d[\d\s\.\(\)\+\-\*/%\^]*)$`},
			Slots:    []string{"expression"},
			Weight:   10,
		},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			v, ok := req.Slot("expression").(calcValue)
			if !ok {
				return "", fmt.Errorf("expression slot holds %T", req.Slot("expression"))
			}
			return msgs.T("RESULT", map[string]any{
				"expression": v.expression,
				"result":     FormatNumber(v.result),
			}), nil
		},
		handlerx.WithValidator(func(slot, raw string) (any, error) {
			expr := strings.TrimSpace(raw)
			result, err := Evaluate(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", contractx.ErrInvalidSlotValue, slot, err)
			}
			return calcValue{expression: expr, result: result}, nil
		}),
		handlerx.WithPrompts(map[string]string{
			"expression": msgs.T("REQUEST_EXPRESSION", nil),
		}),
	)
}
