// Package handler provides building blocks for contract.Handler implementations.
package handler

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

// Base implements every Handler method except ProduceAnswer with the default
// behavior: the whole reply fills the active slot and values pass through
// unvalidated.
type Base struct {
	Def     contractx.Definition
	Prompts map[string]string
}

func (b Base) Definition() contractx.Definition {
	return b.Def
}

func (b Base) ExtractSlot(_ string, text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (b Base) ValidateSlot(_ string, raw string) (any, error) {
	return raw, nil
}

func (b Base) Prompt(slot string) string {
	if p := strings.TrimSpace(b.Prompts[slot]); p != "" {
		return p
	}
	return contractx.DefaultPrompt(slot)
}

type (
	AnswerFunc    func(ctx context.Context, req contractx.AnswerRequest) (string, error)
	ValidateFunc  func(slot, raw string) (any, error)
	ExtractFunc   func(text string) map[string]string
	SlotExtractFn func(slot, text string) (string, bool)
)

// Func is a handler assembled from plain functions.
type Func struct {
	Base
	answer      AnswerFunc
	validate    ValidateFunc
	extract     ExtractFunc
	extractSlot SlotExtractFn
}

type Option func(*Func)

func WithValidator(fn ValidateFunc) Option {
	return func(f *Func) {
		f.validate = fn
	}
}

func WithExtractor(fn ExtractFunc) Option {
	return func(f *Func) {
		f.extract = fn
	}
}

func WithSlotExtractor(fn SlotExtractFn) Option {
	return func(f *Func) {
		f.extractSlot = fn
	}
}

func WithPrompts(prompts map[string]string) Option {
	return func(f *Func) {
		f.Prompts = prompts
	}
}

// New builds a Func handler. answer is required.
func New(def contractx.Definition, answer AnswerFunc, opts ...Option) (*Func, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", contractx.ErrInvalidHandler)
	}
	if answer == nil {
		return nil, fmt.Errorf("%w: %s has no answer function", contractx.ErrInvalidHandler, def.Name)
	}
	f := &Func{Base: Base{Def: def}, answer: answer}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func MustNew(def contractx.Definition, answer AnswerFunc, opts ...Option) *Func {
	f, err := New(def, answer, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Func) ExtractSlot(slot, text string) (string, bool) {
	if f.extractSlot != nil {
		return f.extractSlot(slot, text)
	}
	return f.Base.ExtractSlot(slot, text)
}

func (f *Func) ValidateSlot(slot, raw string) (any, error) {
	if f.validate != nil {
		return f.validate(slot, raw)
	}
	return f.Base.ValidateSlot(slot, raw)
}

func (f *Func) Extract(text string) map[string]string {
	if f.extract == nil {
		return nil
	}
	return f.extract(text)
}

func (f *Func) ProduceAnswer(ctx context.Context, req contractx.AnswerRequest) (string, error) {
	return f.answer(ctx, req)
}

var (
	_ contractx.Handler   = (*Func)(nil)
	_ contractx.Extractor = (*Func)(nil)
	_ contractx.Prompter  = (*Func)(nil)
)
