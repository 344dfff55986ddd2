// Package cli is the interactive terminal transport.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

const idlePrompt = "> "

type theme struct {
	prompt  lipgloss.Style
	handler lipgloss.Style
	failure lipgloss.Style
	request lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		handler: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		request: lipgloss.NewStyle().Foreground(lipgloss.Color("44")),
	}
}

// plainTheme renders text unchanged.
func plainTheme() theme {
	s := lipgloss.NewStyle()
	return theme{prompt: s, handler: s, failure: s, request: s}
}

// Terminal reads one utterance per line and prints one reply per line. The
// prompt is "> " while idle and "[handler] " while a handler owns the
// conversation.
type Terminal struct {
	in  *bufio.Scanner
	out io.Writer

	mu     sync.Mutex
	prompt string
	theme  theme

	lines     chan scanned
	done      chan struct{}
	once      sync.Once
	closeOnce sync.Once
}

type scanned struct {
	text string
	err  error
}

type Option func(*Terminal)

// WithoutStyle disables colors, for pipes and tests.
func WithoutStyle() Option {
	return func(t *Terminal) {
		t.theme = plainTheme()
	}
}

func New(in io.Reader, out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		in:     bufio.NewScanner(in),
		out:    out,
		prompt: idlePrompt,
		theme:  defaultTheme(),
		lines:  make(chan scanned),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Prompt returns the prompt shown before the next read.
func (t *Terminal) Prompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompt
}

func (t *Terminal) NotifyActiveHandler(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "" {
		t.prompt = idlePrompt
		return
	}
	t.prompt = fmt.Sprintf("[%s] ", name)
}

// Receive prints the prompt and waits for a line. The scanner runs on its own
// goroutine so a cancelled ctx returns without waiting for input.
func (t *Terminal) Receive(ctx context.Context) (string, error) {
	t.once.Do(func() { go t.scan() })

	prompt := t.Prompt()
	style := t.theme.prompt
	if prompt != idlePrompt {
		style = t.theme.handler
	}
	if _, err := fmt.Fprint(t.out, style.Render(prompt)); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return line.text, line.err
	}
}

func (t *Terminal) scan() {
	defer close(t.lines)
	for t.in.Scan() {
		select {
		case t.lines <- scanned{text: t.in.Text()}:
		case <-t.done:
			return
		}
	}
	if err := t.in.Err(); err != nil {
		select {
		case t.lines <- scanned{err: err}:
		case <-t.done:
		}
	}
}

// Close stops the reader goroutine once its current read returns.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *Terminal) Send(_ context.Context, msg contractx.Message) error {
	text := msg.Text
	switch msg.Kind {
	case contractx.KindFailure:
		text = t.theme.failure.Render("[!] " + text)
	case contractx.KindRequest:
		text = t.theme.request.Render(text)
	}
	_, err := fmt.Fprintln(t.out, text)
	return err
}

var _ contractx.Transport = (*Terminal)(nil)
