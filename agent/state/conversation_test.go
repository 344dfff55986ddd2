package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
)

var (
	fooPattern = regexp.MustCompile(`\bfoo as (.+?)\b`)
	barPattern = regexp.MustCompile(`\bbar as (.+?)\b`)
)

func fooBarHandler() *handlerx.Func {
	return handlerx.MustNew(
		contractx.Definition{Name: "foobar", Triggers: []string{`.+`}, Slots: []string{"foo", "bar"}},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			return fmt.Sprintf("foo='%s', bar='%s'", req.String("foo"), req.String("bar")), nil
		},
		handlerx.WithExtractor(func(text string) map[string]string {
			out := map[string]string{}
			if m := fooPattern.FindStringSubmatch(text); m != nil {
				out["foo"] = m[1]
			}
			if m := barPattern.FindStringSubmatch(text); m != nil {
				out["bar"] = m[1]
			}
			return out
		}),
		handlerx.WithSlotExtractor(func(string, string) (string, bool) { return "", false }),
	)
}

func intSlots(_ string, raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", contractx.ErrInvalidSlotValue, raw)
	}
	return n, nil
}

func abcHandler() *handlerx.Func {
	return handlerx.MustNew(
		contractx.Definition{Name: "abc", Triggers: []string{`^abc$`}, Slots: []string{"a", "b", "c"}},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			return fmt.Sprintf("%v-%v-%v", req.Slot("a"), req.Slot("b"), req.Slot("c")), nil
		},
		handlerx.WithValidator(intSlots),
		handlerx.WithExtractor(func(text string) map[string]string {
			out := map[string]string{}
			for _, slot := range []string{"a", "b", "c"} {
				if m := regexp.MustCompile(slot + `=(\d+)`).FindStringSubmatch(text); m != nil {
					out[slot] = m[1]
				}
			}
			return out
		}),
	)
}

func newConversation(t *testing.T, h contractx.Handler, captures contractx.Captures) *Conversation {
	t.Helper()
	c, err := NewConversation(h, captures, time.Now())
	if err != nil {
		t.Fatalf("NewConversation() error = %v", err)
	}
	return c
}

func mustHandle(t *testing.T, c *Conversation, text string) contractx.Message {
	t.Helper()
	msg, err := c.Handle(context.Background(), text)
	if err != nil {
		t.Fatalf("Handle(%q) error = %v", text, err)
	}
	return msg
}

func TestConversationQuickFill(t *testing.T) {
	t.Parallel()

	c := newConversation(t, fooBarHandler(), contractx.Captures{})
	reply := mustHandle(t, c, "set foo as 1 and bar as 2")

	if reply.Kind != contractx.KindClosing {
		t.Fatalf("reply kind = %s, want closing", reply.Kind)
	}
	if reply.Text != "foo='1', bar='2'" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if !c.Closed() {
		t.Fatal("conversation should be closed")
	}
}

func TestConversationPartialFill(t *testing.T) {
	t.Parallel()

	c := newConversation(t, fooBarHandler(), contractx.Captures{})
	reply := mustHandle(t, c, "set foo as 1")

	if reply.Kind != contractx.KindRequest || reply.What != "bar" {
		t.Fatalf("reply = %+v, want request for bar", reply)
	}
	if reply.Text != "I need 'bar'" {
		t.Fatalf("reply text = %q", reply.Text)
	}
	if set, _ := c.Slots().IsSet("foo"); !set {
		t.Fatal("foo should be set")
	}
	if c.ActiveSlot() != "bar" {
		t.Fatalf("ActiveSlot() = %q, want bar", c.ActiveSlot())
	}

	reply = mustHandle(t, c, "bar as 2")
	if reply.Kind != contractx.KindClosing {
		t.Fatalf("reply kind = %s, want closing", reply.Kind)
	}
}

func TestConversationSeedsFromCaptures(t *testing.T) {
	t.Parallel()

	h := handlerx.MustNew(
		contractx.Definition{Name: "say", Triggers: []string{`^say$`, `^say (?P<what>.+)$`}, Slots: []string{"what"}},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			r := []rune(req.String("what"))
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
			return string(r), nil
		},
		handlerx.WithExtractor(func(text string) map[string]string {
			return map[string]string{"what": text}
		}),
	)

	c := newConversation(t, h, contractx.Captures{Named: map[string]string{"what": "abc"}})
	reply := mustHandle(t, c, "say abc")

	if reply.Text != "cba" {
		t.Fatalf("reply = %q, want cba (seed must win over extraction)", reply.Text)
	}
}

func TestConversationActiveSlotBeatsExtraction(t *testing.T) {
	t.Parallel()

	number := regexp.MustCompile(`\d+`)
	h := handlerx.MustNew(
		contractx.Definition{Name: "pair", Triggers: []string{`^go$`}, Slots: []string{"a", "b"}},
		func(_ context.Context, req contractx.AnswerRequest) (string, error) {
			return fmt.Sprintf("%v-%v", req.Slot("a"), req.Slot("b")), nil
		},
		handlerx.WithValidator(intSlots),
		handlerx.WithSlotExtractor(func(_ string, text string) (string, bool) {
			m := number.FindString(text)
			return m, m != ""
		}),
		handlerx.WithExtractor(func(text string) map[string]string {
			out := map[string]string{}
			for _, slot := range []string{"a", "b"} {
				if m := regexp.MustCompile(slot + `=(\d+)`).FindStringSubmatch(text); m != nil {
					out[slot] = m[1]
				}
			}
			return out
		}),
	)

	c := newConversation(t, h, contractx.Captures{})
	reply := mustHandle(t, c, "go")
	if reply.What != "a" {
		t.Fatalf("reply = %+v, want request for a", reply)
	}

	reply = mustHandle(t, c, "5 a=9 b=2")
	if reply.Kind != contractx.KindClosing {
		t.Fatalf("reply kind = %s, want closing", reply.Kind)
	}
	if reply.Text != "5-2" {
		t.Fatalf("reply = %q, want 5-2 (active slot value must win over extraction)", reply.Text)
	}
}

func TestConversationMissingOrderIndependentOfFillOrder(t *testing.T) {
	t.Parallel()

	c := newConversation(t, abcHandler(), contractx.Captures{})

	reply := mustHandle(t, c, "c=3")
	if reply.What != "a" {
		t.Fatalf("first request = %q, want a", reply.What)
	}
	reply = mustHandle(t, c, "b=2")
	if reply.What != "a" {
		t.Fatalf("second request = %q, want a", reply.What)
	}
	reply = mustHandle(t, c, "1")
	if reply.Kind != contractx.KindClosing || reply.Text != "1-2-3" {
		t.Fatalf("final reply = %+v", reply)
	}
}

func TestConversationInvalidValueRepromptsIdempotently(t *testing.T) {
	t.Parallel()

	c := newConversation(t, abcHandler(), contractx.Captures{})
	first := mustHandle(t, c, "a=1")
	before := c.Slots().Values()

	again := mustHandle(t, c, "not a number")
	if again != first {
		t.Fatalf("re-prompt = %+v, want %+v", again, first)
	}
	if got := c.Slots().Values(); len(got) != len(before) || got["a"] != before["a"] {
		t.Fatalf("slot store changed: %v -> %v", before, got)
	}
	if !errors.Is(c.LastRejection(), contractx.ErrInvalidSlotValue) {
		t.Fatalf("LastRejection() = %v, want ErrInvalidSlotValue", c.LastRejection())
	}
}

func TestConversationSingleShotClosesOnFirstTurn(t *testing.T) {
	t.Parallel()

	h := handlerx.MustNew(
		contractx.Definition{Name: "hello", Triggers: []string{`^hi$`}},
		func(context.Context, contractx.AnswerRequest) (string, error) { return "hello  there ", nil },
	)
	c := newConversation(t, h, contractx.Captures{})

	reply := mustHandle(t, c, "hi")
	if reply.Kind != contractx.KindClosing || reply.Text != "hello there" {
		t.Fatalf("reply = %+v", reply)
	}
	if len(c.Log()) != 2 {
		t.Fatalf("log length = %d, want 2", len(c.Log()))
	}
}

func TestConversationHandleAfterCloseFails(t *testing.T) {
	t.Parallel()

	c := newConversation(t, fooBarHandler(), contractx.Captures{})
	mustHandle(t, c, "foo as 1 bar as 2")

	_, err := c.Handle(context.Background(), "again")
	if !errors.Is(err, contractx.ErrConversationClosed) {
		t.Fatalf("Handle() error = %v, want ErrConversationClosed", err)
	}
}

func TestConversationHandlerFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	h := handlerx.MustNew(
		contractx.Definition{Name: "broken", Triggers: []string{`.*`}},
		func(context.Context, contractx.AnswerRequest) (string, error) { return "", boom },
	)
	c := newConversation(t, h, contractx.Captures{})

	_, err := c.Handle(context.Background(), "x")
	if !errors.Is(err, contractx.ErrHandlerFailure) || !errors.Is(err, boom) {
		t.Fatalf("Handle() error = %v, want handler failure wrapping boom", err)
	}
	var herr *contractx.HandlerError
	if !errors.As(err, &herr) || herr.Handler != "broken" {
		t.Fatalf("error does not name the handler: %v", err)
	}
	if c.Turn() != contractx.AuthorAgent {
		t.Fatalf("Turn() = %s, want agent", c.Turn())
	}

	failure, _ := contractx.NewFailureMessage("oops")
	c.Abort(failure)
	if !c.Closed() {
		t.Fatal("Abort() must close the conversation")
	}
	if last, _ := c.Last(); last.Kind != contractx.KindFailure {
		t.Fatalf("last message = %+v, want failure", last)
	}
}

func TestConversationEmptyAnswerIsFailure(t *testing.T) {
	t.Parallel()

	h := handlerx.MustNew(
		contractx.Definition{Name: "silent", Triggers: []string{`.*`}},
		func(context.Context, contractx.AnswerRequest) (string, error) { return "   ", nil },
	)
	c := newConversation(t, h, contractx.Captures{})

	_, err := c.Handle(context.Background(), "x")
	if !errors.Is(err, contractx.ErrEmptyMessage) || !errors.Is(err, contractx.ErrHandlerFailure) {
		t.Fatalf("Handle() error = %v, want empty message handler failure", err)
	}
}

func TestConversationDump(t *testing.T) {
	t.Parallel()

	c := newConversation(t, fooBarHandler(), contractx.Captures{})
	mustHandle(t, c, "foo as 1")
	mustHandle(t, c, "bar as 2")

	var buf bytes.Buffer
	if err := c.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	want := "[> User ] foo as 1\n" +
		"[< Agent] I need 'bar'\n" +
		"[> User ] bar as 2\n" +
		"[< Agent] foo='1', bar='2'\n"
	if buf.String() != want {
		t.Fatalf("Dump() =\n%s\nwant\n%s", buf.String(), want)
	}
}
