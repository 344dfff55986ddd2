package matcher

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

func TestMatchNamedCaptures(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`^anota$`, `^anota (?P<note>.+)$`})

	got, err := m.Match("Anota comprar pan")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if diff := cmp.Diff(map[string]string{"note": "comprar pan"}, got.Named); diff != "" {
		t.Fatalf("named captures mismatch (-want +got):\n%s", diff)
	}
	if got.Positional != nil {
		t.Fatalf("positional captures = %v, want nil", got.Positional)
	}
	if got.Pattern != `^anota (?P<note>.+)$` {
		t.Fatalf("pattern = %q", got.Pattern)
	}
}

func TestMatchPositionalCaptures(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`^add$`, `^(\d+)\s*\+\s*(\d+)$`})

	got, err := m.Match("7 + 5")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if diff := cmp.Diff([]string{"7", "5"}, got.Positional); diff != "" {
		t.Fatalf("positional captures mismatch (-want +got):\n%s", diff)
	}
	if got.Named != nil {
		t.Fatalf("named captures = %v, want nil", got.Named)
	}
}

func TestMatchFirstPatternWins(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`^say (?P<what>.+)$`, `^say (.+)$`})

	got, err := m.Match("say hi")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got.Named["what"] != "hi" {
		t.Fatalf("named[what] = %q, want hi", got.Named["what"])
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`^lloverá$`})
	if _, err := m.Match("LLOVERÁ"); err != nil {
		t.Fatalf("Match() error = %v", err)
	}
}

func TestMatchIsNotAnchoredByMatcher(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`let's talk`})
	if _, err := m.Match("ok, let's talk now"); err != nil {
		t.Fatalf("Match() error = %v", err)
	}
}

func TestMatchNoMatch(t *testing.T) {
	t.Parallel()

	m := MustCompile([]string{`^x$`})
	_, err := m.Match("foo")
	if !errors.Is(err, contractx.ErrNoMatch) {
		t.Fatalf("Match() error = %v, want ErrNoMatch", err)
	}
}

func TestCompileRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := Compile([]string{`^(unclosed$`})
	if !errors.Is(err, contractx.ErrInvalidTrigger) {
		t.Fatalf("Compile() error = %v, want ErrInvalidTrigger", err)
	}
}
