package plugins

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
	notesx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/notes"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
)

// Notes takes a note for the current session, asking for the text when the
// trigger did not carry it.
func Notes(store notesx.Store, messages *promptx.Catalog) contractx.Handler {
	msgs := messages.For(NameNotes)
	return handlerx.MustNew(
		contractx.Definition{
			Name:     NameNotes,
			Triggers: []string{`^anota$`, `^anota (?P<note>.+)$`, `^apunta (?P<note>.+)$`},
			Slots:    []string{"note"},
		},
		func(ctx context.Context, req contractx.AnswerRequest) (string, error) {
			note, err := store.Add(ctx, contractx.SessionID(ctx), req.String("note"))
			if err != nil {
				return "", fmt.Errorf("save note: %w", err)
			}
			return msgs.T("OK", map[string]any{"note": note.Text}), nil
		},
		handlerx.WithPrompts(map[string]string{
			"note": msgs.T("REQUEST_NOTE", nil),
		}),
	)
}

// NotesList reads back the notes of the current session.
func NotesList(store notesx.Store, messages *promptx.Catalog) contractx.Handler {
	msgs := messages.For(NameNotes)
	return handlerx.MustNew(
		contractx.Definition{
			Name:     NameList,
			Triggers: []string{`^notas$`, `^mis notas$`},
		},
		func(ctx context.Context, _ contractx.AnswerRequest) (string, error) {
			list, err := store.List(ctx, contractx.SessionID(ctx))
			if err != nil {
				return "", fmt.Errorf("list notes: %w", err)
			}
			if len(list) == 0 {
				return msgs.T("LIST_EMPTY", nil), nil
			}
			texts := make([]string, 0, len(list))
			for _, n := range list {
				texts = append(texts, n.Text)
			}
			return msgs.T("LIST", map[string]any{"notes": strings.Join(texts, "; ")}), nil
		},
	)
}
