// Package notes persists the notes taken by the notes plugin.
package notes

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidSession = errors.New("session id is empty")
	ErrEmptyNote      = errors.New("note text is empty")
)

const (
	defaultKeyPrefix = "dialogue:notes:"
	defaultTTL       = 30 * 24 * time.Hour
)

type Note struct {
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence contract used by the notes plugin. List returns
// notes oldest first and an empty slice for unknown sessions.
type Store interface {
	Add(ctx context.Context, session, text string) (Note, error)
	List(ctx context.Context, session string) ([]Note, error)
}

func newNote(session, text string, now time.Time) (Note, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return Note{}, ErrInvalidSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, ErrEmptyNote
	}
	return Note{Session: session, Text: text, CreatedAt: now.UTC()}, nil
}

func checkSession(session string) (string, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return "", ErrInvalidSession
	}
	return session, nil
}
