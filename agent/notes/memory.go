package notes

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string][]Note
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string][]Note), now: time.Now}
}

func (s *MemoryStore) Add(_ context.Context, session, text string) (Note, error) {
	note, err := newNote(session, text, s.now())
	if err != nil {
		return Note{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[note.Session] = append(s.notes[note.Session], note)
	return note, nil
}

func (s *MemoryStore) List(_ context.Context, session string) ([]Note, error) {
	session, err := checkSession(session)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Note{}, s.notes[session]...), nil
}

var _ Store = (*MemoryStore)(nil)
