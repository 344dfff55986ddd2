package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type noteRow struct {
	bun.BaseModel `bun:"table:dialogue_notes,alias:n"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Session   string    `bun:"session,notnull"`
	Text      string    `bun:"text,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// PostgresStore keeps notes in a single table keyed by session.
type PostgresStore struct {
	db  bun.IDB
	now func() time.Time
}

func NewPostgresStore(db bun.IDB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the notes table and its session index when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*noteRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create notes table: %w", err)
	}
	_, err := s.db.NewCreateIndex().
		Model((*noteRow)(nil)).
		Index("dialogue_notes_session_idx").
		IfNotExists().
		Column("session", "id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create notes index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, session, text string) (Note, error) {
	note, err := newNote(session, text, s.now())
	if err != nil {
		return Note{}, err
	}
	row := &noteRow{Session: note.Session, Text: note.Text, CreatedAt: note.CreatedAt}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *PostgresStore) List(ctx context.Context, session string) ([]Note, error) {
	session, err := checkSession(session)
	if err != nil {
		return nil, err
	}
	var rows []noteRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("session = ?", session).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	out := make([]Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, Note{Session: row.Session, Text: row.Text, CreatedAt: row.CreatedAt.UTC()})
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
