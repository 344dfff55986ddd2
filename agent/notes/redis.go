package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

type RedisOption func(*RedisStore)

func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithRedisTTL sets the expiry refreshed on every Add. Zero disables expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// RedisStore keeps one Redis list per session.
type RedisStore struct {
	client    backend.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

func NewRedisStore(client backend.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(session string) string {
	return s.keyPrefix + session
}

func (s *RedisStore) Add(ctx context.Context, session, text string) (Note, error) {
	note, err := newNote(session, text, s.now())
	if err != nil {
		return Note{}, err
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return Note{}, fmt.Errorf("marshal note: %w", err)
	}

	key := s.key(note.Session)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Note{}, fmt.Errorf("save note to redis: %w", err)
	}
	return note, nil
}

func (s *RedisStore) List(ctx context.Context, session string) ([]Note, error) {
	session, err := checkSession(session)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list notes from redis: %w", err)
	}
	return decodeNotes(raw)
}

func decodeNotes(raw []string) ([]Note, error) {
	out := make([]Note, 0, len(raw))
	for _, item := range raw {
		var note Note
		if err := json.Unmarshal([]byte(item), &note); err != nil {
			return nil, fmt.Errorf("unmarshal note: %w", err)
		}
		out = append(out, note)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
