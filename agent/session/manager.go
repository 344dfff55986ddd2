// Package session keys routers by session id so several clients can talk to
// the same handlers without sharing a conversation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	routerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/router"
)

var ErrInvalidSession = errors.New("session id is empty")

// Factory builds the router of a new session.
type Factory func(sessionID string) (*routerx.Router, error)

// Reply is the outcome of one utterance within a session.
type Reply struct {
	Session string            `json:"session"`
	Message contractx.Message `json:"message"`
	// Handler names the handler that owns the conversation after this turn.
	Handler string `json:"handler,omitempty"`
}

type entry struct {
	mu       sync.Mutex
	router   *routerx.Router
	lastSeen time.Time
	refs     int
}

type Manager struct {
	factory Factory

	mu       sync.Mutex
	sessions map[string]*entry

	idleTTL  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	onResize func(int)
}

type Option func(*Manager)

// WithIdleTTL drops sessions idle for longer than ttl on Sweep. Zero keeps
// them forever.
func WithIdleTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl >= 0 {
			m.idleTTL = ttl
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSizeHook is called with the session count whenever it changes.
func WithSizeHook(fn func(int)) Option {
	return func(m *Manager) {
		m.onResize = fn
	}
}

func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		sessions: make(map[string]*entry),
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		logger:   zerolog.Nop(),
		onResize: func(int) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// acquire returns the session entry, creating its router on first use. The
// caller must release the entry when done.
func (m *Manager) acquire(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		r, err := m.factory(id)
		if err != nil {
			return nil, err
		}
		e = &entry{router: r, lastSeen: m.now()}
		m.sessions[id] = e
		m.onResize(len(m.sessions))
		m.logger.Debug().Str("session", id).Msg("session created")
	}
	e.refs++
	return e, nil
}

func (m *Manager) release(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	e.lastSeen = m.now()
}

func normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidSession
	}
	return id, nil
}

// Handle routes text within session id. Calls for the same session are
// serialized; different sessions run concurrently. Errors are those of
// router.Handle; on handler failure the reply still carries the failure
// message.
func (m *Manager) Handle(ctx context.Context, id, text string) (Reply, error) {
	id, err := normalize(id)
	if err != nil {
		return Reply{}, err
	}
	e, err := m.acquire(id)
	if err != nil {
		return Reply{}, err
	}
	defer m.release(e)

	e.mu.Lock()
	defer e.mu.Unlock()

	msg, err := e.router.Handle(contractx.WithSessionID(ctx, id), text)
	reply := Reply{Session: id, Message: msg}
	reply.Handler, _ = e.router.ActiveHandler()
	return reply, err
}

// ActiveHandler names the handler owning the open conversation of id.
func (m *Manager) ActiveHandler(id string) (string, bool) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.router.ActiveHandler()
}

// Reset drops the open conversation of id but keeps the session.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.router.Reset()
}

// Close forgets session id. It reports whether the session existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.onResize(len(m.sessions))
	m.logger.Debug().Str("session", id).Msg("session closed")
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how
// many were dropped. Sessions with a call in flight are kept.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dropped := 0
	for id, e := range m.sessions {
		if e.refs > 0 || now.Sub(e.lastSeen) <= m.idleTTL {
			continue
		}
		delete(m.sessions, id)
		dropped++
	}
	if dropped > 0 {
		m.onResize(len(m.sessions))
		m.logger.Info().Int("dropped", dropped).Int("remaining", len(m.sessions)).Msg("idle sessions swept")
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Binding drives one session of a Manager. It satisfies channel.Dispatcher.
type Binding struct {
	m  *Manager
	id string
}

// Bind returns a Binding for session id.
func (m *Manager) Bind(id string) *Binding {
	return &Binding{m: m, id: id}
}

func (b *Binding) ID() string {
	return b.id
}

func (b *Binding) Handle(ctx context.Context, text string) (contractx.Message, error) {
	reply, err := b.m.Handle(ctx, b.id, text)
	return reply.Message, err
}

func (b *Binding) ActiveHandler() (string, bool) {
	return b.m.ActiveHandler(b.id)
}

// Close forgets the bound session.
func (b *Binding) Close() {
	b.m.Close(b.id)
}
