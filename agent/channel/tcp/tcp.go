// Package tcp serves the dialogue over a line-oriented TCP socket, one
// session per connection.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	sessionx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/session"
)

const maxLineBytes = 64 << 10

type Config struct {
	Addr        string        `envconfig:"ADDR" default:"127.0.0.1:4242"`
	IdleTimeout time.Duration `split_words:"true" default:"10m"`
}

type Server struct {
	sessions    *sessionx.Manager
	idleTimeout time.Duration
	logger      zerolog.Logger
	newID       func() string

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

func NewServer(sessions *sessionx.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		logger:   zerolog.Nop(),
		newID:    func() string { return uuid.NewString() },
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every open
// connection and waits for their loops to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("tcp transport listening")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeAll()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn)
		if ctx.Err() != nil {
			// closeAll may already have run.
			s.untrack(conn)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	binding := s.sessions.Bind(s.newID())
	defer binding.Close()

	logger := s.logger.With().Str("session", binding.ID()).Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Info().Msg("connection opened")

	t := newConnTransport(conn, s.idleTimeout, logger)
	err := channel.Run(ctx, t, binding, channel.WithLogger(logger))
	if err != nil && !isClosedConn(err) {
		logger.Warn().Err(err).Msg("connection ended with error")
		return
	}
	logger.Info().Msg("connection closed")
}

func isClosedConn(err error) bool {
	var netErr net.Error
	return errors.Is(err, net.ErrClosed) || (errors.As(err, &netErr) && netErr.Timeout())
}

// connTransport reads one utterance per line and writes one reply per line.
type connTransport struct {
	conn        net.Conn
	reader      *bufio.Reader
	idleTimeout time.Duration
	logger      zerolog.Logger
}

func newConnTransport(conn net.Conn, idle time.Duration, logger zerolog.Logger) *connTransport {
	return &connTransport{
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 4096),
		idleTimeout: idle,
		logger:      logger,
	}
}

func (t *connTransport) Receive(_ context.Context) (string, error) {
	if t.idleTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}
	var sb strings.Builder
	for {
		chunk, isPrefix, err := t.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", fmt.Errorf("line longer than %d bytes", maxLineBytes)
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

func (t *connTransport) Send(_ context.Context, msg contractx.Message) error {
	_, err := fmt.Fprintln(t.conn, msg.Text)
	return err
}

func (t *connTransport) NotifyActiveHandler(name string) {
	t.logger.Debug().Str("handler", name).Msg("active handler")
}

var _ contractx.Transport = (*connTransport)(nil)
