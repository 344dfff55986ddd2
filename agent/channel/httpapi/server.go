// Package httpapi exposes sessions of the dialogue router over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	sessionx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/session"
)

const maxBodyBytes = 64 << 10

type Config struct {
	Addr            string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the body of a successful POST .../messages. Matched is
// false when no handler accepted the utterance; the message then carries the
// no-match reply.
type MessageResponse struct {
	sessionx.Reply
	Matched bool `json:"matched"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	sessions *sessionx.Manager
	logger   zerolog.Logger
}

type Option func(*options)

type options struct {
	logger   zerolog.Logger
	gatherer prometheus.Gatherer
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.gatherer = g
	}
}

// NewHandler routes:
//
//	POST   /v1/sessions/{id}/messages
//	DELETE /v1/sessions/{id}
//	GET    /healthz
//	GET    /metrics (with WithMetrics)
func NewHandler(sessions *sessionx.Manager, opts ...Option) http.Handler {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	s := &server{sessions: sessions, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": sessions.Len()})
	})
	if o.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Post("/messages", s.postMessage)
		r.Delete("/", s.deleteSession)
	})
	return r
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body messageRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	reply, err := s.sessions.Handle(r.Context(), id, body.Text)
	var herr *contractx.HandlerError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageResponse{Reply: reply, Matched: true})
	case errors.Is(err, contractx.ErrNoMatch):
		reply.Message = contractx.Message{Author: contractx.AuthorAgent, Kind: contractx.KindPlain, Text: channel.NoMatchReply}
		writeJSON(w, http.StatusOK, MessageResponse{Reply: reply, Matched: false})
	case errors.As(err, &herr):
		s.logger.Warn().Err(herr.Err).Str("handler", herr.Handler).Str("session", reply.Session).Msg("handler failed")
		writeJSON(w, http.StatusOK, MessageResponse{Reply: reply, Matched: true})
	case errors.Is(err, sessionx.ErrInvalidSession):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Str("session", id).Msg("handle message")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Close(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
// gracefully within timeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, timeout time.Duration, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http transport listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
