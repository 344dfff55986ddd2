package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	notesx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/notes"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/plugins"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/plugins/weather"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
	routerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/router"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/rules"
	configx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/config"
	postgresx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/postgres"
	redisx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/pkg/redis"
)

const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendUpstash  = "upstash"
)

// AppConfig is read from DIALOGUE_* variables.
type AppConfig struct {
	RulesFile    string   `split_words:"true"`
	MessagesFile string   `split_words:"true"`
	Plugins      []string `envconfig:"PLUGINS"`
	NotesBackend string   `split_words:"true" default:"memory"`
	Weather      bool     `envconfig:"WEATHER" default:"true"`
	PlainPrompt  bool     `split_words:"true"`

	SessionIdleTTL time.Duration `split_words:"true" default:"30m"`
	SweepInterval  time.Duration `split_words:"true" default:"1m"`

	// EventsDestination, when set, receives closed and failed conversations
	// through QStash.
	EventsDestination string `split_words:"true"`
}

// app holds what every session router is built from.
type app struct {
	handlers []contractx.Handler
	closers  []func() error
	logger   zerolog.Logger
}

func newApp(ctx context.Context, cfg AppConfig, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}

	messages := promptx.Default()
	if cfg.MessagesFile != "" {
		var err error
		if messages, err = promptx.LoadFile(cfg.MessagesFile); err != nil {
			return nil, err
		}
	}

	store, err := a.openNotes(ctx, cfg.NotesBackend)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := plugins.Deps{Notes: store, Messages: messages}
	if cfg.Weather {
		wcfg, err := configx.New[weather.Config]("AEMET")
		if err != nil {
			a.Close()
			return nil, err
		}
		client, err := weather.NewClient(*wcfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Forecast = client
	}

	handlers, err := plugins.Catalog(deps, cfg.Plugins...)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.RulesFile != "" {
		extra, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		handlers = append(handlers, extra...)
	}
	if len(handlers) == 0 {
		a.Close()
		return nil, errors.New("no handlers enabled")
	}
	a.handlers = handlers

	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		names = append(names, h.Definition().Name)
	}
	logger.Info().Strs("handlers", names).Str("notes", cfg.NotesBackend).Msg("handlers loaded")
	return a, nil
}

func (a *app) openNotes(ctx context.Context, backend string) (notesx.Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return notesx.NewMemoryStore(), nil
	case BackendRedis:
		cfg, err := configx.New[redisx.Config]("REDIS")
		if err != nil {
			return nil, err
		}
		client, err := redisx.NewClient(*cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return notesx.NewRedisStore(client), nil
	case BackendPostgres:
		cfg, err := configx.New[postgresx.Config]("POSTGRES")
		if err != nil {
			return nil, err
		}
		db, err := postgresx.Connect(ctx, *cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		store := notesx.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case BackendUpstash:
		cfg, err := configx.New[notesx.UpstashConfig]("UPSTASH")
		if err != nil {
			return nil, err
		}
		return notesx.NewUpstashStore(*cfg)
	}
	return nil, fmt.Errorf("unknown notes backend %q", backend)
}

// newRouter builds a router over the shared handlers.
func (a *app) newRouter(opts ...routerx.Option) (*routerx.Router, error) {
	return routerx.New(a.handlers, append([]routerx.Option{routerx.WithLogger(a.logger)}, opts...)...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close backend")
		}
	}
	a.closers = nil
}
