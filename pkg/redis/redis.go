package redisx

import (
	"context"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

type Config struct {
	URL          string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"3s"`
	WriteTimeout time.Duration `split_words:"true" default:"3s"`
}

// NewClient parses cfg.URL and returns a client. It does not dial.
func NewClient(cfg Config) (*backend.Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := backend.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return backend.NewClient(opts), nil
}

// MustConnect builds a client and pings it.
func MustConnect(ctx context.Context, cfg Config) *backend.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Errorf("ping redis: %w", err))
	}
	return client
}
