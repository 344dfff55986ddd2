// Package metrics exposes dialogue activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dialogue"

const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
)

// Collector implements router.Observer.
type Collector struct {
	starts   *prometheus.CounterVec
	closed   *prometheus.CounterVec
	failed   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	messages *prometheus.HistogramVec
	sessions prometheus.Gauge
}

// NewCollector registers the dialogue metrics on reg. Registering on a
// registry that already holds them reuses the existing collectors, so every
// router of a process can share one set of series. A nil reg skips
// registration.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_starts_total",
			Help:      "Utterances received with no open conversation, by routing outcome and handler.",
		}, []string{"outcome", "handler"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_closed_total",
			Help:      "Conversations closed with an answer per handler.",
		}, []string{"handler"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Conversations force-closed by a handler failure.",
		}, []string{"handler"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_duration_seconds",
			Help:      "Time from first utterance to closing answer.",
			Buckets:   []float64{0.01, 0.1, 1, 5, 15, 60, 300, 900},
		}, []string{"handler"}),
		messages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversation_messages",
			Help:      "Messages logged per closed conversation.",
			Buckets:   prometheus.LinearBuckets(2, 2, 8),
		}, []string{"handler"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
	}
	if reg == nil {
		return c, nil
	}

	var err error
	if c.starts, err = register(reg, c.starts); err != nil {
		return nil, err
	}
	if c.closed, err = register(reg, c.closed); err != nil {
		return nil, err
	}
	if c.failed, err = register(reg, c.failed); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, c.duration); err != nil {
		return nil, err
	}
	if c.messages, err = register(reg, c.messages); err != nil {
		return nil, err
	}
	if c.sessions, err = register(reg, c.sessions); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	err := reg.Register(col)
	if err == nil {
		return col, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return col, err
}

func (c *Collector) Matched(handler string) {
	c.starts.WithLabelValues(OutcomeMatched, handler).Inc()
}

func (c *Collector) Unmatched() {
	c.starts.WithLabelValues(OutcomeUnmatched, "").Inc()
}

func (c *Collector) Closed(handler string, messages int, elapsed time.Duration) {
	c.closed.WithLabelValues(handler).Inc()
	c.duration.WithLabelValues(handler).Observe(elapsed.Seconds())
	c.messages.WithLabelValues(handler).Observe(float64(messages))
}

func (c *Collector) Failed(handler string) {
	c.failed.WithLabelValues(handler).Inc()
}

// SetSessions reports how many sessions are held in memory.
func (c *Collector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}
