// Package weather answers "will it rain" from the Aemet municipal forecast.
package weather

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
)

var (
	ErrNoForecast = errors.New("no precipitation forecast for that day")
	ErrUnknownDay = errors.New("unknown forecast day")
)

const maxFeedBytes = 4 << 20

type Config struct {
	BaseURL  string        `split_words:"true" default:"http://www.aemet.es/xml/municipios"`
	Location string        `envconfig:"LOCATION" default:"12040"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"10s"`
	CacheTTL time.Duration `split_words:"true" default:"1h"`
}

type When string

const (
	Today    When = "today"
	Tomorrow When = "tomorrow"
)

type Probability string

const (
	Yes      Probability = "YES"
	Likely   Probability = "LIKELY"
	Maybe    Probability = "MAYBE"
	Unlikely Probability = "UNLIKELY"
	No       Probability = "NO"
)

// Humanize buckets an average precipitation probability in percent.
func Humanize(avg float64) Probability {
	switch {
	case avg > 80:
		return Yes
	case avg > 70:
		return Likely
	case avg > 30:
		return Maybe
	case avg > 10:
		return Unlikely
	default:
		return No
	}
}

type feed struct {
	Days []struct {
		Date  string `xml:"fecha,attr"`
		Probs []struct {
			Period string `xml:"periodo,attr"`
			Value  string `xml:",chardata"`
		} `xml:"prob_precipitacion"`
	} `xml:"prediccion>dia"`
}

// Client fetches and caches the forecast of one location.
type Client struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.Mutex
	cached    *feed
	fetchedAt time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("aemet base url is required")
	}
	loc := strings.TrimSpace(cfg.Location)
	if loc == "" {
		return nil, errors.New("aemet location is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		url:        fmt.Sprintf("%s/localidad_%s.xml", base, loc),
		httpClient: &http.Client{Timeout: timeout},
		ttl:        cfg.CacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

// Probability returns the humanized rain probability for when, relative to
// now. For today, periods that already ended are ignored.
func (c *Client) Probability(ctx context.Context, when When, now time.Time) (Probability, error) {
	day := now
	switch when {
	case Today:
	case Tomorrow:
		day = now.AddDate(0, 0, 1)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDay, when)
	}

	f, err := c.forecast(ctx, now)
	if err != nil {
		return "", err
	}

	date := day.Format("2006-01-02")
	var sum, n int
	for _, d := range f.Days {
		if d.Date != date {
			continue
		}
		for _, p := range d.Probs {
			text := strings.TrimSpace(p.Value)
			if text == "" {
				continue
			}
			value, err := strconv.Atoi(text)
			if err != nil {
				return "", fmt.Errorf("parse probability %q: %w", text, err)
			}
			_, end, err := parsePeriod(p.Period)
			if err != nil {
				return "", err
			}
			if when == Today && now.Hour() > end {
				continue
			}
			sum += value
			n++
		}
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoForecast, date)
	}
	return Humanize(float64(sum) / float64(n)), nil
}

// parsePeriod reads "start-end" hours. A missing period covers the whole day.
func parsePeriod(period string) (int, int, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return 0, 24, nil
	}
	startRaw, endRaw, ok := strings.Cut(period, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed period %q", period)
	}
	start, err := strconv.Atoi(startRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed period %q: %w", period, err)
	}
	end, err := strconv.Atoi(endRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed period %q: %w", period, err)
	}
	return start, end, nil
}

func (c *Client) forecast(ctx context.Context, now time.Time) (*feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && (c.ttl <= 0 || now.Sub(c.fetchedAt) < c.ttl) {
		return c.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build aemet request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch aemet forecast: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read aemet forecast: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aemet http status=%d", resp.StatusCode)
	}

	f, err := decodeFeed(raw)
	if err != nil {
		return nil, err
	}
	c.cached, c.fetchedAt = f, now
	return f, nil
}

func decodeFeed(raw []byte) (*feed, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(label) {
		case "iso-8859-15", "iso8859-15", "latin-9", "latin9":
			return charmap.ISO8859_15.NewDecoder().Reader(input), nil
		case "iso-8859-1", "latin1", "windows-1252":
			return charmap.Windows1252.NewDecoder().Reader(input), nil
		}
		return nil, fmt.Errorf("unsupported charset %q", label)
	}

	var f feed
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode aemet forecast: %w", err)
	}
	return &f, nil
}
