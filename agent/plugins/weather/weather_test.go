package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	promptx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/prompt"
)

const sampleFeed = `<?xml version="1.0" encoding="ISO-8859-15"?>
<root>
  <nombre>Castellón de la Plana/Castelló de la Plana</nombre>
  <prediccion>
    <dia fecha="2026-10-18">
      <prob_precipitacion periodo="00-24">60</prob_precipitacion>
      <prob_precipitacion periodo="00-12">100</prob_precipitacion>
      <prob_precipitacion periodo="12-24">20</prob_precipitacion>
      <prob_precipitacion periodo="00-06"></prob_precipitacion>
    </dia>
    <dia fecha="2026-10-19">
      <prob_precipitacion periodo="00-24">5</prob_precipitacion>
      <prob_precipitacion periodo="00-12">15</prob_precipitacion>
    </dia>
    <dia fecha="2026-10-20">
      <prob_precipitacion>90</prob_precipitacion>
    </dia>
  </prediccion>
</root>`

func encodedFeed(t *testing.T) []byte {
	t.Helper()
	raw, err := charmap.ISO8859_15.NewEncoder().Bytes([]byte(sampleFeed))
	require.NoError(t, err)
	return raw
}

func newTestClient(t *testing.T, hits *int32) *Client {
	t.Helper()
	body := encodedFeed(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/localidad_12040.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=ISO-8859-15")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL + "/", Location: "12040", CacheTTL: time.Hour}, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return c
}

func at(hour int) time.Time {
	return time.Date(2026, 10, 18, hour, 0, 0, 0, time.UTC)
}

func TestHumanizeBuckets(t *testing.T) {
	t.Parallel()

	cases := map[float64]Probability{
		100: Yes, 81: Yes, 80: Likely, 71: Likely, 70: Maybe, 31: Maybe,
		30: Unlikely, 11: Unlikely, 10: No, 0: No,
	}
	for avg, want := range cases {
		assert.Equal(t, want, Humanize(avg), "avg=%v", avg)
	}
}

func TestProbabilityToday(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, nil)

	// (60 + 100 + 20) / 3 = 60
	got, err := c.Probability(context.Background(), Today, at(8))
	require.NoError(t, err)
	assert.Equal(t, Maybe, got)

	// 00-12 is over at 13h: (60 + 20) / 2 = 40
	got, err = c.Probability(context.Background(), Today, at(13))
	require.NoError(t, err)
	assert.Equal(t, Maybe, got)
}

func TestProbabilityTomorrowKeepsEveryPeriod(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, nil)

	// (5 + 15) / 2 = 10
	got, err := c.Probability(context.Background(), Tomorrow, at(23))
	require.NoError(t, err)
	assert.Equal(t, No, got)
}

func TestProbabilityMissingDay(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, nil)

	_, err := c.Probability(context.Background(), Today, time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoForecast)

	_, err = c.Probability(context.Background(), When("yesterday"), at(9))
	assert.ErrorIs(t, err, ErrUnknownDay)
}

func TestProbabilityWithoutPeriodCoversDay(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, nil)
	got, err := c.Probability(context.Background(), Tomorrow, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, Yes, got)
}

func TestForecastIsCached(t *testing.T) {
	t.Parallel()

	var hits int32
	c := newTestClient(t, &hits)
	ctx := context.Background()

	_, err := c.Probability(ctx, Today, at(8))
	require.NoError(t, err)
	_, err = c.Probability(ctx, Tomorrow, at(8).Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = c.Probability(ctx, Today, at(8).Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "cache expires after ttl")
}

func TestClientSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL, Location: "1"}, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = c.Probability(context.Background(), Today, at(8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
}

type fakeForecast struct {
	prob Probability
	err  error
	got  When
}

func (f *fakeForecast) Probability(_ context.Context, when When, _ time.Time) (Probability, error) {
	f.got = when
	return f.prob, f.err
}

func TestHandlerAnswers(t *testing.T) {
	t.Parallel()

	fake := &fakeForecast{prob: Likely}
	h := NewHandler(fake, promptx.Default(), WithClock(func() time.Time { return at(8) }))

	v, err := h.ValidateSlot("when", " Mañana ")
	require.NoError(t, err)
	assert.Equal(t, Tomorrow, v)

	_, err = h.ValidateSlot("when", "ayer")
	assert.ErrorIs(t, err, contractx.ErrInvalidSlotValue)

	answer, err := h.ProduceAnswer(context.Background(), contractx.AnswerRequest{Slots: map[string]any{"when": Tomorrow}})
	require.NoError(t, err)
	assert.Equal(t, "Posiblemente", answer)
	assert.Equal(t, Tomorrow, fake.got)

	assert.Equal(t, "Cuando, ¿hoy o mañana?", h.Prompt("when"))
}

func TestHandlerNoData(t *testing.T) {
	t.Parallel()

	h := NewHandler(&fakeForecast{err: ErrNoForecast}, promptx.Default())
	answer, err := h.ProduceAnswer(context.Background(), contractx.AnswerRequest{Slots: map[string]any{"when": Today}})
	require.NoError(t, err)
	assert.Equal(t, "No hay datos para hoy", answer)

	boom := errors.New("network down")
	h = NewHandler(&fakeForecast{err: boom}, promptx.Default())
	_, err = h.ProduceAnswer(context.Background(), contractx.AnswerRequest{Slots: map[string]any{"when": Today}})
	assert.ErrorIs(t, err, boom)
}
