package qstash

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL + "/", Token: "tok"})
	require.NoError(t, err)

	id, err := c.Publish(context.Background(), "dialogue-events", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "msg_1", id)
	assert.Equal(t, "/v2/publish/dialogue-events", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	t.Cleanup(srv.Close)

	c := MustNew(Config{URL: srv.URL, Token: "bad"})
	_, err := c.Publish(context.Background(), "topic", nil)
	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorContains(t, err, "invalid token")

	_, err = c.Publish(context.Background(), " ", nil)
	assert.ErrorIs(t, err, ErrPublish)
}

func TestNewClientValidates(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "", Token: "t"})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "not a url", Token: "t"})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "https://qstash.upstash.io"})
	assert.Error(t, err)
}
