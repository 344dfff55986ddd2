package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/channel"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
	handlerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/handler"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/metrics"
	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/plugins"
	routerx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/router"
	sessionx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *sessionx.Manager) {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	broken := handlerx.MustNew(
		contractx.Definition{Name: "broken", Triggers: []string{`^break$`}},
		func(context.Context, contractx.AnswerRequest) (string, error) { return "", errors.New("gears stuck") },
	)
	sessions := sessionx.NewManager(func(string) (*routerx.Router, error) {
		handlers, err := plugins.Catalog(plugins.Deps{})
		if err != nil {
			return nil, err
		}
		return routerx.New(append(handlers, broken), routerx.WithObserver(collector))
	}, sessionx.WithSizeHook(collector.SetSessions))

	srv := httptest.NewServer(NewHandler(sessions, WithMetrics(reg)))
	t.Cleanup(srv.Close)
	return srv, sessions
}

func post(t *testing.T, srv *httptest.Server, session, body string) (int, MessageResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/sessions/"+session+"/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out MessageResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestPostMessageConversation(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	status, out := post(t, srv, "alice", `{"text":"add"}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, out.Matched)
	assert.Equal(t, "alice", out.Session)
	assert.Equal(t, "sum", out.Handler)
	assert.Equal(t, contractx.KindRequest, out.Message.Kind)
	assert.Equal(t, "x", out.Message.What)

	_, out = post(t, srv, "alice", `{"text":"3"}`)
	assert.Equal(t, "y", out.Message.What)

	_, out = post(t, srv, "alice", `{"text":"4"}`)
	assert.Equal(t, contractx.KindClosing, out.Message.Kind)
	assert.Equal(t, "3 + 4 = 7", out.Message.Text)
	assert.Empty(t, out.Handler)
}

func TestPostMessageNoMatchAndFailure(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	status, out := post(t, srv, "bob", `{"text":"what is this"}`)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, out.Matched)
	assert.Equal(t, channel.NoMatchReply, out.Message.Text)

	status, out = post(t, srv, "bob", `{"text":"break"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, contractx.KindFailure, out.Message.Kind)
	assert.Equal(t, "Error in plugin broken: gears stuck", out.Message.Text)
}

func TestPostMessageRejectsBadInput(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	status, _ := post(t, srv, "bob", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, srv, "%20", `{"text":"add"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	srv, sessions := newTestServer(t)

	_, _ = post(t, srv, "carol", `{"text":"add"}`)
	require.Equal(t, 1, sessions.Len())

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/carol", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
	assert.Equal(t, 0, sessions.Len())
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	_, _ = post(t, srv, "dave", `{"text":"echo abc"}`)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["sessions"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `dialogue_conversation_starts_total{handler="echo",outcome="matched"} 1`)
	assert.Contains(t, string(body), "dialogue_sessions_active 1")
}
