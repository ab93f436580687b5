package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badhabitcaps/poker-web/domain"
	"github.com/badhabitcaps/poker-web/hub"
	"github.com/badhabitcaps/poker-web/protocol"
	"github.com/badhabitcaps/poker-web/websocket"
)

func startServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.New()
	router := protocol.NewRouter(h)
	srv := httptest.NewServer(NewServer(router, h, websocket.Handler(h, router, websocket.DefaultSettings())))
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestPublishEvent_ReachesClients(t *testing.T) {
	srv, h := startServer(t)
	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return h.Stats().Clients == 2 }, 2*time.Second, 5*time.Millisecond)

	resp, data := post(t, srv, `{"topic":"hands:update","payload":{"hands":[]}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	var out struct {
		Topic      string `json:"topic"`
		Recipients int    `json:"recipients"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "hands:update", out.Topic)
	assert.Equal(t, 2, out.Recipients)

	for _, conn := range []*gws.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"topic":"hands:update","payload":{"hands":[]}}`, string(msg))
	}
}

func TestPublishEvent_PayloadBytesUnchanged(t *testing.T) {
	srv, h := startServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.Stats().Clients == 1 }, 2*time.Second, 5*time.Millisecond)

	payload := `{"handId":"h1","seq":12345678901234567891,"ratio":1.50}`
	resp, data := post(t, srv, `{"topic":"hand:update","payload":`+payload+`}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, domain.TopicHandUpdate, got.Topic)
	assert.Equal(t, payload, string(got.Payload))
}

func TestPublishEvent_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "empty topic", body: `{"topic":"","payload":{}}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "missing topic", body: `{"payload":{}}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "payload optional", body: `{"topic":"hand:new"}`, wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := startServer(t)
			resp, data := post(t, srv, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
		})
	}
}

type stubPublisher struct{ err error }

func (s stubPublisher) Publish(context.Context, domain.Event) (int, error) { return 0, s.err }

func TestPublishEvent_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{err: fmt.Errorf("wrap: %w", domain.ErrMalformedEvent), wantStatus: http.StatusBadRequest},
		{err: context.Canceled, wantStatus: http.StatusServiceUnavailable},
		{err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := httptest.NewServer(NewServer(stubPublisher{err: tt.err}, hub.New(), http.NotFoundHandler()))
			defer srv.Close()

			resp, data := post(t, srv, `{"topic":"hand:new","payload":{}}`)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
		})
	}
}

func TestHealthAndStats(t *testing.T) {
	srv, h := startServer(t)
	dial(t, srv)
	require.Eventually(t, func() bool { return h.Stats().Clients == 1 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats domain.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, uint64(1), stats.Connections)
}

func TestMetrics(t *testing.T) {
	srv, h := startServer(t)
	dial(t, srv)
	dial(t, srv)
	require.Eventually(t, func() bool { return h.Stats().Clients == 2 }, 2*time.Second, 5*time.Millisecond)

	resp, _ := post(t, srv, `{"topic":"hand:new","payload":{}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	want := map[string]float64{
		"relay_connected_clients":      2,
		"relay_connections_total":      2,
		"relay_events_broadcast_total": 1,
		"relay_deliveries_total":       2,
		"relay_evictions_total":        0,
	}
	for name, v := range want {
		mf, ok := families[name]
		require.True(t, ok, name)
		require.Len(t, mf.GetMetric(), 1)
		m := mf.GetMetric()[0]
		if m.GetGauge() != nil {
			assert.Equal(t, v, m.GetGauge().GetValue(), name)
		} else {
			assert.Equal(t, v, m.GetCounter().GetValue(), name)
		}
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv, _ := startServer(t)
	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
