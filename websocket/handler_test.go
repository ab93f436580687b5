package websocket_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badhabitcaps/poker-web/domain"
	"github.com/badhabitcaps/poker-web/hub"
	"github.com/badhabitcaps/poker-web/protocol"
	"github.com/badhabitcaps/poker-web/websocket"
)

// startRelay serves the websocket handler on a test server and returns its
// ws:// URL together with the hub behind it.
func startRelay(t *testing.T) (string, *hub.Hub) {
	t.Helper()

	h := hub.New()
	srv := httptest.NewServer(websocket.Handler(h, protocol.NewRouter(h), websocket.DefaultSettings()))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), h
}

func dial(t *testing.T, wsURL string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Stats().Clients == n },
		2*time.Second, 5*time.Millisecond, "want %d clients", n)
}

func readEvent(t *testing.T, conn *gws.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt domain.Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	return evt
}

func expectSilence(t *testing.T, conn *gws.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestHandler_AllClientsReceiveIncludingSender(t *testing.T) {
	wsURL, h := startRelay(t)
	a, b, c := dial(t, wsURL), dial(t, wsURL), dial(t, wsURL)
	waitClients(t, h, 3)

	require.NoError(t, a.WriteMessage(gws.TextMessage,
		[]byte(`{"topic":"vote:update","payload":{"handId":"h1","voted":true}}`)))

	for _, conn := range []*gws.Conn{a, b, c} {
		evt := readEvent(t, conn)
		assert.Equal(t, domain.TopicVoteUpdate, evt.Topic)
		assert.JSONEq(t, `{"handId":"h1","voted":true}`, string(evt.Payload))
	}
}

func TestHandler_DisconnectedClientMissesEvents(t *testing.T) {
	wsURL, h := startRelay(t)
	a, b, c := dial(t, wsURL), dial(t, wsURL), dial(t, wsURL)
	waitClients(t, h, 3)

	require.NoError(t, b.Close())
	waitClients(t, h, 2)

	require.NoError(t, a.WriteMessage(gws.TextMessage,
		[]byte(`{"topic":"hand:new","payload":{"hand":{"id":"h2"}}}`)))

	assert.Equal(t, domain.TopicHandNew, readEvent(t, a).Topic)
	assert.Equal(t, domain.TopicHandNew, readEvent(t, c).Topic)

	rejoined := dial(t, wsURL)
	waitClients(t, h, 3)
	expectSilence(t, rejoined)
}

func TestHandler_MalformedMessageDropped(t *testing.T) {
	wsURL, h := startRelay(t)
	a, b, observer := dial(t, wsURL), dial(t, wsURL), dial(t, wsURL)
	waitClients(t, h, 3)

	require.NoError(t, a.WriteMessage(gws.TextMessage, []byte(`{"topic":`)))
	// A timed-out gorilla reader cannot be reused, so silence is checked on
	// a client that reads nothing afterwards.
	expectSilence(t, observer)
	assert.Equal(t, 3, h.Stats().Clients)

	require.NoError(t, a.WriteMessage(gws.TextMessage,
		[]byte(`{"topic":"comment:new","payload":{"handId":"h1","comment":{"id":"c1"}}}`)))
	assert.Equal(t, domain.TopicCommentNew, readEvent(t, b).Topic)
}

func TestHandler_NonWebSocketRequest_Returns400(t *testing.T) {
	h := hub.New()
	srv := httptest.NewServer(websocket.Handler(h, protocol.NewRouter(h), websocket.DefaultSettings()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, h.Stats().Clients)
}

func TestHandler_OversizedMessageClosesConnection(t *testing.T) {
	h := hub.New()
	s := websocket.DefaultSettings()
	s.MaxMessageSize = 64
	srv := httptest.NewServer(websocket.Handler(h, protocol.NewRouter(h), s))
	t.Cleanup(srv.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	waitClients(t, h, 1)

	big := `{"topic":"hands:update","payload":"` + strings.Repeat("x", 128) + `"}`
	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(big)))

	waitClients(t, h, 0)
}
