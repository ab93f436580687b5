package websocket

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/badhabitcaps/poker-web/domain"
)

// The relay performs no authentication, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades the request and starts a connection registered with b
// whose frames are passed to h.
func Handler(b domain.Broadcaster, h domain.MessageHandler, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade error", "remote", r.RemoteAddr, "error", err)
			return
		}

		wsConn := NewConn(uuid.New().String(), conn, s, b, h)
		slog.Debug("websocket upgraded", "clientId", wsConn.ID(), "remote", r.RemoteAddr)
		wsConn.Start()
	}
}
