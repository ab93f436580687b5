package protocol

import (
	"context"
	"log/slog"

	"github.com/badhabitcaps/poker-web/domain"
)

// Router is the single ingress for events. Frames from connected clients and
// events raised inside the process are treated the same way: forwarded to
// every connection, the originator included.
type Router struct {
	broadcaster domain.Broadcaster
}

func NewRouter(b domain.Broadcaster) *Router {
	return &Router{broadcaster: b}
}

// Handle routes one inbound frame. Malformed frames are logged and dropped;
// the connection that sent them stays registered.
func (r *Router) Handle(conn domain.Connection, data []byte) {
	evt, err := domain.DecodeEvent(data)
	if err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "bytes", len(data), "error", err)
		return
	}

	n := r.broadcaster.Broadcast(evt)
	slog.Debug("client event routed", "clientId", conn.ID(), "topic", evt.Topic, "recipients", n)
}

// Publish routes an event produced by the relay process itself.
func (r *Router) Publish(ctx context.Context, evt domain.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := evt.Encode(); err != nil {
		return 0, err
	}

	n := r.broadcaster.Broadcast(evt)
	slog.Debug("internal event routed", "topic", evt.Topic, "recipients", n)
	return n, nil
}
