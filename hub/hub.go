package hub

import (
	"log/slog"
	"sync"

	"github.com/badhabitcaps/poker-web/domain"
)

// Hub is the registry of live connections. One mutex covers register,
// unregister and broadcast because broadcast evicts on failed sends.
type Hub struct {
	mu      sync.Mutex
	clients map[string]domain.Connection

	connections uint64
	events      uint64
	deliveries  uint64
	evictions   uint64
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]domain.Connection),
	}
}

func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	h.clients[conn.ID()] = conn
	h.connections++
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("client connected", "clientId", conn.ID(), "clients", count)
}

// Unregister removes conn. Removing an unknown connection is a no-op.
func (h *Hub) Unregister(conn domain.Connection) {
	h.mu.Lock()
	current, exists := h.clients[conn.ID()]
	if exists && current == conn {
		delete(h.clients, conn.ID())
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !exists || current != conn {
		return
	}
	slog.Info("client disconnected", "clientId", conn.ID(), "clients", count)
}

// Broadcast encodes evt once and hands the same bytes to every registered
// connection, the originator included. A connection whose send fails is
// evicted and closed; delivery to the rest continues. It returns the number
// of connections the event was handed to.
func (h *Hub) Broadcast(evt domain.Event) int {
	data, err := evt.Encode()
	if err != nil {
		slog.Warn("broadcast encode error", "topic", evt.Topic, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.events++
	delivered := 0
	for id, conn := range h.clients {
		if err := conn.Send(data); err != nil {
			delete(h.clients, id)
			h.evictions++
			slog.Warn("client evicted", "clientId", id, "topic", evt.Topic, "error", err, "clients", len(h.clients))
			if cerr := conn.Close(); cerr != nil {
				slog.Debug("close after failed send", "clientId", id, "error", cerr)
			}
			continue
		}
		delivered++
	}
	h.deliveries += uint64(delivered)

	slog.Debug("event broadcast", "topic", evt.Topic, "recipients", delivered)
	return delivered
}

// CloseAll drops every connection and closes it. Clients see a normal close
// and reconnect on their own schedule.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.clients {
		delete(h.clients, id)
		if err := conn.Close(); err != nil {
			slog.Debug("close on shutdown", "clientId", id, "error", err)
		}
	}
	slog.Info("all clients closed")
}

func (h *Hub) Stats() domain.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return domain.Stats{
		Clients:     len(h.clients),
		Connections: h.connections,
		Events:      h.events,
		Deliveries:  h.deliveries,
		Evictions:   h.evictions,
	}
}
