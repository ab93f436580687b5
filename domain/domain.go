package domain

import "context"

// Topics produced and consumed by the web application. The relay itself
// forwards any topic; these exist so producers and consumers agree on names.
const (
	TopicCommentNew    = "comment:new"
	TopicCommentUpdate = "comment:update"
	TopicCommentDelete = "comment:delete"
	TopicVoteUpdate    = "vote:update"
	TopicHandNew       = "hand:new"
	TopicHandUpdate    = "hand:update"
	TopicHandsUpdate   = "hands:update"
)

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type Stats struct {
	Clients     int    `json:"clients"`
	Connections uint64 `json:"connections"`
	Events      uint64 `json:"events"`
	Deliveries  uint64 `json:"deliveries"`
	Evictions   uint64 `json:"evictions"`
}

type Broadcaster interface {
	Register(conn Connection)
	Unregister(conn Connection)
	Broadcast(evt Event) int
	Stats() Stats
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// Publisher accepts events generated inside the relay process.
type Publisher interface {
	Publish(ctx context.Context, evt Event) (int, error)
}
