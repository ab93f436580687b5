package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/badhabitcaps/poker-web/domain"
)

const (
	DefaultReconnectDelay = time.Second
	DefaultDialTimeout    = 10 * time.Second
	defaultWriteWait      = 10 * time.Second
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives the raw payload of an event on a subscribed topic.
type Handler func(payload json.RawMessage)

type Option func(*Channel)

// WithReconnectDelay sets the fixed wait between a disconnect and the next
// connection attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.reconnectDelay = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) { c.dialTimeout = d }
}

// WithStateHook registers fn to be called on every state transition. It runs
// on the channel's Run goroutine.
func WithStateHook(fn func(State)) Option {
	return func(c *Channel) { c.stateHook = fn }
}

type subscription struct {
	id int64
	fn Handler
}

// Channel is a client connection to the relay that reconnects on its own.
// Subscriptions survive reconnects; publishes made while not connected are
// dropped.
type Channel struct {
	url            string
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	writeWait      time.Duration
	stateHook      func(State)

	state atomic.Int32

	connMu sync.Mutex
	conn   *transport

	seq   atomic.Int64
	subMu sync.RWMutex
	subs  map[string][]subscription
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		dialTimeout:    DefaultDialTimeout,
		writeWait:      defaultWriteWait,
		subs:           make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	slog.Debug("channel state", "url", c.url, "state", s.String())
	if c.stateHook != nil {
		c.stateHook(s)
	}
}

// Run connects and keeps reconnecting after every failure or close, waiting
// the fixed reconnect delay each time, until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("channel disconnected", "url", c.url, "error", err, "retry_in", c.reconnectDelay)
		}
		c.setState(Disconnected)

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Channel) session(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.setState(Connecting)

	conn, br, _, err := ws.Dialer{Timeout: c.dialTimeout}.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	t := newTransport(conn, br, c.writeWait)
	stop := context.AfterFunc(ctx, t.shutdown)
	defer func() {
		stop()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		t.Close()
	}()

	c.connMu.Lock()
	c.conn = t
	c.connMu.Unlock()
	c.setState(Connected)
	slog.Info("channel connected", "url", c.url)

	for {
		data, err := wsutil.ReadServerText(t)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(data)
	}
}

// Subscribe registers fn for topic. Handlers on the same topic run in
// registration order. The returned function removes only this handler and
// may be called more than once.
func (c *Channel) Subscribe(topic string, fn Handler) func() {
	id := c.seq.Add(1)
	c.subMu.Lock()
	c.subs[topic] = append(c.subs[topic], subscription{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		handlers := c.subs[topic]
		for i, s := range handlers {
			if s.id == id {
				c.subs[topic] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
		if len(c.subs[topic]) == 0 {
			delete(c.subs, topic)
		}
	}
}

// Publish sends an event to the relay if the channel is connected and
// reports whether the frame was written. Nothing is queued: an event
// published while disconnected is lost.
func (c *Channel) Publish(topic string, payload any) bool {
	evt, err := domain.NewEvent(topic, payload)
	if err != nil {
		slog.Warn("channel publish encode error", "topic", topic, "error", err)
		return false
	}
	data, err := evt.Encode()
	if err != nil {
		slog.Warn("channel publish encode error", "topic", topic, "error", err)
		return false
	}

	c.connMu.Lock()
	t := c.conn
	c.connMu.Unlock()
	if t == nil || c.State() != Connected {
		slog.Debug("channel publish dropped", "topic", topic, "state", c.State().String())
		return false
	}

	if err := t.writeText(data); err != nil {
		slog.Warn("channel publish failed", "topic", topic, "error", err)
		t.Close()
		return false
	}
	return true
}

func (c *Channel) dispatch(data []byte) {
	evt, err := domain.DecodeEvent(data)
	if err != nil {
		slog.Warn("channel invalid message", "url", c.url, "error", err)
		return
	}

	c.subMu.RLock()
	handlers := make([]subscription, len(c.subs[evt.Topic]))
	copy(handlers, c.subs[evt.Topic])
	c.subMu.RUnlock()

	for _, s := range handlers {
		c.invoke(evt, s)
	}
}

func (c *Channel) invoke(evt domain.Event, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("channel subscriber panic", "topic", evt.Topic, "subscription", s.id, "panic", r)
		}
	}()
	s.fn(evt.Payload)
}
