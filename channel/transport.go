package channel

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
)

// transport is a client-side websocket connection whose writes are
// serialized. Every frame, including the pongs wsutil answers from the read
// loop, goes out in a single Write call so frames never interleave.
type transport struct {
	conn      net.Conn
	r         io.Reader
	writeWait time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newTransport(conn net.Conn, br *bufio.Reader, writeWait time.Duration) *transport {
	t := &transport{conn: conn, r: conn, writeWait: writeWait}
	if br != nil {
		// The server may have sent frames right after the handshake.
		t.r = br
	}
	return t
}

func (t *transport) Read(p []byte) (int, error) {
	return t.r.Read(p)
}

func (t *transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return 0, err
	}
	return t.conn.Write(p)
}

func (t *transport) writeFrame(f ws.Frame) error {
	b, err := ws.CompileFrame(ws.MaskFrameInPlace(f))
	if err != nil {
		return err
	}
	_, err = t.Write(b)
	return err
}

func (t *transport) writeText(data []byte) error {
	return t.writeFrame(ws.NewTextFrame(data))
}

// shutdown sends a normal close frame and closes the socket.
func (t *transport) shutdown() {
	_ = t.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	t.Close()
}

func (t *transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}
