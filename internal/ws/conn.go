package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = 2 * time.Second

// wsConn adapts a gorilla connection to the registry's Conn interface. The
// mutex serializes writes: the router delivers from other handlers'
// goroutines while this connection's own handler writes replies.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) Send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) CloseWithCode(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	_ = w.c.Close()
}

func (w *wsConn) writeControl(messageType int, data []byte, deadline time.Time) error {
	// WriteControl is safe to call concurrently with WriteJSON, no lock.
	return w.c.WriteControl(messageType, data, deadline)
}
