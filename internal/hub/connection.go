// This file implements the two socket wrappers the Hub owns: clientConn
// for a registered Client's WebSocket, and browserConn for a Browser
// Observer's WebSocket. Both follow the teacher's Send-channel pattern
// (agent_hub.go's AgentConnection) so the single-threaded actor never
// calls Conn.WriteMessage directly — all writes go through a dedicated
// writePump goroutine per socket, and all reads are pumped into the
// hub's channels by a dedicated readPump goroutine.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// clientConn is the socket handle half of the Registry's parallel maps
// (§9: the Registry owns metadata only; sockets live in a separate map).
type clientConn struct {
	clientID string
	conn     *websocket.Conn
	send     chan []byte
	closed   chan struct{}
	closeOnce sync.Once

	// malformedCount is mutated only from within the owning Hub's single
	// event loop goroutine (§4.3: three consecutive malformed frames close
	// the socket with a protocol error).
	malformedCount int
}

func newClientConn(clientID string, conn *websocket.Conn) *clientConn {
	return &clientConn{
		clientID: clientID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
	}
}

// trySend is a non-blocking write to the socket's outbound buffer. A full
// buffer is treated the same as a write failure by callers.
func (c *clientConn) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeWithCode closes the socket with the given WebSocket close code,
// used for displacement (4001), protocol violations (1002) and durable
// store write failures (1011). It
// also closes the send channel so writePump returns instead of blocking
// forever once the connection that owned it is no longer reachable from
// the Registry (the read loop's own DisconnectClient may run later, or
// never, once the socket has been displaced).
func (c *clientConn) closeWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
		close(c.send)
	})
}

// finalize closes the socket and its send channel exactly once, covering
// the plain disconnect path (no close code) without racing a prior
// closeWithCode call for the same connection.
func (c *clientConn) finalize() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		close(c.send)
	})
}

// writePump drains the send channel to the socket. Runs in its own
// goroutine for the lifetime of the connection.
func (c *clientConn) writePump() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// browserConn is a live WebSocket from an authenticated browser. It has no
// durable identity — only the in-process handle id used as a map key
// (§3 Browser Observer).
type browserConn struct {
	id     uint64
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
}

func newBrowserConn(id uint64, conn *websocket.Conn) *browserConn {
	return &browserConn{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

func (b *browserConn) trySend(msg []byte) bool {
	select {
	case b.send <- msg:
		return true
	default:
		return false
	}
}

func (b *browserConn) close() {
	select {
	case <-b.closed:
		return
	default:
		close(b.closed)
	}
	_ = b.conn.Close()
}

func (b *browserConn) writePump() {
	for msg := range b.send {
		_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := b.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
