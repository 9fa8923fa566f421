package ws

import (
	"chat-relay/contract"
	"chat-relay/errors"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection is the outbound half of one websocket client.
// Send only enqueues; a single write pump owns every write to the socket,
// one frame per payload.
type Connection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
	started   chan struct{}
	log       *slog.Logger
}

var _ contract.Conn = (*Connection)(nil)

func NewConnection(conn *websocket.Conn, bufferSize int, log *slog.Logger) *Connection {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	id := uuid.NewString()
	return &Connection{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		started:   make(chan struct{}),
		log:       log.With("conn_id", id, "addr", conn.RemoteAddr().String()),
	}
}

func (c *Connection) ID() string { return c.id }

// Send enqueues a frame without blocking. A full buffer means the client is too
// slow: the connection is closed with "try again later" so the client reconnects
// and replays history, and the frame is refused with ErrSendBufferFull.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
		c.log.Warn("Send buffer full, closing slow connection")
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return errors.ErrSendBufferFull
	}
}

// Start launches the write pump. The first frame, if any, is written before
// anything queued through Send.
func (c *Connection) Start(first []byte) {
	go c.writePump(first)
}

// Close asks the write pump to send a close frame and release the socket.
func (c *Connection) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) setupRead(maxFrameBytes int64) {
	c.conn.SetReadLimit(maxFrameBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Connection) writePump(first []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	if first != nil && !c.writeText(first) {
		c.Close(websocket.CloseAbnormalClosure, "")
		return
	}
	for {
		select {
		case message := <-c.send:
			if !c.writeText(message) {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Connection) writeText(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

func (c *Connection) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping", "error", err)
		return false
	}
	return true
}

func (c *Connection) writeClose() {
	if c.closeCode == websocket.CloseAbnormalClosure {
		return
	}
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "error", err)
		}
	}
}

func (c *Connection) closeSocket() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error closing connection", "error", err)
	}
}

// rejectConnection closes a socket that never reached the active state.
func rejectConnection(conn *websocket.Conn, code int, log *slog.Logger) {
	msg := websocket.FormatCloseMessage(code, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		log.Debug("Error writing close message", "error", err)
	}
	_ = conn.Close()
}

// readError logs why the read loop ended.
func readError(err error, log *slog.Logger) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		log.Warn("Frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.Debug("Client disconnected", "error", err)
	case stderrors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Debug("Connection closed", "error", err)
	default:
		log.Warn("WebSocket read error", "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
