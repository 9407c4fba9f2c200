package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	maxInboundBytes = 64 * 1024

	// DefaultSendBuffer is the number of frames a connection queues before dropping.
	DefaultSendBuffer = 16
)

// SocketConnection adapts a websocket to Connection. One goroutine owns all writes.
type SocketConnection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	logger    *zap.Logger
}

func NewSocketConnection(id string, conn *websocket.Conn, bufferSize int, logger *zap.Logger) *SocketConnection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketConnection{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *SocketConnection) ID() string {
	return c.id
}

// Send enqueues frame without blocking. It returns false when the buffer is full or the
// connection is closed.
func (c *SocketConnection) Send(frame []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close sends a close frame and releases the socket. Safe to call more than once.
func (c *SocketConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Done is closed once the connection has been closed.
func (c *SocketConnection) Done() <-chan struct{} {
	return c.done
}

// Serve runs the read loop until the peer disconnects or Close is called. Text frames are passed to
// onFrame on the reading goroutine.
func (c *SocketConnection) Serve(onFrame func(frame []byte)) error {
	go c.writeLoop()
	defer c.Close()

	c.conn.SetReadLimit(maxInboundBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		if c.closed() {
			return nil
		}
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if messageType == websocket.TextMessage && onFrame != nil {
			onFrame(data)
		}
	}
}

func (c *SocketConnection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *SocketConnection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("socket write failed", zap.String("connection_id", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

var _ Connection = (*SocketConnection)(nil)
