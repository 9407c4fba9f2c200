package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketWriteWait    = 5 * time.Second
	socketCloseTimeout = 5 * time.Second
)

var (
	errMissingSocketURL    = errors.New("client: socket url required")
	errMissingSocketMirror = errors.New("client: socket mirror required")
	// ErrNotConnected is returned when a frame is written while the socket is down.
	ErrNotConnected = errors.New("client: socket not connected")
	// ErrConnectAborted is returned by Connect when Disconnect ran while the dial was in flight.
	ErrConnectAborted = errors.New("client: connect aborted by disconnect")
)

// ConnectionState is the socket lifecycle position.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type SocketConfig struct {
	URL    string
	Jar    http.CookieJar
	Header http.Header
	Mirror *Mirror
	// OnEvent, when set, is called after the mirror has applied each event.
	OnEvent func(realtime.Event)
	Logger  *zap.Logger
}

// Socket owns the client's realtime connection and feeds decoded events into the Mirror.
type Socket struct {
	url     string
	header  http.Header
	dialer  websocket.Dialer
	mirror  *Mirror
	onEvent func(realtime.Event)
	logger  *zap.Logger

	mu         sync.Mutex
	state      ConnectionState
	generation uint64
	conn       *websocket.Conn
	readerDone chan struct{}

	writeMu sync.Mutex
}

func NewSocket(cfg SocketConfig) (*Socket, error) {
	if cfg.URL == "" {
		return nil, errMissingSocketURL
	}
	if cfg.Mirror == nil {
		return nil, errMissingSocketMirror
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Socket{
		url:     cfg.URL,
		header:  cfg.Header.Clone(),
		dialer:  websocket.Dialer{Jar: cfg.Jar, HandshakeTimeout: 10 * time.Second},
		mirror:  cfg.Mirror,
		onEvent: cfg.OnEvent,
		logger:  logger,
	}, nil
}

func (s *Socket) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the realtime endpoint. It is a no-op while connecting or connected.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	conn, response, err := s.dialer.DialContext(ctx, s.url, s.header)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrConnectAborted
	}
	if err != nil {
		s.state = StateDisconnected
		s.mu.Unlock()
		if response != nil {
			return fmt.Errorf("client: dial realtime: status %d: %w", response.StatusCode, err)
		}
		return fmt.Errorf("client: dial realtime: %w", err)
	}
	done := make(chan struct{})
	s.state = StateConnected
	s.conn = conn
	s.readerDone = done
	s.mu.Unlock()

	s.logger.Debug("realtime connected", zap.String("url", s.url))
	go s.readLoop(conn, done)
	return nil
}

// Disconnect closes the transport and waits for the reader to stop.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.generation++
	conn := s.conn
	done := s.readerDone
	s.conn = nil
	s.readerDone = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn == nil {
		return
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(socketWriteWait),
	)
	s.writeMu.Unlock()

	select {
	case <-done:
	case <-time.After(socketCloseTimeout):
	}
	_ = conn.Close()
	<-done
}

// RequestPresence asks the server for a fresh presence snapshot.
func (s *Socket) RequestPresence() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, realtime.EncodePresenceRequest())
}

func (s *Socket) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.dropConnection(conn, err)
			return
		}
		event, err := realtime.DecodeEnvelope(frame)
		if err != nil {
			s.logger.Warn("realtime frame ignored", zap.Error(err))
			continue
		}
		s.mirror.HandleEvent(event)
		if s.onEvent != nil {
			s.onEvent(event)
		}
	}
}

func (s *Socket) dropConnection(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
		s.readerDone = nil
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	if !current {
		return
	}
	_ = conn.Close()
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("realtime connection closed by server")
		return
	}
	s.logger.Warn("realtime connection lost", zap.Error(cause))
}
