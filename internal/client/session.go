package client

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"go.uber.org/zap"
)

var (
	errMissingAPIClient = errors.New("client: api client required")
	// ErrNoSession is returned by operations that need a logged-in user.
	ErrNoSession = errors.New("client: not logged in")
)

type SessionConfig struct {
	API     *APIClient
	Mirror  *Mirror
	OnEvent func(realtime.Event)
	Logger  *zap.Logger
}

// Session ties the API client, the realtime socket and the Mirror together for one logged-in user.
type Session struct {
	api     *APIClient
	mirror  *Mirror
	onEvent func(realtime.Event)
	logger  *zap.Logger

	mu     sync.Mutex
	user   users.User
	socket *Socket
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.API == nil {
		return nil, errMissingAPIClient
	}
	if cfg.Mirror == nil {
		return nil, errMissingSocketMirror
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{api: cfg.API, mirror: cfg.Mirror, onEvent: cfg.OnEvent, logger: logger}, nil
}

func (s *Session) Mirror() *Mirror {
	return s.mirror
}

func (s *Session) User() (users.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.user.ID != ""
}

// Socket returns the realtime socket of the current session, or nil when logged out.
func (s *Session) Socket() *Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket
}

// Login authenticates and opens the realtime connection.
func (s *Session) Login(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.api.Login(ctx, email, password)
	if err != nil {
		return users.User{}, err
	}
	return user, s.start(ctx, user)
}

// Signup creates the account and opens the realtime connection.
func (s *Session) Signup(ctx context.Context, fullName, email, password string) (users.User, error) {
	user, err := s.api.Signup(ctx, fullName, email, password)
	if err != nil {
		return users.User{}, err
	}
	return user, s.start(ctx, user)
}

// Resume reuses a session cookie already in the jar. It returns an *APIError with status 401 when
// there is none.
func (s *Session) Resume(ctx context.Context) (users.User, error) {
	user, err := s.api.CheckAuth(ctx)
	if err != nil {
		return users.User{}, err
	}
	return user, s.start(ctx, user)
}

// Logout closes the socket, clears the cookie and forgets session state.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	socket := s.socket
	s.socket = nil
	s.user = users.User{}
	s.mu.Unlock()

	if socket != nil {
		socket.Disconnect()
	}
	s.mirror.Reset()
	return s.api.Logout(ctx)
}

// LoadUsers refreshes the peer list, which may restore a persisted selection.
func (s *Session) LoadUsers(ctx context.Context) ([]users.User, error) {
	list, err := s.api.Users(ctx)
	if err != nil {
		return nil, err
	}
	s.mirror.SetUsers(list)
	if selected := s.mirror.SelectedPeer(); selected != "" {
		if err := s.loadConversation(ctx, selected); err != nil {
			return list, err
		}
	}
	return list, nil
}

// Select opens the conversation with peerID and fetches its history.
func (s *Session) Select(ctx context.Context, peerID string) error {
	s.mirror.SelectPeer(peerID)
	return s.loadConversation(ctx, peerID)
}

// Send posts a message to peerID and appends it to the open conversation.
func (s *Session) Send(ctx context.Context, peerID, text, imageDataURI string) (messages.Message, error) {
	if _, ok := s.User(); !ok {
		return messages.Message{}, ErrNoSession
	}
	message, err := s.api.Send(ctx, peerID, text, imageDataURI)
	if err != nil {
		return messages.Message{}, err
	}
	s.mirror.AppendSent(message)
	return message, nil
}

func (s *Session) loadConversation(ctx context.Context, peerID string) error {
	history, err := s.api.Conversation(ctx, peerID)
	if err != nil {
		return err
	}
	if !s.mirror.SetConversation(peerID, history) {
		s.logger.Debug("stale conversation discarded", zap.String("peer_id", peerID))
	}
	return nil
}

func (s *Session) start(ctx context.Context, user users.User) error {
	s.mu.Lock()
	if s.socket != nil && s.user.ID == user.ID {
		socket := s.socket
		s.mu.Unlock()
		return socket.Connect(ctx)
	}
	previous := s.socket
	socket, err := NewSocket(SocketConfig{
		URL:     s.api.RealtimeURL(user.ID),
		Jar:     s.api.Jar(),
		Mirror:  s.mirror,
		OnEvent: s.onEvent,
		Logger:  s.logger,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.user = user
	s.socket = socket
	s.mu.Unlock()

	if previous != nil {
		previous.Disconnect()
	}
	return socket.Connect(ctx)
}
