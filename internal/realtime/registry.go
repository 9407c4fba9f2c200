package realtime

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrInvalidRegistration indicates an empty user id or a nil connection.
	ErrInvalidRegistration = errors.New("realtime: user id and connection required")
	// ErrNotConnected indicates that the user holds no live connection.
	ErrNotConnected = errors.New("realtime: user not connected")
	// ErrSendBufferFull indicates that the connection dropped the frame.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// Connection is a live socket as seen by the registry. Send must not block.
type Connection interface {
	ID() string
	Send(frame []byte) bool
	Close() error
}

// PresenceNotifier is invoked with the registry lock held after every membership change. It receives
// the sorted snapshot and every live connection and must not block.
type PresenceNotifier interface {
	PresenceChanged(online []string, connections []Connection)
}

// Registry maps each user to their single live connection. The last connection registered wins.
type Registry struct {
	mu          sync.Mutex
	connections map[string]Connection
	notifier    PresenceNotifier
	logger      *zap.Logger
}

// NewRegistry constructs an empty registry. notifier may be nil.
func NewRegistry(notifier PresenceNotifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections: make(map[string]Connection),
		notifier:    notifier,
		logger:      logger,
	}
}

// Register installs conn for userID. A different connection already on file is closed after it
// has been replaced.
func (r *Registry) Register(userID string, conn Connection) error {
	if userID == "" || conn == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	previous, replaced := r.connections[userID]
	if replaced && previous.ID() == conn.ID() {
		r.mu.Unlock()
		return nil
	}
	r.connections[userID] = conn
	r.notifyLocked()
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		zap.String("user_id", userID),
		zap.String("connection_id", conn.ID()),
		zap.Bool("replaced", replaced))
	if replaced {
		if err := previous.Close(); err != nil {
			r.logger.Debug("stale connection close failed",
				zap.String("connection_id", previous.ID()),
				zap.Error(err))
		}
	}
	return nil
}

// Unregister removes the entry whose connection id matches. Ids that were already superseded are
// ignored. It reports whether an entry was removed.
func (r *Registry) Unregister(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, conn := range r.connections {
		if conn.ID() != connectionID {
			continue
		}
		delete(r.connections, userID)
		r.notifyLocked()
		r.logger.Debug("connection unregistered",
			zap.String("user_id", userID),
			zap.String("connection_id", connectionID))
		return true
	}
	return false
}

// Lookup returns the connection id on file for userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[userID]
	if !ok {
		return "", false
	}
	return conn.ID(), true
}

// Snapshot returns the online user ids in ascending order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

// SendTo enqueues frame on userID's connection and returns that connection's id.
func (r *Registry) SendTo(userID string, frame []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[userID]
	if !ok {
		return "", ErrNotConnected
	}
	if !conn.Send(frame) {
		return conn.ID(), ErrSendBufferFull
	}
	return conn.ID(), nil
}

// SendSnapshotTo sends the current presence snapshot to one connection only.
func (r *Registry) SendSnapshotTo(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.connections {
		if conn.ID() != connectionID {
			continue
		}
		frame, err := EncodePresence(r.snapshotLocked())
		if err != nil {
			return err
		}
		if !conn.Send(frame) {
			return ErrSendBufferFull
		}
		return nil
	}
	return ErrNotConnected
}

func (r *Registry) snapshotLocked() []string {
	userIDs := make([]string, 0, len(r.connections))
	for userID := range r.connections {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	return userIDs
}

func (r *Registry) notifyLocked() {
	if r.notifier == nil {
		return
	}
	connections := make([]Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.notifier.PresenceChanged(r.snapshotLocked(), connections)
}
