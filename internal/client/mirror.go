// Package client is the Go counterpart of the browser chat client: an HTTP API client, a realtime
// socket and the Mirror that reconciles presence, unread counters and the open conversation.
package client

import (
	"errors"
	"sort"
	"sync"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"go.uber.org/zap"
)

var errMissingUnreadStore = errors.New("client: unread store required")

// UnreadStore persists the unread counter map between runs.
type UnreadStore interface {
	Load() (map[string]int, error)
	Save(counts map[string]int) error
}

// SelectionStore persists the id of the last selected peer between runs.
type SelectionStore interface {
	LoadSelected() (string, error)
	SaveSelected(userID string) error
}

type MirrorConfig struct {
	Unread    UnreadStore
	Selection SelectionStore
	Logger    *zap.Logger
}

// Mirror is the client's single shared state object. Every consumer holds the same *Mirror and all
// mutation goes through its methods.
type Mirror struct {
	mu               sync.Mutex
	unreadStore      UnreadStore
	selectionStore   SelectionStore
	logger           *zap.Logger
	online           map[string]struct{}
	unread           map[string]int
	users            []users.User
	selected         string
	pendingSelection string
	conversation     []messages.Message
}

// NewMirror loads the persisted unread counters and selection.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if cfg.Unread == nil {
		return nil, errMissingUnreadStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	unread, err := cfg.Unread.Load()
	if err != nil {
		return nil, err
	}
	if unread == nil {
		unread = map[string]int{}
	}
	for userID, count := range unread {
		if count <= 0 {
			delete(unread, userID)
		}
	}

	pending := ""
	if cfg.Selection != nil {
		pending, err = cfg.Selection.LoadSelected()
		if err != nil {
			return nil, err
		}
	}

	return &Mirror{
		unreadStore:      cfg.Unread,
		selectionStore:   cfg.Selection,
		logger:           logger,
		online:           map[string]struct{}{},
		unread:           unread,
		pendingSelection: pending,
	}, nil
}

// HandleEvent applies a decoded realtime event.
func (m *Mirror) HandleEvent(event realtime.Event) {
	switch typed := event.(type) {
	case realtime.PresenceEvent:
		m.ApplyPresence(typed.UserIDs)
	case realtime.MessageEvent:
		m.ApplyMessage(typed.Message)
	default:
		m.logger.Warn("unhandled realtime event", zap.Any("event", event))
	}
}

// ApplyPresence replaces the online set.
func (m *Mirror) ApplyPresence(userIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	online := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		online[userID] = struct{}{}
	}
	m.online = online
}

// ApplyMessage appends a pushed message to the open conversation when it comes from the selected
// peer and otherwise counts it as unread.
func (m *Mirror) ApplyMessage(message messages.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected != "" && message.SenderID == m.selected {
		m.conversation = append(m.conversation, message)
		return
	}
	m.unread[message.SenderID]++
	m.saveUnreadLocked()
}

// SelectPeer opens the conversation with userID and clears its unread counter.
func (m *Mirror) SelectPeer(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectLocked(userID)
}

// ClearSelection closes the open conversation.
func (m *Mirror) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingSelection = ""
	if m.selected == "" {
		return
	}
	m.selected = ""
	m.conversation = nil
	m.saveSelectionLocked()
}

// SetUsers replaces the peer list. A selection persisted by a previous run is restored once its
// user appears.
func (m *Mirror) SetUsers(list []users.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append([]users.User(nil), list...)
	if m.pendingSelection == "" || m.selected != "" {
		return
	}
	for _, user := range list {
		if user.ID == m.pendingSelection {
			m.selectLocked(user.ID)
			return
		}
	}
}

// SetConversation merges fetched history for peerID into the open conversation if peerID is still
// selected. Messages pushed while the fetch was in flight are kept.
func (m *Mirror) SetConversation(peerID string, history []messages.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if peerID != m.selected {
		return false
	}
	m.conversation = mergeMessages(history, m.conversation)
	return true
}

// AppendSent adds a message the local user just sent to the open conversation.
func (m *Mirror) AppendSent(message messages.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message.ReceiverID == m.selected {
		m.conversation = append(m.conversation, message)
	}
}

// Reset forgets session state on logout. Persisted counters are kept.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = map[string]struct{}{}
	m.users = nil
	m.conversation = nil
	if m.selected != "" {
		m.pendingSelection = m.selected
	}
	m.selected = ""
}

func (m *Mirror) OnlineUserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	userIDs := make([]string, 0, len(m.online))
	for userID := range m.online {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	return userIDs
}

func (m *Mirror) IsOnline(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.online[userID]
	return ok
}

func (m *Mirror) UnreadCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread[userID]
}

func (m *Mirror) UnreadCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounts(m.unread)
}

func (m *Mirror) SelectedPeer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

func (m *Mirror) ActiveMessages() []messages.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messages.Message(nil), m.conversation...)
}

func (m *Mirror) Users() []users.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]users.User(nil), m.users...)
}

func (m *Mirror) selectLocked(userID string) {
	m.pendingSelection = ""
	if userID != m.selected {
		m.selected = userID
		m.conversation = nil
		m.saveSelectionLocked()
	}
	if m.unread[userID] != 0 {
		delete(m.unread, userID)
		m.saveUnreadLocked()
	}
}

func (m *Mirror) saveUnreadLocked() {
	if err := m.unreadStore.Save(copyCounts(m.unread)); err != nil {
		m.logger.Warn("unread counters not saved", zap.Error(err))
	}
}

func (m *Mirror) saveSelectionLocked() {
	if m.selectionStore == nil {
		return
	}
	if err := m.selectionStore.SaveSelected(m.selected); err != nil {
		m.logger.Warn("selected peer not saved", zap.Error(err))
	}
}

// mergeMessages unions two message lists by id and orders the result by creation time, then id.
func mergeMessages(history, live []messages.Message) []messages.Message {
	merged := make([]messages.Message, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history)+len(live))
	for _, list := range [][]messages.Message{history, live} {
		for _, message := range list {
			if _, ok := seen[message.ID]; ok {
				continue
			}
			seen[message.ID] = struct{}{}
			merged = append(merged, message)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func copyCounts(counts map[string]int) map[string]int {
	copied := make(map[string]int, len(counts))
	for userID, count := range counts {
		copied[userID] = count
	}
	return copied
}
