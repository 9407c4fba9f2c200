package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps unread counters and the selection in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	unread   map[string]int
	selected string
	saves    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{unread: map[string]int{}}
}

func (s *MemoryStore) Load() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.unread), nil
}

func (s *MemoryStore) Save(counts map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = copyCounts(counts)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) LoadSelected() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, nil
}

func (s *MemoryStore) SaveSelected(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = userID
	return nil
}

type fileState struct {
	UnreadMessages map[string]int `json:"unreadMessages"`
	SelectedUserID string         `json:"selectedUserId,omitempty"`
}

// FileStore persists client state as a JSON document on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return state.UnreadMessages, nil
}

func (s *FileStore) Save(counts map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.readLocked()
	if err != nil {
		return err
	}
	state.UnreadMessages = copyCounts(counts)
	return s.writeLocked(state)
}

func (s *FileStore) LoadSelected() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.readLocked()
	if err != nil {
		return "", err
	}
	return state.SelectedUserID, nil
}

func (s *FileStore) SaveSelected(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.readLocked()
	if err != nil {
		return err
	}
	state.SelectedUserID = userID
	return s.writeLocked(state)
}

func (s *FileStore) readLocked() (fileState, error) {
	state := fileState{UnreadMessages: map[string]int{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, err
	}
	if state.UnreadMessages == nil {
		state.UnreadMessages = map[string]int{}
	}
	return state, nil
}

func (s *FileStore) writeLocked(state fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	temp := s.path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, s.path)
}

var (
	_ UnreadStore    = (*MemoryStore)(nil)
	_ SelectionStore = (*MemoryStore)(nil)
	_ UnreadStore    = (*FileStore)(nil)
	_ SelectionStore = (*FileStore)(nil)
)
