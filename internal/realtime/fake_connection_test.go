package realtime

import (
	"sync"
	"testing"
)

type fakeConnection struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func newFakeConnection(id string) *fakeConnection {
	return &fakeConnection{id: id}
}

func (c *fakeConnection) ID() string {
	return c.id
}

func (c *fakeConnection) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]Event, 0, len(c.frames))
	for _, frame := range c.frames {
		event, err := DecodeEnvelope(frame)
		if err != nil {
			t.Fatalf("connection %s received undecodable frame %s: %v", c.id, frame, err)
		}
		events = append(events, event)
	}
	return events
}

func (c *fakeConnection) lastPresence(t *testing.T) []string {
	t.Helper()
	events := c.events(t)
	for index := len(events) - 1; index >= 0; index-- {
		if presence, ok := events[index].(PresenceEvent); ok {
			return presence.UserIDs
		}
	}
	t.Fatalf("connection %s received no presence frame", c.id)
	return nil
}

type presenceCall struct {
	online      []string
	connections int
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (n *recordingNotifier) PresenceChanged(online []string, connections []Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, presenceCall{online: append([]string(nil), online...), connections: len(connections)})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *recordingNotifier) last() presenceCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func equalStrings(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}
