package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPresenceBroadcasterReachesEveryConnection(t *testing.T) {
	registry := NewRegistry(NewPresenceBroadcaster(nil), nil)
	alice := newFakeConnection("s1")
	bob := newFakeConnection("s2")

	_ = registry.Register("alice", alice)
	_ = registry.Register("bob", bob)

	for _, conn := range []*fakeConnection{alice, bob} {
		if got := conn.lastPresence(t); !equalStrings(got, []string{"alice", "bob"}) {
			t.Fatalf("connection %s saw presence %v", conn.id, got)
		}
	}

	registry.Unregister("s2")
	if got := alice.lastPresence(t); !equalStrings(got, []string{"alice"}) {
		t.Fatalf("expected alice alone after bob left, got %v", got)
	}
	if len(bob.events(t)) != 1 {
		t.Fatalf("expected bob to receive nothing after disconnecting, got %d frames", len(bob.events(t)))
	}
}

func TestPresenceBroadcasterSkipsFullConnections(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	broadcaster := NewPresenceBroadcaster(zap.New(core))
	stalled := newFakeConnection("s1")
	stalled.full = true
	healthy := newFakeConnection("s2")

	broadcaster.PresenceChanged([]string{"alice", "bob"}, []Connection{stalled, healthy})

	if len(healthy.events(t)) != 1 {
		t.Fatalf("expected the healthy connection to receive the frame")
	}
	if logs.FilterMessage("presence frame dropped").Len() != 1 {
		t.Fatalf("expected the dropped frame to be logged")
	}
}

func TestRouterDeliversExactlyOnceToRegisteredReceiver(t *testing.T) {
	registry := NewRegistry(nil, nil)
	alice := newFakeConnection("s1")
	bob := newFakeConnection("s2")
	_ = registry.Register("alice", alice)
	_ = registry.Register("bob", bob)
	router := NewRouter(registry, nil)

	message := messages.Message{
		ID:         "m1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       "hi",
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	router.Deliver(context.Background(), message)

	events := bob.events(t)
	if len(events) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(events))
	}
	pushed, ok := events[0].(MessageEvent)
	if !ok {
		t.Fatalf("expected message event, got %T", events[0])
	}
	if pushed.Message.ID != message.ID || pushed.Message.Text != message.Text || !pushed.Message.CreatedAt.Equal(message.CreatedAt) {
		t.Fatalf("pushed payload differs from persisted message: %#v", pushed.Message)
	}
	if len(alice.events(t)) != 0 {
		t.Fatalf("sender must not receive the push")
	}
}

func TestRouterIgnoresOfflineReceiver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	registry := NewRegistry(nil, nil)
	alice := newFakeConnection("s1")
	_ = registry.Register("alice", alice)
	router := NewRouter(registry, zap.New(core))

	router.Deliver(context.Background(), messages.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hi"})

	if len(alice.events(t)) != 0 {
		t.Fatalf("expected zero pushes")
	}
	if logs.FilterMessage("receiver offline").Len() != 1 {
		t.Fatalf("expected offline receiver to be logged at debug")
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 0 {
		t.Fatalf("an offline receiver is not an error")
	}
}
