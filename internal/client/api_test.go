package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestAPIClientLoginStoresSessionCookie(t *testing.T) {
	stub := newStubServer(t)
	api, err := NewAPIClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	ctx := context.Background()

	if _, err := api.CheckAuth(ctx); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized before login, got %v", err)
	}
	user, err := api.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user %#v", user)
	}
	if _, err := api.CheckAuth(ctx); err != nil {
		t.Fatalf("expected cookie to authorize check: %v", err)
	}

	if err := api.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := api.CheckAuth(ctx); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

func TestAPIClientSurfacesServerMessage(t *testing.T) {
	stub := newStubServer(t)
	api, err := NewAPIClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	_, err = api.Login(context.Background(), "alice@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Invalid credentials" {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "Invalid credentials") {
		t.Fatalf("unexpected error text %q", apiErr.Error())
	}
}

func TestAPIClientMessagingRoutes(t *testing.T) {
	stub := newStubServer(t)
	api, err := NewAPIClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	ctx := context.Background()

	peers, err := api.Users(ctx)
	if err != nil || len(peers) != 1 || peers[0].ID != "bob" {
		t.Fatalf("unexpected peers %#v (%v)", peers, err)
	}
	history, err := api.Conversation(ctx, "bob")
	if err != nil || len(history) != 1 || history[0].SenderID != "bob" {
		t.Fatalf("unexpected history %#v (%v)", history, err)
	}
	message, err := api.Send(ctx, "bob", "hello", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if message.ReceiverID != "bob" || message.Text != "hello" {
		t.Fatalf("unexpected message %#v", message)
	}
}

func TestAPIClientRealtimeURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5001":      "ws://localhost:5001/api/ws?userId=alice",
		"https://chat.example.com/":  "wss://chat.example.com/api/ws?userId=alice",
		"https://example.com/parley": "wss://example.com/parley/api/ws?userId=alice",
	}
	for base, want := range cases {
		api, err := NewAPIClient(base, 0)
		if err != nil {
			t.Fatalf("failed to construct client for %s: %v", base, err)
		}
		if got := api.RealtimeURL("alice"); got != want {
			t.Fatalf("base %s: expected %s, got %s", base, want, got)
		}
	}
}

func TestNewAPIClientRequiresBaseURL(t *testing.T) {
	if _, err := NewAPIClient("  ", 0); err == nil {
		t.Fatalf("expected missing base url error")
	}
}
