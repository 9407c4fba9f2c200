package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/gorilla/websocket"
)

const stubSessionToken = "session-token"

func messagesFrom(senderID string) messages.Message {
	return messages.Message{ID: "m-" + senderID, SenderID: senderID, ReceiverID: "alice", Text: "hi"}
}

func usersWithIDs(userIDs ...string) []users.User {
	list := make([]users.User, 0, len(userIDs))
	for _, userID := range userIDs {
		list = append(list, users.User{ID: userID})
	}
	return list
}

// stubServer mimics the API routes the client calls. Every accepted socket immediately receives a
// presence frame listing "alice" and "bob".
type stubServer struct {
	*httptest.Server

	dials       atomic.Int32
	mu          sync.Mutex
	sockets     []*websocket.Conn
	frames      [][]byte
	sent        []map[string]string
	upgrader    websocket.Upgrader
	dialGate    chan struct{}
	lastRequest *http.Request
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	stub := &stubServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["password"] != "secret1" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "jwt", Value: stubSessionToken, Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, users.User{ID: "alice", Email: payload["email"], FullName: "Alice"})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "jwt", Value: "", Path: "/", MaxAge: -1})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	})
	mux.HandleFunc("GET /api/auth/check", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, users.User{ID: "alice", FullName: "Alice"})
	})
	mux.HandleFunc("GET /api/messages/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []users.User{{ID: "bob", FullName: "Bob"}})
	})
	mux.HandleFunc("GET /api/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []messages.Message{{ID: "h1", SenderID: r.PathValue("id"), ReceiverID: "alice", Text: "earlier"}})
	})
	mux.HandleFunc("POST /api/messages/send/{id}", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		stub.mu.Lock()
		stub.sent = append(stub.sent, payload)
		stub.mu.Unlock()
		writeJSON(w, http.StatusCreated, messages.Message{ID: "s1", SenderID: "alice", ReceiverID: r.PathValue("id"), Text: payload["text"]})
	})
	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		stub.dials.Add(1)
		stub.mu.Lock()
		stub.lastRequest = r
		gate := stub.dialGate
		stub.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if !authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := stub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// The initial frame is written under mu so push never writes the conn concurrently.
		frame, _ := realtime.EncodePresence([]string{"alice", "bob"})
		stub.mu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		stub.sockets = append(stub.sockets, conn)
		stub.mu.Unlock()
		for {
			_, inbound, err := conn.ReadMessage()
			if err != nil {
				return
			}
			stub.mu.Lock()
			stub.frames = append(stub.frames, inbound)
			stub.mu.Unlock()
		}
	})
	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

func (s *stubServer) push(t *testing.T, frame []byte) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sockets) == 0 {
		t.Fatalf("no socket to push to")
	}
	if err := s.sockets[len(s.sockets)-1].WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("push failed: %v", err)
	}
}

func (s *stubServer) inboundFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func authorized(r *http.Request) bool {
	cookie, err := r.Cookie("jwt")
	return err == nil && cookie.Value == stubSessionToken
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
