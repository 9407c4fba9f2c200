package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/auth"
	"github.com/MarcoPoloResearchLab/parley/internal/database"
	"github.com/MarcoPoloResearchLab/parley/internal/media"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

const testSigningSecret = "test-signing-secret-value"

type testEnvironment struct {
	server   *httptest.Server
	registry *realtime.Registry
	issuer   *auth.TokenIssuer
	logs     *observer.ObservedLogs
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "parley.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store := database.NewGormStore(db)

	uploader, err := media.NewDiskUploader(media.DiskUploaderConfig{Directory: filepath.Join(t.TempDir(), "media")})
	if err != nil {
		t.Fatalf("failed to construct uploader: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Repository: store,
		Hasher:     auth.NewPasswordHasher(bcrypt.MinCost),
		Uploader:   uploader,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	registry := realtime.NewRegistry(realtime.NewPresenceBroadcaster(logger), logger)
	messagesService, err := messages.NewService(messages.ServiceConfig{
		Repository: store,
		Uploader:   uploader,
		Directory:  usersService,
		Notifier:   realtime.NewRouter(registry, logger),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to construct messages service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		CookieName:    "jwt",
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:       validator,
		Issuer:         issuer,
		Users:          usersService,
		Messages:       messagesService,
		Registry:       registry,
		Store:          store,
		Media:          uploader,
		MediaDirectory: uploader.Directory(),
		SendBuffer:     8,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		_ = store.Close(context.Background())
	})
	return &testEnvironment{server: server, registry: registry, issuer: issuer, logs: logs}
}

type session struct {
	user  users.User
	token string
}

func (e *testEnvironment) signup(t *testing.T, email, fullName string) session {
	t.Helper()
	response := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"fullName": fullName,
		"password": "secret123",
	})
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("signup for %s failed with status %d", email, response.StatusCode)
	}
	var user users.User
	decodeBody(t, response, &user)
	return session{user: user, token: sessionCookie(t, response).Value}
}

func (e *testEnvironment) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return response
}

func (e *testEnvironment) dialRealtime(t *testing.T, token, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/ws" + query
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, response, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if response != nil {
			status = response.StatusCode
		}
		t.Fatalf("websocket dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	event, err := realtime.DecodeEnvelope(frame)
	if err != nil {
		t.Fatalf("failed to decode frame %s: %v", frame, err)
	}
	return event
}

func expectPresence(t *testing.T, conn *websocket.Conn, want ...string) {
	t.Helper()
	event := readEvent(t, conn)
	presence, ok := event.(realtime.PresenceEvent)
	if !ok {
		t.Fatalf("expected presence event, got %T", event)
	}
	if len(presence.UserIDs) != len(want) {
		t.Fatalf("expected presence %v, got %v", want, presence.UserIDs)
	}
	expected := map[string]bool{}
	for _, userID := range want {
		expected[userID] = true
	}
	for _, userID := range presence.UserIDs {
		if !expected[userID] {
			t.Fatalf("expected presence %v, got %v", want, presence.UserIDs)
		}
	}
}

func decodeBody(t *testing.T, response *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func sessionCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range response.Cookies() {
		if cookie.Name == "jwt" {
			return cookie
		}
	}
	t.Fatalf("expected a jwt cookie on the response")
	return nil
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
