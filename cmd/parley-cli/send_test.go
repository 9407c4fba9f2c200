package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/spf13/viper"
)

func TestSendOnceDoesNotOpenRealtimeConnection(t *testing.T) {
	var socketRequests atomic.Int32
	var sent atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "jwt", Value: "token", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(users.User{ID: "alice"})
	})
	mux.HandleFunc("POST /api/messages/send/{id}", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("jwt"); err != nil || cookie.Value != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		sent.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(messages.Message{ID: "m1", SenderID: "alice", ReceiverID: r.PathValue("id"), Text: "hi"})
	})
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		socketRequests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cliViper := viper.New()
	cliViper.Set("api-url", server.URL)
	cliViper.Set("email", "alice@example.com")
	cliViper.Set("password", "secret1")

	message, err := sendOnce(context.Background(), cliViper, "bob", "hi", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if message.ReceiverID != "bob" || sent.Load() != 1 {
		t.Fatalf("unexpected send result %#v (sent=%d)", message, sent.Load())
	}
	if socketRequests.Load() != 0 {
		t.Fatalf("a one-shot send must not open a realtime connection, got %d", socketRequests.Load())
	}
}

func TestSendOnceRequiresCredentials(t *testing.T) {
	cliViper := viper.New()
	cliViper.Set("api-url", "http://localhost:5001")
	if _, err := sendOnce(context.Background(), cliViper, "bob", "hi", ""); err == nil {
		t.Fatalf("expected missing credentials error")
	}
}
