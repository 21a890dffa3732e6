package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewDisabledWithoutWebhook(t *testing.T) {
	n := New("", zerolog.Nop())
	if n.Enabled() {
		t.Fatal("expected disabled notifier with empty webhook")
	}
	if err := n.Send(context.Background(), "title", "body"); err != nil {
		t.Fatalf("disabled send should succeed silently: %v", err)
	}
}

func TestSendPostsExpectedPayload(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(server.URL, zerolog.Nop())
	if !n.Enabled() {
		t.Fatal("expected enabled notifier")
	}

	if err := n.NotifyOpen(context.Background(), "BTC-USDT-SWAP", "long", "1.5", "65000"); err != nil {
		t.Fatalf("notify open: %v", err)
	}

	if received["msg_type"] != "post" {
		t.Fatalf("expected msg_type=post, got %v", received["msg_type"])
	}
	content, ok := received["content"].(map[string]any)
	if !ok {
		t.Fatalf("expected content object, got %T", received["content"])
	}
	post, ok := content["post"].(map[string]any)
	if !ok {
		t.Fatalf("expected post object, got %T", content["post"])
	}
	zhCN, ok := post["zh_cn"].(map[string]any)
	if !ok {
		t.Fatalf("expected zh_cn object, got %T", post["zh_cn"])
	}
	if zhCN["title"] != "Position opened" {
		t.Fatalf("expected title 'Position opened', got %v", zhCN["title"])
	}
}

func TestNotifyPositionClosedSatisfiesCacheNotifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(server.URL, zerolog.Nop())
	if err := n.NotifyPositionClosed(context.Background(), "BTC-USDT-SWAP", "long", 1700000000000); err != nil {
		t.Fatalf("notify position closed: %v", err)
	}
}

func TestSendReturnsErrorOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := New(server.URL, zerolog.Nop())
	if err := n.Send(context.Background(), "title", "body"); err == nil {
		t.Fatal("expected error for server failure")
	}
}
