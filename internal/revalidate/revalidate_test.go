package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/debemdeboas/stand-admin/internal/config"
	"github.com/debemdeboas/stand-admin/internal/sse"
)

func TestRevalidate(t *testing.T) {
	var gotPath, gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotPath = body["path"]
		gotSecret = r.Header.Get(config.HRevalidateSecret)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	clients := sse.NewSSEClients()
	sub := sse.NewClient("/blog/a")
	clients.Add(sub)

	rv := New(clients, config.RevalidationConfig{WebhookURL: server.URL, Secret: "s3cret", Timeout: "1s"})
	if err := rv.Revalidate(context.Background(), "/blog/a"); err != nil {
		t.Fatalf("Revalidate failed: %v", err)
	}

	if gotPath != "/blog/a" || gotSecret != "s3cret" {
		t.Errorf("Webhook got path %q secret %q", gotPath, gotSecret)
	}
	if msg := <-sub.Msg; msg != EventRevalidate {
		t.Errorf("Expected %q event, got %q", EventRevalidate, msg)
	}
}

func TestRevalidateWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	rv := New(nil, config.RevalidationConfig{WebhookURL: server.URL})
	if err := rv.Revalidate(context.Background(), "/"); !errors.Is(err, ErrWebhook) {
		t.Errorf("Expected ErrWebhook, got %v", err)
	}
}

func TestRevalidateWithoutWebhook(t *testing.T) {
	rv := New(sse.NewSSEClients(), config.RevalidationConfig{})
	if err := rv.Revalidate(context.Background(), "/"); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
