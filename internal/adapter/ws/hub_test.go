package ws

import (
	"context"
	"testing"

	"github.com/opsgate/sapguard/internal/port/broadcast"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastEventNoConnections(t *testing.T) {
	hub := NewHub()

	// BroadcastEvent with no connections should not panic.
	hub.BroadcastEvent(context.Background(), broadcast.EventContent, broadcast.ContentPayload{
		ConversationID: "c1",
		Content:        "hello",
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON. Should log, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel, conversationID: "c1"}
	hub.remove(c)
}

func TestProbeConversationID(t *testing.T) {
	if got := probeConversationID([]byte(`{"conversation_id":"c7","content":"x"}`)); got != "c7" {
		t.Errorf("probe = %q", got)
	}
	if got := probeConversationID([]byte(`{"other":"field"}`)); got != "" {
		t.Errorf("probe = %q, want empty", got)
	}
	if got := probeConversationID([]byte(`not json`)); got != "" {
		t.Errorf("probe = %q, want empty", got)
	}
}
