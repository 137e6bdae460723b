package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nordveg/voyage/pkg/models"
)

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.CreateSession(ctx, "alice", "Trip planning")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.OwnerID != "alice" {
		t.Errorf("expected owner alice, got %s", session.OwnerID)
	}

	msgs := []*models.Message{
		{Role: models.RoleUser, Content: "What's the weather in Oslo?"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_1", Name: "get_weather_forecast"}}},
		{Role: models.RoleTool, Content: "12C, light rain", Metadata: map[string]any{MetaToolCallID: "call_1", MetaToolName: "get_weather_forecast"}},
		{Role: models.RoleAssistant, Content: "It's 12C with light rain in Oslo."},
	}
	for _, msg := range msgs {
		if err := store.AppendMessage(ctx, session.ID, "alice", msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	history, err := store.GetHistory(ctx, session.ID, "alice", 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(history))
	}
	for i, msg := range history {
		if msg.Seq != int64(i+1) {
			t.Errorf("message %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
	}
	if history[2].ToolCallID() != "call_1" {
		t.Errorf("expected tool message to carry call id, got %q", history[2].ToolCallID())
	}
}

func TestMemoryStoreOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.CreateSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.AppendMessage(ctx, session.ID, "alice", &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if _, err := store.GetHistory(ctx, session.ID, "mallory", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for wrong owner, got %v", err)
	}
	if err := store.AppendMessage(ctx, session.ID, "mallory", &models.Message{Role: models.RoleUser, Content: "hijack"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound appending as wrong owner, got %v", err)
	}

	sessions, err := store.ListSessions(ctx, "mallory", 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions for mallory, got %d", len(sessions))
	}
}

func TestMemoryStorePurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old, err := store.CreateSession(ctx, "alice", "old")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	recent, err := store.CreateSession(ctx, "alice", "recent")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	store.mu.Lock()
	store.sessions[old.ID].LastActivity = time.Now().UTC().Add(-31 * 24 * time.Hour)
	store.sessions[recent.ID].LastActivity = time.Now().UTC().Add(-24 * time.Hour)
	store.mu.Unlock()

	removed, err := store.PurgeOlderThan(ctx, 30*24*time.Hour, "")
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 session removed, got %d", removed)
	}

	if _, err := store.GetHistory(ctx, old.ID, "alice", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected purged session to be gone, got %v", err)
	}
	if _, err := store.GetHistory(ctx, recent.ID, "alice", 0); err != nil {
		t.Errorf("expected recent session to survive, got %v", err)
	}
}

func TestMemoryStoreRecentContextWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.CreateSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i := 0; i < 15; i++ {
		msg := &models.Message{Role: models.RoleUser, Content: "message"}
		if err := store.AppendMessage(ctx, session.ID, "alice", msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	window, err := store.RecentContext(ctx, session.ID, "alice", 10)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(window) != 10 {
		t.Fatalf("expected window of 10, got %d", len(window))
	}
	// Windowed messages are stripped for model submission.
	for i, msg := range window {
		if msg.Seq != 0 {
			t.Errorf("message %d: seq should be stripped, got %d", i, msg.Seq)
		}
	}
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, owner := range []string{"alice", "bob"} {
		session, err := store.CreateSession(ctx, owner, "")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := store.AppendMessage(ctx, session.ID, owner, &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("expected 2 sessions, got %d", stats.TotalSessions)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("expected 2 messages, got %d", stats.TotalMessages)
	}
	if stats.DistinctOwners != 2 {
		t.Errorf("expected 2 owners, got %d", stats.DistinctOwners)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	now := time.Now()
	a := NewSessionID("alice", now)
	b := NewSessionID("alice", now)
	if a == b {
		t.Errorf("same-second ids must differ: %s == %s", a, b)
	}
}
