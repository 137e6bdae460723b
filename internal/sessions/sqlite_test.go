package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nordveg/voyage/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreForeignKeysEnabled(t *testing.T) {
	store := newTestSQLiteStore(t)

	var enabled int
	if err := store.db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys pragma not enabled, got %d", enabled)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	session, err := store.CreateSession(ctx, "alice", "Oslo trip")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	assistant := &models.Message{
		Role: models.RoleAssistant,
		ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "get_weather_forecast", Input: []byte(`{"location":"Oslo"}`)},
		},
	}
	toolMsg := &models.Message{
		Role:     models.RoleTool,
		Content:  "12C, light rain",
		Metadata: map[string]any{MetaToolCallID: "call_1", MetaToolName: "get_weather_forecast"},
	}
	for _, msg := range []*models.Message{
		{Role: models.RoleUser, Content: "Weather in Oslo?"},
		assistant,
		toolMsg,
		{Role: models.RoleAssistant, Content: "12C with light rain."},
	} {
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
	if got := history[1].ToolCalls; len(got) != 1 || got[0].Name != "get_weather_forecast" {
		t.Errorf("tool calls not preserved: %+v", got)
	}
	if history[2].ToolCallID() != "call_1" {
		t.Errorf("tool metadata not preserved: %+v", history[2].Metadata)
	}
	for i, msg := range history {
		if msg.Seq != int64(i+1) {
			t.Errorf("message %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
	}
}

func TestSQLiteStoreUnknownSession(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	err := store.AppendMessage(ctx, "nope_20250101_000000_deadbeef", "alice", &models.Message{Role: models.RoleUser, Content: "hi"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.GetHistory(ctx, "nope", "alice", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteStoreOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	session, err := store.CreateSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := store.GetHistory(ctx, session.ID, "mallory", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("wrong owner should look like a missing session, got %v", err)
	}
	if _, err := store.RecentContext(ctx, session.ID, "mallory", 10); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("wrong owner should look like a missing session, got %v", err)
	}
}

func TestSQLiteStorePurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	old, err := store.CreateSession(ctx, "alice", "old")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.AppendMessage(ctx, old.ID, "alice", &models.Message{Role: models.RoleUser, Content: "stale"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	recent, err := store.CreateSession(ctx, "alice", "recent")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	stale := formatTime(time.Now().UTC().Add(-31 * 24 * time.Hour))
	if _, err := store.db.Exec(`UPDATE sessions SET last_activity = ? WHERE session_id = ?`, stale, old.ID); err != nil {
		t.Fatalf("backdate session: %v", err)
	}

	removed, err := store.PurgeOlderThan(ctx, 30*24*time.Hour, "")
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 session removed, got %d", removed)
	}

	if _, err := store.GetHistory(ctx, old.ID, "alice", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("purged session still readable: %v", err)
	}
	if _, err := store.GetHistory(ctx, recent.ID, "alice", 0); err != nil {
		t.Errorf("recent session should survive purge: %v", err)
	}

	// Orphaned messages must not remain behind.
	var count int64
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, old.ID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 messages for purged session, got %d", count)
	}
}

func TestSQLiteStoreStats(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	session, err := store.CreateSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.AppendMessage(ctx, session.ID, "alice", &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalSessions != 1 || stats.TotalMessages != 1 || stats.DistinctOwners != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.StorageBytes == 0 {
		t.Errorf("expected non-zero storage size")
	}
}

func TestSQLiteStoreRecentContextOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	session, err := store.CreateSession(ctx, "alice", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		if err := store.AppendMessage(ctx, session.ID, "alice", &models.Message{Role: models.RoleUser, Content: c}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	window, err := store.RecentContext(ctx, session.ID, "alice", 3)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	want := []string{"three", "four", "five"}
	if len(window) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(window))
	}
	for i, msg := range window {
		if msg.Content != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], msg.Content)
		}
	}
}
