// Package sessions provides durable, owner-scoped conversation storage.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nordveg/voyage/pkg/models"
)

var (
	// ErrSessionNotFound is returned when a session id is unknown or
	// belongs to a different owner. Ownership isolation intentionally
	// makes the two cases indistinguishable.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStorage wraps backend failures (disk, connection, corruption).
	// Storage errors are never retried here; retry policy belongs to the
	// caller.
	ErrStorage = errors.New("storage failure")
)

// Store is the interface for session persistence. Messages are append-only;
// past entries are never mutated.
type Store interface {
	// CreateSession inserts a new session with message_count = 0.
	CreateSession(ctx context.Context, ownerID, title string) (*models.Session, error)

	// AppendMessage inserts a message ordered after all previous ones for
	// the session and atomically bumps message_count and last_activity.
	AppendMessage(ctx context.Context, sessionID, ownerID string, msg *models.Message) error

	// GetHistory returns up to limit messages, earliest first.
	GetHistory(ctx context.Context, sessionID, ownerID string, limit int) ([]*models.Message, error)

	// RecentContext returns the most recent window messages in
	// chronological order, with internal metadata stripped so the slice
	// can be submitted to a chat model directly.
	RecentContext(ctx context.Context, sessionID, ownerID string, window int) ([]*models.Message, error)

	// ListSessions returns session summaries, most recently active first.
	ListSessions(ctx context.Context, ownerID string, limit int) ([]*models.SessionSummary, error)

	// PurgeOlderThan deletes sessions (and their messages) whose last
	// activity predates the age threshold. An empty ownerID purges all
	// owners. Returns the number of sessions removed.
	PurgeOlderThan(ctx context.Context, age time.Duration, ownerID string) (int64, error)

	// Stats reports totals across the store.
	Stats(ctx context.Context) (*models.StoreStats, error)

	Close() error
}

// Message metadata keys for tool-role messages.
const (
	MetaToolCallID = "tool_call_id"
	MetaToolName   = "tool_name"
)

// NewSessionID builds a session id from the owner and creation time. The
// uuid fragment guarantees uniqueness for same-owner, same-second calls.
func NewSessionID(ownerID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", ownerID, now.UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// stripInternal removes fields the chat model must not see. Tool-role
// messages keep their tool linkage metadata; everything else is dropped.
func stripInternal(msg *models.Message) *models.Message {
	out := *msg
	out.Seq = 0
	if msg.Role == models.RoleTool {
		meta := make(map[string]any, 2)
		if v, ok := msg.Metadata[MetaToolCallID]; ok {
			meta[MetaToolCallID] = v
		}
		if v, ok := msg.Metadata[MetaToolName]; ok {
			meta[MetaToolName] = v
		}
		out.Metadata = meta
	} else {
		out.Metadata = nil
	}
	return &out
}
