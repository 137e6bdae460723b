package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nordveg/voyage/pkg/models"
)

// MemoryStore implements Store in process memory. It is used by the
// chat REPL when no database is configured and by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]*models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]*models.Message),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateSession(ctx context.Context, ownerID, title string) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:           NewSessionID(ownerID, now),
		OwnerID:      ownerID,
		Title:        title,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session

	clone := *session
	return &clone, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID, ownerID string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.OwnerID != ownerID {
		return ErrSessionNotFound
	}

	fillMessageDefaults(msg, sessionID, ownerID, session.MessageCount+1)

	stored := cloneMessage(msg)
	s.messages[sessionID] = append(s.messages[sessionID], stored)
	session.MessageCount++
	session.LastActivity = stored.CreatedAt
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, sessionID, ownerID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	if limit <= 0 {
		limit = 50
	}

	msgs := s.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = cloneMessage(msg)
	}
	return out, nil
}

func (s *MemoryStore) RecentContext(ctx context.Context, sessionID, ownerID string, window int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	if window <= 0 {
		window = 10
	}

	msgs := s.messages[sessionID]
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = stripInternal(cloneMessage(msg))
	}
	return out, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, ownerID string, limit int) ([]*models.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var out []*models.SessionSummary
	for _, session := range s.sessions {
		if session.OwnerID != ownerID {
			continue
		}
		out = append(out, &models.SessionSummary{
			SessionID:    session.ID,
			Title:        session.Title,
			CreatedAt:    session.CreatedAt,
			LastActivity: session.LastActivity,
			MessageCount: session.MessageCount,
		})
	}
	sortSummaries(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, age time.Duration, ownerID string) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, session := range s.sessions {
		if ownerID != "" && session.OwnerID != ownerID {
			continue
		}
		if session.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.messages, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[string]struct{})
	stats := &models.StoreStats{TotalSessions: int64(len(s.sessions))}
	for _, session := range s.sessions {
		owners[session.OwnerID] = struct{}{}
	}
	for _, msgs := range s.messages {
		stats.TotalMessages += int64(len(msgs))
	}
	stats.DistinctOwners = int64(len(owners))
	return stats, nil
}

func cloneMessage(msg *models.Message) *models.Message {
	out := *msg
	if msg.ToolCalls != nil {
		out.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		copy(out.ToolCalls, msg.ToolCalls)
	}
	if msg.Metadata != nil {
		out.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func sortSummaries(summaries []*models.SessionSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
}
