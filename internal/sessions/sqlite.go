package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nordveg/voyage/pkg/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL DEFAULT 'default',
	title         TEXT,
	created_at    TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	session_id      TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT,
	tool_calls_json TEXT,
	metadata_json   TEXT,
	seq             INTEGER NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_owner_session ON messages(owner_id, session_id, seq);
CREATE INDEX IF NOT EXISTS idx_sessions_owner_activity ON sessions(owner_id, last_activity);
`

// SQLiteStore implements Store on a local SQLite database. It is the
// default backend for single-node deployments.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageError("create data directory", err)
		}
	}

	// The pragma rides on the DSN so every pooled connection gets it,
	// not just the one open at startup.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, storageError("open database", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, storageError("apply schema", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, ownerID, title string) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:           NewSessionID(ownerID, now),
		OwnerID:      ownerID,
		Title:        title,
		CreatedAt:    now,
		LastActivity: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, owner_id, title, created_at, last_activity, message_count)
		VALUES (?, ?, ?, ?, ?, 0)
	`, session.ID, ownerID, title, formatTime(now), formatTime(now))
	if err != nil {
		return nil, storageError("insert session", err)
	}
	return session, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, ownerID string, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin append", err)
	}
	defer tx.Rollback()

	var count int64
	err = tx.QueryRowContext(ctx, `
		SELECT message_count FROM sessions WHERE session_id = ? AND owner_id = ?
	`, sessionID, ownerID).Scan(&count)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return storageError("read session", err)
	}

	fillMessageDefaults(msg, sessionID, ownerID, count+1)

	toolCallsJSON, metadataJSON, err := encodeMessageJSON(msg)
	if err != nil {
		return storageError("encode message", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, owner_id, session_id, role, content, tool_calls_json, metadata_json, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, ownerID, sessionID, string(msg.Role), msg.Content, toolCallsJSON, metadataJSON, msg.Seq, formatTime(msg.CreatedAt))
	if err != nil {
		return storageError("insert message", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET message_count = message_count + 1, last_activity = ?
		WHERE session_id = ?
	`, formatTime(msg.CreatedAt), sessionID)
	if err != nil {
		return storageError("update session activity", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit append", err)
	}
	return nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID, ownerID string, limit int) ([]*models.Message, error) {
	if err := s.checkSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls_json, metadata_json, seq, created_at
		FROM messages
		WHERE session_id = ? AND owner_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, ownerID, limit)
	if err != nil {
		return nil, storageError("query history", err)
	}
	defer rows.Close()

	return scanMessages(rows, sessionID, ownerID)
}

func (s *SQLiteStore) RecentContext(ctx context.Context, sessionID, ownerID string, window int) ([]*models.Message, error) {
	if err := s.checkSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls_json, metadata_json, seq, created_at
		FROM messages
		WHERE session_id = ? AND owner_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, sessionID, ownerID, window)
	if err != nil {
		return nil, storageError("query recent context", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	// Restore chronological order and strip internal fields.
	out := make([]*models.Message, len(messages))
	for i, msg := range messages {
		out[len(messages)-1-i] = stripInternal(msg)
	}
	return out, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string, limit int) ([]*models.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, title, created_at, last_activity, message_count
		FROM sessions
		WHERE owner_id = ?
		ORDER BY last_activity DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, storageError("query sessions", err)
	}
	defer rows.Close()

	var out []*models.SessionSummary
	for rows.Next() {
		var (
			summary      models.SessionSummary
			title        sql.NullString
			createdAt    string
			lastActivity string
		)
		if err := rows.Scan(&summary.SessionID, &title, &createdAt, &lastActivity, &summary.MessageCount); err != nil {
			return nil, storageError("scan session", err)
		}
		summary.Title = title.String
		summary.CreatedAt = parseTime(createdAt)
		summary.LastActivity = parseTime(lastActivity)
		out = append(out, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate sessions", err)
	}
	return out, nil
}

func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration, ownerID string) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-age))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("begin purge", err)
	}
	defer tx.Rollback()

	msgQuery := `DELETE FROM messages WHERE session_id IN (SELECT session_id FROM sessions WHERE last_activity < ?)`
	sessQuery := `DELETE FROM sessions WHERE last_activity < ?`
	args := []any{cutoff}
	if ownerID != "" {
		msgQuery = `DELETE FROM messages WHERE session_id IN (SELECT session_id FROM sessions WHERE last_activity < ? AND owner_id = ?)`
		sessQuery = `DELETE FROM sessions WHERE last_activity < ? AND owner_id = ?`
		args = append(args, ownerID)
	}

	if _, err := tx.ExecContext(ctx, msgQuery, args...); err != nil {
		return 0, storageError("purge messages", err)
	}
	res, err := tx.ExecContext(ctx, sessQuery, args...)
	if err != nil {
		return 0, storageError("purge sessions", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, storageError("commit purge", err)
	}
	return removed, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{StoragePath: s.path}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages); err != nil {
		return nil, storageError("count messages", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions); err != nil {
		return nil, storageError("count sessions", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT owner_id) FROM sessions`).Scan(&stats.DistinctOwners); err != nil {
		return nil, storageError("count owners", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.StorageBytes = info.Size()
	}
	return stats, nil
}

func (s *SQLiteStore) checkSession(ctx context.Context, sessionID, ownerID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sessions WHERE session_id = ? AND owner_id = ?
	`, sessionID, ownerID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return storageError("read session", err)
	}
	return nil
}

func fillMessageDefaults(msg *models.Message, sessionID, ownerID string, seq int64) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SessionID = sessionID
	msg.OwnerID = ownerID
	msg.Seq = seq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}

func encodeMessageJSON(msg *models.Message) (toolCalls, metadata sql.NullString, err error) {
	if len(msg.ToolCalls) > 0 {
		data, merr := json.Marshal(msg.ToolCalls)
		if merr != nil {
			return toolCalls, metadata, fmt.Errorf("marshal tool calls: %w", merr)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}
	if len(msg.Metadata) > 0 {
		data, merr := json.Marshal(msg.Metadata)
		if merr != nil {
			return toolCalls, metadata, fmt.Errorf("marshal metadata: %w", merr)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}
	return toolCalls, metadata, nil
}

func scanMessages(rows *sql.Rows, sessionID, ownerID string) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		var (
			msg       models.Message
			content   sql.NullString
			toolCalls sql.NullString
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &content, &toolCalls, &metadata, &msg.Seq, &createdAt); err != nil {
			return nil, storageError("scan message", err)
		}
		msg.SessionID = sessionID
		msg.OwnerID = ownerID
		msg.Content = content.String
		msg.CreatedAt = parseTime(createdAt)
		if err := decodeMessageJSON(&msg, toolCalls, metadata); err != nil {
			return nil, err
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate messages", err)
	}
	return out, nil
}

func decodeMessageJSON(msg *models.Message, toolCalls, metadata sql.NullString) error {
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
			return storageError("decode tool calls", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			return storageError("decode metadata", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
