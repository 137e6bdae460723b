package sessions

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/nordveg/voyage/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL DEFAULT 'default',
	title         TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	last_activity TIMESTAMPTZ NOT NULL,
	message_count BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	session_id      TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT,
	tool_calls_json JSONB,
	metadata_json   JSONB,
	seq             BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_owner_session ON messages(owner_id, session_id, seq);
CREATE INDEX IF NOT EXISTS idx_sessions_owner_activity ON sessions(owner_id, last_activity);
`

// PostgresStore implements Store on PostgreSQL for multi-node deployments
// that need a shared session backend.
type PostgresStore struct {
	db *sql.DB
}

// PostgresOptions tunes the connection pool. Zero values fall back to
// defaults suitable for a single service instance.
type PostgresOptions struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresStore connects with the given DSN and applies the schema.
func NewPostgresStore(dsn string, opts PostgresOptions) (*PostgresStore, error) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storageError("open database", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(min(5, opts.MaxOpenConns))
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError("ping database", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, storageError("apply schema", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateSession(ctx context.Context, ownerID, title string) (*models.Session, error) {
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
		VALUES ($1, $2, $3, $4, $5, 0)
	`, session.ID, ownerID, title, now, now)
	if err != nil {
		return nil, storageError("insert session", err)
	}
	return session, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID, ownerID string, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin append", err)
	}
	defer tx.Rollback()

	var count int64
	err = tx.QueryRowContext(ctx, `
		SELECT message_count FROM sessions WHERE session_id = $1 AND owner_id = $2 FOR UPDATE
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, ownerID, sessionID, string(msg.Role), msg.Content, toolCallsJSON, metadataJSON, msg.Seq, msg.CreatedAt)
	if err != nil {
		return storageError("insert message", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET message_count = message_count + 1, last_activity = $1
		WHERE session_id = $2
	`, msg.CreatedAt, sessionID)
	if err != nil {
		return storageError("update session activity", err)
	}

	if err := tx.Commit(); err != nil {
		return storageError("commit append", err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, sessionID, ownerID string, limit int) ([]*models.Message, error) {
	if err := s.checkSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls_json, metadata_json, seq, created_at
		FROM messages
		WHERE session_id = $1 AND owner_id = $2
		ORDER BY seq ASC
		LIMIT $3
	`, sessionID, ownerID, limit)
	if err != nil {
		return nil, storageError("query history", err)
	}
	defer rows.Close()

	return scanPostgresMessages(rows, sessionID, ownerID)
}

func (s *PostgresStore) RecentContext(ctx context.Context, sessionID, ownerID string, window int) ([]*models.Message, error) {
	if err := s.checkSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls_json, metadata_json, seq, created_at
		FROM messages
		WHERE session_id = $1 AND owner_id = $2
		ORDER BY seq DESC
		LIMIT $3
	`, sessionID, ownerID, window)
	if err != nil {
		return nil, storageError("query recent context", err)
	}
	defer rows.Close()

	messages, err := scanPostgresMessages(rows, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Message, len(messages))
	for i, msg := range messages {
		out[len(messages)-1-i] = stripInternal(msg)
	}
	return out, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, ownerID string, limit int) ([]*models.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, title, created_at, last_activity, message_count
		FROM sessions
		WHERE owner_id = $1
		ORDER BY last_activity DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, storageError("query sessions", err)
	}
	defer rows.Close()

	var out []*models.SessionSummary
	for rows.Next() {
		var (
			summary models.SessionSummary
			title   sql.NullString
		)
		if err := rows.Scan(&summary.SessionID, &title, &summary.CreatedAt, &summary.LastActivity, &summary.MessageCount); err != nil {
			return nil, storageError("scan session", err)
		}
		summary.Title = title.String
		out = append(out, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate sessions", err)
	}
	return out, nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, age time.Duration, ownerID string) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)

	var (
		res sql.Result
		err error
	)
	if ownerID == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < $1`, cutoff)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < $1 AND owner_id = $2`, cutoff, ownerID)
	}
	if err != nil {
		return 0, storageError("purge sessions", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(DISTINCT owner_id) FROM sessions),
			pg_database_size(current_database())
	`).Scan(&stats.TotalMessages, &stats.TotalSessions, &stats.DistinctOwners, &stats.StorageBytes)
	if err != nil {
		return nil, storageError("query stats", err)
	}
	return stats, nil
}

func (s *PostgresStore) checkSession(ctx context.Context, sessionID, ownerID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sessions WHERE session_id = $1 AND owner_id = $2
	`, sessionID, ownerID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return storageError("read session", err)
	}
	return nil
}

func scanPostgresMessages(rows *sql.Rows, sessionID, ownerID string) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		var (
			msg       models.Message
			content   sql.NullString
			toolCalls sql.NullString
			metadata  sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &content, &toolCalls, &metadata, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, storageError("scan message", err)
		}
		msg.SessionID = sessionID
		msg.OwnerID = ownerID
		msg.Content = content.String
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
