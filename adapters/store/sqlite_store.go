package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"github.com/pkg/errors"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

// SQLiteStore is the durable conversation store. Sessions survive cache
// eviction here; only explicit deletion (out of scope) removes them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dataSourceName and
// ensures the schema exists.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return s, nil
}

var _ ports.ConversationStore = (*SQLiteStore)(nil)

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        title TEXT,
        token_usage INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL,
        last_message_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions (user_id);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('human', 'assistant')),
        message TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES chat_sessions (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *core.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (id, user_id, title, token_usage, created_at, last_message_at) VALUES (?, ?, ?, ?, ?, ?)",
		session.ID, session.UserID, nullable(session.Title), session.TokenUsage, session.CreatedAt, session.LastMessageAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert session")
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	var session core.Session
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, token_usage, created_at, last_message_at FROM chat_sessions WHERE id = ?",
		sessionID).Scan(&session.ID, &session.UserID, &title, &session.TokenUsage, &session.CreatedAt, &session.LastMessageAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to query session")
	}
	if title.Valid {
		session.Title = title.String
	}
	return &session, nil
}

func (s *SQLiteStore) VerifyOwnership(ctx context.Context, sessionID, userID string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM chat_sessions WHERE id = ? AND user_id = ?",
		sessionID, userID).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to verify ownership")
	}
	return count > 0, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *core.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, session_id, role, message, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.SessionID, string(msg.Role), msg.Text, msg.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert message")
	}
	return nil
}

// Messages returns the page in reverse-chronological order; rowid breaks
// ties for messages persisted within the same timestamp granularity.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, limit, offset int) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, message, created_at
         FROM messages
         WHERE session_id = ?
         ORDER BY created_at DESC, rowid DESC
         LIMIT ? OFFSET ?`,
		sessionID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		msg.Role = core.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]core.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.token_usage, s.created_at, s.last_message_at,
                (SELECT COUNT(1) FROM messages m WHERE m.session_id = s.id) AS message_count
         FROM chat_sessions s
         WHERE s.user_id = ?
         ORDER BY s.last_message_at DESC`,
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sessions")
	}
	defer rows.Close()

	var summaries []core.SessionSummary
	for rows.Next() {
		var summary core.SessionSummary
		var title sql.NullString
		if err := rows.Scan(&summary.ID, &title, &summary.TokenUsage, &summary.CreatedAt, &summary.LastMessageAt, &summary.MessageCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan session row")
		}
		if title.Valid {
			summary.Title = title.String
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) UpdateActivity(ctx context.Context, sessionID string, lastMessageAt time.Time, tokenUsage int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET last_message_at = ?, token_usage = ? WHERE id = ?",
		lastMessageAt, tokenUsage, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to update session activity")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET title = ? WHERE id = ?",
		title, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to update session title")
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
