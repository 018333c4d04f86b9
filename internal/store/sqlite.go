package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        mode TEXT NOT NULL CHECK (mode IN ('symptom', 'lab', 'prescription', 'medication')),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        UNIQUE (user_id, mode)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT, -- insertion order
        session_id INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
        text TEXT NOT NULL,
        image TEXT,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, id);

    CREATE TABLE IF NOT EXISTS consents (
        user_id TEXT PRIMARY KEY,
        has_consented BOOLEAN NOT NULL DEFAULT FALSE,
        timestamp DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods
func (s *SQLiteStore) FindSession(ctx context.Context, userID string, mode Mode) (*Session, error) {
	var id int64
	sess := Session{UserID: userID, Mode: mode}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at, updated_at FROM sessions WHERE user_id = ? AND mode = ?",
		userID, string(mode)).Scan(&id, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	messages, err := s.getMessagesBySessionID(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = messages
	return &sess, nil
}

func (s *SQLiteStore) UpsertSession(ctx context.Context, userID string, mode Mode) (*Session, error) {
	if _, err := s.ensureSession(ctx, s.db, userID, mode); err != nil {
		return nil, err
	}
	return s.FindSession(ctx, userID, mode)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) ensureSession(ctx context.Context, q execQuerier, userID string, mode Mode) (int64, error) {
	now := time.Now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO sessions (user_id, mode, created_at, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (user_id, mode) DO NOTHING`,
		userID, string(mode), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert session: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx, "SELECT id FROM sessions WHERE user_id = ? AND mode = ?", userID, string(mode)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, userID string, mode Mode, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	sessionID, err := s.ensureSession(ctx, tx, userID, mode)
	if err != nil {
		return err
	}

	var image sql.NullString
	if msg.Image != "" {
		image = sql.NullString{String: msg.Image, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, text, image, timestamp) VALUES (?, ?, ?, ?, ?)",
		sessionID, string(msg.Role), msg.Text, image, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", msg.Timestamp, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string, mode Mode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE user_id = ? AND mode = ?)",
		userID, string(mode))
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND mode = ?", userID, string(mode))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// Message methods
func (s *SQLiteStore) getMessagesBySessionID(ctx context.Context, sessionID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, text, image, timestamp FROM messages WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var role string
		var image sql.NullString
		if err := rows.Scan(&role, &msg.Text, &image, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = Role(role)
		msg.Image = image.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// Consent methods
func (s *SQLiteStore) GetConsent(ctx context.Context, userID string) (*ConsentRecord, error) {
	rec := ConsentRecord{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		"SELECT has_consented, timestamp FROM consents WHERE user_id = ?", userID).Scan(&rec.HasConsented, &rec.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query consent: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertConsent(ctx context.Context, rec ConsentRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consents (user_id, has_consented, timestamp) VALUES (?, ?, ?)
         ON CONFLICT (user_id) DO UPDATE SET has_consented = excluded.has_consented, timestamp = excluded.timestamp`,
		rec.UserID, rec.HasConsented, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}
