// Package session persists who is signed in on this device, so a client
// can resume without logging in again.
package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pliu/socialsync/internal/errors"
	_ "modernc.org/sqlite"
)

type Session struct {
	UserID   string
	Username string
	Token    string
	SavedAt  time.Time
}

type Store interface {
	// Load returns NOT_FOUND when nobody is signed in.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the single current session in a local database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates path's directory if needed. Use ":memory:" for a throwaway
// store.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(errors.ErrInternal, "create session directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "open session database", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS session (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		user_id TEXT NOT NULL,
		username TEXT NOT NULL,
		token TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrInternal, "create session table", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Session, error) {
	var sess Session
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, username, token, saved_at FROM session WHERE slot = 1").
		Scan(&sess.UserID, &sess.Username, &sess.Token, &savedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrNotFound, "no saved session")
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "load session", err)
	}
	sess.SavedAt = time.Unix(0, savedAt).UTC()
	return &sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess Session) error {
	if sess.UserID == "" {
		return errors.New(errors.ErrValidation, "session needs a user id")
	}
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO session (slot, user_id, username, token, saved_at) VALUES (1, ?, ?, ?, ?)
	ON CONFLICT (slot) DO UPDATE SET
		user_id = excluded.user_id,
		username = excluded.username,
		token = excluded.token,
		saved_at = excluded.saved_at`,
		sess.UserID, sess.Username, sess.Token, sess.SavedAt.UnixNano())
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "save session", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session"); err != nil {
		return errors.Wrap(errors.ErrInternal, "clear session", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a Store that forgets everything when the process exits.
type MemoryStore struct {
	mu   sync.Mutex
	sess *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, errors.New(errors.ErrNotFound, "no saved session")
	}
	sess := *m.sess
	return &sess, nil
}

func (m *MemoryStore) Save(ctx context.Context, sess Session) error {
	if sess.UserID == "" {
		return errors.New(errors.ErrValidation, "session needs a user id")
	}
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &sess
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
