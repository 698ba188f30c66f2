package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"buff/internal/adapters/storage"
	domain "buff/internal/domain/session"
)

// timeLayout is fixed-width so expires_at compares correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a session registry backed by SQLite.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Create persists a session keyed by the digest of its token.
// PRE: the member row exists
func (s *SQLiteStore) Create(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (token_hash, member_id, method, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		hashToken(sess.Token),
		sess.MemberID,
		string(sess.Method),
		sess.CreatedAt.UTC().Format(timeLayout),
		sess.ExpiresAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return unavailable("create session", err)
	}
	return nil
}

// Get retrieves a live session by token.
// POST: expired rows are deleted and reported as absent
func (s *SQLiteStore) Get(ctx context.Context, token string) (domain.Session, bool, error) {
	key := hashToken(token)
	var sess domain.Session
	var method, createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT member_id, method, created_at, expires_at FROM sessions WHERE token_hash = ?", key,
	).Scan(&sess.MemberID, &method, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, unavailable("get session", err)
	}
	sess.Token = token
	sess.Method = domain.Method(method)
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Session{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return domain.Session{}, false, fmt.Errorf("parse expires_at: %w", err)
	}
	if sess.IsExpired(s.now()) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", key); err != nil {
			return domain.Session{}, false, unavailable("delete expired session", err)
		}
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

// Delete removes a session by token.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", hashToken(token)); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// DeleteForMember removes every session of memberID.
func (s *SQLiteStore) DeleteForMember(ctx context.Context, memberID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE member_id = ?", memberID); err != nil {
		return unavailable("delete member sessions", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired at or before now.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC().Format(timeLayout))
	if err != nil {
		return 0, unavailable("purge sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("purge sessions", err)
	}
	return n, nil
}
