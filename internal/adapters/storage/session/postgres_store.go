package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domain "buff/internal/domain/session"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresStore creates a session registry backed by Postgres.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Create persists a session keyed by the digest of its token.
func (s *PostgresStore) Create(ctx context.Context, sess domain.Session) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (token_hash, member_id, method, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)",
		hashToken(sess.Token), sess.MemberID, string(sess.Method), sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return unavailable("create session", err)
	}
	return nil
}

// Get retrieves a live session by token.
func (s *PostgresStore) Get(ctx context.Context, token string) (domain.Session, bool, error) {
	key := hashToken(token)
	var sess domain.Session
	var method string
	err := s.pool.QueryRow(ctx,
		"SELECT member_id, method, created_at, expires_at FROM sessions WHERE token_hash = $1", key,
	).Scan(&sess.MemberID, &method, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, unavailable("get session", err)
	}
	sess.Token = token
	sess.Method = domain.Method(method)
	if sess.IsExpired(s.now()) {
		if _, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", key); err != nil {
			return domain.Session{}, false, unavailable("delete expired session", err)
		}
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

// Delete removes a session by token.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", hashToken(token)); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// DeleteForMember removes every session of memberID.
func (s *PostgresStore) DeleteForMember(ctx context.Context, memberID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE member_id = $1", memberID); err != nil {
		return unavailable("delete member sessions", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired at or before now.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1", now.UTC())
	if err != nil {
		return 0, unavailable("purge sessions", err)
	}
	return tag.RowsAffected(), nil
}
