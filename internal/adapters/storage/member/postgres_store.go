package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"buff/internal/domain/identity"
	domain "buff/internal/domain/member"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
// pgxmock.PgxPoolIface satisfies it as well.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresStore creates a member Store backed by Postgres.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func scanPostgresMember(row pgx.Row) (domain.Member, error) {
	var m domain.Member
	var lockedUntil *time.Time
	var docs documents
	err := row.Scan(
		&m.ID,
		&m.Email,
		&m.FullName,
		&m.Credential.PasswordHash,
		&m.Credential.Provider,
		&m.Credential.Subject,
		&m.PhotoURL,
		&m.CreatedAt,
		&m.LastUpdated,
		&m.FailedLogins,
		&lockedUntil,
		&docs.membership,
		&docs.sessions,
		&docs.payments,
		&docs.trainer,
	)
	if err != nil {
		return domain.Member{}, err
	}
	if lockedUntil != nil {
		m.LockedUntil = *lockedUntil
	}
	if err := docs.decodeInto(&m); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func pgTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func pgDoc(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// FindByEmail looks up a member by email, ignoring case.
// POST: returns ErrDataIntegrity when more than one row matches
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (domain.Member, bool, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+memberColumns+" FROM members WHERE lower(email) = lower($1) LIMIT 2",
		domain.NormalizeEmail(email))
	if err != nil {
		return domain.Member{}, false, unavailable("find member by email", err)
	}
	defer rows.Close()

	var found []domain.Member
	for rows.Next() {
		m, err := scanPostgresMember(rows)
		if err != nil {
			return domain.Member{}, false, unavailable("scan member", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return domain.Member{}, false, unavailable("find member by email", err)
	}
	switch len(found) {
	case 0:
		return domain.Member{}, false, nil
	case 1:
		return found[0], true, nil
	default:
		return domain.Member{}, false, fmt.Errorf("email %q: %w", email, identity.ErrDataIntegrity)
	}
}

// Create inserts a new member.
// POST: unique violations map to ErrAlreadyExists (id) or ErrEmailInUse (email)
func (s *PostgresStore) Create(ctx context.Context, value domain.Member) error {
	docs, err := encodeDocuments(value)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO members ("+memberColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
		value.ID,
		domain.NormalizeEmail(value.Email),
		value.FullName,
		value.Credential.PasswordHash,
		value.Credential.Provider,
		value.Credential.Subject,
		value.PhotoURL,
		value.CreatedAt.UTC(),
		value.LastUpdated.UTC(),
		value.FailedLogins,
		pgTime(value.LockedUntil),
		string(docs.membership),
		string(docs.sessions),
		string(docs.payments),
		pgDoc(docs.trainer),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == "members_email_key" {
				return fmt.Errorf("member %s: %w", value.ID, identity.ErrEmailInUse)
			}
			return fmt.Errorf("member %s: %w", value.ID, identity.ErrAlreadyExists)
		}
		return unavailable("create member", err)
	}
	return nil
}

// Get retrieves a member by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Member, bool, error) {
	m, err := scanPostgresMember(s.pool.QueryRow(ctx, "SELECT "+memberColumns+" FROM members WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Member{}, false, nil
	}
	if err != nil {
		return domain.Member{}, false, unavailable("get member", err)
	}
	return m, true, nil
}

// Update merges patch into the stored member under a row lock.
// POST: ErrNotFound if the member is absent
func (s *PostgresStore) Update(ctx context.Context, id string, patch domain.Patch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin update", err)
	}
	defer tx.Rollback(ctx)

	m, err := scanPostgresMember(tx.QueryRow(ctx, "SELECT "+memberColumns+" FROM members WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("member %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return unavailable("load member for update", err)
	}

	patch.Apply(&m, s.now())
	docs, err := encodeDocuments(m)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE members SET
		full_name = $2, password_hash = $3, provider = $4, subject = $5, photo_url = $6,
		last_updated = $7, failed_logins = $8, locked_until = $9,
		membership = $10, sessions = $11, payments = $12, assigned_trainer = $13
		WHERE id = $1`,
		id,
		m.FullName,
		m.Credential.PasswordHash,
		m.Credential.Provider,
		m.Credential.Subject,
		m.PhotoURL,
		m.LastUpdated.UTC(),
		m.FailedLogins,
		pgTime(m.LockedUntil),
		string(docs.membership),
		string(docs.sessions),
		string(docs.payments),
		pgDoc(docs.trainer),
	)
	if err != nil {
		return unavailable("update member", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit update", err)
	}
	return nil
}

// List returns members ordered by creation time.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]domain.Member, error) {
	query := "SELECT " + memberColumns + " FROM members"
	var args []any
	if filter.Provider != "" {
		args = append(args, filter.Provider)
		query += " WHERE provider = $1"
	}
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	defer rows.Close()

	var results []domain.Member
	for rows.Next() {
		m, err := scanPostgresMember(rows)
		if err != nil {
			return nil, unavailable("scan member", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list members", err)
	}
	return results, nil
}
