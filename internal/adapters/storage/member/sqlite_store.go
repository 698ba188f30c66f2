package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"buff/internal/adapters/storage"
	"buff/internal/domain/identity"
	domain "buff/internal/domain/member"
)

const memberColumns = "id, email, full_name, password_hash, provider, subject, photo_url, created_at, last_updated, failed_logins, locked_until, membership, sessions, payments, assigned_trainer"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new member Store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMember(row rowScanner) (domain.Member, error) {
	var m domain.Member
	var createdAt, lastUpdated string
	var lockedUntil sql.NullString
	var docs documents
	var trainer sql.NullString
	var membership, sessions, payments string
	err := row.Scan(
		&m.ID,
		&m.Email,
		&m.FullName,
		&m.Credential.PasswordHash,
		&m.Credential.Provider,
		&m.Credential.Subject,
		&m.PhotoURL,
		&createdAt,
		&lastUpdated,
		&m.FailedLogins,
		&lockedUntil,
		&membership,
		&sessions,
		&payments,
		&trainer,
	)
	if err != nil {
		return domain.Member{}, err
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Member{}, fmt.Errorf("parse created_at: %w", err)
	}
	if m.LastUpdated, err = time.Parse(time.RFC3339Nano, lastUpdated); err != nil {
		return domain.Member{}, fmt.Errorf("parse last_updated: %w", err)
	}
	if lockedUntil.Valid && lockedUntil.String != "" {
		if m.LockedUntil, err = time.Parse(time.RFC3339Nano, lockedUntil.String); err != nil {
			return domain.Member{}, fmt.Errorf("parse locked_until: %w", err)
		}
	}
	docs.membership = []byte(membership)
	docs.sessions = []byte(sessions)
	docs.payments = []byte(payments)
	if trainer.Valid {
		docs.trainer = []byte(trainer.String)
	}
	if err := docs.decodeInto(&m); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

// timeLayout is fixed-width so TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableDoc(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// FindByEmail looks up a member by email, ignoring case.
// PRE: email is non-empty
// POST: returns (member, true, nil) on a single match, ErrDataIntegrity on several
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (domain.Member, bool, error) {
	query := "SELECT " + memberColumns + " FROM members WHERE email = ? COLLATE NOCASE LIMIT 2"
	rows, err := s.db.QueryContext(ctx, query, domain.NormalizeEmail(email))
	if err != nil {
		return domain.Member{}, false, unavailable("find member by email", err)
	}
	defer rows.Close()

	var found []domain.Member
	for rows.Next() {
		m, err := scanSQLiteMember(rows)
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
// PRE: value has been validated
// POST: row persisted, or ErrAlreadyExists / ErrEmailInUse on a conflict
func (s *SQLiteStore) Create(ctx context.Context, value domain.Member) error {
	docs, err := encodeDocuments(value)
	if err != nil {
		return err
	}
	query := "INSERT INTO members (" + memberColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = s.db.ExecContext(ctx, query,
		value.ID,
		domain.NormalizeEmail(value.Email),
		value.FullName,
		value.Credential.PasswordHash,
		value.Credential.Provider,
		value.Credential.Subject,
		value.PhotoURL,
		formatTime(value.CreatedAt),
		formatTime(value.LastUpdated),
		value.FailedLogins,
		nullableTime(value.LockedUntil),
		string(docs.membership),
		string(docs.sessions),
		string(docs.payments),
		nullableDoc(docs.trainer),
	)
	if err != nil {
		return classifySQLiteInsert(value.ID, err)
	}
	return nil
}

// classifySQLiteInsert maps constraint violations to identity error kinds.
func classifySQLiteInsert(id string, err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("member %s: %w", id, identity.ErrAlreadyExists)
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			if strings.Contains(serr.Error(), "members.id") {
				return fmt.Errorf("member %s: %w", id, identity.ErrAlreadyExists)
			}
			return fmt.Errorf("member %s: %w", id, identity.ErrEmailInUse)
		}
	}
	return unavailable("create member", err)
}

// Get retrieves a member by ID.
// POST: absent members return (zero, false, nil)
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Member, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	m, err := scanSQLiteMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, false, nil
	}
	if err != nil {
		return domain.Member{}, false, unavailable("get member", err)
	}
	return m, true, nil
}

// Update merges patch into the stored member and stamps LastUpdated.
// PRE: id is non-empty
// POST: only fields set in patch change; ErrNotFound if the member is absent
func (s *SQLiteStore) Update(ctx context.Context, id string, patch domain.Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin update", err)
	}
	defer tx.Rollback()

	m, err := scanSQLiteMember(tx.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = tx.ExecContext(ctx, `UPDATE members SET
		full_name = ?, password_hash = ?, provider = ?, subject = ?, photo_url = ?,
		last_updated = ?, failed_logins = ?, locked_until = ?,
		membership = ?, sessions = ?, payments = ?, assigned_trainer = ?
		WHERE id = ?`,
		m.FullName,
		m.Credential.PasswordHash,
		m.Credential.Provider,
		m.Credential.Subject,
		m.PhotoURL,
		formatTime(m.LastUpdated),
		m.FailedLogins,
		nullableTime(m.LockedUntil),
		string(docs.membership),
		string(docs.sessions),
		string(docs.payments),
		nullableDoc(docs.trainer),
		id,
	)
	if err != nil {
		return unavailable("update member", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit update", err)
	}
	return nil
}

// List returns members ordered by creation time.
// POST: at most filter.Limit rows (DefaultListLimit when unset)
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Member, error) {
	query := "SELECT " + memberColumns + " FROM members"
	var args []any
	if filter.Provider != "" {
		query += " WHERE provider = ?"
		args = append(args, filter.Provider)
	}
	query += " ORDER BY created_at, id LIMIT ? OFFSET ?"
	args = append(args, filter.limit(), filter.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list members", err)
	}
	defer rows.Close()

	var results []domain.Member
	for rows.Next() {
		m, err := scanSQLiteMember(rows)
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
