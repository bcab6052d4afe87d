// ABOUTME: User directory persistence: lazy creation, lookup and login tracking
// ABOUTME: Creation is insert-or-ignore so concurrent first contacts converge on one row

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadUser retrieves a user and its adb keys by email.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) LoadUser(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT email, name, ip, grp, created_at, last_logged_in_at
		FROM users
		WHERE email = ?
	`

	var u User
	var ip sql.NullString
	var createdAtStr, lastLoginStr string

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&u.Email,
		&u.Name,
		&ip,
		&u.Group,
		&createdAtStr,
		&lastLoginStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.IP = ip.String

	if u.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if u.LastLoggedInAt, err = parseTime(lastLoginStr); err != nil {
		return nil, err
	}

	keys, err := s.listAdbKeys(ctx, email)
	if err != nil {
		return nil, err
	}
	u.AdbKeys = keys

	return &u, nil
}

// CreateUserIfAbsent inserts a user unless one with the same email exists.
func (s *SQLiteStore) CreateUserIfAbsent(ctx context.Context, user *User) (SaveResult, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastLoggedInAt.IsZero() {
		user.LastLoggedInAt = now
	}

	query := `
		INSERT INTO users (email, name, ip, grp, created_at, last_logged_in_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		user.Email,
		user.Name,
		nullString(user.IP),
		user.Group,
		formatTime(user.CreatedAt),
		formatTime(user.LastLoggedInAt),
	)
	if err != nil {
		return SaveResult{}, fmt.Errorf("inserting user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return SaveResult{}, fmt.Errorf("checking rows affected: %w", err)
	}

	if n > 0 {
		s.logger.Debug("created user", "email", user.Email, "group", user.Group)
	}
	return SaveResult{Inserted: int(n)}, nil
}

// TouchUser updates the last login time and origin address of a user.
func (s *SQLiteStore) TouchUser(ctx context.Context, email, ip string) error {
	query := `UPDATE users SET last_logged_in_at = ?, ip = COALESCE(?, ip) WHERE email = ?`

	res, err := s.db.ExecContext(ctx, query, formatTime(time.Now()), nullString(ip), email)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
