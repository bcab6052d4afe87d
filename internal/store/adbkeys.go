// ABOUTME: Adb public key persistence with a system-wide unique fingerprint
// ABOUTME: The fingerprint primary key is the authority on key ownership

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertUserAdbKey registers a key for key.Email. If any user already holds
// the fingerprint it returns ErrDuplicateFingerprint.
func (s *SQLiteStore) InsertUserAdbKey(ctx context.Context, key *AdbKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO adb_keys (fingerprint, email, title, public_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.Fingerprint,
		key.Email,
		key.Title,
		nullString(key.PublicKey),
		formatTime(key.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateFingerprint
		}
		return fmt.Errorf("inserting adb key: %w", err)
	}

	s.logger.Debug("inserted adb key", "email", key.Email, "fingerprint", key.Fingerprint)
	return nil
}

// LookupUsersByAdbKey returns the users holding the fingerprint. With the
// uniqueness constraint in place this is zero or one user.
func (s *SQLiteStore) LookupUsersByAdbKey(ctx context.Context, fingerprint string) ([]User, error) {
	query := `
		SELECT u.email
		FROM adb_keys k
		JOIN users u ON u.email = k.email
		WHERE k.fingerprint = ?
	`

	rows, err := s.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("querying adb key owners: %w", err)
	}

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning adb key owner: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating adb key owners: %w", err)
	}
	// Release the single connection before LoadUser needs it.
	_ = rows.Close()

	users := make([]User, 0, len(emails))
	for _, email := range emails {
		u, err := s.LoadUser(ctx, email)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// DeleteUserAdbKey removes the key only if email owns it and returns how
// many rows were removed (0 or 1).
func (s *SQLiteStore) DeleteUserAdbKey(ctx context.Context, email, fingerprint string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM adb_keys WHERE email = ? AND fingerprint = ?`, email, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("deleting adb key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	s.logger.Debug("deleted adb key", "email", email, "fingerprint", fingerprint, "deleted", n)
	return int(n), nil
}

func (s *SQLiteStore) listAdbKeys(ctx context.Context, email string) ([]AdbKey, error) {
	query := `
		SELECT fingerprint, email, title, public_key, created_at
		FROM adb_keys
		WHERE email = ?
		ORDER BY created_at, fingerprint
	`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("querying adb keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []AdbKey{}
	for rows.Next() {
		var k AdbKey
		var pub sql.NullString
		var createdAtStr string
		if err := rows.Scan(&k.Fingerprint, &k.Email, &k.Title, &pub, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning adb key: %w", err)
		}
		k.PublicKey = pub.String
		if k.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating adb keys: %w", err)
	}
	return keys, nil
}
