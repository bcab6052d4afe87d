// ABOUTME: Access token persistence keyed by (email, title) with a globally unique id
// ABOUTME: Save and remove report affected counts so callers can detect lost races

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoadAccessTokens returns every token owned by email, oldest first.
// Returns an empty slice if the user has none.
func (s *SQLiteStore) LoadAccessTokens(ctx context.Context, email string) ([]AccessToken, error) {
	query := `
		SELECT email, title, id, jwt, created_at
		FROM access_tokens
		WHERE email = ?
		ORDER BY created_at, title
	`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("querying access tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tokens := []AccessToken{}
	for rows.Next() {
		t, err := scanAccessToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access tokens: %w", err)
	}
	return tokens, nil
}

// LoadAccessTokenByID resolves a presented bearer id to its token.
// Returns ErrNotFound if no token has that id.
func (s *SQLiteStore) LoadAccessTokenByID(ctx context.Context, id string) (*AccessToken, error) {
	query := `
		SELECT email, title, id, jwt, created_at
		FROM access_tokens
		WHERE id = ?
	`

	t, err := scanAccessToken(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveUserAccessToken stores a token. A second token with the same title
// for the same user returns ErrDuplicateTokenTitle; an id already used by
// any token returns ErrDuplicateTokenID.
func (s *SQLiteStore) SaveUserAccessToken(ctx context.Context, token *AccessToken) (SaveResult, error) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO access_tokens (email, title, id, jwt, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		token.Email,
		token.Title,
		token.ID,
		token.JWT,
		formatTime(token.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			if strings.Contains(err.Error(), "access_tokens.id") {
				return SaveResult{}, fmt.Errorf("%w: %v", ErrDuplicateTokenID, err)
			}
			return SaveResult{}, fmt.Errorf("%w: %v", ErrDuplicateTokenTitle, err)
		}
		return SaveResult{}, fmt.Errorf("inserting access token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return SaveResult{}, fmt.Errorf("checking rows affected: %w", err)
	}

	s.logger.Debug("saved access token", "email", token.Email, "title", token.Title)
	return SaveResult{Inserted: int(n)}, nil
}

// RemoveUserAccessToken deletes the token with the given title and returns
// how many rows were removed (0 or 1).
func (s *SQLiteStore) RemoveUserAccessToken(ctx context.Context, email, title string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE email = ? AND title = ?`, email, title)
	if err != nil {
		return 0, fmt.Errorf("deleting access token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	s.logger.Debug("removed access token", "email", email, "title", title, "deleted", n)
	return int(n), nil
}

func scanAccessToken(scanner interface{ Scan(dest ...any) error }) (AccessToken, error) {
	var t AccessToken
	var createdAtStr string

	if err := scanner.Scan(&t.Email, &t.Title, &t.ID, &t.JWT, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scanning access token: %w", err)
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return t, err
	}
	return t, nil
}
