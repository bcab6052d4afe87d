// ABOUTME: Role entity and store methods for authorization
// ABOUTME: Roles mark users as administrators of the provisioning API

package store

import (
	"context"
	"fmt"
	"time"
)

// RoleName represents a role that can be assigned
type RoleName string

const (
	RoleOwner  RoleName = "owner"
	RoleAdmin  RoleName = "admin"
	RoleMember RoleName = "member"
)

// ValidRoleNames lists all valid role names
var ValidRoleNames = []RoleName{
	RoleOwner,
	RoleAdmin,
	RoleMember,
}

// IsValidRole reports whether name is one of ValidRoleNames.
func IsValidRole(name RoleName) bool {
	for _, r := range ValidRoleNames {
		if r == name {
			return true
		}
	}
	return false
}

// AddRole adds a role to a user email. This operation is idempotent - adding
// an existing role succeeds silently. The user record need not exist yet.
func (s *SQLiteStore) AddRole(ctx context.Context, email string, role RoleName) error {
	query := `
		INSERT OR IGNORE INTO roles (email, role, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		email,
		role,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}

	s.logger.Debug("added role", "email", email, "role", role)
	return nil
}

// RemoveRole removes a role from a user. This operation is idempotent -
// removing a non-existent role succeeds silently.
func (s *SQLiteStore) RemoveRole(ctx context.Context, email string, role RoleName) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE email = ? AND role = ?`, email, role)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "email", email, "role", role)
	return nil
}

// HasRole checks if a user has a specific role. Returns false for
// unknown users (not an error).
func (s *SQLiteStore) HasRole(ctx context.Context, email string, role RoleName) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM roles WHERE email = ? AND role = ?`, email, role).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}

	return count > 0, nil
}

// ListRoles returns all roles assigned to a user. Returns an empty slice
// if the user has no roles.
func (s *SQLiteStore) ListRoles(ctx context.Context, email string) ([]RoleName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM roles WHERE email = ? ORDER BY role`, email)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleName{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, RoleName(role))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	return roles, nil
}
