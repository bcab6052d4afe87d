// ABOUTME: Store interface and data types for devicefarm-gateway persistence
// ABOUTME: Defines User, AccessToken, AdbKey and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateFingerprint is returned when an adb key fingerprint is already
// registered. Fingerprints are unique across all users.
var ErrDuplicateFingerprint = errors.New("adb key fingerprint already registered")

// ErrDuplicateTokenTitle is returned when a user already holds an access
// token with the same title.
var ErrDuplicateTokenTitle = errors.New("access token title already exists for user")

// ErrDuplicateTokenID is returned when a new access token's id collides with
// any existing token.
var ErrDuplicateTokenID = errors.New("access token id already exists")

// User is a directory entry keyed by email. Users are created lazily the
// first time an administrator provisions something for them.
type User struct {
	Email          string
	Name           string
	IP             string
	Group          string // private notification channel
	CreatedAt      time.Time
	LastLoggedInAt time.Time
	AdbKeys        []AdbKey
}

// AccessToken is a bearer credential issued to a user. ID is what clients
// present; JWT is kept server-side only.
type AccessToken struct {
	Email     string
	Title     string
	ID        string
	JWT       string
	CreatedAt time.Time
}

// AdbKey is a device-debug public key registered to a user.
type AdbKey struct {
	Email       string
	Fingerprint string
	Title       string
	PublicKey   string
	CreatedAt   time.Time
}

// SaveResult reports how many records an idempotent insert actually wrote.
type SaveResult struct {
	Inserted int
}

// Store defines the persistence operations for users, access tokens,
// adb keys, roles and the audit log.
type Store interface {
	// LoadUser returns the user with its adb keys, or ErrNotFound.
	LoadUser(ctx context.Context, email string) (*User, error)

	// CreateUserIfAbsent inserts the user unless a record with the same
	// email exists. Inserted is 0 when another writer got there first.
	CreateUserIfAbsent(ctx context.Context, user *User) (SaveResult, error)

	// TouchUser records a login from ip.
	TouchUser(ctx context.Context, email, ip string) error

	LoadAccessTokens(ctx context.Context, email string) ([]AccessToken, error)
	LoadAccessTokenByID(ctx context.Context, id string) (*AccessToken, error)
	SaveUserAccessToken(ctx context.Context, token *AccessToken) (SaveResult, error)
	RemoveUserAccessToken(ctx context.Context, email, title string) (int, error)

	LookupUsersByAdbKey(ctx context.Context, fingerprint string) ([]User, error)
	InsertUserAdbKey(ctx context.Context, key *AdbKey) error
	DeleteUserAdbKey(ctx context.Context, email, fingerprint string) (int, error)

	AddRole(ctx context.Context, email string, role RoleName) error
	RemoveRole(ctx context.Context, email string, role RoleName) error
	HasRole(ctx context.Context, email string, role RoleName) (bool, error)
	ListRoles(ctx context.Context, email string) ([]RoleName, error)

	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
