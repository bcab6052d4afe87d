// ABOUTME: Mock Store implementation for testing
// ABOUTME: Enforces the same uniqueness rules as SQLite without a database

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface check
var _ Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	users   map[string]*User                   // keyed by email
	tokens  map[string]map[string]*AccessToken // email -> title -> token
	adbKeys map[string]*AdbKey                 // keyed by fingerprint
	roles   map[string]map[RoleName]bool       // email -> roles
	audit   []AuditEntry

	// Err, when set, is returned by every method. Used to simulate an
	// unreachable database.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:   make(map[string]*User),
		tokens:  make(map[string]map[string]*AccessToken),
		adbKeys: make(map[string]*AdbKey),
		roles:   make(map[string]map[RoleName]bool),
	}
}

// LoadUser returns a copy of the user with its adb keys.
func (m *MockStore) LoadUser(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.loadUserLocked(email)
}

func (m *MockStore) loadUserLocked(email string) (*User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, ErrNotFound
	}

	result := *u
	result.AdbKeys = []AdbKey{}
	for _, k := range m.adbKeys {
		if k.Email == email {
			result.AdbKeys = append(result.AdbKeys, *k)
		}
	}
	sort.Slice(result.AdbKeys, func(i, j int) bool {
		return result.AdbKeys[i].Fingerprint < result.AdbKeys[j].Fingerprint
	})
	return &result, nil
}

// CreateUserIfAbsent stores the user unless the email is taken.
func (m *MockStore) CreateUserIfAbsent(ctx context.Context, user *User) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return SaveResult{}, m.Err
	}
	if _, ok := m.users[user.Email]; ok {
		return SaveResult{Inserted: 0}, nil
	}

	u := *user
	u.AdbKeys = nil
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.LastLoggedInAt.IsZero() {
		u.LastLoggedInAt = u.CreatedAt
	}
	m.users[u.Email] = &u
	return SaveResult{Inserted: 1}, nil
}

// TouchUser updates the login time and address.
func (m *MockStore) TouchUser(ctx context.Context, email, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	u, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	u.LastLoggedInAt = time.Now().UTC()
	if ip != "" {
		u.IP = ip
	}
	return nil
}

// LoadAccessTokens returns copies of the user's tokens ordered by title.
func (m *MockStore) LoadAccessTokens(ctx context.Context, email string) ([]AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	result := []AccessToken{}
	for _, t := range m.tokens[email] {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}

// LoadAccessTokenByID finds a token by its bearer id.
func (m *MockStore) LoadAccessTokenByID(ctx context.Context, id string) (*AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, byTitle := range m.tokens {
		for _, t := range byTitle {
			if t.ID == id {
				result := *t
				return &result, nil
			}
		}
	}
	return nil, ErrNotFound
}

// SaveUserAccessToken stores a token, rejecting duplicate titles and ids.
func (m *MockStore) SaveUserAccessToken(ctx context.Context, token *AccessToken) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return SaveResult{}, m.Err
	}
	if _, ok := m.users[token.Email]; !ok {
		return SaveResult{}, ErrNotFound
	}
	byTitle, ok := m.tokens[token.Email]
	if !ok {
		byTitle = make(map[string]*AccessToken)
		m.tokens[token.Email] = byTitle
	}
	if _, exists := byTitle[token.Title]; exists {
		return SaveResult{}, ErrDuplicateTokenTitle
	}
	for _, held := range m.tokens {
		for _, t := range held {
			if t.ID == token.ID {
				return SaveResult{}, ErrDuplicateTokenID
			}
		}
	}

	t := *token
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	byTitle[t.Title] = &t
	return SaveResult{Inserted: 1}, nil
}

// RemoveUserAccessToken deletes a token by title.
func (m *MockStore) RemoveUserAccessToken(ctx context.Context, email, title string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}
	byTitle := m.tokens[email]
	if _, ok := byTitle[title]; !ok {
		return 0, nil
	}
	delete(byTitle, title)
	return 1, nil
}

// LookupUsersByAdbKey returns the owner of a fingerprint, if any.
func (m *MockStore) LookupUsersByAdbKey(ctx context.Context, fingerprint string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	k, ok := m.adbKeys[fingerprint]
	if !ok {
		return []User{}, nil
	}
	u, err := m.loadUserLocked(k.Email)
	if err != nil {
		return []User{}, nil
	}
	return []User{*u}, nil
}

// InsertUserAdbKey registers a key, rejecting fingerprints held by anyone.
func (m *MockStore) InsertUserAdbKey(ctx context.Context, key *AdbKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.users[key.Email]; !ok {
		return ErrNotFound
	}
	if _, exists := m.adbKeys[key.Fingerprint]; exists {
		return ErrDuplicateFingerprint
	}

	k := *key
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	m.adbKeys[k.Fingerprint] = &k
	return nil
}

// DeleteUserAdbKey removes a key owned by email.
func (m *MockStore) DeleteUserAdbKey(ctx context.Context, email, fingerprint string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}
	k, ok := m.adbKeys[fingerprint]
	if !ok || k.Email != email {
		return 0, nil
	}
	delete(m.adbKeys, fingerprint)
	return 1, nil
}

// AddRole grants a role.
func (m *MockStore) AddRole(ctx context.Context, email string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if m.roles[email] == nil {
		m.roles[email] = make(map[RoleName]bool)
	}
	m.roles[email][role] = true
	return nil
}

// RemoveRole revokes a role.
func (m *MockStore) RemoveRole(ctx context.Context, email string, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.roles[email], role)
	return nil
}

// HasRole reports whether email holds role.
func (m *MockStore) HasRole(ctx context.Context, email string, role RoleName) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return false, m.Err
	}
	return m.roles[email][role], nil
}

// ListRoles returns the roles held by email, sorted.
func (m *MockStore) ListRoles(ctx context.Context, email string) ([]RoleName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	roles := []RoleName{}
	for r := range m.roles[email] {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

// AppendAuditLog records an entry in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns entries newest first. Only Actor and Action filters
// are honored.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	limit := normalizeAuditLimit(f.Limit)
	result := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.audit[i]
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// Ping returns Err.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// SetErr makes every subsequent call fail with err (nil restores).
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
