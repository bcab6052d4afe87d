// ABOUTME: Tests for user, access token and adb key persistence
// ABOUTME: Exercises uniqueness constraints and concurrent inserts against real SQLite

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func createTestUser(t *testing.T, s Store, email string) *User {
	t.Helper()
	u := &User{Email: email, Name: "user", Group: "grp-" + email}
	res, err := s.CreateUserIfAbsent(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
	return u
}

func TestCreateUserIfAbsent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	res, err := store.CreateUserIfAbsent(ctx, &User{Email: "a@x.com", Name: "a", IP: "10.0.0.1", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	// Second insert with different fields leaves the first record intact
	res, err = store.CreateUserIfAbsent(ctx, &User{Email: "a@x.com", Name: "other", Group: "g2"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	u, err := store.LoadUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a", u.Name)
	assert.Equal(t, "10.0.0.1", u.IP)
	assert.Equal(t, "g1", u.Group)
	assert.Empty(t, u.AdbKeys)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreateUserIfAbsent_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	results := make([]SaveResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.CreateUserIfAbsent(ctx, &User{
				Email: "race@x.com",
				Name:  "race",
				Group: fmt.Sprintf("g%d", i),
			})
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		inserted += results[i].Inserted
	}
	assert.Equal(t, 1, inserted, "exactly one writer should win")
}

func TestLoadUser_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LoadUser(context.Background(), "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")

	require.NoError(t, store.TouchUser(ctx, "a@x.com", "192.168.1.9"))
	u, err := store.LoadUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.9", u.IP)

	assert.ErrorIs(t, store.TouchUser(ctx, "missing@x.com", ""), ErrNotFound)
}

func TestAccessTokens_SaveLoadRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")

	res, err := store.SaveUserAccessToken(ctx, &AccessToken{Email: "a@x.com", Title: "t1", ID: "id-1", JWT: "jwt-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	tokens, err := store.LoadAccessTokens(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "t1", tokens[0].Title)
	assert.Equal(t, "jwt-1", tokens[0].JWT)

	byID, err := store.LoadAccessTokenByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	n, err := store.RemoveUserAccessToken(ctx, "a@x.com", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.RemoveUserAccessToken(ctx, "a@x.com", "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = store.LoadAccessTokenByID(ctx, "id-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccessTokens_DuplicateTitle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")
	createTestUser(t, store, "b@x.com")

	_, err := store.SaveUserAccessToken(ctx, &AccessToken{Email: "a@x.com", Title: "same", ID: "id-1", JWT: "j"})
	require.NoError(t, err)

	_, err = store.SaveUserAccessToken(ctx, &AccessToken{Email: "a@x.com", Title: "same", ID: "id-2", JWT: "j"})
	assert.ErrorIs(t, err, ErrDuplicateTokenTitle)

	// Titles are scoped per user
	_, err = store.SaveUserAccessToken(ctx, &AccessToken{Email: "b@x.com", Title: "same", ID: "id-3", JWT: "j"})
	assert.NoError(t, err)
}

func TestAccessTokens_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")
	createTestUser(t, store, "b@x.com")

	_, err := store.SaveUserAccessToken(ctx, &AccessToken{Email: "a@x.com", Title: "t1", ID: "id-1", JWT: "j"})
	require.NoError(t, err)

	_, err = store.SaveUserAccessToken(ctx, &AccessToken{Email: "b@x.com", Title: "t2", ID: "id-1", JWT: "j"})
	assert.ErrorIs(t, err, ErrDuplicateTokenID)
	assert.NotErrorIs(t, err, ErrDuplicateTokenTitle)

	tok, err := store.LoadAccessTokenByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", tok.Email)
}

func TestLoadAccessTokens_Empty(t *testing.T) {
	store := setupTestStore(t)

	tokens, err := store.LoadAccessTokens(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)
}

func TestAdbKeys_InsertLookupDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")

	err := store.InsertUserAdbKey(ctx, &AdbKey{Email: "a@x.com", Fingerprint: "aa:bb", Title: "laptop", PublicKey: "QUFB laptop"})
	require.NoError(t, err)

	u, err := store.LoadUser(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, u.AdbKeys, 1)
	assert.Equal(t, "laptop", u.AdbKeys[0].Title)
	assert.Equal(t, "QUFB laptop", u.AdbKeys[0].PublicKey)

	owners, err := store.LookupUsersByAdbKey(ctx, "aa:bb")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "a@x.com", owners[0].Email)
	assert.Len(t, owners[0].AdbKeys, 1)

	// Only the owner can delete
	n, err := store.DeleteUserAdbKey(ctx, "b@x.com", "aa:bb")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.DeleteUserAdbKey(ctx, "a@x.com", "aa:bb")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	owners, err = store.LookupUsersByAdbKey(ctx, "aa:bb")
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestAdbKeys_FingerprintUniqueAcrossUsers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")
	createTestUser(t, store, "b@x.com")

	require.NoError(t, store.InsertUserAdbKey(ctx, &AdbKey{Email: "a@x.com", Fingerprint: "fp", Title: "k"}))

	err := store.InsertUserAdbKey(ctx, &AdbKey{Email: "b@x.com", Fingerprint: "fp", Title: "k"})
	assert.ErrorIs(t, err, ErrDuplicateFingerprint)

	err = store.InsertUserAdbKey(ctx, &AdbKey{Email: "a@x.com", Fingerprint: "fp", Title: "again"})
	assert.ErrorIs(t, err, ErrDuplicateFingerprint)
}

func TestAdbKeys_ConcurrentInsertSingleWinner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createTestUser(t, store, "a@x.com")
	createTestUser(t, store, "b@x.com")

	emails := []string{"a@x.com", "b@x.com", "a@x.com", "b@x.com"}
	errs := make([]error, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			errs[i] = store.InsertUserAdbKey(ctx, &AdbKey{Email: email, Fingerprint: "shared", Title: "k"})
		}(i, email)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateFingerprint)
	}
	assert.Equal(t, 1, wins)

	owners, err := store.LookupUsersByAdbKey(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestAdbKeys_UnknownUserRejected(t *testing.T) {
	store := setupTestStore(t)

	err := store.InsertUserAdbKey(context.Background(), &AdbKey{Email: "ghost@x.com", Fingerprint: "fp", Title: "k"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateFingerprint)
}

func TestPing(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
