// ABOUTME: Tests for adb key registration and revocation
// ABOUTME: Covers fingerprint conflicts, idempotent re-adds, notifications and concurrent registration

package admin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/devicefarm-gateway/internal/adbkey"
	"github.com/2389/devicefarm-gateway/internal/store"
)

func TestAddAdbKey_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()
	pub := generateADBKey(t, "dev@laptop")
	fp := fingerprintOf(t, pub)

	res, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "dev@x.com", PublicKey: pub, OriginIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, fp, res.Fingerprint)
	assert.Equal(t, "dev@laptop", res.Title)
	assert.False(t, res.Existing)
	assert.Equal(t, []string{adminGroup}, env.notifier.calls())

	owners, err := env.store.LookupUsersByAdbKey(context.Background(), fp)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "dev@x.com", owners[0].Email)

	require.NoError(t, env.svc.RemoveAdbKey(ctx, RemoveAdbKeyRequest{Email: "dev@x.com", Fingerprint: fp}))
	assert.Len(t, env.notifier.calls(), 2)

	owners, err = env.store.LookupUsersByAdbKey(context.Background(), fp)
	require.NoError(t, err)
	assert.Empty(t, owners)

	err = env.svc.RemoveAdbKey(ctx, RemoveAdbKeyRequest{Email: "dev@x.com", Fingerprint: fp})
	assert.Equal(t, KindOwnership, KindOf(err))
	assert.Equal(t, "Adb key not found or not owned by the user", MessageOf(err))
	assert.Len(t, env.notifier.calls(), 2)
}

func TestAddAdbKey_TitleFallbacks(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()

	explicit := generateADBKey(t, "comment")
	res, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com", PublicKey: explicit, Title: "Pixel bench"})
	require.NoError(t, err)
	assert.Equal(t, "Pixel bench", res.Title)

	bare := generateADBKey(t, "")
	res, err = env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com", PublicKey: bare})
	require.NoError(t, err)
	assert.Equal(t, res.Fingerprint, res.Title)
}

func TestAddAdbKey_SameUserTwiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()
	pub := generateADBKey(t, "first")

	_, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com", PublicKey: pub})
	require.NoError(t, err)

	res, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com", PublicKey: pub, Title: "renamed"})
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Equal(t, "first", res.Title, "stored title is kept")
	assert.Len(t, env.notifier.calls(), 1, "nothing changed, nothing announced")

	user, err := env.store.LoadUser(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Len(t, user.AdbKeys, 1)
}

func TestAddAdbKey_HeldByAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()
	pub := generateADBKey(t, "shared")

	_, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "owner@x.com", PublicKey: pub})
	require.NoError(t, err)

	_, err = env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "thief@x.com", PublicKey: pub})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "Adb public key is already added to a user: owner@x.com", MessageOf(err))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "owner@x.com", e.Owner)

	owners, err := env.store.LookupUsersByAdbKey(context.Background(), fingerprintOf(t, pub))
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "owner@x.com", owners[0].Email)
	assert.Len(t, env.notifier.calls(), 1)
}

func TestAddAdbKey_NonAdminScenario(t *testing.T) {
	env := newTestEnv(t)
	pub := generateADBKey(t, "eve")

	_, err := env.svc.AddAdbKey(createUserContext("eve@x.com"), AddAdbKeyRequest{Email: "eve@x.com", PublicKey: pub})
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Equal(t, "User is unauthorized to add adb public key", MessageOf(err))

	_, err = env.store.LoadUser(context.Background(), "eve@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
	owners, err := env.store.LookupUsersByAdbKey(context.Background(), fingerprintOf(t, pub))
	require.NoError(t, err)
	assert.Empty(t, owners)
	assert.Empty(t, env.notifier.calls())
}

func TestAddAdbKey_InvalidKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()

	_, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com", PublicKey: "not a key"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Invalid adb public key", MessageOf(err))

	_, err = env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "a@x.com"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, env.notifier.calls())
}

func TestAddAdbKey_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetErr(errors.New("db down"))

	_, err := env.svc.AddAdbKey(createAdminContext(), AddAdbKeyRequest{Email: "a@x.com", PublicKey: generateADBKey(t, "k")})
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, "Unable to insert new adb key fingerprint to database", MessageOf(err))
	assert.Empty(t, env.notifier.calls())
}

func TestAddAdbKey_NotifierFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("bus down")

	_, err := env.svc.AddAdbKey(createAdminContext(), AddAdbKeyRequest{Email: "a@x.com", PublicKey: generateADBKey(t, "k")})
	require.NoError(t, err)
	assert.Len(t, env.notifier.calls(), 1)
}

func TestAddAdbKey_ConcurrentSameFingerprint(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()
	pub := generateADBKey(t, "race")

	emails := []string{"u0@x.com", "u1@x.com", "u2@x.com", "u3@x.com", "u4@x.com", "u5@x.com"}
	errs := make([]error, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			_, errs[i] = env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: email, PublicKey: pub})
		}(i, email)
	}
	wg.Wait()

	owners, err := env.store.LookupUsersByAdbKey(context.Background(), fingerprintOf(t, pub))
	require.NoError(t, err)
	require.Len(t, owners, 1)
	winner := owners[0].Email

	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			assert.Equal(t, winner, emails[i])
			continue
		}
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, "Adb public key is already added to a user: "+winner, MessageOf(err))
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, env.notifier.calls(), 1)
}

func TestRemoveAdbKey_OwnedByOtherUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := createAdminContext()
	pub := generateADBKey(t, "k")

	_, err := env.svc.AddAdbKey(ctx, AddAdbKeyRequest{Email: "owner@x.com", PublicKey: pub})
	require.NoError(t, err)
	_, err = env.svc.CreateAccessToken(ctx, CreateAccessTokenRequest{Email: "other@x.com"})
	require.NoError(t, err)

	err = env.svc.RemoveAdbKey(ctx, RemoveAdbKeyRequest{Email: "other@x.com", Fingerprint: fingerprintOf(t, pub)})
	assert.Equal(t, KindOwnership, KindOf(err))

	owners, _ := env.store.LookupUsersByAdbKey(context.Background(), fingerprintOf(t, pub))
	assert.Len(t, owners, 1)
}

func TestRemoveAdbKey_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.RemoveAdbKey(createAdminContext(), RemoveAdbKeyRequest{Email: "ghost@x.com", Fingerprint: "aa:bb"})
	assert.Equal(t, KindOwnership, KindOf(err))

	_, err = env.store.LoadUser(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound, "revocation never creates users")
}

func TestRemoveAdbKey_NonAdmin(t *testing.T) {
	env := newTestEnv(t)
	pub := generateADBKey(t, "k")
	_, err := env.svc.AddAdbKey(createAdminContext(), AddAdbKeyRequest{Email: "a@x.com", PublicKey: pub})
	require.NoError(t, err)

	err = env.svc.RemoveAdbKey(createUserContext("a@x.com"), RemoveAdbKeyRequest{Email: "a@x.com", Fingerprint: fingerprintOf(t, pub)})
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Equal(t, "User is unauthorized to delete adb public key", MessageOf(err))
	assert.Len(t, env.notifier.calls(), 1)
}

func TestRemoveAdbKey_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetErr(errors.New("db down"))

	err := env.svc.RemoveAdbKey(createAdminContext(), RemoveAdbKeyRequest{Email: "a@x.com", Fingerprint: "aa"})
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, "Failed to delete adb key from database", MessageOf(err))
}

type stubParser struct {
	key *adbkey.Key
	err error
}

func (p stubParser) Parse(string) (*adbkey.Key, error) { return p.key, p.err }

func TestAddAdbKey_CustomParser(t *testing.T) {
	signer := newTestEnv(t).signer
	st := store.NewMockStore()
	svc := NewService(st, newTestEnvPolicy(), signer, nil,
		WithParser(stubParser{key: &adbkey.Key{Fingerprint: "de:ad:be:ef", Comment: "stub"}}))

	res, err := svc.AddAdbKey(createAdminContext(), AddAdbKeyRequest{Email: "a@x.com", PublicKey: "opaque"})
	require.NoError(t, err)
	assert.Equal(t, "de:ad:be:ef", res.Fingerprint)
	assert.Equal(t, "stub", res.Title)
}

func TestAddAdbKey_ParserDetailStaysInLog(t *testing.T) {
	signer := newTestEnv(t).signer
	st := store.NewMockStore()
	svc := NewService(st, newTestEnvPolicy(), signer, nil,
		WithParser(stubParser{err: errors.New("rsa modulus length 17 at offset 4")}))

	_, err := svc.AddAdbKey(createAdminContext(), AddAdbKeyRequest{Email: "a@x.com", PublicKey: "opaque"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Invalid adb public key", MessageOf(err))
	assert.NotContains(t, err.Error(), "offset")
}
