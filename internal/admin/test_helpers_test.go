// ABOUTME: Shared test helpers for admin package tests
// ABOUTME: Builds a Service over MockStore with a recording notifier and real key material

package admin

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/devicefarm-gateway/internal/adbkey"
	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// testSecret is a 32-byte secret that meets MinSecretLength requirement.
var testSecret = []byte("admin-token-test-secret-32bytes!")

const (
	adminEmail = "server@server.com"
	adminGroup = "grp-admin"
)

// recordingNotifier captures notification groups.
type recordingNotifier struct {
	mu     sync.Mutex
	groups []string
	err    error
}

func (n *recordingNotifier) NotifyAdbKeysUpdated(_ context.Context, group string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groups = append(n.groups, group)
	return n.err
}

func (n *recordingNotifier) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.groups...)
}

type testEnv struct {
	svc      *Service
	store    *store.MockStore
	signer   *auth.JWTSigner
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	signer, err := auth.NewJWTSigner(testSecret)
	require.NoError(t, err)

	st := store.NewMockStore()
	notifier := &recordingNotifier{}

	return &testEnv{
		svc:      NewService(st, newTestEnvPolicy(), signer, notifier),
		store:    st,
		signer:   signer,
		notifier: notifier,
	}
}

func newTestEnvPolicy() auth.Policy {
	return auth.NewStaticPolicy([]string{adminEmail, "q@q.com"})
}

// createAdminContext returns a context authenticated as the admin caller.
func createAdminContext() context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		Email:  adminEmail,
		Name:   "server",
		Group:  adminGroup,
		Method: auth.MethodJWT,
	})
}

// createUserContext returns a context authenticated as a non-admin caller.
func createUserContext(email string) context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		Email:  email,
		Group:  "grp-" + email,
		Method: auth.MethodJWT,
	})
}

// generateADBKey returns a fresh adbkey.pub line with the given comment.
func generateADBKey(t *testing.T, comment string) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	line, err := adbkey.MarshalADB(&priv.PublicKey, comment)
	require.NoError(t, err)
	return line
}

func fingerprintOf(t *testing.T, publicKey string) string {
	t.Helper()
	k, err := adbkey.Parse(publicKey)
	require.NoError(t, err)
	return k.Fingerprint
}
