// ABOUTME: Shared helpers for gateway HTTP tests
// ABOUTME: Builds a gateway over MockStore and issues signed bearer credentials

package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/devicefarm-gateway/internal/adbkey"
	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/config"
	"github.com/2389/devicefarm-gateway/internal/store"
)

const (
	testSecret = "gateway-test-secret-32-bytes-ok!"
	adminEmail = "server@server.com"
	adminGroup = "grp-server"
)

type testGateway struct {
	*Gateway
	store *store.MockStore
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr:          "127.0.0.1:0",
			RequestTimeout:    5 * time.Second,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   2 * time.Second,
		},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:   testSecret,
			Admins:      []string{adminEmail, "q@q.com"},
			AdminPolicy: auth.PolicyStatic,
		},
		Bus: config.BusConfig{BufferSize: 8},
	}
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	st := store.NewMockStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw, err := NewWithStore(newTestConfig(), st, logger)
	require.NoError(t, err)
	t.Cleanup(func() { gw.bus.Close() })

	// Pin the admin's group so tests can subscribe before the first request.
	_, err = st.CreateUserIfAbsent(context.Background(), &store.User{Email: adminEmail, Name: "server", Group: adminGroup})
	require.NoError(t, err)

	return &testGateway{Gateway: gw, store: st}
}

// bearerFor signs a login-style JWT for email.
func bearerFor(t *testing.T, email string) string {
	t.Helper()
	signer, err := auth.NewJWTSigner([]byte(testSecret))
	require.NoError(t, err)
	tok, err := signer.Sign(auth.Identity{Email: email, Name: email})
	require.NoError(t, err)
	return tok
}

// do sends a request through the full handler chain.
func (tg *testGateway) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newADBKey(t *testing.T, comment string) (string, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	line, err := adbkey.MarshalADB(&priv.PublicKey, comment)
	require.NoError(t, err)
	k, err := adbkey.Parse(line)
	require.NoError(t, err)
	return line, k.Fingerprint
}
