// ABOUTME: Tests for lazy user creation
// ABOUTME: Concurrent first contacts must converge on a single stored record

package admin

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/devicefarm-gateway/internal/store"
)

func TestEnsureUser_CreatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.EnsureUser(ctx, adminEmail, "new.user@x.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "new-user", first.Name)
	assert.Equal(t, "10.0.0.1", first.IP)
	assert.Regexp(t, hex32, first.Group)

	second, err := env.svc.EnsureUser(ctx, adminEmail, "new.user@x.com", "10.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, first.Group, second.Group)
	assert.Equal(t, "10.0.0.1", second.IP, "existing record is not rewritten")

	action := store.AuditCreateUser
	entries, err := env.store.ListAuditLog(ctx, store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, adminEmail, entries[0].Actor)
	assert.Equal(t, "new.user@x.com", entries[0].TargetID)
}

func TestEnsureUser_ConcurrentFirstContact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 16
	groups := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := env.svc.EnsureUser(ctx, adminEmail, "race@x.com", "")
			errs[i] = err
			if u != nil {
				groups[i] = u.Group
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, groups[0], groups[i], "all callers observe the stored record")
	}

	action := store.AuditCreateUser
	entries, err := env.store.ListAuditLog(ctx, store.AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsureUser_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.EnsureUser(context.Background(), adminEmail, "bad", "")
	assert.Equal(t, KindValidation, KindOf(err))
}
