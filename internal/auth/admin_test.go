// ABOUTME: Unit tests for the admin gate policies
// ABOUTME: Covers static allowlist, role lookup, combination and mode selection

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/devicefarm-gateway/internal/store"
)

// mockRoleStore implements RoleChecker for testing
type mockRoleStore struct {
	roles map[string][]store.RoleName
	err   error
}

func (m *mockRoleStore) HasRole(_ context.Context, email string, role store.RoleName) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, r := range m.roles[email] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func TestStaticPolicy(t *testing.T) {
	p := NewStaticPolicy([]string{"server@server.com", " q@q.com ", ""})
	ctx := context.Background()

	tests := []struct {
		email string
		want  bool
	}{
		{"server@server.com", true},
		{"q@q.com", true},
		{"eve@x.com", false},
		{"SERVER@server.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got, err := p.IsAdmin(ctx, tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRolePolicy(t *testing.T) {
	roles := &mockRoleStore{roles: map[string][]store.RoleName{
		"admin@x.com":  {store.RoleAdmin},
		"owner@x.com":  {store.RoleOwner},
		"member@x.com": {store.RoleMember},
	}}
	p := NewRolePolicy(roles)
	ctx := context.Background()

	for email, want := range map[string]bool{
		"admin@x.com":  true,
		"owner@x.com":  true,
		"member@x.com": false,
		"nobody@x.com": false,
	} {
		got, err := p.IsAdmin(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, want, got, email)
	}
}

func TestRolePolicy_Error(t *testing.T) {
	p := NewRolePolicy(&mockRoleStore{err: errors.New("db down")})

	_, err := p.IsAdmin(context.Background(), "admin@x.com")
	assert.Error(t, err)
}

func TestAnyPolicy(t *testing.T) {
	roles := &mockRoleStore{roles: map[string][]store.RoleName{"ops@x.com": {store.RoleAdmin}}}
	p := AnyPolicy{NewStaticPolicy([]string{"server@server.com"}), NewRolePolicy(roles)}
	ctx := context.Background()

	ok, err := p.IsAdmin(ctx, "server@server.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.IsAdmin(ctx, "ops@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.IsAdmin(ctx, "eve@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewPolicy(t *testing.T) {
	roles := &mockRoleStore{roles: map[string][]store.RoleName{"ops@x.com": {store.RoleAdmin}}}
	ctx := context.Background()

	p, err := NewPolicy(PolicyStatic, []string{"a@x.com"}, roles)
	require.NoError(t, err)
	ok, _ := p.IsAdmin(ctx, "ops@x.com")
	assert.False(t, ok, "static mode ignores roles")

	p, err = NewPolicy(PolicyRoles, []string{"a@x.com"}, roles)
	require.NoError(t, err)
	ok, _ = p.IsAdmin(ctx, "a@x.com")
	assert.False(t, ok, "roles mode ignores the allowlist")

	p, err = NewPolicy("", []string{"a@x.com"}, roles)
	require.NoError(t, err)
	ok, _ = p.IsAdmin(ctx, "a@x.com")
	assert.True(t, ok)
	ok, _ = p.IsAdmin(ctx, "ops@x.com")
	assert.True(t, ok)

	_, err = NewPolicy(PolicyRoles, nil, nil)
	assert.Error(t, err)

	_, err = NewPolicy("everyone", nil, roles)
	assert.Error(t, err)
}
