// ABOUTME: Admin gate deciding which callers may provision credentials for others
// ABOUTME: Static allowlist from config, role grants from the store, or either

package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/devicefarm-gateway/internal/store"
)

// Admin policy modes accepted by NewPolicy.
const (
	PolicyStatic = "static"
	PolicyRoles  = "roles"
	PolicyAny    = "any"
)

// Policy decides whether an email may act as an administrator.
type Policy interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
}

// RoleChecker is the subset of the store a RolePolicy needs.
type RoleChecker interface {
	HasRole(ctx context.Context, email string, role store.RoleName) (bool, error)
}

// StaticPolicy admits a fixed set of emails. Matching is exact.
type StaticPolicy struct {
	admins map[string]struct{}
}

// NewStaticPolicy builds a policy from an allowlist. Blank entries are ignored.
func NewStaticPolicy(admins []string) *StaticPolicy {
	p := &StaticPolicy{admins: make(map[string]struct{}, len(admins))}
	for _, a := range admins {
		a = strings.TrimSpace(a)
		if a != "" {
			p.admins[a] = struct{}{}
		}
	}
	return p
}

// IsAdmin implements Policy.
func (p *StaticPolicy) IsAdmin(_ context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	_, ok := p.admins[email]
	return ok, nil
}

// RolePolicy admits emails holding the admin or owner role.
type RolePolicy struct {
	roles RoleChecker
}

// NewRolePolicy creates a RolePolicy backed by roles.
func NewRolePolicy(roles RoleChecker) *RolePolicy {
	return &RolePolicy{roles: roles}
}

// IsAdmin implements Policy.
func (p *RolePolicy) IsAdmin(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	for _, role := range []store.RoleName{store.RoleAdmin, store.RoleOwner} {
		ok, err := p.roles.HasRole(ctx, email, role)
		if err != nil {
			return false, fmt.Errorf("checking %s role: %w", role, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AnyPolicy admits an email if any member policy does. Members are consulted
// in order and the first error aborts the check.
type AnyPolicy []Policy

// IsAdmin implements Policy.
func (p AnyPolicy) IsAdmin(ctx context.Context, email string) (bool, error) {
	for _, member := range p {
		ok, err := member.IsAdmin(ctx, email)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// NewPolicy builds the policy named by mode. An empty mode means PolicyAny.
func NewPolicy(mode string, admins []string, roles RoleChecker) (Policy, error) {
	switch mode {
	case PolicyStatic:
		return NewStaticPolicy(admins), nil
	case PolicyRoles:
		if roles == nil {
			return nil, fmt.Errorf("admin policy %q requires a role store", mode)
		}
		return NewRolePolicy(roles), nil
	case PolicyAny, "":
		if roles == nil {
			return NewStaticPolicy(admins), nil
		}
		return AnyPolicy{NewStaticPolicy(admins), NewRolePolicy(roles)}, nil
	default:
		return nil, fmt.Errorf("unknown admin policy %q", mode)
	}
}
