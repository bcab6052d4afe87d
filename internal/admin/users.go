// ABOUTME: Lazy user directory: resolves an email to a user record, creating it on first use
// ABOUTME: Concurrent first contacts converge on whichever insert the store accepted

package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// EnsureUser returns the user for email, creating it with originIP if it
// does not exist. actor is recorded in the audit log when a user is created.
func (s *Service) EnsureUser(ctx context.Context, actor, email, originIP string) (*store.User, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.store.LoadUser(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading user %s: %w", email, err)
	}

	candidate := &store.User{
		Email: email,
		Name:  auth.NameFromEmail(email),
		IP:    originIP,
		Group: s.newID(),
	}
	res, err := s.store.CreateUserIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", email, err)
	}

	if res.Inserted == 1 {
		s.logger.Info("created user", "email", email, "actor", actor)
		s.audit(ctx, &store.AuditEntry{
			Actor:      actor,
			Action:     store.AuditCreateUser,
			TargetType: "user",
			TargetID:   email,
			Detail:     map[string]any{"ip": originIP},
		})
	}

	// Reload so a concurrent creator's record wins over our candidate.
	user, err = s.store.LoadUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("reloading user %s: %w", email, err)
	}
	return user, nil
}
