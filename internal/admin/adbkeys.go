// ABOUTME: Adb public key registration and revocation on behalf of users
// ABOUTME: Inserts first and lets the fingerprint constraint decide ownership races

package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// AddAdbKeyRequest registers PublicKey for Email. Title defaults to the
// key's comment.
type AddAdbKeyRequest struct {
	Email     string
	PublicKey string
	Title     string
	OriginIP  string
}

// AddAdbKeyResult describes the registered key. Existing is true when the
// user already held this fingerprint and nothing was written.
type AddAdbKeyResult struct {
	Title       string
	Fingerprint string
	Existing    bool
}

// RemoveAdbKeyRequest revokes Fingerprint from Email.
type RemoveAdbKeyRequest struct {
	Email       string
	Fingerprint string
}

// AddAdbKey registers an adb public key for req.Email, creating the user if
// needed. A fingerprint held by a different user is a KindConflict error
// naming that user. The caller must be an administrator.
func (s *Service) AddAdbKey(ctx context.Context, req AddAdbKeyRequest) (*AddAdbKeyResult, error) {
	caller, err := s.requireAdmin(ctx, msgUnauthorizedAddKey)
	if err != nil {
		return nil, err
	}

	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.PublicKey == "" {
		return nil, invalid("publickey is required")
	}

	user, err := s.EnsureUser(ctx, caller.Email, req.Email, req.OriginIP)
	if err != nil {
		return nil, s.fail("failed to insert new adb key fingerprint", caller, req.Email, withMessage(err, msgAddKeyFailed))
	}

	key, err := s.parser.Parse(req.PublicKey)
	if err != nil {
		s.logger.Error("unable to parse adb public key", "caller", caller.Email, "email", req.Email, "error", err)
		return nil, invalid(msgInvalidKey)
	}

	title := req.Title
	if title == "" {
		title = key.Comment
	}
	if title == "" {
		title = key.Fingerprint
	}

	err = s.store.InsertUserAdbKey(ctx, &store.AdbKey{
		Email:       user.Email,
		Fingerprint: key.Fingerprint,
		Title:       title,
		PublicKey:   req.PublicKey,
	})
	if errors.Is(err, store.ErrDuplicateFingerprint) {
		return s.resolveFingerprintConflict(ctx, caller, user, key.Fingerprint)
	}
	if err != nil {
		return nil, s.fail("failed to insert new adb key fingerprint", caller, req.Email, serverError(msgAddKeyFailed, err))
	}

	s.logger.Info("added adb key", "caller", caller.Email, "email", user.Email, "fingerprint", key.Fingerprint)
	s.audit(ctx, &store.AuditEntry{
		Actor:      caller.Email,
		Action:     store.AuditAddAdbKey,
		TargetType: "adb_key",
		TargetID:   key.Fingerprint,
		Detail:     map[string]any{"email": user.Email, "title": title},
	})
	s.notifyKeysUpdated(ctx, caller)

	return &AddAdbKeyResult{Title: title, Fingerprint: key.Fingerprint}, nil
}

// resolveFingerprintConflict decides the outcome after the store refused a
// fingerprint: the target already holds it (idempotent success), someone
// else holds it (conflict), or the holder vanished (server error).
func (s *Service) resolveFingerprintConflict(ctx context.Context, caller *auth.AuthContext, user *store.User, fingerprint string) (*AddAdbKeyResult, error) {
	owners, err := s.store.LookupUsersByAdbKey(ctx, fingerprint)
	if err != nil {
		return nil, s.fail("failed to insert new adb key fingerprint", caller, user.Email, serverError(msgAddKeyFailed, err))
	}
	if len(owners) == 0 {
		return nil, s.fail("failed to insert new adb key fingerprint", caller, user.Email,
			serverError(msgAddKeyFailed, fmt.Errorf("fingerprint %s rejected as duplicate but has no owner", fingerprint)))
	}

	owner := owners[0]
	if owner.Email == user.Email {
		for _, k := range owner.AdbKeys {
			if k.Fingerprint == fingerprint {
				s.logger.Info("adb key already registered to user", "caller", caller.Email, "email", user.Email, "fingerprint", fingerprint)
				return &AddAdbKeyResult{Title: k.Title, Fingerprint: fingerprint, Existing: true}, nil
			}
		}
		return &AddAdbKeyResult{Fingerprint: fingerprint, Existing: true}, nil
	}

	s.logger.Error("adb public key is already added to a user",
		"caller", caller.Email,
		"email", user.Email,
		"owner", owner.Email,
		"fingerprint", fingerprint)
	return nil, &Error{
		Kind:    KindConflict,
		Message: msgKeyOwnedPrefix + owner.Email,
		Owner:   owner.Email,
	}
}

// RemoveAdbKey revokes a key from req.Email. A user or key that does not
// exist, or a key owned by someone else, is a KindOwnership error. The
// caller must be an administrator.
func (s *Service) RemoveAdbKey(ctx context.Context, req RemoveAdbKeyRequest) error {
	caller, err := s.requireAdmin(ctx, msgUnauthorizedDeleteKey)
	if err != nil {
		return err
	}

	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if req.Fingerprint == "" {
		return invalid("fingerprint is required")
	}

	user, err := s.store.LoadUser(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Error(msgKeyNotOwned, "caller", caller.Email, "email", req.Email, "reason", "unknown user")
		return notOwned(msgKeyNotOwned)
	}
	if err != nil {
		return s.fail("failed to delete adb key", caller, req.Email, serverError(msgDeleteKeyFailed, err))
	}

	held := false
	for _, k := range user.AdbKeys {
		if k.Fingerprint == req.Fingerprint {
			held = true
			break
		}
	}
	if !held {
		s.logger.Error(msgKeyNotOwned, "caller", caller.Email, "email", req.Email, "fingerprint", req.Fingerprint)
		return notOwned(msgKeyNotOwned)
	}

	n, err := s.store.DeleteUserAdbKey(ctx, req.Email, req.Fingerprint)
	if err != nil {
		return s.fail("failed to delete adb key", caller, req.Email, serverError(msgDeleteKeyFailed, err))
	}
	if n == 0 {
		s.logger.Error(msgKeyNotOwned, "caller", caller.Email, "email", req.Email, "fingerprint", req.Fingerprint, "reason", "concurrent delete")
		return notOwned(msgKeyNotOwned)
	}

	s.logger.Info("removed adb key", "caller", caller.Email, "email", req.Email, "fingerprint", req.Fingerprint)
	s.audit(ctx, &store.AuditEntry{
		Actor:      caller.Email,
		Action:     store.AuditRemoveAdbKey,
		TargetType: "adb_key",
		TargetID:   req.Fingerprint,
		Detail:     map[string]any{"email": req.Email},
	})
	s.notifyKeysUpdated(ctx, caller)
	return nil
}

// withMessage attaches a caller-facing message to server errors that lack one.
func withMessage(err error, msg string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindServer && e.Message == "" {
			return &Error{Kind: KindServer, Message: msg, Err: e.Err}
		}
		return err
	}
	return serverError(msg, err)
}
