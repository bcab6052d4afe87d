// ABOUTME: Access token issuance and revocation on behalf of users
// ABOUTME: Titles are name-<random hex>, ids are 64 hex chars, the signed JWT stays server-side

package admin

import (
	"context"
	"errors"

	"github.com/2389/devicefarm-gateway/internal/auth"
	"github.com/2389/devicefarm-gateway/internal/store"
)

// CreateAccessTokenRequest asks for a new token for Email.
type CreateAccessTokenRequest struct {
	Email    string
	OriginIP string
}

// CreateAccessTokenResult is returned on success. Token is the bearer id.
type CreateAccessTokenResult struct {
	Title string
	Token string
}

// DeleteAccessTokenRequest revokes the token with Title owned by Email.
type DeleteAccessTokenRequest struct {
	Email string
	Title string
}

// CreateAccessToken issues a new access token for req.Email, creating the
// user if needed. The caller must be an administrator.
func (s *Service) CreateAccessToken(ctx context.Context, req CreateAccessTokenRequest) (*CreateAccessTokenResult, error) {
	caller, err := s.requireAdmin(ctx, msgUnauthorizedCreateToken)
	if err != nil {
		return nil, err
	}

	user, err := s.EnsureUser(ctx, caller.Email, req.Email, req.OriginIP)
	if err != nil {
		return nil, s.fail("failed to generate access token", caller, req.Email, err)
	}

	title := auth.NameFromEmail(user.Email) + "-" + s.newID()

	signed, err := s.signer.Sign(auth.Identity{Email: user.Email, Name: user.Name})
	if err != nil {
		return nil, s.fail("failed to generate access token", caller, req.Email, serverError("", err))
	}

	token := &store.AccessToken{
		Email: user.Email,
		Title: title,
		ID:    s.newID() + s.newID(),
		JWT:   signed,
	}
	res, err := s.store.SaveUserAccessToken(ctx, token)
	if err != nil {
		return nil, s.fail("failed to generate access token", caller, req.Email, serverError("", err))
	}
	if res.Inserted != 1 {
		return nil, s.fail("failed to generate access token", caller, req.Email,
			serverError("", errors.New("access token was not saved")))
	}

	s.logger.Info("created access token", "caller", caller.Email, "email", user.Email, "title", title)
	s.audit(ctx, &store.AuditEntry{
		Actor:      caller.Email,
		Action:     store.AuditCreateAccessToken,
		TargetType: "access_token",
		TargetID:   user.Email + "/" + title,
	})

	return &CreateAccessTokenResult{Title: title, Token: token.ID}, nil
}

// DeleteAccessToken revokes a token by title. A title the user does not hold
// is a KindOwnership error. The caller must be an administrator.
func (s *Service) DeleteAccessToken(ctx context.Context, req DeleteAccessTokenRequest) error {
	caller, err := s.requireAdmin(ctx, msgUnauthorizedDeleteToken)
	if err != nil {
		return err
	}

	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if req.Title == "" {
		return invalid("title is required")
	}

	tokens, err := s.store.LoadAccessTokens(ctx, req.Email)
	if err != nil {
		return s.fail("failed to delete access token", caller, req.Email, serverError("", err))
	}

	owned := false
	for _, t := range tokens {
		if t.Title == req.Title {
			owned = true
			break
		}
	}
	if !owned {
		s.logger.Error(msgTokenNotOwned, "caller", caller.Email, "email", req.Email, "title", req.Title)
		return notOwned(msgTokenNotOwned)
	}

	n, err := s.store.RemoveUserAccessToken(ctx, req.Email, req.Title)
	if err != nil {
		return s.fail("failed to delete access token", caller, req.Email, serverError("", err))
	}
	if n == 0 {
		// Revoked concurrently between the ownership check and the delete.
		s.logger.Error(msgTokenNotOwned, "caller", caller.Email, "email", req.Email, "title", req.Title)
		return notOwned(msgTokenNotOwned)
	}

	s.logger.Info("deleted access token", "caller", caller.Email, "email", req.Email, "title", req.Title)
	s.audit(ctx, &store.AuditEntry{
		Actor:      caller.Email,
		Action:     store.AuditDeleteAccessToken,
		TargetType: "access_token",
		TargetID:   req.Email + "/" + req.Title,
	})
	return nil
}

// fail logs an operation failure with the caller and target and returns err
// unchanged, wrapping plain errors as KindServer.
func (s *Service) fail(msg string, caller *auth.AuthContext, target string, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = serverError("", err)
	}
	s.logger.Error(msg, "caller", caller.Email, "email", target, "kind", e.Kind.String(), "error", err)
	return e
}
