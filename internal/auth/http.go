// ABOUTME: HTTP middleware resolving the bearer credential to a caller
// ABOUTME: Accepts signed JWTs or issued access-token ids and adds the caller to context

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/devicefarm-gateway/internal/store"
)

// CredentialStore is the subset of the store the middleware needs.
type CredentialStore interface {
	LoadAccessTokenByID(ctx context.Context, id string) (*store.AccessToken, error)
	LoadUser(ctx context.Context, email string) (*store.User, error)
	CreateUserIfAbsent(ctx context.Context, user *store.User) (store.SaveResult, error)
	TouchUser(ctx context.Context, email, ip string) error
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// NameFromEmail derives a display name from the local part of an email,
// replacing its first "." with "-". "new.user@x.com" becomes "new-user".
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.Replace(local, ".", "-", 1)
}

// newGroupID returns a v4 UUID as 32 lowercase hex characters.
func newGroupID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// looksLikeJWT reports whether a bearer has the three-segment JWT shape.
// Access-token ids are plain hex.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// writeAuthError writes a JSON error body in the API's response shape.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"message":"` + msg + `"}`))
}

// Authenticator resolves bearer credentials to an AuthContext.
type Authenticator struct {
	creds    CredentialStore
	verifier Verifier
	logger   *slog.Logger
	newGroup func() string
}

// NewAuthenticator creates an Authenticator. Pass nil logger for default.
func NewAuthenticator(creds CredentialStore, verifier Verifier, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		creds:    creds,
		verifier: verifier,
		logger:   logger.With("component", "auth"),
		newGroup: newGroupID,
	}
}

// errUnknownCredential is returned when a bearer matches no issued token.
var errUnknownCredential = errors.New("unknown credential")

// Authenticate resolves a bearer string. JWTs are verified directly; other
// values are looked up as access-token ids and their stored JWT is verified.
// The caller's directory record is created on first contact and its last
// login time and origin are refreshed from originIP.
func (a *Authenticator) Authenticate(ctx context.Context, bearer, originIP string) (*AuthContext, error) {
	authCtx := &AuthContext{Method: MethodJWT}
	jwtString := bearer

	if !looksLikeJWT(bearer) {
		tok, err := a.creds.LoadAccessTokenByID(ctx, bearer)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUnknownCredential
		}
		if err != nil {
			return nil, err
		}
		authCtx.Method = MethodAccessToken
		authCtx.TokenTitle = tok.Title
		jwtString = tok.JWT
	}

	id, err := a.verifier.Verify(jwtString)
	if err != nil {
		return nil, err
	}
	authCtx.Email = id.Email
	authCtx.Name = id.Name

	user, err := a.ensureUser(ctx, id, originIP)
	if err != nil {
		return nil, err
	}
	authCtx.Group = user.Group

	if err := a.creds.TouchUser(ctx, id.Email, originIP); err != nil {
		a.logger.Warn("recording login failed", "email", id.Email, "error", err)
	}

	return authCtx, nil
}

// ensureUser loads the caller's record, creating it with a fresh group when
// a login-issued JWT precedes the directory entry.
func (a *Authenticator) ensureUser(ctx context.Context, id *Identity, originIP string) (*store.User, error) {
	user, err := a.creds.LoadUser(ctx, id.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := id.Name
	if name == "" {
		name = NameFromEmail(id.Email)
	}
	res, err := a.creds.CreateUserIfAbsent(ctx, &store.User{
		Email: id.Email,
		Name:  name,
		IP:    originIP,
		Group: a.newGroup(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", id.Email, err)
	}
	if res.Inserted == 1 {
		a.logger.Info("created user on first sign-in", "email", id.Email)
		if err := a.creds.AppendAuditLog(ctx, &store.AuditEntry{
			Actor:      id.Email,
			Action:     store.AuditCreateUser,
			TargetType: "user",
			TargetID:   id.Email,
			Detail:     map[string]any{"ip": originIP},
		}); err != nil {
			a.logger.Warn("audit log append failed", "action", store.AuditCreateUser, "error", err)
		}
	}

	// Reload so a concurrent creator's group wins over ours.
	user, err = a.creds.LoadUser(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("reloading user %s: %w", id.Email, err)
	}
	return user, nil
}

// remoteHost strips the port from r.RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HTTPAuthMiddleware returns middleware that rejects requests without a valid
// bearer and attaches the caller's AuthContext otherwise.
func HTTPAuthMiddleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			authCtx, err := a.Authenticate(r.Context(), token, remoteHost(r))
			if err != nil {
				switch {
				case errors.Is(err, errUnknownCredential),
					errors.Is(err, ErrInvalidToken),
					errors.Is(err, ErrExpiredToken),
					errors.Is(err, ErrMissingClaim):
					a.logger.Debug("rejected credential", "error", err)
					writeAuthError(w, http.StatusUnauthorized, "invalid token")
				default:
					a.logger.Error("resolving credential", "error", err)
					writeAuthError(w, http.StatusInternalServerError, "unable to resolve credential")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires the caller to
// pass policy. Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeAuthError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ok, err := policy.IsAdmin(r.Context(), authCtx.Email)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "unable to check admin policy")
				return
			}
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
