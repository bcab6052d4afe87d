// ABOUTME: Authentication context for tracking the caller through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Credential method names recorded on AuthContext.
const (
	MethodJWT         = "jwt"
	MethodAccessToken = "access_token"
)

// AuthContext holds the authenticated caller extracted from a request.
type AuthContext struct {
	Email      string
	Name       string
	Group      string
	Method     string // MethodJWT or MethodAccessToken
	TokenTitle string // set when Method is MethodAccessToken
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
