// ABOUTME: JWT signing and verification for access tokens issued to automation clients
// ABOUTME: Uses HS256 with the configured secret and {email, name} claims

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Identity is the subject a token speaks for.
type Identity struct {
	Email string
	Name  string
}

// Signer produces a signed credential for an identity.
type Signer interface {
	Sign(id Identity) (string, error)
}

// Verifier validates a signed credential and returns its identity.
type Verifier interface {
	Verify(tokenString string) (*Identity, error)
}

// claims is the JWT payload: the same {email, name} shape the login flow issues.
type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// JWTSigner implements Signer and Verifier using HS256 signed JWTs
type JWTSigner struct {
	secret []byte
	now    func() time.Time
}

// NewJWTSigner creates a signer. Issued tokens carry no expiry; an exp claim
// on a presented token is still enforced.
func NewJWTSigner(secret []byte) (*JWTSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &JWTSigner{secret: secret, now: time.Now}, nil
}

// Sign creates a token carrying the identity's email and name.
func (s *JWTSigner) Sign(id Identity) (string, error) {
	if id.Email == "" {
		return "", fmt.Errorf("%w: email", ErrMissingClaim)
	}

	now := s.now()
	c := claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and extracts the identity from its claims
func (s *JWTSigner) Verify(tokenString string) (*Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if c.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingClaim)
	}

	return &Identity{Email: c.Email, Name: c.Name}, nil
}
