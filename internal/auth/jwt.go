// Package auth issues and checks the credentials that identify an author.
//
// IDENTITY:
// Everything downstream (lock ownership, comment authorship, snapshot
// authorship) keys on a single string: the author's email. The JWT carries it
// in the "sub" claim, so a request can be attributed without a DB lookup.
//
// Tokens reach the server in one of two ways:
//
//	Cookie: token=<jwt>             → browser sessions after GitHub login
//	Authorization: Bearer <jwt>     → the `author` CLI and other API clients
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "example-author"

// DefaultTokenTTL is used when NewTokenService is given a zero TTL. Editing
// sessions are long, so tokens outlive the edit lock by a wide margin.
const DefaultTokenTTL = 12 * time.Hour

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given HMAC secret and
// token lifetime. The secret must be at least 16 characters.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for identity with the service's TTL.
func (s *TokenService) Generate(identity string) (string, error) {
	return s.GenerateWithDuration(identity, s.ttl)
}

// GenerateWithDuration signs a token for identity that expires after d.
// A negative d yields an already expired token, which tests rely on.
func (s *TokenService) GenerateWithDuration(identity string, d time.Duration) (string, error) {
	if identity == "" {
		return "", errors.New("auth: cannot issue a token without an identity")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns the identity in its
// "sub" claim.
//
// The method whitelist matters: without it a token signed with "none" could
// be accepted.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
