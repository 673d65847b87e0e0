// Package auth provides the authentication building blocks: password hashing,
// the Identity sum type, signed session tokens, the session middleware and the
// Google OAuth2 provider.
//
// SESSION FLOW:
//  1. A user signs in locally (POST /api/auth/login) or through Google
//     (GET /oauth2/authorization/google, then the provider's callback).
//  2. The server encodes the resulting Identity into an HS256 JWT and stores
//     it in the HttpOnly "token" cookie.
//  3. On later requests RequireAuth / OptionalAuth validate the cookie and
//     put the Identity in the request context.
//
// The token carries everything needed to rebuild the Identity, so resolving a
// session needs no database lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "atlasstudio"

// Identity kinds as stored in the "kind" claim.
const (
	kindLocal  = "local"
	kindOAuth2 = "oauth2"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenService issues and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session TTL must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens returned by Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// sessionClaims is the JWT payload. Subject holds the email for local
// identities and the provider subject for OAuth2 identities.
type sessionClaims struct {
	jwt.RegisteredClaims
	Kind     string `json:"kind"`
	Provider string `json:"provider,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// Issue signs a session token for id that expires after TTL.
func (s *TokenService) Issue(id Identity) (string, error) {
	return s.IssueWithDuration(id, s.ttl)
}

// IssueWithDuration signs a session token with a custom lifetime.
// Tests use it to produce already-expired tokens.
func (s *TokenService) IssueWithDuration(id Identity, d time.Duration) (string, error) {
	now := time.Now()

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	switch id := id.(type) {
	case LocalIdentity:
		c.Kind = kindLocal
		c.Subject = id.Email
		c.Email = id.Email
	case OAuth2Identity:
		c.Kind = kindOAuth2
		c.Subject = id.Subject
		c.Provider = id.Provider
		c.Email = id.Claims.Email
		c.Name = id.Claims.Name
		c.Picture = id.Claims.Picture
	default:
		return "", fmt.Errorf("auth: cannot issue token for identity %T", id)
	}

	if c.Subject == "" {
		return "", errors.New("auth: identity has no subject")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies the signature, issuer, algorithm and expiry of tokenStr and
// rebuilds the Identity it carries.
//
// Only HS256 is accepted, which rules out "alg: none" and key-confusion tokens.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	switch c.Kind {
	case kindLocal:
		return LocalIdentity{Email: c.Subject}, nil
	case kindOAuth2:
		if c.Provider == "" {
			return nil, fmt.Errorf("%w: oauth2 token without provider", ErrInvalidToken)
		}
		return OAuth2Identity{
			Provider: c.Provider,
			Subject:  c.Subject,
			Claims: Claims{
				Subject: c.Subject,
				Email:   c.Email,
				Name:    c.Name,
				Picture: c.Picture,
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown identity kind %q", ErrInvalidToken, c.Kind)
	}
}
