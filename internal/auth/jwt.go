// Package auth is the application's auth provider: it owns accounts,
// passwords, federated sign-in and client sessions, and tells subscribers
// whenever a session's identity changes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user signs up, signs in with a password, or completes the Google
//     OAuth redirect flow.
//  2. The provider records a client session (an id in its in-memory session
//     table) and issues a signed JWT naming the account and that session.
//  3. The JWT travels in an HttpOnly cookie without Max-Age, so the browser
//     forgets it when the browser session ends.
//  4. Every request runs through Authenticate, which validates the JWT,
//     checks the session is still in the table, and refreshes the token when
//     it is close to expiry.
//  5. Sign-in, refresh and sign-out all notify subscribers synchronously.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<account id>","sid":"<session id>","jti":"...","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// A valid signature alone is not enough: the session id must also still be
// present in the provider's table, which is what makes sign-out immediate.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "campus-link"

	// TokenLifetime is how long a session token is valid after issue or
	// refresh.
	TokenLifetime = time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Claims is the JWT payload. Subject is the account id; SessionID ties the
// token to one entry in the provider's session table.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Generate signs a token for the given account and session with the default
// lifetime. It returns the token and its expiry.
func (s *TokenService) Generate(userID, sessionID string) (string, time.Time, error) {
	return s.GenerateWithDuration(userID, sessionID, TokenLifetime)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to produce expired tokens.
func (s *TokenService) GenerateWithDuration(userID, sessionID string, d time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(d)

	c := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, expires, nil
}

// Validate parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired
//   - Issuer is "campus-link"
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
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
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if c.SessionID == "" {
		return nil, fmt.Errorf("auth: token has no session id")
	}

	return c, nil
}
