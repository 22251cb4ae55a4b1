// Package auth holds both authentication mechanisms of the API and keeps
// them apart:
//
//   - Session auth for browsers. The user logs in at an OpenID Connect
//     provider (oidc.go), the verified identity claim is kept in an
//     encrypted cookie (session.go), and handlers receive it as an explicit
//     Identity value.
//   - Bearer auth for API clients. /me hands out a signed JWT (this file);
//     clients send it back as "Authorization: Bearer <token>", and
//     RequireBearer (middleware.go) checks it before the write path runs.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: a snapshot of the user → {"id":"...","username":"...","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server verifies the signature with the secret alone, with no DB lookup.
// The flip side: the payload is a snapshot, so profile changes made after
// issuance show up only in the next token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/cupcakes/internal/model"
)

// DefaultTokenTTL is how long an issued bearer token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

const tokenIssuer = "cupcakes-api"

// ErrInvalidToken is returned by Verify for any token that must be refused:
// malformed, tampered, signed with another key, expired, or without a subject.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService signs and verifies bearer tokens.
//
// It holds the HMAC secret key used for both operations. Changing the secret
// invalidates every token issued before the change.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}, nil
}

// UserClaims is the JWT payload: the user snapshot plus the registered claims.
// The field names match the JSON the /me endpoint returns for the user.
type UserClaims struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	jwt.RegisteredClaims
}

// Issue signs a token for user that expires DefaultTokenTTL from now.
func (s *TokenService) Issue(user *model.User) (string, error) {
	return s.IssueWithDuration(user, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime.
// A negative duration yields an already expired token, which tests use.
func (s *TokenService) IssueWithDuration(user *model.User, d time.Duration) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("auth: cannot issue a token without a user id")
	}

	now := s.now()
	c := UserClaims{
		ID:        user.ID,
		Username:  user.Username,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and checks a token string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, and carries an expiry at all
//   - Issuer is ours
//   - Algorithm is HS256 (prevents "alg: none" and algorithm confusion)
//
// Every failure wraps ErrInvalidToken so callers need one errors.Is check.
func (s *TokenService) Verify(tokenStr string) (*UserClaims, error) {
	c := &UserClaims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if c.ID == "" || c.Subject != c.ID {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c, nil
}
