package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored under it.
type contextKey string

const claimsKey contextKey = "bearerClaims"

// Errors describing why a bearer credential was refused.
var (
	ErrMissingAuthorization   = errors.New("auth: missing authorization header")
	ErrMalformedAuthorization = errors.New("auth: authorization header is not \"Bearer <token>\"")
)

// DenyFunc writes the response for a refused request. The error says why.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// RequireBearer is a middleware that lets a request through only when it
// carries "Authorization: Bearer <token>" with a token that tokens.Verify
// accepts. The verified claims are stored in the request context.
//
// Everything else, a missing header included, is handed to deny and the
// chain stops there: the wrapped handler never runs.
func RequireBearer(tokens *TokenService, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if err != nil {
				deny(w, r, err)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				deny(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims RequireBearer verified for this
// request. ok is false outside a RequireBearer-protected route.
func ClaimsFromContext(ctx context.Context) (*UserClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*UserClaims)
	return c, ok && c != nil
}

// BearerToken extracts the token from the Authorization header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingAuthorization
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedAuthorization
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedAuthorization
	}

	return token, nil
}
