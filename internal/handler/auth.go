package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/cupcakes/internal/apperror"
	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/service"
)

// TokenIssuer issues a bearer token for a session's user.
// *service.AuthService is the implementation.
type TokenIssuer interface {
	Me(ctx context.Context, username string) (*service.AuthResult, error)
}

// AuthHandler runs the browser login flow and the session-gated identity
// routes.
//
//	GET /login    → redirect to the identity provider
//	GET /callback → verify the provider's answer, start a session
//	GET /logout   → end the session, redirect to the provider's logout
//	GET /me       → {user, token} for the logged-in user
//	GET /profile  → the session's identity claim
//
// provider and sessions are nil when login is not configured. The login
// routes then answer 503 and every session is anonymous.
type AuthHandler struct {
	provider auth.Provider
	sessions *auth.SessionStore
	tokens   TokenIssuer
	baseURL  string
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(provider auth.Provider, sessions *auth.SessionStore, tokens TokenIssuer, baseURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		sessions: sessions,
		tokens:   tokens,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
	}
}

func (h *AuthHandler) loginEnabled() bool {
	return h.provider != nil && h.sessions != nil
}

// Login handles GET /login[?returnTo=/path].
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.loginEnabled() {
		writeError(w, apperror.Unavailable("login is not configured"))
		return
	}

	txn, err := h.sessions.BeginLogin(w, r, safeReturnTo(r.URL.Query().Get("returnTo")))
	if err != nil {
		logAndWriteError(h.logger, w, r, "starting login failed", err)
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(txn.State, txn.Nonce), http.StatusFound)
}

// Callback handles GET /callback?code=...&state=...
//
// ORDER OF CHECKS:
//  1. The login transaction is consumed first, so a callback can never be
//     replayed, whatever else is wrong with it.
//  2. An error from the provider (user cancelled, consent denied) is a 401.
//  3. state must match the transaction (CSRF).
//  4. The code is exchanged and the ID token verified against the nonce.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.loginEnabled() {
		writeError(w, apperror.Unavailable("login is not configured"))
		return
	}

	q := r.URL.Query()
	txn, stateErr := h.sessions.FinishLogin(w, r, q.Get("state"))

	if providerErr := q.Get("error"); providerErr != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = providerErr
		}
		h.logger.Info("identity provider returned an error",
			slog.String("error", providerErr),
			slog.String("description", q.Get("error_description")),
		)
		writeError(w, apperror.Unauthorized(msg))
		return
	}

	if stateErr != nil {
		if errors.Is(stateErr, auth.ErrLoginState) {
			h.logger.Warn("login callback with bad state", slog.String("error", stateErr.Error()))
			writeError(w, apperror.Unauthorized("login state mismatch, please try logging in again"))
			return
		}
		logAndWriteError(h.logger, w, r, "finishing login failed", stateErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "authorization code is missing"))
		return
	}

	claim, err := h.provider.Exchange(r.Context(), code, txn.Nonce)
	if err != nil {
		h.logger.Warn("login could not be verified", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("login could not be verified"))
		return
	}

	if err := h.sessions.SaveClaim(w, r, *claim); err != nil {
		logAndWriteError(h.logger, w, r, "saving session failed", err)
		return
	}

	h.logger.Info("user logged in",
		slog.String("sub", claim.Subject),
		slog.String("nickname", claim.Nickname),
	)

	returnTo := txn.ReturnTo
	if returnTo == "" {
		returnTo = "/"
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// Logout handles GET /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions != nil {
		if err := h.sessions.Clear(w, r); err != nil {
			logAndWriteError(h.logger, w, r, "clearing session failed", err)
			return
		}
	}

	returnTo := h.baseURL
	if returnTo == "" {
		returnTo = "/"
	}
	target := returnTo
	if h.provider != nil {
		target = h.provider.LogoutURL(returnTo)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Me handles GET /me. The session gate has already reconciled the user, so
// the lookup by nickname finds the row.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request, s Session) {
	claim, _ := s.Identity.Claim()

	result, err := h.tokens.Me(r.Context(), claim.Nickname)
	if err != nil {
		logAndWriteError(h.logger, w, r, "issuing token failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Profile handles GET /profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request, s Session) {
	claim, _ := s.Identity.Claim()
	writeJSON(w, http.StatusOK, claim)
}

// safeReturnTo keeps post-login redirects on this site. Only a path
// ("/cupcakes") is accepted; absolute URLs and protocol-relative
// "//evil.example" fall back to "/". Control characters are rejected
// outright: browsers drop tab, CR and LF from URLs, which would turn
// "/\t/evil.example" into "//evil.example".
func safeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.IndexFunc(raw, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}
