package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/model"
)

// IdentityResolver turns a request into the Identity its session carries.
// *auth.SessionStore is the implementation.
type IdentityResolver interface {
	Identity(r *http.Request) auth.Identity
}

// Reconciler finds or creates the local user for a claim.
// *service.AuthService is the implementation.
type Reconciler interface {
	Reconcile(ctx context.Context, claim auth.Claim) (*model.User, error)
}

// Session is what a session-gated handler knows about the caller. User is
// set whenever Identity is authenticated.
type Session struct {
	Identity auth.Identity
	User     *model.User
}

// SessionHandlerFunc is an http.HandlerFunc that is also handed the
// caller's Session.
type SessionHandlerFunc func(w http.ResponseWriter, r *http.Request, s Session)

// SessionGate adapts SessionHandlerFuncs to plain http.HandlerFuncs.
//
// PER-REQUEST FLOW:
//  1. Resolve the Identity from the session cookie
//  2. If authenticated, reconcile the claim into a local User
//  3. Call the handler with both, as an explicit argument
//
// A reconcile failure ends the request with the error envelope and the
// handler never runs. Handlers therefore never read session state on their
// own, and a handler given an authenticated Session can rely on its User.
type SessionGate struct {
	identities IdentityResolver
	users      Reconciler
	logger     *slog.Logger
}

// NewSessionGate creates a SessionGate. identities may be nil when login is
// not configured; every request is then anonymous.
func NewSessionGate(identities IdentityResolver, users Reconciler, logger *slog.Logger) *SessionGate {
	return &SessionGate{
		identities: identities,
		users:      users,
		logger:     logger,
	}
}

// Optional runs next for everyone. Anonymous callers get an anonymous Session.
func (g *SessionGate) Optional(next SessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.resolve(w, r)
		if !ok {
			return
		}
		next(w, r, s)
	}
}

// Required runs next only for logged-in callers and answers 401 otherwise.
func (g *SessionGate) Required(next SessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.resolve(w, r)
		if !ok {
			return
		}
		if !s.Identity.IsAuthenticated() {
			writeErrorStatus(w, http.StatusUnauthorized, NameUnauthorized, "Authentication required")
			return
		}
		next(w, r, s)
	}
}

// resolve builds the Session. It returns false after writing an error
// response, in which case the caller must stop.
func (g *SessionGate) resolve(w http.ResponseWriter, r *http.Request) (Session, bool) {
	if g.identities == nil {
		return Session{Identity: auth.Anonymous()}, true
	}

	id := g.identities.Identity(r)
	claim, ok := id.Claim()
	if !ok {
		return Session{Identity: id}, true
	}

	user, err := g.users.Reconcile(r.Context(), claim)
	if err != nil {
		logAndWriteError(g.logger, w, r, "session user reconciliation failed", err)
		return Session{}, false
	}

	return Session{Identity: id, User: user}, true
}
