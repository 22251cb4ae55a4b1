package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var sprinklesClaim = auth.Claim{
	Subject:  "auth0|42",
	Nickname: "sprinkles",
	Name:     "Sam Sprinkles",
	Email:    "sam@example.com",
	Picture:  "https://example.com/sam.png",
}

// fakeProvider stands in for the OIDC provider.
type fakeProvider struct {
	claim    auth.Claim
	err      error
	gotCode  string
	gotNonce string
}

func (p *fakeProvider) AuthCodeURL(state, nonce string) string {
	q := url.Values{"state": {state}, "nonce": {nonce}}
	return "https://idp.example/authorize?" + q.Encode()
}

func (p *fakeProvider) Exchange(ctx context.Context, code, nonce string) (*auth.Claim, error) {
	p.gotCode, p.gotNonce = code, nonce
	if p.err != nil {
		return nil, p.err
	}
	c := p.claim
	return &c, nil
}

func (p *fakeProvider) LogoutURL(returnTo string) string {
	return "https://idp.example/v2/logout?" + url.Values{"returnTo": {returnTo}}.Encode()
}

// fakeCupcakes is an in-memory handler.CupcakeService.
type fakeCupcakes struct {
	mu        sync.Mutex
	stored    []model.Cupcake
	createErr error
	listErr   error
	calls     int
}

func (f *fakeCupcakes) List(ctx context.Context) ([]model.Cupcake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Cupcake, len(f.stored))
	copy(out, f.stored)
	return out, nil
}

func (f *fakeCupcakes) Create(ctx context.Context, ownerID, title, flavor string, stars int) (*model.Cupcake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	cc := model.Cupcake{ID: "cc-1", Title: title, Flavor: flavor, Stars: stars, UserID: ownerID}
	f.stored = append(f.stored, cc)
	return &cc, nil
}

// fakeReconciler records the claims it was asked to reconcile.
type fakeReconciler struct {
	err    error
	claims []auth.Claim
}

func (f *fakeReconciler) Reconcile(ctx context.Context, claim auth.Claim) (*model.User, error) {
	f.claims = append(f.claims, claim)
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: "user-1", Username: claim.Nickname, Name: claim.Name, Email: claim.Email}, nil
}

// fakeIdentities returns a fixed Identity for every request.
type fakeIdentities struct {
	identity auth.Identity
}

func (f fakeIdentities) Identity(r *http.Request) auth.Identity {
	return f.identity
}

// fakeTokens answers Me for one known user.
type fakeTokens struct {
	user *model.User
}

func (f *fakeTokens) Me(ctx context.Context, username string) (*service.AuthResult, error) {
	if f.user == nil || f.user.Username != username {
		return nil, errors.New("unknown user")
	}
	return &service.AuthResult{User: f.user, Token: "signed.token.value"}, nil
}

func newSessionStore(t *testing.T) *auth.SessionStore {
	t.Helper()
	s, err := auth.NewSessionStore(auth.SessionConfig{Secret: "a-long-session-secret-value"}, discardLogger())
	require.NoError(t, err)
	return s
}

func newTokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-jwt-secret-at-least-16")
	require.NoError(t, err)
	return ts
}

// withCookies copies every live cookie rr set onto r, the way a browser
// would. Cookies rr expired are dropped.
func withCookies(r *http.Request, rr *httptest.ResponseRecorder) *http.Request {
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		r.AddCookie(c)
	}
	return r
}
