package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cupcakes/internal/auth"
	"github.com/sakif/cupcakes/internal/config"
	"github.com/sakif/cupcakes/internal/handler"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/server"
)

const testJWTSecret = "server-test-jwt-secret"

// stubProvider logs everyone in as sprinkles.
type stubProvider struct{}

func (stubProvider) AuthCodeURL(state, nonce string) string {
	return "https://idp.example/authorize?" + url.Values{"state": {state}, "nonce": {nonce}}.Encode()
}

func (stubProvider) Exchange(ctx context.Context, code, nonce string) (*auth.Claim, error) {
	return &auth.Claim{
		Subject:  "auth0|42",
		Nickname: "sprinkles",
		Name:     "Sam Sprinkles",
		Email:    "sam@example.com",
	}, nil
}

func (stubProvider) LogoutURL(returnTo string) string {
	return "https://idp.example/v2/logout?" + url.Values{"returnTo": {returnTo}}.Encode()
}

func testConfig() config.Config {
	return config.Config{
		Port:               0,
		Env:                "development",
		DBPath:             ":memory:",
		JWTSecret:          testJWTSecret,
		CORSAllowedOrigins: []string{"*"},
		OIDC: config.OIDC{
			Secret:  "server-test-session-secret",
			BaseURL: "http://localhost:3000",
		},
	}
}

// client wraps a running test server with a cookie jar that never follows
// redirects, so each hop of the login flow can be checked.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestServer(t *testing.T, opts ...server.Option) *client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := server.New(testConfig(), logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &client{
		t:    t,
		base: ts.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *client) do(method, path, token, contentType, body string) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, string(b)
}

func (c *client) get(path string) (*http.Response, string) {
	c.t.Helper()
	return c.do(http.MethodGet, path, "", "", "")
}

// login walks /login and /callback and leaves the session cookie in the jar.
func (c *client) login() {
	c.t.Helper()
	resp, _ := c.get("/login")
	require.Equal(c.t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(c.t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(c.t, state)

	resp, body := c.get("/callback?code=the-code&state=" + url.QueryEscape(state))
	require.Equal(c.t, http.StatusFound, resp.StatusCode, body)
	require.Equal(c.t, "/", resp.Header.Get("Location"))
}

func (c *client) token() (model.User, string) {
	c.t.Helper()
	resp, body := c.get("/me")
	require.Equal(c.t, http.StatusOK, resp.StatusCode, body)

	var me struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal([]byte(body), &me))
	require.NotEmpty(c.t, me.Token)
	return me.User, me.Token
}

func (c *client) cupcakes() []model.Cupcake {
	c.t.Helper()
	resp, body := c.get("/cupcakes")
	require.Equal(c.t, http.StatusOK, resp.StatusCode, body)

	var list []model.Cupcake
	require.NoError(c.t, json.Unmarshal([]byte(body), &list))
	return list
}

func decodeError(t *testing.T, body string) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &e), body)
	return e
}

func TestLoginFlow(t *testing.T) {
	c := newTestServer(t, server.WithProvider(stubProvider{}))

	resp, body := c.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Logged out")
	assert.Contains(t, body, `href="/login"`)

	c.login()

	_, body = c.get("/")
	assert.Contains(t, body, "Welcome, sprinkles")

	user, token := c.token()
	assert.Equal(t, "sprinkles", user.Username)
	assert.Equal(t, "sam@example.com", user.Email)

	claims, err := mustTokens(t).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	resp, body = c.get("/profile")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"nickname":"sprinkles"`)

	resp, _ = c.get("/logout")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://idp.example/v2/logout"))

	_, body = c.get("/")
	assert.Contains(t, body, "Logged out")
}

func TestRepeatedLoginsReuseTheUser(t *testing.T) {
	c := newTestServer(t, server.WithProvider(stubProvider{}))

	c.login()
	first, _ := c.token()
	c.login()
	second, _ := c.token()

	assert.Equal(t, first.ID, second.ID)
}

func TestCupcakes(t *testing.T) {
	c := newTestServer(t, server.WithProvider(stubProvider{}))

	resp, body := c.get("/cupcakes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)

	const cupcake = `{"title":"Red Velvet","flavor":"cream cheese","stars":5}`

	// No token, then a garbage token.
	resp, body = c.do(http.MethodPost, "/cupcakes", "", "application/json", cupcake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No valid token, access denied", decodeError(t, body).Message)

	resp, _ = c.do(http.MethodPost, "/cupcakes", "not.a.jwt", "application/json", cupcake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, c.cupcakes(), "rejected requests create nothing")

	c.login()
	user, token := c.token()

	resp, body = c.do(http.MethodPost, "/cupcakes", token, "application/json", `{"title":"","flavor":"x","stars":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", decodeError(t, body).Name)

	resp, body = c.do(http.MethodPost, "/cupcakes", token, "application/json", cupcake)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var created model.Cupcake
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, user.ID, created.UserID, "owner comes from the token, not the body")

	resp, _ = c.do(http.MethodPost, "/cupcakes", token, "application/x-www-form-urlencoded",
		url.Values{"title": {"Lemon"}, "flavor": {"citrus"}, "stars": {"3"}}.Encode())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	list := c.cupcakes()
	require.Len(t, list, 2)
	assert.Equal(t, "Red Velvet", list[0].Title)
	assert.Equal(t, "Lemon", list[1].Title)
}

func TestTokenForUnknownUserIsRejected(t *testing.T) {
	c := newTestServer(t, server.WithProvider(stubProvider{}))

	ghost := &model.User{ID: "no-such-user", Username: "ghost"}
	token, err := mustTokens(t).Issue(ghost)
	require.NoError(t, err)

	resp, _ := c.do(http.MethodPost, "/cupcakes", token, "application/json", `{"title":"A","flavor":"B","stars":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, c.cupcakes())
}

func TestSessionRequired(t *testing.T) {
	c := newTestServer(t, server.WithProvider(stubProvider{}))

	for _, path := range []string{"/me", "/profile"} {
		resp, body := c.get(path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "UnauthorizedError", decodeError(t, body).Name, path)
	}
}

func TestLoginDisabled(t *testing.T) {
	c := newTestServer(t)

	resp, body := c.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Logged out")
	assert.NotContains(t, body, `href="/login"`)

	resp, body = c.get("/login")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "ServiceUnavailableError", decodeError(t, body).Name)

	resp, _ = c.get("/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = c.get("/cupcakes")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "listing stays public")
}

func TestRoutingErrors(t *testing.T) {
	c := newTestServer(t)

	resp, body := c.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFoundError", decodeError(t, body).Name)

	resp, body = c.do(http.MethodPost, "/healthz", "", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "MethodNotAllowedError", decodeError(t, body).Name)
}

func TestHealthz(t *testing.T) {
	c := newTestServer(t)

	resp, body := c.get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestCORSPreflight(t *testing.T) {
	c := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, c.base+"/cupcakes", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://frontend.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := c.http.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestNew_RejectsBadSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""

	_, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func mustTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testJWTSecret)
	require.NoError(t, err)
	return tokens
}

func TestLoginReturnToWithControlCharactersStaysOnSite(t *testing.T) {
	for _, raw := range []string{"%2F%09%2Fevil.example", "%2F%0A%2Fevil.example", "%2F%0D%2Fevil.example"} {
		c := newTestServer(t, server.WithProvider(stubProvider{}))

		resp, _ := c.get("/login?returnTo=" + raw)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)

		resp, body := c.get("/callback?code=c&state=" + url.QueryEscape(loc.Query().Get("state")))
		require.Equal(t, http.StatusFound, resp.StatusCode, body)
		assert.Equal(t, "/", resp.Header.Get("Location"), raw)
	}
}
