package auth

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	// DefaultSessionMaxAge is how long a login session lasts.
	DefaultSessionMaxAge = 24 * time.Hour

	loginMaxAge = 10 * time.Minute

	sessionCookie = "cupcakes_session"
	loginCookie   = "cupcakes_login"

	claimKey    = "claim"
	stateKey    = "state"
	nonceKey    = "nonce"
	returnToKey = "returnTo"
)

// ErrLoginState is returned by FinishLogin when the callback's state does not
// match the login transaction cookie, or there is no transaction at all.
var ErrLoginState = errors.New("auth: login state mismatch")

// SessionConfig configures a SessionStore.
type SessionConfig struct {
	// Secret is the application secret (SECRET). Cookie signing and
	// encryption keys are derived from it, so rotating it logs everyone out.
	Secret string

	// Secure marks cookies HTTPS-only. Set it whenever BASE_URL is https.
	Secure bool

	// MaxAge defaults to DefaultSessionMaxAge.
	MaxAge time.Duration
}

// SessionStore keeps the identity claim of a logged-in browser in a signed,
// encrypted cookie, and the short-lived state of a login that is in flight
// in a second cookie.
//
// COOKIE KEYS:
// gorilla/sessions wants a hash key (HMAC) and a block key (AES). Both are
// derived from the one application secret with HKDF-SHA256, each with its
// own "info" label, so the two keys are independent of each other.
type SessionStore struct {
	sessions *sessions.CookieStore
	logins   *sessions.CookieStore
	logger   *slog.Logger
}

// NewSessionStore creates a SessionStore from cfg.
func NewSessionStore(cfg SessionConfig, logger *slog.Logger) (*SessionStore, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSessionMaxAge
	}

	// Claim values are stored with encoding/gob.
	gob.Register(Claim{})

	hashKey, err := deriveKey(cfg.Secret, "cupcakes session signing", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(cfg.Secret, "cupcakes session encryption", 32)
	if err != nil {
		return nil, err
	}

	return &SessionStore{
		sessions: newCookieStore(hashKey, blockKey, cfg.Secure, cfg.MaxAge),
		logins:   newCookieStore(hashKey, blockKey, cfg.Secure, loginMaxAge),
		logger:   logger,
	}, nil
}

func newCookieStore(hashKey, blockKey []byte, secure bool, maxAge time.Duration) *sessions.CookieStore {
	cs := sessions.NewCookieStore(hashKey, blockKey)
	cs.Options.Path = "/"
	cs.Options.HttpOnly = true
	cs.Options.Secure = secure
	cs.Options.SameSite = http.SameSiteLaxMode
	cs.MaxAge(int(maxAge.Seconds()))
	return cs
}

func deriveKey(secret, info string, n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("auth: deriving %q key: %w", info, err)
	}
	return key, nil
}

// Identity resolves the session of r.
//
// A cookie that cannot be decoded (tampered, expired, or written under an
// old secret) is treated exactly like no cookie: the visitor is anonymous.
func (s *SessionStore) Identity(r *http.Request) Identity {
	sess, err := s.sessions.Get(r, sessionCookie)
	if err != nil {
		s.logger.Debug("ignoring undecodable session cookie", slog.String("error", err.Error()))
		return Anonymous()
	}

	c, ok := sess.Values[claimKey].(Claim)
	if !ok {
		return Anonymous()
	}
	return Authenticated(c)
}

// SaveClaim starts a session for c.
func (s *SessionStore) SaveClaim(w http.ResponseWriter, r *http.Request, c Claim) error {
	// A stale cookie makes Get return an error alongside a fresh session,
	// which is what we want to overwrite anyway.
	sess, _ := s.sessions.Get(r, sessionCookie)
	sess.Values[claimKey] = c
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("auth: saving session: %w", err)
	}
	return nil
}

// Clear ends the session.
func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.sessions.Get(r, sessionCookie)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("auth: clearing session: %w", err)
	}
	return nil
}

// LoginTransaction is the state carried from /login to /callback.
type LoginTransaction struct {
	State    string
	Nonce    string
	ReturnTo string
}

// BeginLogin creates a login transaction with a fresh random state and nonce
// and stores it in the login cookie.
//
// STATE AND NONCE:
// state comes back on the callback URL; comparing it with the cookie proves
// the callback belongs to a login this browser started (CSRF protection).
// nonce is echoed inside the ID token; comparing it proves the token was
// minted for this login and is not a replay.
func (s *SessionStore) BeginLogin(w http.ResponseWriter, r *http.Request, returnTo string) (LoginTransaction, error) {
	state, err := randomToken()
	if err != nil {
		return LoginTransaction{}, err
	}
	nonce, err := randomToken()
	if err != nil {
		return LoginTransaction{}, err
	}

	sess, _ := s.logins.Get(r, loginCookie)
	sess.Values = map[any]any{
		stateKey:    state,
		nonceKey:    nonce,
		returnToKey: returnTo,
	}
	if err := sess.Save(r, w); err != nil {
		return LoginTransaction{}, fmt.Errorf("auth: saving login transaction: %w", err)
	}

	return LoginTransaction{State: state, Nonce: nonce, ReturnTo: returnTo}, nil
}

// FinishLogin checks state against the stored transaction and deletes the
// login cookie. The transaction is single-use whether or not it matches.
func (s *SessionStore) FinishLogin(w http.ResponseWriter, r *http.Request, state string) (LoginTransaction, error) {
	sess, err := s.logins.Get(r, loginCookie)
	if err != nil {
		return LoginTransaction{}, fmt.Errorf("%w: %v", ErrLoginState, err)
	}

	txn := LoginTransaction{}
	txn.State, _ = sess.Values[stateKey].(string)
	txn.Nonce, _ = sess.Values[nonceKey].(string)
	txn.ReturnTo, _ = sess.Values[returnToKey].(string)

	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return LoginTransaction{}, fmt.Errorf("auth: clearing login transaction: %w", err)
	}

	if txn.State == "" || state != txn.State {
		return LoginTransaction{}, ErrLoginState
	}
	return txn, nil
}

func randomToken() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("auth: generating random token")
	}
	return hex.EncodeToString(b), nil
}
