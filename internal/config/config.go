// Package config reads the server's configuration from the environment.
//
// SOURCES, IN ORDER OF PRECEDENCE:
//  1. Real environment variables
//  2. A .env file in the working directory (optional, loaded with godotenv)
//  3. Defaults below
//
// godotenv.Load never overrides a variable that is already set, so a value
// exported in the shell always wins over the .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort   = 3000
	DefaultDBPath = "data/cupcakes.db"
	DefaultEnv    = "development"
)

// minSecretLength applies to both JWT_SECRET and SECRET.
const minSecretLength = 16

// Config is the complete server configuration.
type Config struct {
	Port     int    // PORT
	Env      string // ENV: "development" or "production"
	LogLevel slog.Level
	DBPath   string // DB_PATH

	// JWTSecret signs the bearer tokens returned by /me (JWT_SECRET).
	JWTSecret string

	// CORSAllowedOrigins is CORS_ALLOWED_ORIGINS split on commas.
	CORSAllowedOrigins []string

	OIDC OIDC
}

// OIDC is the identity provider configuration for browser login.
type OIDC struct {
	Secret        string // SECRET: session cookie keys are derived from it
	BaseURL       string // BASE_URL: where this server is reachable
	ClientID      string // CLIENT_ID
	ClientSecret  string // CLIENT_SECRET
	IssuerBaseURL string // ISSUER_BASE_URL
	Auth0Logout   bool   // AUTH0_LOGOUT
}

// Enabled reports whether enough is configured to run the login flow.
// Without it every session is anonymous.
func (o OIDC) Enabled() bool {
	return o.Secret != "" && o.BaseURL != "" && o.ClientID != "" && o.IssuerBaseURL != ""
}

// SecureCookies reports whether session cookies should be HTTPS-only.
func (o OIDC) SecureCookies() bool {
	return strings.HasPrefix(strings.ToLower(o.BaseURL), "https://")
}

// IsProduction reports whether ENV is "production".
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// DatabasePath reads .env (if present) and returns DB_PATH. The migrate
// command uses it so schema work does not need the server's secrets.
func DatabasePath() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("config: reading .env: %w", err)
	}
	return getEnv("DB_PATH", DefaultDBPath), nil
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	port, err := getEnvInt("PORT", DefaultPort)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	auth0Logout, err := getEnvBool("AUTH0_LOGOUT", true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:               port,
		Env:                strings.ToLower(getEnv("ENV", DefaultEnv)),
		LogLevel:           level,
		DBPath:             getEnv("DB_PATH", DefaultDBPath),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		OIDC: OIDC{
			Secret:        os.Getenv("SECRET"),
			BaseURL:       strings.TrimSuffix(os.Getenv("BASE_URL"), "/"),
			ClientID:      os.Getenv("CLIENT_ID"),
			ClientSecret:  os.Getenv("CLIENT_SECRET"),
			IssuerBaseURL: strings.TrimSuffix(os.Getenv("ISSUER_BASE_URL"), "/"),
			Auth0Logout:   auth0Logout,
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("ENV must be development or production, got %q", c.Env))
	}

	if c.OIDC.Enabled() {
		if len(c.OIDC.Secret) < minSecretLength {
			errs = append(errs, fmt.Errorf("SECRET must be at least %d characters", minSecretLength))
		}
		for name, raw := range map[string]string{"BASE_URL": c.OIDC.BaseURL, "ISSUER_BASE_URL": c.OIDC.IssuerBaseURL} {
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, raw))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, raw)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("config: %s must be true or false, got %q", key, raw)
	}
	return v, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL must be debug, info, warn or error, got %q", raw)
	}
	return level, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
