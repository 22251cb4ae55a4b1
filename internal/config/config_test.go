package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DB_PATH", "JWT_SECRET", "CORS_ALLOWED_ORIGINS",
	"SECRET", "BASE_URL", "CLIENT_ID", "CLIENT_SECRET", "ISSUER_BASE_URL", "AUTH0_LOGOUT",
}

// cleanEnv blanks every variable Load reads, so the host environment cannot
// leak into a test.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func setOIDC(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET", "a-long-session-secret-value")
	t.Setenv("BASE_URL", "https://cupcakes.example/")
	t.Setenv("CLIENT_ID", "client-123")
	t.Setenv("ISSUER_BASE_URL", "https://tenant.eu.auth0.com/")
}

func TestFromEnv_Defaults(t *testing.T) {
	cleanEnv(t)
	t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "data/cupcakes.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.OIDC.Auth0Logout)
	assert.False(t, cfg.OIDC.Enabled())
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	cleanEnv(t)
	setOIDC(t)
	t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "Production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_PATH", "/var/lib/cupcakes/prod.db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUTH0_LOGOUT", "false")
	t.Setenv("CLIENT_SECRET", "shh")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/var/lib/cupcakes/prod.db", cfg.DBPath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)

	assert.True(t, cfg.OIDC.Enabled())
	assert.True(t, cfg.OIDC.SecureCookies())
	assert.False(t, cfg.OIDC.Auth0Logout)
	assert.Equal(t, "https://cupcakes.example", cfg.OIDC.BaseURL, "trailing slash trimmed")
	assert.Equal(t, "https://tenant.eu.auth0.com", cfg.OIDC.IssuerBaseURL)
	assert.Equal(t, "shh", cfg.OIDC.ClientSecret)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing JWT_SECRET", map[string]string{"JWT_SECRET": ""}},
		{"short JWT_SECRET", map[string]string{"JWT_SECRET": "short"}},
		{"non-numeric PORT", map[string]string{"PORT": "eighty"}},
		{"PORT out of range", map[string]string{"PORT": "70000"}},
		{"bad LOG_LEVEL", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad AUTH0_LOGOUT", map[string]string{"AUTH0_LOGOUT": "maybe"}},
		{"bad ENV", map[string]string{"ENV": "staging"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_OIDCValidation(t *testing.T) {
	t.Run("short SECRET", func(t *testing.T) {
		cleanEnv(t)
		setOIDC(t)
		t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
		t.Setenv("SECRET", "short")

		_, err := FromEnv()
		assert.ErrorContains(t, err, "SECRET")
	})

	t.Run("relative BASE_URL", func(t *testing.T) {
		cleanEnv(t)
		setOIDC(t)
		t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
		t.Setenv("BASE_URL", "localhost:3000")

		_, err := FromEnv()
		assert.ErrorContains(t, err, "BASE_URL")
	})

	t.Run("partial config disables login instead of failing", func(t *testing.T) {
		cleanEnv(t)
		t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
		t.Setenv("CLIENT_ID", "client-123")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.False(t, cfg.OIDC.Enabled())
	})
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	cleanEnv(t)
	for _, k := range allKeys {
		// godotenv only fills variables that are absent, not ones set to "".
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("PORT", "4000")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("PORT=5000\nJWT_SECRET=dotenv-jwt-secret-value\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port, "real environment wins over .env")
	assert.Equal(t, "dotenv-jwt-secret-value", cfg.JWTSecret)
}

func TestDatabasePath_NeedsNoSecrets(t *testing.T) {
	cleanEnv(t)
	require.NoError(t, os.Unsetenv("DB_PATH"))
	t.Chdir(t.TempDir())

	path, err := DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, path)

	t.Setenv("DB_PATH", "/tmp/other.db")
	path, err = DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", path)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	cleanEnv(t)
	t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-16")
	t.Chdir(t.TempDir())

	_, err := Load()
	assert.NoError(t, err)
}
