package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setenv isolates a test from the caller's environment.
func setenv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "ENV", "PORT", "LOG_LEVEL", "DB_ADAPTER", "SQLITE_FILE",
		"DATABASE_URL", "POSTGRES_DSN", "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_DB",
		"POSTGRES_PASSWORD", "SECRET_KEY", "ALGORITHM", "ACCESS_TOKEN_EXPIRE_MINUTES",
		"REFRESH_TOKEN_EXPIRE_DAYS", "PASSWORD_SCHEME", "RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestNew_Defaults(t *testing.T) {
	setenv(t, nil)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "8000", c.Port)
	assert.Equal(t, AdapterSQLite, c.DBAdapter)
	assert.Equal(t, "HS256", c.Algorithm)
	assert.Equal(t, DefaultSecret, c.SecretKey)
	assert.Equal(t, 30*time.Minute, c.AccessTokenTTL())
	assert.Equal(t, 30*24*time.Hour, c.RefreshTokenTTL())
	assert.Equal(t, "bcrypt", c.Hashing.Scheme)
	assert.Equal(t, []string{"*"}, c.CORSAllowedOrigins)
	assert.False(t, c.IsProduction())
}

func TestNew_FromEnv(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                        "9000",
		"SECRET_KEY":                  "s3cret",
		"ALGORITHM":                   "HS512",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "5",
		"REFRESH_TOKEN_EXPIRE_DAYS":   "0",
		"PASSWORD_SCHEME":             "argon2id",
		"DB_ADAPTER":                  "MEMORY",
	})

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "s3cret", c.SecretKey)
	assert.Equal(t, 5*time.Minute, c.AccessTokenTTL())
	assert.Zero(t, c.RefreshTokenTTL())
	assert.Equal(t, AdapterMemory, c.DBAdapter)
}

func TestNew_PostgresDSN(t *testing.T) {
	setenv(t, map[string]string{
		"DB_ADAPTER":        "postgres",
		"POSTGRES_HOST":     "db",
		"POSTGRES_USER":     "u",
		"POSTGRES_DB":       "auth",
		"POSTGRES_PASSWORD": "pw",
	})

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u dbname=auth sslmode=disable password=pw", c.Postgres.DSN)

	setenv(t, map[string]string{
		"DB_ADAPTER":   "postgres",
		"DATABASE_URL": "postgres://u:pw@db/auth?sslmode=disable",
	})
	c, err = New()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:pw@db/auth?sslmode=disable", c.Postgres.DSN)
}

func TestNew_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"default secret in production": {"ENV": "production"},
		"unknown algorithm":            {"ALGORITHM": "RS256"},
		"zero lifetime":                {"ACCESS_TOKEN_EXPIRE_MINUTES": "0"},
		"negative refresh days":        {"REFRESH_TOKEN_EXPIRE_DAYS": "-1"},
		"unknown scheme":               {"PASSWORD_SCHEME": "md5"},
		"unknown adapter":              {"DB_ADAPTER": "mongo"},
		"bad port":                     {"PORT": "http"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setenv(t, env)
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNew_ProductionWithSecret(t *testing.T) {
	setenv(t, map[string]string{"ENV": "prod", "SECRET_KEY": "real-secret"})

	c, err := New()
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
}

func TestNew_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
db_adapter: memory
tokens:
  secret_key: from-file
  access_token_expire_minutes: 15
`), 0o600))
	setenv(t, map[string]string{"CONFIG_FILE": path, "ALGORITHM": "HS384"})

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "7000", c.Port)
	assert.Equal(t, "from-file", c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL())
	assert.Equal(t, "HS384", c.Algorithm, "environment overrides the file")
}
