package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"appcatalog.org/internal/auth"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Hour, cfg.Session.TTL)
	require.Equal(t, "argon2id", cfg.Password.Algorithm)
	require.Empty(t, cfg.Bootstrap.Username, "bootstrap credentials must not have defaults")
	require.Empty(t, cfg.Bootstrap.Password, "bootstrap credentials must not have defaults")
	require.Error(t, cfg.Validate(), "defaults without bootstrap credentials should not validate")
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	path := writeConfig(t, `
bootstrap:
  username: dkilleffer
  password: secret
session:
  ttl: 30m
password:
  algorithm: bcrypt
  bcrypt_cost: 4
login:
  rate_per_second: 0.5
  burst: 3
cache:
  size: 0
token:
  secret: 0123456789abcdef0123
log:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "dkilleffer", cfg.Bootstrap.Username)
	require.Equal(t, 30*time.Minute, cfg.Session.TTL)
	require.Equal(t, "bcrypt", cfg.Password.Algorithm)
	require.Equal(t, 4, cfg.Password.BcryptCost)
	require.Equal(t, 0.5, cfg.Login.RatePerSecond)
	require.Equal(t, 0, cfg.Cache.Size)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Development)
	// Unset keys keep their defaults.
	require.Equal(t, "Catalog administrator", cfg.Bootstrap.Name)
	require.Equal(t, uint32(2), cfg.Password.Iterations)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "bootstrap:\n  username: ops\n  password: pw\n")
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ops", cfg.Bootstrap.Username)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "session: [unclosed"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "bootstrap:\n  username: file-user\n  password: file-pw\n")
	t.Setenv(EnvConfigPath, "")
	t.Setenv("CATALOG_BOOTSTRAP_USERNAME", "env-user")
	t.Setenv("CATALOG_BOOTSTRAP_PASSWORD", "env-pw")
	t.Setenv("CATALOG_SESSION_TTL", "15m")
	t.Setenv("CATALOG_LOGIN_RATE", "0")
	t.Setenv("CATALOG_CACHE_SIZE", "8")
	t.Setenv("CATALOG_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-user", cfg.Bootstrap.Username)
	require.Equal(t, "env-pw", cfg.Bootstrap.Password)
	require.Equal(t, 15*time.Minute, cfg.Session.TTL)
	require.Equal(t, float64(0), cfg.Login.RatePerSecond)
	require.Equal(t, 8, cfg.Cache.Size)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvOverrideParseErrors(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CATALOG_SESSION_TTL": "soon",
		"CATALOG_CACHE_SIZE":  "lots",
	}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.ErrorContains(t, err, "CATALOG_SESSION_TTL")
	require.ErrorContains(t, err, "CATALOG_CACHE_SIZE")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Bootstrap.Username = "admin"
	cfg.Bootstrap.Password = "pw"
	require.NoError(t, cfg.Validate())

	cfg.Session.TTL = 0
	cfg.Password.Algorithm = "md5"
	cfg.Token.Secret = "short"
	err := cfg.Validate()
	require.ErrorContains(t, err, "session.ttl")
	require.ErrorContains(t, err, "password.algorithm")
	require.ErrorContains(t, err, "token.secret")
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	cfg.Bootstrap.Username = "dkilleffer"
	cfg.Bootstrap.Password = "secret"
	cfg.Password.Memory = 1024
	cfg.Password.Iterations = 1
	cfg.Session.TTL = 20 * time.Minute
	cfg.Token.Secret = "0123456789abcdef"

	opts, err := cfg.EngineOptions(zap.NewNop())
	require.NoError(t, err)
	e, err := auth.NewEngine(opts...)
	require.NoError(t, err)
	require.Equal(t, 20*time.Minute, e.SessionTTL())

	ctx := context.Background()
	_, err = e.Bootstrap(ctx, cfg.Seed())
	require.NoError(t, err)
	tok, err := e.Login(ctx, "dkilleffer", "secret")
	require.NoError(t, err)
	raw, err := e.Bearer(tok)
	require.NoError(t, err)
	require.True(t, e.MayAccessBearer(ctx, raw, "define_role"))

	cfg.Password.Algorithm = "rot13"
	_, err = cfg.EngineOptions(zap.NewNop())
	require.ErrorIs(t, err, auth.ErrInvalidInput)
}
