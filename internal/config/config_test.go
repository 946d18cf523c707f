package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable applyEnvOverrides reads so the host
// environment cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_PORT", "PORT", "SERVER_HOST", "DATABASE_URL", "REDIS_URL",
		"LOG_LEVEL", "LOG_FORMAT", "JWT_SECRET", "SUPABASE_URL", "SUPABASE_ANON_KEY",
		"RESEND_API_KEY", "NOTIFY_TO", "OPENAI_API_KEY", "EMBEDDING_BASE_URL",
		"EMBEDDING_MODEL", "SEMANTIC_ENABLED", "BUSINESS_PHONE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/voice-agent.db", cfg.DatabaseDSN())
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5, cfg.Retrieval.ResultWindow)
	assert.Equal(t, "TEST", cfg.Retrieval.DiagnosticSentinel)
	assert.False(t, cfg.Retrieval.Semantic.Enabled)
	assert.Equal(t,
		"I don't have specific information about that. Please call us at 406-543-1905 and our team will be happy to help you.",
		cfg.FallbackAnswer())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 5000
  request_timeout: 3s
cache:
  ttl: 30s
retrieval:
  result_window: 3
  fallback_answer: Call the yard.
auth:
  provider: static
  static_users:
    - id: u1
      email: yard@axmen.test
      password_hash: "$2a$10$abc"
business:
  name: Axmen Recycling
  phone: 406-555-0000
`), 0o600))

	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://va:va@localhost:5432/va?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("NOTIFY_TO", "a@axmen.test, b@axmen.test,")
	t.Setenv("SEMANTIC_ENABLED", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://va:va@localhost:5432/va?sslmode=disable", cfg.DatabaseDSN())
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, []string{"a@axmen.test", "b@axmen.test"}, cfg.Notify.CallbackTo)
	assert.Equal(t, cfg.Notify.CallbackTo, cfg.Notify.MessageTo)
	assert.True(t, cfg.Retrieval.Semantic.Enabled)
	assert.Equal(t, "Call the yard.", cfg.FallbackAnswer())
	require.Len(t, cfg.Auth.Static, 1)
	assert.Equal(t, "yard@axmen.test", cfg.Auth.Static[0].Email)
}

func TestLoad_SQLiteURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite:/var/lib/va.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/va.db", cfg.DatabaseDSN())
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid database driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "requires a dsn"},
		{"bad cache", func(c *Config) { c.Cache.Driver = "memcached" }, "invalid cache driver"},
		{"window too wide", func(c *Config) { c.Retrieval.ResultWindow = 6 }, "result_window"},
		{"budget under stage timeout", func(c *Config) { c.Retrieval.Budget = 500 * time.Millisecond }, "retrieval budget"},
		{"threshold", func(c *Config) { c.Retrieval.Semantic.Threshold = 1.5 }, "semantic threshold"},
		{"auth provider", func(c *Config) { c.Auth.Provider = "ldap" }, "invalid auth provider"},
		{"no phone", func(c *Config) { c.Business.Phone = "" }, "business phone"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
