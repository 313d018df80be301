package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 168, cfg.JWT.ExpiryHours)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Expiry())
	assert.Equal(t, 50, cfg.Generation.DefaultTarget)
	assert.Equal(t, 200, cfg.Generation.Ceiling)
	assert.Equal(t, 20, cfg.Generation.PromptBatchSize)
	assert.Equal(t, 10, cfg.Generation.ListBatchSize)
	assert.Equal(t, "openrouter", cfg.LLM.Provider)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.LLM.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("FRONTEND_URL", "http://a.test, http://b.test")
	t.Setenv("JWT_EXPIRY_HOURS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "or-key", cfg.LLM.APIKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.JWT.Expiry())
}

func TestLoad_LLMKeyPrecedence(t *testing.T) {
	t.Setenv("LLM_API_KEY", "primary")
	t.Setenv("OPENROUTER_API_KEY", "fallback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.LLM.APIKey)
}

func TestAddrHelpers(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 3001}
	assert.Equal(t, "127.0.0.1:3001", s.Addr())

	r := RedisConfig{Host: "redis", Port: 6379}
	assert.Equal(t, "redis:6379", r.Addr())

	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
