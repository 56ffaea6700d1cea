package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetcee/portal/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VETCEE_SIGNING_SECRET", "a-long-enough-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "vetcee.session", cfg.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 8*time.Hour, cfg.AdminSessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.LinkTTL)
	assert.Equal(t, 3, cfg.RateLimitRequests)
	assert.Equal(t, "log", cfg.MailProvider)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VETCEE_SIGNING_SECRET", "secret")
	t.Setenv("VETCEE_ADDR", ":9999")
	t.Setenv("VETCEE_SESSION_TTL", "2h")
	t.Setenv("VETCEE_RATE_REQUESTS", "5")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.RateLimitRequests)
}

func TestSigningSecretRequired(t *testing.T) {
	t.Setenv("VETCEE_SIGNING_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VETCEE_SIGNING_SECRET")
}

func TestDevModeSkipsSecret(t *testing.T) {
	t.Setenv("VETCEE_SIGNING_SECRET", "")
	t.Setenv("VETCEE_DEV", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
}

func TestSMTPRequiresHost(t *testing.T) {
	t.Setenv("VETCEE_SIGNING_SECRET", "secret")
	t.Setenv("VETCEE_MAIL_PROVIDER", "smtp")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VETCEE_SMTP_HOST")
}
