package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 5, cfg.Plans.Free.DailyLimit)
	assert.Equal(t, 2, cfg.Plans.Free.WindowLimit)
	assert.Equal(t, 10*time.Minute, cfg.Plans.Free.WindowPeriod())
	assert.Equal(t, 30*time.Second, cfg.Plans.Free.Cooldown())
	assert.Equal(t, 50, cfg.Plans.Premium.DailyLimit)
	assert.Equal(t, 7*24, cfg.Gallery.CacheTTLHours)
	assert.Equal(t, 5000, cfg.Gallery.CacheMaxSize)
	assert.Equal(t, 7, cfg.Payments.IdempotencyRetentionD)
	assert.Equal(t, 3, cfg.Notifier.MaxAttempts)
	assert.Equal(t, 10, cfg.Notifier.TimeoutSeconds)
}

func TestLoadRequiresToken(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestNormalizeRejectsPlainHTTPWebhook(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Payments.BackendWebhookURL = "http://backend.example.com/hook"

	err := Normalize(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https")
}

func TestNormalizeWebhookModeValidation(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Telegram.RunMode = "webhook"

	require.Error(t, Normalize(cfg))

	cfg.UpdatesWebhook.URL = "https://bot.example.com/updates"
	cfg.UpdatesWebhook.Listen = "0.0.0.0"
	cfg.UpdatesWebhook.Port = 8443
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
}

func TestNormalizeAcceptsPollingAlias(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Telegram.RunMode = "polling"

	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}
