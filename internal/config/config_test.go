package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DEFAULT_REGION", "MIN_DELAY_SECONDS", "MAX_DELAY_SECONDS", "MAX_RETRIES", "BACKOFF",
	"BACKOFF_BASE_SECONDS", "BACKOFF_MAX_SECONDS", "SEND_TARGET", "NOT_FOUND_FALLBACK",
	"LEDGER_PATH", "DATABASE_URL", "DRIVER_URL", "DRIVER_TIMEOUT_SECONDS", "SESSION_FILE",
	"SESSION_HASH_KEY", "SESSION_BLOCK_KEY", "SESSION_SECRET", "OCR_LANGUAGES", "OCR_PSM",
	"REPORT_DIR", "LOG_LEVEL", "METADATA_LANGUAGE", "PREVIEW_LIMIT",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "US", cfg.DefaultRegion)
	assert.Equal(t, 10*time.Second, cfg.MinDelay())
	assert.Equal(t, 30*time.Second, cfg.MaxDelay())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "exponential", cfg.Backoff)
	assert.Equal(t, 5*time.Second, cfg.BackoffBase())
	assert.Equal(t, 60*time.Second, cfg.BackoffMax())
	assert.Equal(t, "phone", cfg.SendTarget)
	assert.Equal(t, "data/ledger.jsonl", cfg.LedgerPath)
	assert.Equal(t, time.Minute, cfg.DriverTimeout())
	assert.Equal(t, 6, cfg.OCRPSM)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_REGION", "gb")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("NOT_FOUND_FALLBACK", "true")
	t.Setenv("SEND_TARGET", "name")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "GB", cfg.DefaultRegion)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.NotFoundFallback)
	assert.Equal(t, "name", cfg.SendTarget)
}

func TestFromEnv_BadInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_RETRIES", "many")
	_, err := FromEnv()
	assert.EqualError(t, err, "invalid MAX_RETRIES")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "groupmsg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_region: DE
min_delay_seconds: 2
max_delay_seconds: 4
backoff: fixed
report_dir: out
`), 0o644))
	t.Setenv("MAX_DELAY_SECONDS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DE", cfg.DefaultRegion)
	assert.Equal(t, 2*time.Second, cfg.MinDelay())
	assert.Equal(t, 8*time.Second, cfg.MaxDelay())
	assert.Equal(t, "fixed", cfg.Backoff)
	assert.Equal(t, "out", cfg.ReportDir)
	assert.Equal(t, 3, cfg.MaxRetries, "unset keys keep defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min above max", func(c *Config) { c.MinDelaySeconds = 40 }, "delay range 40..30 is invalid"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "max_retries must be at least 1"},
		{"unknown backoff", func(c *Config) { c.Backoff = "linear" }, `backoff must be exponential or fixed, got "linear"`},
		{"unknown target", func(c *Config) { c.SendTarget = "email" }, `send_target must be phone or name, got "email"`},
		{"bad region", func(c *Config) { c.DefaultRegion = "USA" }, "two-letter region code"},
		{"no ledger", func(c *Config) { c.LedgerPath = "" }, "either ledger_path or database_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSessionKeys(t *testing.T) {
	cfg := Default()
	_, _, err := cfg.SessionKeys()
	assert.Error(t, err)

	cfg.SessionSecret = "a long enough session secret"
	h, b, err := cfg.SessionKeys()
	require.NoError(t, err)
	assert.Len(t, h, 32)
	assert.Len(t, b, 32)

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	cfg.SessionHashKey = key
	_, _, err = cfg.SessionKeys()
	assert.ErrorContains(t, err, "must be set together")

	keyFile := filepath.Join(t.TempDir(), "block")
	require.NoError(t, os.WriteFile(keyFile, []byte(key+"\n"), 0o600))
	cfg.SessionBlockKey = keyFile
	h, b, err = cfg.SessionKeys()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), h)
	assert.Equal(t, make([]byte, 32), b)

	cfg.SessionBlockKey = base64.StdEncoding.EncodeToString(make([]byte, 20))
	_, _, err = cfg.SessionKeys()
	assert.Error(t, err)
}
