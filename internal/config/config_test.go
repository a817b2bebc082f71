package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Fetcher.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Fetcher.BackoffBase)
	assert.Equal(t, "8.8.8.8:53", cfg.Fetcher.AlternateDNS)
	assert.Equal(t, 100.0, cfg.Extractor.PriceMin)
	assert.Equal(t, 1000000.0, cfg.Extractor.PriceMax)
	assert.Contains(t, cfg.Fetcher.SupportedHosts, "amazon.in")
	assert.Contains(t, cfg.Evasion.IndicatorPhrases, "robot-check")

	ids := make([]string, 0, len(cfg.Evasion.Profiles))
	for _, p := range cfg.Evasion.Profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"mobile-safari", "desktop-firefox", "minimal"}, ids)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FETCHER_MAX_ATTEMPTS", "5")
	t.Setenv("FETCHER_BACKOFF_BASE", "250ms")
	t.Setenv("FETCHER_SUPPORTED_HOSTS", "amazon.in, amazon.com ,")
	t.Setenv("EXTRACTOR_PRICE_MIN", "50.5")
	t.Setenv("OCR_ENABLED", "true")
	t.Setenv("FETCHER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Fetcher.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetcher.BackoffBase)
	assert.Equal(t, []string{"amazon.in", "amazon.com"}, cfg.Fetcher.SupportedHosts)
	assert.Equal(t, 50.5, cfg.Extractor.PriceMin)
	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Fetcher.ReadTimeout)
}

func TestLoadProfilesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	content := `
profiles:
  - id: edge
    tls: edge
    user_agent: "Edge UA"
    headers:
      Accept-Language: "en"
  - id: bare
    tls: go
indicator_phrases:
  - "are you human"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("EXTRACTOR_PROFILES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Evasion.Profiles, 2)
	assert.Equal(t, "edge", cfg.Evasion.Profiles[0].ID)
	assert.Equal(t, "en", cfg.Evasion.Profiles[0].Headers["Accept-Language"])
	assert.Equal(t, []string{"are you human"}, cfg.Evasion.IndicatorPhrases)
	// untouched sections keep defaults
	assert.Equal(t, "desktop-chrome", cfg.Fetcher.Primary.ID)
	assert.Contains(t, cfg.Fetcher.SupportedHosts, "amazon.in")
}

func TestLoadProfilesFile_Errors(t *testing.T) {
	cfg := &Config{}
	err := cfg.LoadProfilesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [unclosed"), 0644))
	assert.Error(t, cfg.LoadProfilesFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero attempts", func(c *Config) { c.Fetcher.MaxAttempts = 0 }, true},
		{"no hosts", func(c *Config) { c.Fetcher.SupportedHosts = nil }, true},
		{"inverted price range", func(c *Config) { c.Extractor.PriceMin = 10; c.Extractor.PriceMax = 5 }, true},
		{"duplicate profile", func(c *Config) {
			c.Evasion.Profiles = append(c.Evasion.Profiles, c.Evasion.Profiles[0])
		}, true},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, true},
		{"unknown sink", func(c *Config) { c.Diagnostics.Sink = "kafka" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.modify(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", "component", "fetcher")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "fetcher", entry["component"])

	buf.Reset()
	LoggingConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
