package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "http://localhost:3000", config.API.BaseURL)
	assert.Equal(t, 3*time.Second, config.PollInterval())
	assert.Equal(t, 0, config.Tracker.MaxPolls)
	assert.Equal(t, 30*time.Second, config.RequestTimeout())
	assert.Equal(t, 250*time.Millisecond, config.RateLimit())
	assert.True(t, config.Scheduler.Enabled)
}

func TestLoadFromFilesLayering(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[api]
base_url = "https://payroll.example.com"

[tracker]
poll_interval = "5s"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[tracker]
poll_interval = "1s"
max_polls = 40
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.True(t, config.IsProduction())
	assert.Equal(t, "https://payroll.example.com", config.API.BaseURL)
	assert.Equal(t, time.Second, config.PollInterval(), "later file must override earlier")
	assert.Equal(t, 40, config.Tracker.MaxPolls)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLIPSTREAM_API_BASE_URL", "https://env.example.com")
	t.Setenv("SLIPSTREAM_API_TOKEN", "env-token")
	t.Setenv("SLIPSTREAM_TRACKER_POLL_INTERVAL", "2s")
	t.Setenv("SLIPSTREAM_TRACKER_MAX_POLLS", "10")
	t.Setenv("SLIPSTREAM_LOG_OUTPUT", "stdout, file")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", config.API.BaseURL)
	assert.Equal(t, "env-token", config.API.Token)
	assert.Equal(t, 2*time.Second, config.PollInterval())
	assert.Equal(t, 10, config.Tracker.MaxPolls)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestEnvOverridesIgnoreInvalidDurations(t *testing.T) {
	t.Setenv("SLIPSTREAM_TRACKER_POLL_INTERVAL", "soon")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, config.PollInterval())
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	config.API.BaseURL = "https://from-file.example.com"
	config.API.Token = "file-token"

	ApplyFlagOverrides(config, "https://flag.example.com", "")

	assert.Equal(t, "https://flag.example.com", config.API.BaseURL)
	assert.Equal(t, "file-token", config.API.Token, "empty flag must not clear config value")
}

func TestDurationFallbacks(t *testing.T) {
	config := NewDefaultConfig()
	config.Tracker.PollInterval = "garbage"
	config.API.RequestTimeout = ""
	config.API.RateLimit = "-1s"

	assert.Equal(t, 3*time.Second, config.PollInterval())
	assert.Equal(t, 30*time.Second, config.RequestTimeout())
	assert.Equal(t, 250*time.Millisecond, config.RateLimit())
}
