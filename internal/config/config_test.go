package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesTemplatesOnFirstRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "console")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Polling.StatusInterval)
	assert.Equal(t, 2, cfg.Signals.MaxRetries)
	assert.Equal(t, 5, cfg.Relay.MaxReconnectAttempts)
}

func TestLoad_ReadsFileAndCredentials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[api]
base_url = "https://trading.example.com"
timeout = "10s"

[polling]
prices_interval = "5s"

[signals]
tickers = ["RELIANCE.NS", "TCS.NS"]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`api_token = "secret-token"
`), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://trading.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Polling.PricesInterval)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, cfg.Signals.Tickers)
	assert.Equal(t, "secret-token", cfg.Credentials.APIToken)
	assert.Equal(t, "wss://trading.example.com/socket.io/?EIO=4&transport=websocket", cfg.RelayURL())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONSOLE_API_URL", "http://10.0.0.5:5000")
	t.Setenv("CONSOLE_API_TOKEN", "from-env")
	t.Setenv("CONSOLE_READ_ONLY", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:5000", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.Credentials.APIToken)
	assert.True(t, cfg.Security.ReadOnlyMode)
	assert.Equal(t, "ws://10.0.0.5:5000/socket.io/?EIO=4&transport=websocket", cfg.RelayURL())
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[polling]
status_interval = "200ms"
`), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "polling.status_interval")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API: APIConfig{
				BaseURL:       "http://localhost:5000",
				Timeout:       30 * time.Second,
				SignalTimeout: 30 * time.Second,
				BulkTimeout:   120 * time.Second,
			},
			Polling: PollingConfig{
				StatusInterval:    15 * time.Second,
				PricesInterval:    10 * time.Second,
				PositionsInterval: 30 * time.Second,
				HistoryInterval:   30 * time.Second,
				SignalsInterval:   60 * time.Second,
			},
			Notifications: NotificationConfig{Level: "all"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "localhost:5000" }},
		{"ftp base url", func(c *Config) { c.API.BaseURL = "ftp://localhost" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Signals.MaxRetries = -1 }},
		{"negative rate", func(c *Config) { c.Signals.RatePerSecond = -1 }},
		{"relay without host", func(c *Config) { c.Relay.URL = "/socket.io/" }},
		{"sub-second polling", func(c *Config) { c.Polling.SignalsInterval = 500 * time.Millisecond }},
		{"unknown notification level", func(c *Config) { c.Notifications.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRelayURL_ExplicitWins(t *testing.T) {
	cfg := &Config{
		API:   APIConfig{BaseURL: "http://localhost:5000"},
		Relay: RelayConfig{URL: "ws://relay.internal:6000/socket.io/"},
	}
	assert.Equal(t, "ws://relay.internal:6000/socket.io/", cfg.RelayURL())
}
