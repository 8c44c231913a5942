// Package config provides configuration management for the trading console.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppName is used for the configuration directory and log file names.
const AppName = "autotrade-console"

// Config holds all application configuration.
type Config struct {
	API           APIConfig          `mapstructure:"api"`
	Relay         RelayConfig        `mapstructure:"relay"`
	Polling       PollingConfig      `mapstructure:"polling"`
	Signals       SignalsConfig      `mapstructure:"signals"`
	Security      SecurityConfig     `mapstructure:"security"`
	UI            UIConfig           `mapstructure:"ui"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// APIConfig holds backend REST configuration.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SignalTimeout time.Duration `mapstructure:"signal_timeout"`
	BulkTimeout   time.Duration `mapstructure:"bulk_timeout"`
	// BreakerThreshold is the number of consecutive transport failures
	// after which calls to an endpoint group fail fast.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// RelayConfig holds the push channel configuration.
type RelayConfig struct {
	URL                  string        `mapstructure:"url"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
}

// PollingConfig holds the refresh cadences.
type PollingConfig struct {
	StatusInterval    time.Duration `mapstructure:"status_interval"`
	PricesInterval    time.Duration `mapstructure:"prices_interval"`
	PositionsInterval time.Duration `mapstructure:"positions_interval"`
	HistoryInterval   time.Duration `mapstructure:"history_interval"`
	SignalsInterval   time.Duration `mapstructure:"signals_interval"`
}

// SignalsConfig holds the signal fan-out configuration.
type SignalsConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	Tickers        []string      `mapstructure:"tickers"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ReadOnlyMode bool   `mapstructure:"read_only_mode"`
	AuditEnabled bool   `mapstructure:"audit_enabled"`
	AuditDir     string `mapstructure:"audit_dir"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // all, trades_only, errors_only
	Bell    bool   `mapstructure:"bell"`
	// ApproachPct is how close, in percent, a price must come to a plan
	// level to count as approaching.
	ApproachPct float64       `mapstructure:"approach_pct"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Credentials holds backend credentials.
type Credentials struct {
	APIToken string `mapstructure:"api_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and loaded.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.signal_timeout", 30*time.Second)
	v.SetDefault("api.bulk_timeout", 120*time.Second)
	v.SetDefault("api.breaker_threshold", 5)
	v.SetDefault("api.breaker_cooldown", 30*time.Second)

	v.SetDefault("relay.url", "")
	v.SetDefault("relay.max_reconnect_attempts", 5)
	v.SetDefault("relay.reconnect_delay", 3*time.Second)

	v.SetDefault("polling.status_interval", 15*time.Second)
	v.SetDefault("polling.prices_interval", 10*time.Second)
	v.SetDefault("polling.positions_interval", 30*time.Second)
	v.SetDefault("polling.history_interval", 30*time.Second)
	v.SetDefault("polling.signals_interval", 60*time.Second)

	v.SetDefault("signals.max_retries", 2)
	v.SetDefault("signals.retry_base_delay", time.Second)
	v.SetDefault("signals.rate_per_second", 10.0)
	v.SetDefault("signals.burst", 5)
	v.SetDefault("signals.tickers", []string{})

	v.SetDefault("security.read_only_mode", false)
	v.SetDefault("security.audit_enabled", true)
	v.SetDefault("security.audit_dir", filepath.Join(DefaultConfigDir(), "audit"))

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.bell", false)
	v.SetDefault("notifications.approach_pct", 0.5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "console.log"))
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and continue on defaults
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Use restricted permissions for credentials file
		return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONSOLE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CONSOLE_API_TOKEN"); v != "" {
		cfg.Credentials.APIToken = v
	}
	if v := os.Getenv("CONSOLE_RELAY_URL"); v != "" {
		cfg.Relay.URL = v
	}
	if v := os.Getenv("CONSOLE_READ_ONLY"); v != "" {
		cfg.Security.ReadOnlyMode = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL: %q", c.API.BaseURL)
	}
	if c.Relay.URL != "" {
		r, err := url.Parse(c.Relay.URL)
		if err != nil || r.Host == "" {
			return fmt.Errorf("relay.url must be an absolute URL: %q", c.Relay.URL)
		}
	}

	if c.API.Timeout <= 0 || c.API.SignalTimeout <= 0 || c.API.BulkTimeout <= 0 {
		return fmt.Errorf("api timeouts must be positive")
	}
	if c.Relay.MaxReconnectAttempts < 0 {
		return fmt.Errorf("relay.max_reconnect_attempts must be non-negative")
	}
	if c.Signals.MaxRetries < 0 {
		return fmt.Errorf("signals.max_retries must be non-negative")
	}
	if c.Signals.RatePerSecond < 0 {
		return fmt.Errorf("signals.rate_per_second must be non-negative")
	}

	intervals := map[string]time.Duration{
		"status_interval":    c.Polling.StatusInterval,
		"prices_interval":    c.Polling.PricesInterval,
		"positions_interval": c.Polling.PositionsInterval,
		"history_interval":   c.Polling.HistoryInterval,
		"signals_interval":   c.Polling.SignalsInterval,
	}
	for name, d := range intervals {
		if d < time.Second {
			return fmt.Errorf("polling.%s must be at least 1s, got %s", name, d)
		}
	}

	switch c.Notifications.Level {
	case "", "all", "trades_only", "errors_only":
	default:
		return fmt.Errorf("invalid notifications.level: %s", c.Notifications.Level)
	}
	if p := c.Notifications.ApproachPct; p < 0 || p > 10 {
		return fmt.Errorf("notifications.approach_pct must be between 0 and 10, got %g", p)
	}

	return nil
}

// RelayURL returns the push channel URL, derived from the API base URL when
// not configured explicitly.
func (c *Config) RelayURL() string {
	if c.Relay.URL != "" {
		return c.Relay.URL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	u.RawQuery = "EIO=4&transport=websocket"
	return u.String()
}
