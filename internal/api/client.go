// Package api provides the REST client for the auto-trading backend.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/resilience"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	// Timeout applies to ordinary calls; SignalTimeout to per-ticker
	// signal calls; BulkTimeout to scans, backtests and index endpoints.
	Timeout       time.Duration
	SignalTimeout time.Duration
	BulkTimeout   time.Duration
	// BreakerThreshold <= 0 disables the transport circuit breakers.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	HTTPClient       *http.Client
}

// DefaultConfig returns the default client configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          30 * time.Second,
		SignalTimeout:    30 * time.Second,
		BulkTimeout:      120 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Client calls the backend's JSON endpoints. It never retries; callers
// that need retries (signal fan-out) wrap calls themselves.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	timeout       time.Duration
	signalTimeout time.Duration
	bulkTimeout   time.Duration
	breakers      *resilience.BreakerSet
	logger        zerolog.Logger
}

// New creates a new backend client.
func New(cfg Config, logger zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from contexts.
		httpClient = &http.Client{}
	}
	def := DefaultConfig(cfg.BaseURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = def.SignalTimeout
	}
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = def.BulkTimeout
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		httpClient:    httpClient,
		timeout:       cfg.Timeout,
		signalTimeout: cfg.SignalTimeout,
		bulkTimeout:   cfg.BulkTimeout,
		logger:        logger.With().Str("component", "api").Logger(),
	}

	if cfg.BreakerThreshold > 0 {
		c.breakers = resilience.NewBreakerSet(resilience.BreakerConfig{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			IsFailure: apperrors.IsRetryable,
		})
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breakers returns the transport circuit breakers, or nil when disabled.
func (c *Client) Breakers() *resilience.BreakerSet {
	return c.breakers
}

// SignalTimeout returns the per-ticker signal timeout.
func (c *Client) SignalTimeout() time.Duration {
	return c.signalTimeout
}

// endpointGroup maps "/api/auto-trading/status" to "auto-trading".
func endpointGroup(path string) string {
	p := strings.TrimPrefix(path, "/api/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	switch p {
	case "trade-plan", "trade-plans":
		return "trade-plan"
	case "daily-positions", "positions", "holdings", "paper-trading", "portfolio":
		return "portfolio"
	}
	return p
}
