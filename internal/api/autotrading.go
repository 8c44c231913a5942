package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"autotrade-console/internal/models"
)

// Status returns the auto-trading engine status.
func (c *Client) Status(ctx context.Context) (*models.AutoTradingStatus, error) {
	var status models.AutoTradingStatus
	if err := c.get(ctx, "/api/auto-trading/status", nil, &status, "status", "data"); err != nil {
		return nil, err
	}
	return &status, nil
}

// History returns the auto-trading history, newest first. limit <= 0
// leaves the server default.
func (c *Client) History(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var records []models.TradeRecord
	if err := c.get(ctx, "/api/auto-trading/history", query, &records, "history", "trades"); err != nil {
		return nil, err
	}
	return records, nil
}

// Start starts the auto-trading engine.
func (c *Client) Start(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/auto-trading/start", nil)
}

// Stop stops the auto-trading engine.
func (c *Client) Stop(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/auto-trading/stop", nil)
}

// Pause pauses the auto-trading engine.
func (c *Client) Pause(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/auto-trading/pause", nil)
}

// ResetCircuitBreaker clears a triggered trading circuit breaker.
func (c *Client) ResetCircuitBreaker(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/auto-trading/reset-circuit-breaker", map[string]bool{"user_confirmation": true})
}

// Settings returns the engine settings.
func (c *Client) Settings(ctx context.Context) (*models.AutoTradingSettings, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/auto-trading/settings", nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var settings models.AutoTradingSettings
	if err := decodeField(data, &settings, "settings"); err != nil {
		return nil, err
	}
	if err := decodeField(data, &settings.Raw, "settings"); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings sends a partial settings update.
func (c *Client) UpdateSettings(ctx context.Context, changes map[string]interface{}) (*models.ActionResult, error) {
	var result models.ActionResult
	if err := c.send(ctx, http.MethodPost, "/api/auto-trading/settings", changes, 0, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Scan triggers a market scan. Scans can take minutes.
func (c *Client) Scan(ctx context.Context) (*models.ActionResult, error) {
	var result models.ActionResult
	if err := c.send(ctx, http.MethodPost, "/api/auto-trading/scan", struct{}{}, c.bulkTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunBacktest runs a backtest with the given parameters and returns the
// raw report.
func (c *Client) RunBacktest(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	var report map[string]interface{}
	if err := c.send(ctx, http.MethodPost, "/api/auto-trading/backtest-run", params, c.bulkTimeout, &report, "results", "report"); err != nil {
		return nil, err
	}
	return report, nil
}

// ApplyBacktest applies the last backtest's parameters to the engine.
func (c *Client) ApplyBacktest(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/auto-trading/backtest-apply", nil)
}

// RetrainElite retrains the elite model set.
func (c *Client) RetrainElite(ctx context.Context) (*models.ActionResult, error) {
	var result models.ActionResult
	if err := c.send(ctx, http.MethodPost, "/api/auto-trading/retrain-elite", struct{}{}, c.bulkTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TradingMode returns the backend's current trading mode.
func (c *Client) TradingMode(ctx context.Context) (models.TradingMode, error) {
	var resp struct {
		Mode models.TradingMode `json:"mode"`
	}
	if err := c.get(ctx, "/api/trading-mode", nil, &resp); err != nil {
		return "", err
	}
	return models.ParseTradingMode(string(resp.Mode))
}

// SetTradingMode asks the backend to switch modes. confirmed must be true
// for a switch to live; the backend rejects it otherwise.
func (c *Client) SetTradingMode(ctx context.Context, mode models.TradingMode, confirmed bool) (models.TradingMode, error) {
	body := map[string]interface{}{
		"mode":              mode,
		"user_confirmation": confirmed,
	}
	var resp struct {
		Mode models.TradingMode `json:"mode"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/trading-mode", body, 0, &resp); err != nil {
		return "", err
	}
	if resp.Mode == "" {
		return mode, nil
	}
	return models.ParseTradingMode(string(resp.Mode))
}

func (c *Client) action(ctx context.Context, path string, body any) (*models.ActionResult, error) {
	if body == nil {
		body = struct{}{}
	}
	var result models.ActionResult
	if err := c.send(ctx, http.MethodPost, path, body, 0, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
