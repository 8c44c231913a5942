package models

import (
	"fmt"
	"strings"
)

// TradingMode is the backend's execution mode.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// ParseTradingMode parses a trading mode, case-insensitively.
func ParseTradingMode(s string) (TradingMode, error) {
	switch TradingMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePaper:
		return ModePaper, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("invalid trading mode %q (must be paper or live)", s)
}

// IsLive reports whether real capital is at stake.
func (m TradingMode) IsLive() bool {
	return m == ModeLive
}

// CircuitBreakerState is a read-only snapshot of the server-side trading
// circuit breaker.
type CircuitBreakerState struct {
	Triggered            bool      `json:"triggered"`
	DailyPnL             float64   `json:"daily_pnl"`
	ConsecutiveLosses    int       `json:"consecutive_losses"`
	DailyLossLimitPct    float64   `json:"daily_loss_limit_pct"`
	MaxConsecutiveLosses int       `json:"max_consecutive_losses"`
	CooldownMinutes      int       `json:"cooldown_minutes"`
	TriggeredAt          Timestamp `json:"triggered_at"`
	Reason               string    `json:"reason,omitempty"`
}

// LossesRemaining returns how many more consecutive losses trip the breaker.
func (c CircuitBreakerState) LossesRemaining() int {
	n := c.MaxConsecutiveLosses - c.ConsecutiveLosses
	if n < 0 {
		return 0
	}
	return n
}

// AutoTradingStatus is the auto-trading engine's status snapshot.
type AutoTradingStatus struct {
	Running        bool                `json:"running"`
	Paused         bool                `json:"paused"`
	Mode           TradingMode         `json:"mode"`
	CircuitBreaker CircuitBreakerState `json:"circuit_breaker"`
	LastScan       Timestamp           `json:"last_scan"`
	NextScan       Timestamp           `json:"next_scan"`
	OpenPositions  int                 `json:"open_positions"`
	TradesToday    int                 `json:"trades_today"`
	DailyPnL       float64             `json:"daily_pnl"`
	Message        string              `json:"message,omitempty"`
}

// State returns a one-word description of the engine state.
func (s AutoTradingStatus) State() string {
	switch {
	case s.CircuitBreaker.Triggered:
		return "HALTED"
	case s.Paused:
		return "PAUSED"
	case s.Running:
		return "RUNNING"
	}
	return "STOPPED"
}

// AutoTradingSettings holds the engine settings.
type AutoTradingSettings struct {
	RiskPerTradePct      float64  `json:"risk_per_trade_pct"`
	MaxPositions         int      `json:"max_positions"`
	DailyLossLimitPct    float64  `json:"daily_loss_limit_pct"`
	MaxConsecutiveLosses int      `json:"max_consecutive_losses"`
	CooldownMinutes      int      `json:"cooldown_minutes"`
	MinConfidence        float64  `json:"min_confidence"`
	ScanIntervalMinutes  int      `json:"scan_interval_minutes"`
	Tickers              []string `json:"tickers,omitempty"`

	// Raw holds every key the backend sent, including ones not modelled above.
	Raw map[string]interface{} `json:"-"`
}

// ActionResult is the generic {success, message} acknowledgement.
type ActionResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
