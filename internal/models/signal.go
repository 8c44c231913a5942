package models

import (
	"fmt"
	"math"
)

// Signal represents a BUY/SELL/HOLD recommendation with price levels.
type Signal struct {
	Ticker       string     `json:"ticker"`
	Signal       SignalType `json:"signal"`
	CurrentPrice float64    `json:"current_price"`
	EntryLevel   float64    `json:"entry_level"`
	StopLoss     float64    `json:"stop_loss"`
	Target1      float64    `json:"target_1"`
	Target2      float64    `json:"target_2"`
	Probability  float64    `json:"probability"`
	Timestamp    Timestamp  `json:"timestamp"`
}

// RiskReward returns reward/risk measured from the entry level to target 1
// and the stop. ok is false when the risk leg is zero or the levels are on
// the wrong side of the entry.
func (s Signal) RiskReward() (ratio float64, ok bool) {
	var reward, risk float64
	switch s.Signal {
	case SignalSell:
		reward = s.EntryLevel - s.Target1
		risk = s.StopLoss - s.EntryLevel
	default:
		reward = s.Target1 - s.EntryLevel
		risk = s.EntryLevel - s.StopLoss
	}
	if risk <= 0 || reward < 0 || math.IsNaN(reward/risk) {
		return 0, false
	}
	return reward / risk, true
}

// ConfidencePercent returns the probability as a whole percentage.
func (s Signal) ConfidencePercent() int {
	return int(math.Round(s.Probability * 100))
}

// FormatRiskReward formats a ratio as "1:1.75", or "1:-" when undefined.
func FormatRiskReward(ratio float64, ok bool) string {
	if !ok {
		return "1:-"
	}
	return fmt.Sprintf("1:%.2f", ratio)
}

// IndexSignal represents a signal for a market index.
type IndexSignal struct {
	Index       string     `json:"index"`
	Signal      SignalType `json:"signal"`
	Value       float64    `json:"value"`
	Probability float64    `json:"probability"`
	Trend       string     `json:"trend,omitempty"`
}
