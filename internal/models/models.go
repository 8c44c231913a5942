// Package models provides domain models for the trading console.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Timestamp is a time decoded leniently from the backend, which sends
// RFC3339, naive ISO-8601, or unix seconds depending on the endpoint.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}
	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		t.Time = time.Unix(0, int64(secs*float64(time.Second)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	// Unknown layouts are not fatal; the field is informational.
	t.Time = time.Time{}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// PriceTick represents a real-time price update pushed by the relay.
type PriceTick struct {
	InstrumentKey string    `json:"instrument_key"`
	Symbol        string    `json:"symbol,omitempty"`
	LTP           float64   `json:"ltp"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     Timestamp `json:"timestamp"`
}

// Quote represents a market quote as returned by the prices endpoint.
type Quote struct {
	Symbol        string  `json:"symbol"`
	LTP           float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
}

// MarketIndex represents a market index level.
type MarketIndex struct {
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// TopStock represents an entry of the top stocks ranking.
type TopStock struct {
	Ticker     string  `json:"ticker"`
	Name       string  `json:"name,omitempty"`
	Signal     string  `json:"signal,omitempty"`
	Score      float64 `json:"score"`
	Price      float64 `json:"price"`
	Change     float64 `json:"change_percent"`
	Confidence float64 `json:"confidence"`
}

// UniverseStock represents a stock of the tradable universe.
type UniverseStock struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

// WatchlistItem represents a watchlist entry.
type WatchlistItem struct {
	Ticker  string    `json:"ticker"`
	Name    string    `json:"name,omitempty"`
	AddedAt Timestamp `json:"added_at"`
}

// BrokerStatus represents the connection state of the broker feed.
type BrokerStatus struct {
	Connected     bool   `json:"connected"`
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
}

// PortfolioSnapshot represents the aggregate portfolio view.
type PortfolioSnapshot struct {
	TotalValue    float64   `json:"total_value"`
	InvestedValue float64   `json:"invested_value"`
	TotalPnL      float64   `json:"total_pnl"`
	DayPnL        float64   `json:"day_pnl"`
	Cash          float64   `json:"cash"`
	Positions     int       `json:"positions"`
	Holdings      int       `json:"holdings"`
	Timestamp     Timestamp `json:"timestamp"`
}
