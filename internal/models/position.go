package models

import "strings"

// Position is the canonical open-position shape. The backend sends several
// payload variants; they are normalised once by NormalizePosition.
type Position struct {
	Symbol       string      `json:"symbol"`
	Exchange     Exchange    `json:"exchange,omitempty"`
	Product      ProductType `json:"product,omitempty"`
	Quantity     int         `json:"quantity"`
	AveragePrice float64     `json:"average_price"`
	LTP          float64     `json:"last_price"`
	PnL          float64     `json:"pnl"`
	PnLPercent   float64     `json:"pnl_percent"`
	Value        float64     `json:"value"`
	IsPaper      bool        `json:"is_paper"`
}

// RawPosition is the union of every field name the position endpoints use.
type RawPosition struct {
	TradingSymbol string   `json:"tradingsymbol"`
	Symbol        string   `json:"symbol"`
	Ticker        string   `json:"ticker"`
	Exchange      string   `json:"exchange"`
	Product       string   `json:"product"`
	Quantity      *int     `json:"quantity"`
	NetQuantity   *int     `json:"net_quantity"`
	AveragePrice  *float64 `json:"average_price"`
	AvgPrice      *float64 `json:"avg_price"`
	EntryPrice    *float64 `json:"entry_price"`
	LastPrice     *float64 `json:"last_price"`
	LTP           *float64 `json:"ltp"`
	CurrentPrice  *float64 `json:"current_price"`
	PnL           *float64 `json:"pnl"`
	OverallPnL    *float64 `json:"overall_pnl"`
	IntradayPnL   *float64 `json:"intraday_pnl"`
	UnrealisedPnL *float64 `json:"unrealised"`
	PnLPercent    *float64 `json:"pnl_percent"`
	Value         *float64 `json:"value"`
}

// NormalizePosition converts a raw payload into the canonical Position.
// For every field the first non-zero alternative wins.
func NormalizePosition(raw RawPosition, isPaper bool) Position {
	p := Position{
		Symbol:       strings.ToUpper(firstString(raw.TradingSymbol, raw.Symbol, raw.Ticker)),
		Exchange:     Exchange(strings.ToUpper(raw.Exchange)),
		Product:      ProductType(strings.ToUpper(raw.Product)),
		Quantity:     firstInt(raw.Quantity, raw.NetQuantity),
		AveragePrice: firstFloat(raw.AveragePrice, raw.AvgPrice, raw.EntryPrice),
		LTP:          firstFloat(raw.LastPrice, raw.LTP, raw.CurrentPrice),
		PnL:          firstFloat(raw.PnL, raw.OverallPnL, raw.IntradayPnL, raw.UnrealisedPnL),
		PnLPercent:   firstFloat(raw.PnLPercent),
		Value:        firstFloat(raw.Value),
		IsPaper:      isPaper,
	}
	if p.Exchange == "" {
		p.Exchange = NSE
	}
	if p.PnL == 0 && p.Quantity != 0 && p.AveragePrice > 0 && p.LTP > 0 {
		p.PnL = (p.LTP - p.AveragePrice) * float64(p.Quantity)
	}
	if p.PnLPercent == 0 && p.AveragePrice > 0 && p.LTP > 0 {
		pct := (p.LTP - p.AveragePrice) / p.AveragePrice * 100
		if p.Quantity < 0 {
			pct = -pct
		}
		p.PnLPercent = pct
	}
	if p.Value == 0 {
		p.Value = p.LTP * float64(abs(p.Quantity))
	}
	return p
}

// Holding represents a delivery holding.
type Holding struct {
	Symbol        string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange,omitempty"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LTP           float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
	DayChange     float64 `json:"day_change_percentage"`
	InvestedValue float64 `json:"invested_value"`
	CurrentValue  float64 `json:"current_value"`
}

// Normalize fills the derived fields the endpoint sometimes omits.
func (h Holding) Normalize() Holding {
	if h.InvestedValue == 0 {
		h.InvestedValue = h.AveragePrice * float64(h.Quantity)
	}
	if h.CurrentValue == 0 {
		h.CurrentValue = h.LTP * float64(h.Quantity)
	}
	if h.PnL == 0 {
		h.PnL = h.CurrentValue - h.InvestedValue
	}
	return h
}

// PnLPercent returns the holding's return on invested value.
func (h Holding) PnLPercent() float64 {
	if h.InvestedValue == 0 {
		return 0
	}
	return h.PnL / h.InvestedValue * 100
}

// DailyPositionStats aggregates the day's positions.
type DailyPositionStats struct {
	TotalPositions int     `json:"total_positions"`
	OpenPositions  int     `json:"open_positions"`
	ClosedToday    int     `json:"closed_positions"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	WinRate        float64 `json:"win_rate"`
}

// PaperStatus represents the paper trading account.
type PaperStatus struct {
	Enabled        bool    `json:"enabled"`
	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	PortfolioValue float64 `json:"portfolio_value"`
	TotalPnL       float64 `json:"total_pnl"`
	OpenPositions  int     `json:"open_positions"`
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil && *v != 0 {
			return *v
		}
	}
	return 0
}

func firstFloat(values ...*float64) float64 {
	for _, v := range values {
		if v != nil && *v != 0 {
			return *v
		}
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
