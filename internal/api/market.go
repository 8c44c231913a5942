package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"autotrade-console/internal/models"
)

// Signal returns the signal for one ticker, bounded by the signal timeout.
func (c *Client) Signal(ctx context.Context, ticker string) (*models.Signal, error) {
	data, err := c.doUnguarded(ctx, http.MethodGet, "/api/signals/"+url.PathEscape(ticker), nil, nil, c.signalTimeout)
	if err != nil {
		return nil, err
	}
	var sig models.Signal
	if err := decodeField(data, &sig, "signal_data", "data"); err != nil {
		return nil, err
	}
	if sig.Ticker == "" {
		sig.Ticker = ticker
	}
	sig.Signal = models.SignalType(strings.ToUpper(string(sig.Signal)))
	return &sig, nil
}

// SignalTickers returns the tickers the backend produces signals for.
func (c *Client) SignalTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	if err := c.get(ctx, "/api/signals/tickers", nil, &tickers, "tickers"); err != nil {
		return nil, err
	}
	return tickers, nil
}

// IndexSignals returns signals for the market indices.
func (c *Client) IndexSignals(ctx context.Context) ([]models.IndexSignal, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/index-signals", nil, nil, c.bulkTimeout)
	if err != nil {
		return nil, err
	}
	var signals []models.IndexSignal
	if err := decodeField(data, &signals, "signals", "indices"); err != nil {
		return nil, err
	}
	return signals, nil
}

// Prices returns quotes for tickers keyed by symbol.
func (c *Client) Prices(ctx context.Context, tickers []string) (map[string]models.Quote, error) {
	var query url.Values
	if len(tickers) > 0 {
		query = url.Values{"tickers": {strings.Join(tickers, ",")}}
	}
	var prices map[string]models.Quote
	if err := c.get(ctx, "/api/prices", query, &prices, "prices"); err != nil {
		return nil, err
	}
	for symbol, q := range prices {
		if q.Symbol == "" {
			q.Symbol = symbol
			prices[symbol] = q
		}
	}
	return prices, nil
}

// MarketIndices returns the headline index levels.
func (c *Client) MarketIndices(ctx context.Context) ([]models.MarketIndex, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/market-indices", nil, nil, c.bulkTimeout)
	if err != nil {
		return nil, err
	}
	var indices []models.MarketIndex
	if err := decodeField(data, &indices, "indices"); err != nil {
		return nil, err
	}
	return indices, nil
}

// TopStocks returns the backend's current top-ranked stocks.
func (c *Client) TopStocks(ctx context.Context) ([]models.TopStock, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/top_stocks", nil, nil, c.bulkTimeout)
	if err != nil {
		return nil, err
	}
	var stocks []models.TopStock
	if err := decodeField(data, &stocks, "stocks", "top_stocks"); err != nil {
		return nil, err
	}
	return stocks, nil
}

// Universe returns the tradable stock universe.
func (c *Client) Universe(ctx context.Context) ([]models.UniverseStock, error) {
	var stocks []models.UniverseStock
	if err := c.get(ctx, "/api/stocks/universe", nil, &stocks, "stocks", "universe"); err != nil {
		return nil, err
	}
	return stocks, nil
}

// Watchlist returns the watchlist.
func (c *Client) Watchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	if err := c.get(ctx, "/api/watchlist", nil, &items, "watchlist", "items"); err != nil {
		return nil, err
	}
	return items, nil
}

// AddToWatchlist adds a ticker to the watchlist.
func (c *Client) AddToWatchlist(ctx context.Context, ticker string) error {
	return c.send(ctx, http.MethodPost, "/api/watchlist/add", map[string]string{"ticker": ticker}, 0, nil)
}

// BrokerStatus returns the broker feed connection status.
func (c *Client) BrokerStatus(ctx context.Context) (*models.BrokerStatus, error) {
	var status models.BrokerStatus
	if err := c.get(ctx, "/api/upstox/status", nil, &status, "status"); err != nil {
		return nil, err
	}
	return &status, nil
}
