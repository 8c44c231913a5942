package api

import (
	"context"
	"net/http"

	"autotrade-console/internal/models"
)

// Holdings returns delivery holdings.
func (c *Client) Holdings(ctx context.Context) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := c.get(ctx, "/api/holdings", nil, &holdings, "holdings", "data"); err != nil {
		return nil, err
	}
	for i := range holdings {
		holdings[i] = holdings[i].Normalize()
	}
	return holdings, nil
}

// Positions returns live broker positions in canonical form.
func (c *Client) Positions(ctx context.Context) ([]models.Position, error) {
	return c.positions(ctx, "/api/positions", false, "positions", "net", "data")
}

// DailyPositions returns today's tracked positions.
func (c *Client) DailyPositions(ctx context.Context) ([]models.Position, error) {
	return c.positions(ctx, "/api/daily-positions", false, "positions", "data")
}

// SyncDailyPositions asks the backend to reconcile daily positions with the
// broker.
func (c *Client) SyncDailyPositions(ctx context.Context) (*models.ActionResult, error) {
	return c.action(ctx, "/api/daily-positions/sync", nil)
}

// DailyPositionStats returns today's aggregate position statistics.
func (c *Client) DailyPositionStats(ctx context.Context) (*models.DailyPositionStats, error) {
	var stats models.DailyPositionStats
	if err := c.get(ctx, "/api/daily-positions/stats", nil, &stats, "stats"); err != nil {
		return nil, err
	}
	return &stats, nil
}

// PaperStatus returns the paper trading account.
func (c *Client) PaperStatus(ctx context.Context) (*models.PaperStatus, error) {
	var status models.PaperStatus
	if err := c.get(ctx, "/api/paper-trading/status", nil, &status, "status", "account"); err != nil {
		return nil, err
	}
	return &status, nil
}

// PaperPositions returns paper positions in canonical form.
func (c *Client) PaperPositions(ctx context.Context) ([]models.Position, error) {
	return c.positions(ctx, "/api/paper-trading/positions", true, "positions", "data")
}

// PortfolioSnapshot returns the aggregate portfolio view.
func (c *Client) PortfolioSnapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot
	if err := c.get(ctx, "/api/portfolio/snapshot", nil, &snap, "snapshot", "data"); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) positions(ctx context.Context, path string, isPaper bool, keys ...string) ([]models.Position, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var raw []models.RawPosition
	if err := decodeField(data, &raw, keys...); err != nil {
		return nil, err
	}
	positions := make([]models.Position, 0, len(raw))
	for _, r := range raw {
		positions = append(positions, models.NormalizePosition(r, isPaper))
	}
	return positions, nil
}
