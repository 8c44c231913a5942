package api

import (
	"context"
	"net/http"
	"net/url"

	"autotrade-console/internal/models"
)

// GeneratePlanResponse is the body returned by the generate endpoint.
type GeneratePlanResponse struct {
	Plan       models.TradePlan      `json:"plan"`
	Validation models.PlanValidation `json:"validation"`
}

// GeneratePlan asks the backend to create a new draft plan. Each call
// creates a new plan.
func (c *Client) GeneratePlan(ctx context.Context, ticker string, tradingType models.TradingType) (*GeneratePlanResponse, error) {
	body := map[string]string{
		"ticker":       ticker,
		"trading_type": string(tradingType),
	}
	var resp GeneratePlanResponse
	if err := c.send(ctx, http.MethodPost, "/api/trade-plan/generate", body, c.bulkTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPlans returns every plan the backend holds.
func (c *Client) ListPlans(ctx context.Context) ([]models.TradePlan, error) {
	var plans []models.TradePlan
	if err := c.get(ctx, "/api/trade-plans", nil, &plans, "plans"); err != nil {
		return nil, err
	}
	return plans, nil
}

// ApprovePlan moves a draft plan to approved.
func (c *Client) ApprovePlan(ctx context.Context, planID string) error {
	return c.send(ctx, http.MethodPut, "/api/trade-plan/"+url.PathEscape(planID)+"/approve", struct{}{}, 0, nil)
}

// ExecutePlan asks the backend for the concrete order parameters of an
// approved plan. It does not place an order.
func (c *Client) ExecutePlan(ctx context.Context, planID string) (*models.OrderDetails, error) {
	var details models.OrderDetails
	if err := c.send(ctx, http.MethodPost, "/api/trade-plan/"+url.PathEscape(planID)+"/execute", struct{}{}, 0, &details, "order_details"); err != nil {
		return nil, err
	}
	return &details, nil
}

// DeletePlan deletes (cancels) a plan.
func (c *Client) DeletePlan(ctx context.Context, planID string) error {
	return c.send(ctx, http.MethodDelete, "/api/trade-plan/"+url.PathEscape(planID), nil, 0, nil)
}
