// Package store provides the local cache of server-owned state.
package store

import (
	"context"
	"strings"
	"time"

	"autotrade-console/internal/models"
)

// Cache persists the last server-confirmed copies of plans, mode and
// signals so the console can show them while the backend is unreachable.
// The backend remains the system of record.
type Cache interface {
	// Trade Plans
	SavePlans(ctx context.Context, plans []models.TradePlan) error
	GetPlans(ctx context.Context, filter PlanFilter) ([]models.TradePlan, error)
	GetPlan(ctx context.Context, planID string) (*models.TradePlan, error)
	SavePlanValidation(ctx context.Context, planID string, v models.PlanValidation) error
	GetPlanValidation(ctx context.Context, planID string) (*models.PlanValidation, error)

	// Trading mode
	SaveMode(ctx context.Context, mode models.TradingMode) error
	GetMode(ctx context.Context) (models.TradingMode, time.Time, error)

	// Signals
	SaveSignals(ctx context.Context, signals []models.Signal) error
	GetSignals(ctx context.Context, tickers []string) ([]models.Signal, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// PlanFilter represents filters for querying trade plans.
type PlanFilter struct {
	Symbol      string
	Status      models.PlanStatus
	TradingType models.TradingType
	Limit       int
}

// Matches reports whether plan passes the filter. Symbol matches either the
// plan's symbol or its ticker, case-insensitively.
func (f PlanFilter) Matches(plan models.TradePlan) bool {
	if f.Status != "" && plan.Status != f.Status {
		return false
	}
	if f.TradingType != "" && plan.TradingType != f.TradingType {
		return false
	}
	if sym := strings.TrimSpace(f.Symbol); sym != "" {
		return strings.EqualFold(strings.TrimSpace(plan.Symbol), sym) ||
			strings.EqualFold(strings.TrimSpace(plan.Ticker), sym)
	}
	return true
}

// Apply filters plans, keeping order, and truncates to Limit.
func (f PlanFilter) Apply(plans []models.TradePlan) []models.TradePlan {
	out := make([]models.TradePlan, 0, len(plans))
	for _, p := range plans {
		if !f.Matches(p) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}
