// Package plans drives the trade-plan lifecycle against the backend.
//
// The backend owns every plan. The manager never advances a status locally:
// after each state-changing call it re-lists and shows the server's copy.
package plans

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrade-console/internal/api"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/logging"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/store"
)

// Backend is the subset of the REST client the manager needs.
type Backend interface {
	GeneratePlan(ctx context.Context, ticker string, tradingType models.TradingType) (*api.GeneratePlanResponse, error)
	ListPlans(ctx context.Context) ([]models.TradePlan, error)
	ApprovePlan(ctx context.Context, planID string) error
	ExecutePlan(ctx context.Context, planID string) (*models.OrderDetails, error)
	DeletePlan(ctx context.Context, planID string) error
}

// Confirmer asks the user a yes/no question and blocks until answered.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Detail is the view of a single plan: the plan, its validation verdict
// (only known for plans generated in this or an earlier session) and the
// actions offered for its status.
type Detail struct {
	Plan       models.TradePlan
	Validation *models.PlanValidation
	Actions    []models.PlanAction
}

// ExecuteResult holds execute's order details and the form pre-filled from
// them. Nothing is placed.
type ExecuteResult struct {
	Plan    *models.TradePlan
	Details models.OrderDetails
	Form    models.OrderForm
}

// Options wires the optional collaborators. Every field may be nil.
type Options struct {
	Cache     store.Cache
	Access    *security.Access
	Audit     *security.AuditTrail
	Validator *security.InputValidator
}

// Manager runs generate/approve/execute/delete/list.
type Manager struct {
	backend   Backend
	cache     store.Cache
	access    *security.Access
	audit     *security.AuditTrail
	validator *security.InputValidator
	logger    zerolog.Logger

	mu       sync.RWMutex
	plans    []models.TradePlan
	onChange func([]models.TradePlan)
}

// NewManager creates a plan manager.
func NewManager(backend Backend, opts Options, logger zerolog.Logger) *Manager {
	validator := opts.Validator
	if validator == nil {
		validator = security.NewInputValidator(true)
	}
	return &Manager{
		backend:   backend,
		cache:     opts.Cache,
		access:    opts.Access,
		audit:     opts.Audit,
		validator: validator,
		logger:    logging.WithComponent(logger, "plans"),
	}
}

// OnChange registers fn to receive every freshly listed snapshot.
func (m *Manager) OnChange(fn func([]models.TradePlan)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Plans returns the last listed snapshot.
func (m *Manager) Plans() []models.TradePlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TradePlan, len(m.plans))
	copy(out, m.plans)
	return out
}

// Actions returns the actions offered for plan.
func Actions(plan models.TradePlan) []models.PlanAction {
	return plan.Status.Actions()
}

// Generate asks the backend for a new plan. An empty ticker fails with
// ErrEmptyTicker before any request is made.
func (m *Manager) Generate(ctx context.Context, ticker string, tradingType models.TradingType) (*Detail, error) {
	normalized, err := m.validator.ValidateTicker(ticker)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrEmptyTicker) {
			m.audit.InvalidInput(ctx, "ticker", ticker, err.Error())
		}
		return nil, err
	}
	if tradingType == "" {
		tradingType = models.TradingSwing
	}
	if err := m.access.Check(ctx, security.OpGeneratePlan); err != nil {
		return nil, err
	}

	resp, err := m.backend.GeneratePlan(ctx, normalized, tradingType)
	m.audit.Plan(ctx, security.AuditPlanGenerated, planIDOf(resp), normalized,
		map[string]interface{}{"trading_type": string(tradingType)}, err)
	if err != nil {
		logging.LogPlanAction(m.logger, "", "generate", "", err)
		return nil, apperrors.Wrapf(err, "generate plan for %s", normalized)
	}

	validation := resp.Validation
	detail := &Detail{Plan: resp.Plan, Validation: &validation}
	if m.cache != nil && resp.Plan.ID != "" {
		if err := m.cache.SavePlanValidation(ctx, resp.Plan.ID, validation); err != nil {
			m.logger.Warn().Err(err).Str("plan_id", resp.Plan.ID).Msg("Failed to cache plan validation")
		}
	}
	logging.LogPlanAction(m.logger, resp.Plan.ID, "generate", string(resp.Plan.Status), nil)

	if listed, ok := m.relist(ctx, resp.Plan.ID); ok {
		detail.Plan = listed
	}
	detail.Actions = Actions(detail.Plan)
	return detail, nil
}

// ApproveResult is the plan after a successful approve. Synced is false
// when the re-list failed; Plan is then the local copy marked approved until
// the next list brings the server's view.
type ApproveResult struct {
	Plan   models.TradePlan `json:"plan"`
	Synced bool             `json:"synced"`
}

// Approve sends the approve call for a draft plan and returns the server's
// copy after re-listing.
func (m *Manager) Approve(ctx context.Context, planID string) (*ApproveResult, error) {
	plan, err := m.offered(ctx, planID, models.ActionApprove, security.OpApprovePlan)
	if err != nil {
		return nil, err
	}

	err = m.backend.ApprovePlan(ctx, planID)
	m.audit.Plan(ctx, security.AuditPlanApproved, planID, plan.Symbol, nil, err)
	logging.LogPlanAction(m.logger, planID, "approve", string(plan.Status), err)
	if err != nil {
		return nil, apperrors.NewPlanError(planID, "approve", string(plan.Status), err)
	}

	if listed, ok := m.relist(ctx, planID); ok {
		return &ApproveResult{Plan: listed, Synced: true}, nil
	}
	plan.Status = models.PlanApproved
	return &ApproveResult{Plan: plan}, nil
}

// Execute asks the backend for order details of an approved plan and
// returns them with a pre-filled order form.
func (m *Manager) Execute(ctx context.Context, planID string) (*ExecuteResult, error) {
	plan, err := m.offered(ctx, planID, models.ActionExecute, security.OpExecutePlan)
	if err != nil {
		return nil, err
	}

	details, err := m.backend.ExecutePlan(ctx, planID)
	m.audit.Plan(ctx, security.AuditPlanExecuted, planID, plan.Symbol, nil, err)
	logging.LogPlanAction(m.logger, planID, "execute", string(plan.Status), err)
	if err != nil {
		return nil, apperrors.NewPlanError(planID, "execute", string(plan.Status), err)
	}

	result := &ExecuteResult{
		Details: *details,
		Form:    models.NewOrderForm(planID, *details),
	}
	if listed, ok := m.relist(ctx, planID); ok {
		result.Plan = &listed
	}
	return result, nil
}

// Delete removes a plan after confirmer agrees. A declined prompt returns
// ErrConfirmationDeclined and no request is sent.
func (m *Manager) Delete(ctx context.Context, planID string, confirmer Confirmer) error {
	plan, err := m.offered(ctx, planID, models.ActionDelete, security.OpDeletePlan)
	if err != nil {
		return err
	}

	ok := false
	if confirmer != nil {
		prompt := fmt.Sprintf("Delete %s plan %s for %s?", plan.Status, planID, plan.DisplaySymbol())
		ok, err = confirmer.Confirm(ctx, prompt)
		if err != nil {
			return apperrors.Wrap(err, "confirm delete")
		}
	}
	if !ok {
		m.audit.Declined(ctx, "delete_plan", planID)
		return apperrors.NewPlanError(planID, "delete", string(plan.Status), apperrors.ErrConfirmationDeclined)
	}

	err = m.backend.DeletePlan(ctx, planID)
	m.audit.Plan(ctx, security.AuditPlanDeleted, planID, plan.Symbol, nil, err)
	logging.LogPlanAction(m.logger, planID, "delete", string(plan.Status), err)
	if err != nil {
		return apperrors.NewPlanError(planID, "delete", string(plan.Status), err)
	}

	m.relist(ctx, "")
	return nil
}

// List fetches every plan, caches the snapshot and returns the plans that
// pass filter.
func (m *Manager) List(ctx context.Context, filter store.PlanFilter) ([]models.TradePlan, error) {
	plans, err := m.backend.ListPlans(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "list plans")
	}
	m.setSnapshot(ctx, plans)
	return filter.Apply(plans), nil
}

// Cached returns the last cached snapshot and when it was taken. It is used
// when the backend is unreachable.
func (m *Manager) Cached(ctx context.Context, filter store.PlanFilter) ([]models.TradePlan, time.Time, error) {
	if m.cache == nil {
		return nil, time.Time{}, apperrors.ErrDataNotFound
	}
	plans, err := m.cache.GetPlans(ctx, filter)
	if err != nil {
		return nil, time.Time{}, err
	}
	return plans, m.cache.GetLastSync(string(store.DatasetPlans)), nil
}

// Get returns the detail view of one plan from a fresh listing.
func (m *Manager) Get(ctx context.Context, planID string) (*Detail, error) {
	if err := m.validator.ValidatePlanID(planID); err != nil {
		return nil, err
	}
	if _, err := m.List(ctx, store.PlanFilter{}); err != nil {
		return nil, err
	}
	plan, ok := m.find(planID)
	if !ok {
		return nil, apperrors.NewPlanError(planID, "show", "", apperrors.ErrPlanNotFound)
	}
	detail := &Detail{Plan: plan, Actions: Actions(plan)}
	if m.cache != nil {
		if v, err := m.cache.GetPlanValidation(ctx, planID); err == nil {
			detail.Validation = v
		}
	}
	return detail, nil
}

// offered validates planID, checks the read-only gate and verifies that
// action is offered for the plan's current server status.
func (m *Manager) offered(ctx context.Context, planID string, action models.PlanAction, op security.Operation) (models.TradePlan, error) {
	if err := m.validator.ValidatePlanID(planID); err != nil {
		m.audit.InvalidInput(ctx, "plan_id", planID, err.Error())
		return models.TradePlan{}, err
	}
	if err := m.access.Check(ctx, op); err != nil {
		return models.TradePlan{}, err
	}

	plan, ok := m.find(planID)
	if !ok {
		if _, err := m.List(ctx, store.PlanFilter{}); err != nil {
			return models.TradePlan{}, err
		}
		if plan, ok = m.find(planID); !ok {
			return models.TradePlan{}, apperrors.NewPlanError(planID, string(action), "", apperrors.ErrPlanNotFound)
		}
	}

	for _, a := range Actions(plan) {
		if a == action {
			return plan, nil
		}
	}
	return plan, apperrors.NewPlanError(planID, string(action), string(plan.Status), apperrors.ErrActionNotOffered)
}

// relist refreshes the snapshot after a state change and returns the server
// copy of planID. A failed re-list is logged; the change itself succeeded.
func (m *Manager) relist(ctx context.Context, planID string) (models.TradePlan, bool) {
	if _, err := m.List(ctx, store.PlanFilter{}); err != nil {
		m.logger.Warn().Err(err).Msg("Re-list after plan change failed")
		return models.TradePlan{}, false
	}
	if planID == "" {
		return models.TradePlan{}, false
	}
	return m.find(planID)
}

func (m *Manager) find(planID string) (models.TradePlan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.ID == planID {
			return p, true
		}
	}
	return models.TradePlan{}, false
}

func (m *Manager) setSnapshot(ctx context.Context, plans []models.TradePlan) {
	m.mu.Lock()
	m.plans = plans
	onChange := m.onChange
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SavePlans(ctx, plans); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to cache plans")
		} else {
			m.cache.SetLastSync(string(store.DatasetPlans), time.Now())
		}
	}
	if onChange != nil {
		onChange(plans)
	}
}

func planIDOf(resp *api.GeneratePlanResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Plan.ID
}
