package models

import (
	"fmt"
	"strings"
)

// SignalType represents a BUY/SELL/HOLD recommendation.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// TradingType represents the holding horizon of a plan.
type TradingType string

const (
	TradingIntraday TradingType = "intraday"
	TradingSwing    TradingType = "swing"
	TradingPosition TradingType = "position"
)

// ParseTradingType parses a trading type, case-insensitively.
func ParseTradingType(s string) (TradingType, error) {
	switch TradingType(strings.ToLower(strings.TrimSpace(s))) {
	case TradingIntraday:
		return TradingIntraday, nil
	case TradingSwing:
		return TradingSwing, nil
	case TradingPosition:
		return TradingPosition, nil
	}
	return "", fmt.Errorf("invalid trading type %q (must be intraday, swing or position)", s)
}

// PlanStatus represents the status of a trade plan.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanApproved  PlanStatus = "approved"
	PlanExecuted  PlanStatus = "executed"
	PlanCancelled PlanStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanExecuted || s == PlanCancelled
}

// CanApprove reports whether approve is offered.
func (s PlanStatus) CanApprove() bool {
	return s == PlanDraft
}

// CanExecute reports whether execute is offered.
func (s PlanStatus) CanExecute() bool {
	return s == PlanApproved
}

// CanDelete reports whether delete (cancel) is offered.
func (s PlanStatus) CanDelete() bool {
	return s == PlanDraft || s == PlanApproved
}

// CanTransition reports whether the lifecycle allows moving to next.
// Status only advances: draft -> approved -> executed, or draft|approved -> cancelled.
func (s PlanStatus) CanTransition(next PlanStatus) bool {
	switch next {
	case PlanApproved:
		return s == PlanDraft
	case PlanExecuted:
		return s == PlanApproved
	case PlanCancelled:
		return s == PlanDraft || s == PlanApproved
	}
	return false
}

// PlanAction is a user action on a trade plan.
type PlanAction string

const (
	ActionApprove PlanAction = "approve"
	ActionExecute PlanAction = "execute"
	ActionDelete  PlanAction = "delete"
)

// Actions returns the actions offered for a plan in status s.
func (s PlanStatus) Actions() []PlanAction {
	var actions []PlanAction
	if s.CanApprove() {
		actions = append(actions, ActionApprove)
	}
	if s.CanExecute() {
		actions = append(actions, ActionExecute)
	}
	if s.CanDelete() {
		actions = append(actions, ActionDelete)
	}
	return actions
}

// TradePlan represents a server-owned trade plan.
type TradePlan struct {
	ID              string      `json:"plan_id"`
	Symbol          string      `json:"symbol"`
	Ticker          string      `json:"ticker"`
	Signal          SignalType  `json:"signal"`
	TradingType     TradingType `json:"trading_type"`
	Status          PlanStatus  `json:"status"`
	EntryPrice      float64     `json:"entry_price"`
	StopLoss        float64     `json:"stop_loss"`
	Target1         float64     `json:"target_1"`
	Target2         float64     `json:"target_2"`
	Quantity        int         `json:"quantity"`
	CapitalRequired float64     `json:"capital_required"`
	RiskAmount      float64     `json:"risk_amount"`
	RiskPerTradePct float64     `json:"risk_per_trade_pct"`
	RiskReward      float64     `json:"risk_reward_ratio"`
	Confidence      float64     `json:"confidence"`
	Timestamp       Timestamp   `json:"timestamp"`
}

// DisplaySymbol returns the plan's symbol, falling back to its ticker.
func (p TradePlan) DisplaySymbol() string {
	if p.Symbol != "" {
		return p.Symbol
	}
	return p.Ticker
}

// PlanValidation is the server's validation verdict for a generated plan.
type PlanValidation struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// OrderDetails holds the concrete order parameters computed by execute.
type OrderDetails struct {
	Symbol       string      `json:"symbol"`
	Exchange     Exchange    `json:"exchange,omitempty"`
	Side         OrderSide   `json:"transaction_type"`
	Quantity     int         `json:"quantity"`
	Price        float64     `json:"price"`
	TriggerPrice float64     `json:"trigger_price,omitempty"`
	OrderType    OrderType   `json:"order_type"`
	Product      ProductType `json:"product"`
	StopLoss     float64     `json:"stop_loss"`
	Target       float64     `json:"target"`
}

// OrderForm is an order entry form pre-filled from OrderDetails. Filling a
// form never places an order.
type OrderForm struct {
	PlanID       string
	Symbol       string
	Exchange     Exchange
	Side         OrderSide
	Quantity     int
	Price        float64
	TriggerPrice float64
	OrderType    OrderType
	Product      ProductType
	StopLoss     float64
	Target       float64
}

// NewOrderForm pre-fills an order form from execute's order details.
func NewOrderForm(planID string, d OrderDetails) OrderForm {
	exchange := d.Exchange
	if exchange == "" {
		exchange = NSE
	}
	orderType := d.OrderType
	if orderType == "" {
		orderType = OrderTypeLimit
	}
	return OrderForm{
		PlanID:       planID,
		Symbol:       d.Symbol,
		Exchange:     exchange,
		Side:         d.Side,
		Quantity:     d.Quantity,
		Price:        d.Price,
		TriggerPrice: d.TriggerPrice,
		OrderType:    orderType,
		Product:      d.Product,
		StopLoss:     d.StopLoss,
		Target:       d.Target,
	}
}

// TradeRecord represents one entry of the auto-trading history.
type TradeRecord struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	Side       OrderSide `json:"action"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	Status     string    `json:"status"`
	Mode       string    `json:"mode"`
	Timestamp  Timestamp `json:"timestamp"`
}
