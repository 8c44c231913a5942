package stream

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrade-console/internal/models"
	"autotrade-console/internal/notify"
	"autotrade-console/internal/store"
)

// PlanLevelType names one of a plan's price levels.
type PlanLevelType string

const (
	PlanLevelEntry    PlanLevelType = "entry"
	PlanLevelStopLoss PlanLevelType = "stop_loss"
	PlanLevelTarget1  PlanLevelType = "target_1"
	PlanLevelTarget2  PlanLevelType = "target_2"
)

// DefaultApproachPct is how close, in percent, a price must come to a level
// before it counts as approaching.
const DefaultApproachPct = 0.5

// PlanNotification is a level event for one plan.
type PlanNotification struct {
	Plan         models.TradePlan
	Level        PlanLevelType
	LevelPrice   float64
	CurrentPrice float64
	Distance     float64 // percent from level, signed
	Approaching  bool    // false once crossed
	Timestamp    time.Time
}

// watchedPlan tracks what has already fired for one plan. A level fires
// approaching at most once and crossed at most once; a crossed level is
// never reported as approaching again.
type watchedPlan struct {
	plan      models.TradePlan
	warned    map[PlanLevelType]bool
	crossed   map[PlanLevelType]bool
	lastPrice float64
}

func (w *watchedPlan) evaluate(ltp, within float64, at time.Time) []PlanNotification {
	var fired []PlanNotification
	for _, lv := range planLevels(w.plan) {
		if lv.price <= 0 || w.crossed[lv.kind] {
			continue
		}
		n := PlanNotification{
			Plan:         w.plan,
			Level:        lv.kind,
			LevelPrice:   lv.price,
			CurrentPrice: ltp,
			Distance:     percentDistance(ltp, lv.price),
			Timestamp:    at,
		}
		switch {
		case w.lastPrice > 0 && hasCrossed(w.lastPrice, ltp, lv.price):
			w.crossed[lv.kind], w.warned[lv.kind] = true, true
			fired = append(fired, n)
		case !w.warned[lv.kind] && math.Abs(n.Distance) <= within:
			w.warned[lv.kind] = true
			n.Approaching = true
			fired = append(fired, n)
		}
	}
	w.lastPrice = ltp
	return fired
}

// MonitorOption configures a PlanMonitor.
type MonitorOption func(*PlanMonitor)

// WithApproachPct sets the approach window in percent. Non-positive values
// keep the default.
func WithApproachPct(pct float64) MonitorOption {
	return func(m *PlanMonitor) {
		if pct > 0 {
			m.within = pct
		}
	}
}

// PlanMonitor watches relay ticks against the levels of approved and
// executed plans and notifies when a price approaches or crosses one.
// It implements Consumer.
type PlanMonitor struct {
	cache    store.Cache
	notifier notify.Notifier
	logger   zerolog.Logger
	within   float64
	now      func() time.Time

	mu       sync.Mutex
	bySymbol map[string][]*watchedPlan
}

// NewPlanMonitor creates a plan monitor. cache and notifier may be nil.
func NewPlanMonitor(cache store.Cache, notifier notify.Notifier, logger zerolog.Logger, opts ...MonitorOption) *PlanMonitor {
	m := &PlanMonitor{
		cache:    cache,
		notifier: notifier,
		logger:   logger.With().Str("component", "plan_monitor").Logger(),
		within:   DefaultApproachPct,
		now:      time.Now,
		bySymbol: make(map[string][]*watchedPlan),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func monitored(p models.TradePlan) bool {
	return p.Status == models.PlanApproved || p.Status == models.PlanExecuted
}

// LoadPlans replaces the monitored set with the cached approved and
// executed plans.
func (m *PlanMonitor) LoadPlans(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	var plans []models.TradePlan
	for _, status := range []models.PlanStatus{models.PlanApproved, models.PlanExecuted} {
		found, err := m.cache.GetPlans(ctx, store.PlanFilter{Status: status})
		if err != nil {
			return err
		}
		plans = append(plans, found...)
	}

	m.mu.Lock()
	m.bySymbol = make(map[string][]*watchedPlan)
	m.mu.Unlock()
	for _, p := range plans {
		m.AddPlan(p)
	}
	m.logger.Debug().Int("plans", len(plans)).Msg("Plan monitor loaded")
	return nil
}

// AddPlan starts watching plan. Plans that are neither approved nor
// executed are ignored. Re-adding a watched plan updates its levels and
// keeps what has already fired.
func (m *PlanMonitor) AddPlan(plan models.TradePlan) {
	symbol := planSymbol(plan)
	if !monitored(plan) || symbol == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.bySymbol[symbol] {
		if plan.ID != "" && w.plan.ID == plan.ID {
			w.plan = plan
			return
		}
	}
	m.bySymbol[symbol] = append(m.bySymbol[symbol], &watchedPlan{
		plan:    plan,
		warned:  make(map[PlanLevelType]bool),
		crossed: make(map[PlanLevelType]bool),
	})
}

// Sync applies a fresh plan list: monitored plans are added, the rest
// removed.
func (m *PlanMonitor) Sync(plans []models.TradePlan) {
	for _, p := range plans {
		if monitored(p) {
			m.AddPlan(p)
		} else {
			m.RemovePlan(p.ID)
		}
	}
}

// RemovePlan stops watching the plan with the given ID.
func (m *PlanMonitor) RemovePlan(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, list := range m.bySymbol {
		i := slices.IndexFunc(list, func(w *watchedPlan) bool { return w.plan.ID == planID })
		if i < 0 {
			continue
		}
		if list = slices.Delete(list, i, i+1); len(list) == 0 {
			delete(m.bySymbol, symbol)
		} else {
			m.bySymbol[symbol] = list
		}
		return
	}
}

// PlanCount returns the number of watched plans.
func (m *PlanMonitor) PlanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, list := range m.bySymbol {
		n += len(list)
	}
	return n
}

// OnTick implements Consumer.
func (m *PlanMonitor) OnTick(tick models.PriceTick) { m.Check(tick) }

// Keys implements Consumer. With nothing watched every tick is delivered
// and ignored.
func (m *PlanMonitor) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbols := make([]string, 0, len(m.bySymbol))
	for s := range m.bySymbol {
		symbols = append(symbols, s)
	}
	return symbols
}

// Check evaluates a tick against every plan for its symbol and sends the
// resulting notifications.
func (m *PlanMonitor) Check(tick models.PriceTick) {
	if tick.LTP <= 0 {
		return
	}
	at := m.now()

	var fired []PlanNotification
	m.mu.Lock()
	for _, w := range m.bySymbol[TickSymbol(tick)] {
		fired = append(fired, w.evaluate(tick.LTP, m.within, at)...)
	}
	m.mu.Unlock()

	for _, pn := range fired {
		m.send(pn)
	}
}

func (m *PlanMonitor) send(pn PlanNotification) {
	if m.notifier == nil {
		return
	}
	n := pn.Notification()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.notifier.Send(ctx, n); err != nil {
		m.logger.Warn().Err(err).Str("plan_id", pn.Plan.ID).Msg("Plan level notification failed")
	}
}

// Notification converts the event for the notify dispatcher.
func (pn PlanNotification) Notification() notify.Notification {
	symbol := planSymbol(pn.Plan)
	n := notify.Notification{
		Kind:       notify.KindPlanLevel,
		Time:       pn.Timestamp,
		PlanID:     pn.Plan.ID,
		Symbol:     symbol,
		Level:      string(pn.Level),
		LevelPrice: pn.LevelPrice,
		Price:      pn.CurrentPrice,
		Crossed:    !pn.Approaching,
	}
	if pn.Approaching {
		n.Title = fmt.Sprintf("%s approaching %s", symbol, pn.Level)
		n.Message = fmt.Sprintf("%.2f%% away", math.Abs(pn.Distance))
	} else {
		n.Title = fmt.Sprintf("%s crossed %s", symbol, pn.Level)
	}
	return n
}

type planLevel struct {
	kind  PlanLevelType
	price float64
}

func planLevels(plan models.TradePlan) []planLevel {
	return []planLevel{
		{PlanLevelEntry, plan.EntryPrice},
		{PlanLevelStopLoss, plan.StopLoss},
		{PlanLevelTarget1, plan.Target1},
		{PlanLevelTarget2, plan.Target2},
	}
}

func planSymbol(plan models.TradePlan) string {
	return strings.ToUpper(plan.DisplaySymbol())
}

// percentDistance is how far current is from level, in percent of level.
func percentDistance(current, level float64) float64 {
	if level == 0 {
		return 0
	}
	return (current - level) / level * 100
}

// hasCrossed reports whether price moved through level between two ticks.
func hasCrossed(prev, current, level float64) bool {
	return (prev < level && current >= level) || (prev > level && current <= level)
}

// PlanLevelStatus is a plan's distance from each of its levels at a price.
type PlanLevelStatus struct {
	Plan            models.TradePlan          `json:"plan"`
	CurrentPrice    float64                   `json:"current_price"`
	Distances       map[PlanLevelType]float64 `json:"distances"`
	NearestLevel    PlanLevelType             `json:"nearest_level,omitempty"`
	NearestDistance float64                   `json:"nearest_distance"`
}

// Nearest returns the level status of every plan watched for symbol at
// price.
func (m *PlanMonitor) Nearest(symbol string, price float64) []PlanLevelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PlanLevelStatus
	for _, w := range m.bySymbol[strings.ToUpper(symbol)] {
		out = append(out, levelStatus(w.plan, price))
	}
	return out
}

// Status returns the level status of every watched plan whose symbol has a
// price in prices.
func (m *PlanMonitor) Status(prices map[string]float64) []PlanLevelStatus {
	var out []PlanLevelStatus
	for symbol, price := range prices {
		out = append(out, m.Nearest(symbol, price)...)
	}
	return out
}

func levelStatus(plan models.TradePlan, price float64) PlanLevelStatus {
	st := PlanLevelStatus{
		Plan:         plan,
		CurrentPrice: price,
		Distances:    make(map[PlanLevelType]float64),
	}
	best := math.Inf(1)
	for _, lv := range planLevels(plan) {
		if lv.price <= 0 {
			continue
		}
		d := percentDistance(price, lv.price)
		st.Distances[lv.kind] = d
		if math.Abs(d) < best {
			best = math.Abs(d)
			st.NearestLevel, st.NearestDistance = lv.kind, d
		}
	}
	return st
}
