// Package dashboard holds the console's view state and renders it.
package dashboard

import (
	"sync"
	"time"

	"autotrade-console/internal/models"
	"autotrade-console/internal/poll"
	"autotrade-console/internal/signals"
)

// View is the section the console is showing.
type View string

const (
	ViewOverview  View = "overview"
	ViewPlans     View = "plans"
	ViewSignals   View = "signals"
	ViewPositions View = "positions"
	ViewHistory   View = "history"
)

// ParseView returns the view named s, or ViewOverview.
func ParseView(s string) View {
	switch v := View(s); v {
	case ViewPlans, ViewSignals, ViewPositions, ViewHistory:
		return v
	}
	return ViewOverview
}

// State is the typed view state. Every polled slot keeps the result of the
// newest run only; a setter called with an older stamp is a no-op and
// returns false.
type State struct {
	Status    poll.Latest[models.AutoTradingStatus]
	History   poll.Latest[[]models.TradeRecord]
	Positions poll.Latest[[]models.Position]
	Holdings  poll.Latest[[]models.Holding]
	Plans     poll.Latest[[]models.TradePlan]
	Signals   poll.Latest[signals.Result]
	Prices    poll.Latest[map[string]models.Quote]

	mu       sync.RWMutex
	mode     models.TradingMode
	view     View
	errors   map[string]string
	relay    string
	ticks    map[string]models.PriceTick
	updated  time.Time
	onChange func()
}

// NewState creates an empty state showing the overview.
func NewState() *State {
	return &State{
		mode:   models.ModePaper,
		view:   ViewOverview,
		errors: make(map[string]string),
		ticks:  make(map[string]models.PriceTick),
	}
}

// OnChange registers fn to run after every accepted update.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *State) changed() {
	s.mu.Lock()
	s.updated = time.Now()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func accept[T any](s *State, slot *poll.Latest[T], task string, stamp poll.Stamp, v T) bool {
	if !slot.Set(stamp, v) {
		return false
	}
	s.SetError(task, nil)
	return true
}

// SetStatus stores an engine status result.
func (s *State) SetStatus(stamp poll.Stamp, v models.AutoTradingStatus) bool {
	if !accept(s, &s.Status, poll.TaskStatus, stamp, v) {
		return false
	}
	if v.Mode != "" {
		s.SetMode(v.Mode)
	}
	s.changed()
	return true
}

// SetHistory stores a trade history result.
func (s *State) SetHistory(stamp poll.Stamp, v []models.TradeRecord) bool {
	return s.done(accept(s, &s.History, poll.TaskHistory, stamp, v))
}

// SetPositions stores a positions result.
func (s *State) SetPositions(stamp poll.Stamp, v []models.Position) bool {
	return s.done(accept(s, &s.Positions, poll.TaskPositions, stamp, v))
}

// SetHoldings stores a holdings result.
func (s *State) SetHoldings(stamp poll.Stamp, v []models.Holding) bool {
	return s.done(accept(s, &s.Holdings, poll.TaskPositions, stamp, v))
}

// SetPlans stores a plans result.
func (s *State) SetPlans(stamp poll.Stamp, v []models.TradePlan) bool {
	return s.done(accept(s, &s.Plans, "plans", stamp, v))
}

// SetSignals stores a signal fan-out result.
func (s *State) SetSignals(stamp poll.Stamp, v signals.Result) bool {
	return s.done(accept(s, &s.Signals, poll.TaskSignals, stamp, v))
}

// SetPrices stores a prices result.
func (s *State) SetPrices(stamp poll.Stamp, v map[string]models.Quote) bool {
	return s.done(accept(s, &s.Prices, poll.TaskPrices, stamp, v))
}

func (s *State) done(accepted bool) bool {
	if accepted {
		s.changed()
	}
	return accepted
}

// SetMode sets the displayed trading mode.
func (s *State) SetMode(mode models.TradingMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Mode returns the displayed trading mode.
func (s *State) Mode() models.TradingMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetView switches the current view.
func (s *State) SetView(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.changed()
}

// View returns the current view.
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetError records (or with nil clears) the last failure of a task.
func (s *State) SetError(task string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errors, task)
		return
	}
	s.errors[task] = err.Error()
}

// Errors returns the current task failures.
func (s *State) Errors() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// SetRelayState records the relay connection state.
func (s *State) SetRelayState(state string) {
	s.mu.Lock()
	s.relay = state
	s.mu.Unlock()
	s.changed()
}

// RelayState returns the relay connection state.
func (s *State) RelayState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relay
}

// ApplyTick records the latest relay tick for its instrument key.
func (s *State) ApplyTick(tick models.PriceTick) {
	s.mu.Lock()
	s.ticks[tick.InstrumentKey] = tick
	s.mu.Unlock()
}

// Ticks returns the latest tick per instrument key.
func (s *State) Ticks() map[string]models.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.PriceTick, len(s.ticks))
	for k, v := range s.ticks {
		out[k] = v
	}
	return out
}

// Updated returns when the state last changed.
func (s *State) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
