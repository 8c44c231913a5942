// Package poll runs the console's periodic refresh tasks.
//
// Tasks only run while the view is visible. Hide cancels everything and
// returns once no task is running; Show starts from scratch with an
// immediate run of every task.
package poll

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"autotrade-console/internal/config"
	"autotrade-console/internal/logging"
)

// Task names used by the console.
const (
	TaskStatus    = "status"
	TaskPrices    = "prices"
	TaskPositions = "positions"
	TaskHistory   = "history"
	TaskSignals   = "signals"
)

// Default cadences.
const (
	DefaultStatusInterval    = 15 * time.Second
	DefaultPricesInterval    = 10 * time.Second
	DefaultPositionsInterval = 30 * time.Second
	DefaultHistoryInterval   = 30 * time.Second
	DefaultSignalsInterval   = 60 * time.Second
)

// Intervals maps task names to cadences, taking overrides from cfg.
func Intervals(cfg config.PollingConfig) map[string]time.Duration {
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	return map[string]time.Duration{
		TaskStatus:    pick(cfg.StatusInterval, DefaultStatusInterval),
		TaskPrices:    pick(cfg.PricesInterval, DefaultPricesInterval),
		TaskPositions: pick(cfg.PositionsInterval, DefaultPositionsInterval),
		TaskHistory:   pick(cfg.HistoryInterval, DefaultHistoryInterval),
		TaskSignals:   pick(cfg.SignalsInterval, DefaultSignalsInterval),
	}
}

// TaskFunc performs one refresh. It must return promptly once ctx is done.
type TaskFunc func(ctx context.Context, stamp Stamp) error

type task struct {
	name     string
	interval time.Duration
	run      TaskFunc

	// cancel for the run currently in flight, if any
	inflight context.CancelFunc
	runID    uint64
}

// Scheduler runs named tasks at fixed intervals while visible.
type Scheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	visible bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	onError func(name string, err error)

	generation atomic.Uint64
	runs       atomic.Uint64
}

// NewScheduler creates an empty, hidden scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logging.WithComponent(logger, "poll"),
		tasks:  make(map[string]*task),
	}
}

// Add registers a task. Tasks added while visible start on the next Show.
func (s *Scheduler) Add(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		s.order = append(s.order, name)
	}
	s.tasks[name] = &task{name: name, interval: interval, run: fn}
}

// OnError registers fn to receive task failures.
func (s *Scheduler) OnError(fn func(name string, err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Tasks returns the registered task names in registration order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Visible reports whether tasks are running.
func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Generation returns the last stamp handed out.
func (s *Scheduler) Generation() Stamp {
	return Stamp(s.generation.Load())
}

// Runs returns how many task runs have started.
func (s *Scheduler) Runs() uint64 {
	return s.runs.Load()
}

// Show starts every task: an immediate first run, then one per interval.
// It is a no-op if already visible. Nothing is resumed from an earlier
// Show; timers and goroutines are new.
func (s *Scheduler) Show(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible {
		return
	}
	s.visible = true
	s.ctx, s.cancel = context.WithCancel(parent)

	for _, name := range s.order {
		t := s.tasks[name]
		s.wg.Add(1)
		go s.loop(s.ctx, t)
	}
	s.logger.Debug().Int("tasks", len(s.order)).Msg("Polling started")
}

// Hide cancels every task, including in-flight runs, and waits for them to
// return. No task runs after Hide returns until the next Show.
func (s *Scheduler) Hide() {
	s.mu.Lock()
	if !s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("Polling paused")
}

// Stop is Hide for shutdown.
func (s *Scheduler) Stop() {
	s.Hide()
}

// RefreshNow runs the named tasks (all when none are given) once, right
// away, superseding any run of the same task still in flight. It returns
// false if hidden.
func (s *Scheduler) RefreshNow(names ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visible {
		return false
	}
	if len(names) == 0 {
		names = s.order
	}
	ctx := s.ctx
	for _, name := range names {
		t, ok := s.tasks[name]
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce(ctx, t)
		}()
	}
	return true
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	s.runOnce(ctx, t)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

// runOnce runs t with a fresh stamp, cancelling the previous run of t if
// it is still in flight.
func (s *Scheduler) runOnce(parent context.Context, t *task) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.mu.Lock()
	if t.inflight != nil {
		t.inflight()
	}
	t.runID++
	id := t.runID
	t.inflight = cancel
	onError := s.onError
	s.mu.Unlock()

	stamp := Stamp(s.generation.Add(1))
	s.runs.Add(1)
	start := time.Now()
	err := t.run(ctx, stamp)

	s.mu.Lock()
	if t.runID == id {
		t.inflight = nil
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Str("task", t.name).Dur("duration", time.Since(start)).Msg("Refresh failed")
		if onError != nil {
			onError(t.name, err)
		}
		return
	}
	s.logger.Debug().Str("task", t.name).Uint64("stamp", uint64(stamp)).Dur("duration", time.Since(start)).Msg("Refreshed")
}

// SortedTaskNames returns the keys of intervals in name order.
func SortedTaskNames(intervals map[string]time.Duration) []string {
	names := make([]string, 0, len(intervals))
	for name := range intervals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
