// Package resilience guards backend calls with per-endpoint-group circuit
// breakers and aggregates component health for the health command.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while a breaker
// is open, or while its single half-open probe is still in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Threshold int           // consecutive failures that open the circuit
	Cooldown  time.Duration // time open before one probe is let through
	// IsFailure picks which errors count. Nil counts all of them.
	// context.Canceled never counts.
	IsFailure func(error) bool
}

// Breaker opens after Threshold consecutive transport failures and lets a
// single probe through once Cooldown has passed.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	changed  time.Time
	probing  bool
	counts   Counts
}

// Counts are lifetime totals for one breaker.
type Counts struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Rejected int64 `json:"rejected"`
}

// NewBreaker returns a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, state: StateClosed, changed: time.Now()}
}

// Name returns the endpoint group the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn through the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn through b and returns its result.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := b.admit()
	if err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.settle(probe, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Calls++
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.move(StateHalfOpen)
	}
	switch {
	case b.state == StateOpen, b.state == StateHalfOpen && b.probing:
		b.counts.Rejected++
		return false, ErrCircuitOpen
	case b.state == StateHalfOpen:
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}
	if err == nil || !b.isFailure(err) {
		b.streak = 0
		if b.state == StateHalfOpen {
			b.move(StateClosed)
		}
		return
	}

	b.counts.Failures++
	b.streak++
	if b.state == StateHalfOpen || b.streak >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.move(StateOpen)
	}
}

// isFailure reports whether err counts against the circuit.
func (b *Breaker) isFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return b.cfg.IsFailure == nil || b.cfg.IsFailure(err)
}

func (b *Breaker) move(s State) {
	if b.state != s {
		b.state = s
		b.changed = b.now()
	}
	if s != StateOpen {
		b.streak = 0
	}
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.move(StateClosed)
}

// Snapshot describes a breaker for the health command.
type Snapshot struct {
	Name    string    `json:"name"`
	State   State     `json:"state"`
	Streak  int       `json:"consecutive_failures"`
	Since   time.Time `json:"since"`
	Counts  Counts    `json:"counts"`
	Retries time.Time `json:"retries_at,omitempty"`
}

// Snapshot returns the breaker's current position and totals.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{Name: b.name, State: b.state, Streak: b.streak, Since: b.changed, Counts: b.counts}
	if b.state == StateOpen {
		s.Retries = b.openedAt.Add(b.cfg.Cooldown)
	}
	return s
}

// BreakerSet hands out one breaker per endpoint group, all sharing a config.
type BreakerSet struct {
	cfg BreakerConfig

	mu     sync.Mutex
	groups map[string]*Breaker
}

// NewBreakerSet returns an empty set.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, groups: make(map[string]*Breaker)}
}

// For returns the breaker for group, creating it on first use.
func (s *BreakerSet) For(group string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.groups[group]
	if !ok {
		b = NewBreaker(group, s.cfg)
		s.groups[group] = b
	}
	return b
}

// Snapshots lists every breaker ordered by group name.
func (s *BreakerSet) Snapshots() []Snapshot {
	s.mu.Lock()
	list := make([]*Breaker, 0, len(s.groups))
	for _, b := range s.groups {
		list = append(list, b)
	}
	s.mu.Unlock()

	out := make([]Snapshot, len(list))
	for i, b := range list {
		out[i] = b.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes every breaker in the set.
func (s *BreakerSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.groups {
		b.Reset()
	}
}
