package resilience

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Health is a component or overall verdict, ordered best to worst.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthOK        Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

func (h Health) rank() int {
	switch h {
	case HealthOK:
		return 1
	case HealthDegraded:
		return 2
	case HealthUnhealthy:
		return 3
	}
	return 0
}

// Component is the result of one probe.
type Component struct {
	Name    string         `json:"name"`
	Status  Health         `json:"status"`
	Message string         `json:"message"`
	Latency time.Duration  `json:"latency"`
	Details map[string]any `json:"details,omitempty"`
}

// Probe checks one component. It should return once ctx is done.
type Probe func(ctx context.Context) Component

// Report aggregates every probe; Status is the worst component status.
type Report struct {
	Status     Health      `json:"status"`
	Components []Component `json:"components"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// Monitor runs registered probes in parallel under a shared deadline.
type Monitor struct {
	timeout time.Duration

	mu     sync.Mutex
	probes map[string]Probe
}

// NewMonitor returns a monitor with no probes. A non-positive timeout
// means ten seconds.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Monitor{timeout: timeout, probes: make(map[string]Probe)}
}

// Register adds or replaces the probe for name.
func (m *Monitor) Register(name string, p Probe) {
	m.mu.Lock()
	m.probes[name] = p
	m.mu.Unlock()
}

// Check runs every probe and returns the components sorted by name. A
// monitor with no probes reports HealthUnknown.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	names := make([]string, 0, len(m.probes))
	probes := make([]Probe, 0, len(m.probes))
	for name, p := range m.probes {
		names = append(names, name)
		probes = append(probes, p)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	components := make([]Component, len(probes))
	var wg sync.WaitGroup
	for i := range probes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			components[i] = runProbe(ctx, names[i], probes[i])
		}(i)
	}
	wg.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	report := Report{Status: HealthUnknown, Components: components, CheckedAt: time.Now()}
	for _, c := range components {
		if c.Status.rank() > report.Status.rank() {
			report.Status = c.Status
		}
	}
	return report
}

func runProbe(ctx context.Context, name string, p Probe) (c Component) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c = Component{Status: HealthUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		c.Name = name
		if c.Latency == 0 {
			c.Latency = time.Since(start)
		}
	}()
	return p(ctx)
}

// PingProbe reports unhealthy when ping fails and degraded when it takes
// longer than slow.
func PingProbe(ping func(context.Context) error, slow time.Duration) Probe {
	return func(ctx context.Context) Component {
		start := time.Now()
		err := ping(ctx)
		c := Component{Latency: time.Since(start)}
		switch {
		case err != nil:
			c.Status, c.Message = HealthUnhealthy, err.Error()
		case c.Latency > slow:
			c.Status, c.Message = HealthDegraded, "slow response: "+c.Latency.Round(time.Millisecond).String()
		default:
			c.Status, c.Message = HealthOK, "ok"
		}
		return c
	}
}

// BreakerProbe reports degraded while any endpoint group's breaker is
// not closed.
func BreakerProbe(set *BreakerSet) Probe {
	return func(ctx context.Context) Component {
		c := Component{Status: HealthOK, Message: "all circuits closed", Details: map[string]any{}}
		var tripped []string
		for _, s := range set.Snapshots() {
			c.Details[s.Name] = s.State
			if s.State != StateClosed {
				tripped = append(tripped, s.Name+" "+string(s.State))
			}
		}
		if len(tripped) > 0 {
			c.Status, c.Message = HealthDegraded, strings.Join(tripped, ", ")
		}
		return c
	}
}

// FeedProbe checks a streaming connection: unhealthy when disconnected,
// degraded when nothing has arrived within stale.
func FeedProbe(connected func() bool, lastMessage func() time.Time, stale time.Duration) Probe {
	return func(ctx context.Context) Component {
		last := lastMessage()
		c := Component{Details: map[string]any{"last_message": last}}
		switch {
		case !connected():
			c.Status, c.Message = HealthUnhealthy, "disconnected"
		case !last.IsZero() && time.Since(last) > stale:
			c.Status = HealthDegraded
			c.Message = "no messages for " + time.Since(last).Round(time.Second).String()
		default:
			c.Status, c.Message = HealthOK, "connected"
		}
		c.Details["connected"] = c.Status != HealthUnhealthy
		return c
	}
}
