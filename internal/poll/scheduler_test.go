package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-console/internal/config"
)

// Property: whatever order results arrive in, Latest ends up holding the
// result with the highest stamp.
func TestProperty_LatestKeepsNewestStamp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("out-of-order results are dropped", prop.ForAll(
		func(stamps []uint64) bool {
			var l Latest[uint64]
			var newest uint64
			for _, s := range stamps {
				l.Set(Stamp(s), s)
				if s > newest {
					newest = s
				}
			}
			v, stamp, ok := l.Get()
			if len(stamps) == 0 {
				return !ok
			}
			return ok && v == newest && uint64(stamp) == newest
		},
		gen.SliceOf(gen.UInt64Range(0, 50)),
	))

	properties.TestingRun(t)
}

func TestLatest_RejectsEqualStamp(t *testing.T) {
	var l Latest[string]
	assert.True(t, l.Set(3, "a"))
	assert.False(t, l.Set(3, "b"))
	assert.False(t, l.Set(2, "c"))
	assert.True(t, l.Set(4, "d"))
	assert.Equal(t, "d", l.Value())
}

type counter struct {
	mu     sync.Mutex
	stamps []Stamp
}

func (c *counter) task(_ context.Context, s Stamp) error {
	c.mu.Lock()
	c.stamps = append(c.stamps, s)
	c.mu.Unlock()
	return nil
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stamps)
}

func (c *counter) last() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stamps[len(c.stamps)-1]
}

func TestShowRunsImmediatelyAndHideStops(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var status, prices counter
	s.Add(TaskStatus, time.Hour, status.task)
	s.Add(TaskPrices, 20*time.Millisecond, prices.task)

	s.Show(context.Background())
	require.Eventually(t, func() bool { return status.count() == 1 && prices.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Hide()
	assert.False(t, s.Visible())
	frozen := prices.count()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, frozen, prices.count(), "no fetches after Hide")
	assert.Equal(t, 1, status.count())

	before := s.Generation()
	s.Show(context.Background())
	require.Eventually(t, func() bool { return status.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Greater(t, status.last(), before, "Show starts a new generation")
	s.Stop()
}

func TestHideCancelsInFlightRun(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	started := make(chan struct{})
	var cancelled atomic.Bool
	s.Add(TaskSignals, time.Hour, func(ctx context.Context, _ Stamp) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	s.Show(context.Background())
	<-started
	s.Hide()
	assert.True(t, cancelled.Load(), "Hide returns only after the run observed cancellation")
}

func TestRefreshNowSupersedesInFlightRun(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var mu sync.Mutex
	var superseded []Stamp
	var first atomic.Bool
	first.Store(true)
	release := make(chan struct{})

	s.Add(TaskHistory, time.Hour, func(ctx context.Context, stamp Stamp) error {
		if first.CompareAndSwap(true, false) {
			<-ctx.Done()
			mu.Lock()
			superseded = append(superseded, stamp)
			mu.Unlock()
			return ctx.Err()
		}
		<-release
		return nil
	})

	s.Show(context.Background())
	require.Eventually(t, func() bool { return s.Runs() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.RefreshNow(TaskHistory))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(superseded) == 1
	}, time.Second, time.Millisecond)
	close(release)
	s.Hide()

	assert.False(t, s.RefreshNow(), "hidden scheduler does not refresh")
}

func TestErrorsAreReported(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	boom := errors.New("backend down")
	s.Add(TaskStatus, time.Hour, func(context.Context, Stamp) error { return boom })

	got := make(chan string, 1)
	s.OnError(func(name string, err error) {
		if errors.Is(err, boom) {
			got <- name
		}
	})
	s.Show(context.Background())
	defer s.Hide()

	select {
	case name := <-got:
		assert.Equal(t, TaskStatus, name)
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}
}

func TestIntervals(t *testing.T) {
	defaults := Intervals(config.PollingConfig{})
	assert.Equal(t, 15*time.Second, defaults[TaskStatus])
	assert.Equal(t, 10*time.Second, defaults[TaskPrices])
	assert.Equal(t, 30*time.Second, defaults[TaskPositions])
	assert.Equal(t, 30*time.Second, defaults[TaskHistory])
	assert.Equal(t, 60*time.Second, defaults[TaskSignals])

	overridden := Intervals(config.PollingConfig{PricesInterval: 5 * time.Second})
	assert.Equal(t, 5*time.Second, overridden[TaskPrices])
	assert.Equal(t, []string{"history", "positions", "prices", "signals", "status"}, SortedTaskNames(overridden))
}

type fakeVisibility struct {
	events []string
}

func (f *fakeVisibility) Hide()                { f.events = append(f.events, "hide") }
func (f *fakeVisibility) Show(context.Context) { f.events = append(f.events, "show") }

func TestApply(t *testing.T) {
	v := &fakeVisibility{}
	ctx := context.Background()
	Apply(ctx, v, EventHide)
	Apply(ctx, v, EventShow)
	Apply(ctx, v, EventResume)
	Apply(ctx, v, EventNone)
	assert.Equal(t, []string{"hide", "show", "hide", "show"}, v.events)
}
