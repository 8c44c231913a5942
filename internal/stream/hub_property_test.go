package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"autotrade-console/internal/models"
)

var testKeys = []string{"NSE_EQ|RELIANCE", "NSE_EQ|TCS", "NSE_EQ|INFY", "NSE_EQ|HDFCBANK", "NSE_INDEX|Nifty 50"}

// Property: every fast subscriber of a key receives every tick published for it.
func TestProperty_AllSubscribersReceiveTicks(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("fast subscribers receive all ticks for their key", prop.ForAll(
		func(subscriberCount, tickCount, keyIdx int, basePrice float64) bool {
			key := testKeys[keyIdx]
			hub := NewHub()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			received := make([]int64, subscriberCount)
			var wg sync.WaitGroup
			for i := 0; i < subscriberCount; i++ {
				ch := hub.Subscribe(key)
				wg.Add(1)
				go func(idx int, ch <-chan models.PriceTick) {
					defer wg.Done()
					timeout := time.After(3 * time.Second)
					for {
						select {
						case _, ok := <-ch:
							if !ok {
								return
							}
							if atomic.AddInt64(&received[idx], 1) >= int64(tickCount) {
								return
							}
						case <-timeout:
							return
						}
					}
				}(i, ch)
			}

			for i := 0; i < tickCount; i++ {
				hub.Publish(models.PriceTick{InstrumentKey: key, LTP: basePrice + float64(i)*0.05})
			}
			wg.Wait()

			for i := range received {
				if atomic.LoadInt64(&received[i]) != int64(tickCount) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(testKeys)-1),
		gen.Float64Range(100.0, 5000.0),
	))

	properties.TestingRun(t)
}

// Property: a subscriber that never reads does not stall the others.
func TestProperty_SlowSubscribersDoNotBlockOthers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("slow subscribers do not block fast subscribers", prop.ForAll(
		func(keyIdx int, basePrice float64) bool {
			key := testKeys[keyIdx]
			hub := NewHubWithOptions(Options{Queue: 100, PerSubscriber: 5})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			fast := hub.Subscribe(key)
			_ = hub.Subscribe(key)

			var got int64
			done := make(chan struct{})
			go func() {
				defer close(done)
				timeout := time.After(2 * time.Second)
				for {
					select {
					case _, ok := <-fast:
						if !ok || atomic.AddInt64(&got, 1) >= 10 {
							return
						}
					case <-timeout:
						return
					}
				}
			}()

			for i := 0; i < 20; i++ {
				hub.Publish(models.PriceTick{InstrumentKey: key, LTP: basePrice + float64(i)})
				time.Sleep(time.Millisecond)
			}
			<-done
			return atomic.LoadInt64(&got) > 0
		},
		gen.IntRange(0, len(testKeys)-1),
		gen.Float64Range(100.0, 5000.0),
	))

	properties.TestingRun(t)
}

// Property: keyed subscribers only see their key; AllKeys subscribers see everything.
func TestProperty_SubscribersReceiveOnlyTheirKey(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("key filtering", prop.ForAll(
		func(subIdx, pubIdx int) bool {
			subKey, pubKey := testKeys[subIdx], testKeys[pubIdx]
			hub := NewHub()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			keyed := hub.Subscribe(subKey)
			all := hub.Subscribe(AllKeys)
			hub.Publish(models.PriceTick{InstrumentKey: pubKey, LTP: 1000})

			select {
			case tick := <-all:
				if tick.InstrumentKey != pubKey {
					return false
				}
			case <-time.After(time.Second):
				return false
			}

			select {
			case tick := <-keyed:
				return tick.InstrumentKey == subKey && subKey == pubKey
			case <-time.After(100 * time.Millisecond):
				return subKey != pubKey
			}
		},
		gen.IntRange(0, len(testKeys)-1),
		gen.IntRange(0, len(testKeys)-1),
	))

	properties.TestingRun(t)
}

func TestHub_ConsumersMatchKeyOrSymbol(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	var mu sync.Mutex
	var byKey, bySymbol, everything []string
	record := func(dst *[]string) func(models.PriceTick) {
		return func(tick models.PriceTick) {
			mu.Lock()
			*dst = append(*dst, tick.InstrumentKey)
			mu.Unlock()
		}
	}
	hub.RegisterConsumer(NewConsumerFunc([]string{"NSE_EQ|TCS"}, record(&byKey)))
	hub.RegisterConsumer(NewConsumerFunc([]string{"reliance"}, record(&bySymbol)))
	hub.RegisterConsumer(NewConsumerFunc(nil, record(&everything)))

	hub.Publish(models.PriceTick{InstrumentKey: "NSE_EQ|TCS", LTP: 3500})
	hub.Publish(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2400})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(everything) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"NSE_EQ|TCS"}, byKey)
	assert.Equal(t, []string{"NSE_EQ|RELIANCE"}, bySymbol)
	assert.Equal(t, []string{"NSE_EQ|TCS", "NSE_EQ|RELIANCE"}, everything)
}

func TestTickSymbol(t *testing.T) {
	assert.Equal(t, "TCS", TickSymbol(models.PriceTick{InstrumentKey: "NSE_EQ|TCS"}))
	assert.Equal(t, "INFY", TickSymbol(models.PriceTick{InstrumentKey: "NSE_EQ|x", Symbol: "infy"}))
	assert.Equal(t, "RELIANCE", TickSymbol(models.PriceTick{InstrumentKey: "reliance"}))
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("NSE_EQ|TCS")
	other := hub.Subscribe("NSE_EQ|TCS")
	assert.Equal(t, 2, hub.Subscribers("NSE_EQ|TCS"))

	hub.Unsubscribe("NSE_EQ|TCS", ch)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Stats().Subscribers)

	hub.Unsubscribe("NSE_EQ|TCS", other)
	assert.Equal(t, 0, hub.Subscribers("NSE_EQ|TCS"))
}

func TestHub_StatsCountDrops(t *testing.T) {
	hub := NewHubWithOptions(Options{Queue: 10, PerSubscriber: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = hub.Subscribe(AllKeys)
	hub.Start(ctx)
	assert.True(t, hub.Running())

	for i := 0; i < 3; i++ {
		hub.Publish(models.PriceTick{InstrumentKey: "NSE_EQ|TCS", LTP: float64(3500 + i)})
	}
	assert.Eventually(t, func() bool {
		s := hub.Stats()
		return s.Delivered+s.Dropped == 3
	}, time.Second, 5*time.Millisecond)

	s := hub.Stats()
	assert.Equal(t, uint64(3), s.Published)
	assert.Equal(t, uint64(1), s.Delivered)
	assert.Equal(t, uint64(2), s.Dropped)

	hub.Stop()
	assert.False(t, hub.Running())
	assert.Equal(t, 0, hub.Stats().Subscribers)
}
