// Package stream fans relay price ticks out to in-process consumers.
package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"autotrade-console/internal/models"
)

// AllKeys subscribes to every tick regardless of instrument key.
const AllKeys = "*"

// Options sizes the hub's queues.
type Options struct {
	Queue         int // ticks waiting for the fan-out loop
	PerSubscriber int // ticks buffered for each channel subscriber
}

// DefaultOptions suits one relay feeding a dashboard.
func DefaultOptions() Options {
	return Options{Queue: 1000, PerSubscriber: 100}
}

// Consumer receives ticks synchronously on the hub's loop, in publish
// order. Keys lists instrument keys or symbols of interest; nil means all.
type Consumer interface {
	OnTick(tick models.PriceTick)
	Keys() []string
}

// Stats counts ticks through the hub.
type Stats struct {
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

type subscription struct {
	ch      chan models.PriceTick
	dropped atomic.Uint64
}

// Hub moves ticks from a publisher to channel subscribers and consumers.
// Publish never blocks: a full queue or a full subscriber buffer drops the
// tick for that recipient only.
type Hub struct {
	opts  Options
	queue chan models.PriceTick

	mu        sync.RWMutex
	subs      map[string][]*subscription
	consumers []Consumer
	stop      chan struct{}
	loop      sync.WaitGroup

	published, delivered, dropped atomic.Uint64
}

// NewHub returns a hub with DefaultOptions.
func NewHub() *Hub {
	return NewHubWithOptions(DefaultOptions())
}

// NewHubWithOptions returns a stopped hub.
func NewHubWithOptions(opts Options) *Hub {
	def := DefaultOptions()
	if opts.Queue <= 0 {
		opts.Queue = def.Queue
	}
	if opts.PerSubscriber <= 0 {
		opts.PerSubscriber = def.PerSubscriber
	}
	return &Hub{
		opts:  opts,
		queue: make(chan models.PriceTick, opts.Queue),
		subs:  make(map[string][]*subscription),
	}
}

// Start runs the fan-out loop until ctx is done or Stop is called.
// Starting a running hub does nothing.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return
	}
	stop := make(chan struct{})
	h.stop = stop
	h.loop.Add(1)
	go func() {
		defer h.loop.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case tick := <-h.queue:
				h.dispatch(tick)
			}
		}
	}()
}

// Stop ends the loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	h.loop.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for key, list := range h.subs {
		for _, s := range list {
			close(s.ch)
		}
		delete(h.subs, key)
	}
}

// Running reports whether the loop is active.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stop != nil
}

// Publish queues a tick. It implements relay.Publisher.
func (h *Hub) Publish(tick models.PriceTick) {
	h.published.Add(1)
	select {
	case h.queue <- tick:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe returns a channel receiving ticks for key, or every tick for
// AllKeys. The channel closes on Unsubscribe or Stop.
func (h *Hub) Subscribe(key string) <-chan models.PriceTick {
	s := &subscription{ch: make(chan models.PriceTick, h.opts.PerSubscriber)}
	h.mu.Lock()
	h.subs[key] = append(h.subs[key], s)
	h.mu.Unlock()
	return s.ch
}

// Unsubscribe closes ch and stops delivering to it.
func (h *Hub) Unsubscribe(key string, ch <-chan models.PriceTick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[key]
	kept := list[:0]
	for _, s := range list {
		if s.ch == ch {
			close(s.ch)
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		delete(h.subs, key)
		return
	}
	h.subs[key] = kept
}

// RegisterConsumer adds c; it sees every later tick matching its keys.
func (h *Hub) RegisterConsumer(c Consumer) {
	h.mu.Lock()
	h.consumers = append(h.consumers, c)
	h.mu.Unlock()
}

// UnregisterConsumer removes c.
func (h *Hub) UnregisterConsumer(c Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.consumers {
		if h.consumers[i] == c {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			return
		}
	}
}

// Subscribers counts channel subscribers for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Stats returns tick counters and the total subscriber count.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := 0
	for _, list := range h.subs {
		n += len(list)
	}
	h.mu.RUnlock()
	return Stats{
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: n,
	}
}

func (h *Hub) dispatch(tick models.PriceTick) {
	h.mu.RLock()
	var targets []*subscription
	targets = append(targets, h.subs[tick.InstrumentKey]...)
	targets = append(targets, h.subs[AllKeys]...)
	consumers := append([]Consumer(nil), h.consumers...)
	for _, s := range targets {
		select {
		case s.ch <- tick:
			h.delivered.Add(1)
		default:
			s.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
	h.mu.RUnlock()

	for _, c := range consumers {
		if wants(c.Keys(), tick) {
			c.OnTick(tick)
		}
	}
}

// wants matches a tick's instrument key or symbol against keys. No keys
// matches everything.
func wants(keys []string, tick models.PriceTick) bool {
	if len(keys) == 0 {
		return true
	}
	symbol := TickSymbol(tick)
	for _, k := range keys {
		if k == tick.InstrumentKey || strings.EqualFold(k, symbol) {
			return true
		}
	}
	return false
}

// TickSymbol returns the upper-case trading symbol of a tick: its Symbol
// field, or the instrument key after the segment ("NSE_EQ|TCS" -> "TCS").
func TickSymbol(tick models.PriceTick) string {
	if tick.Symbol != "" {
		return strings.ToUpper(tick.Symbol)
	}
	_, name, found := strings.Cut(tick.InstrumentKey, "|")
	if !found {
		name = tick.InstrumentKey
	}
	return strings.ToUpper(name)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	keys []string
	fn   func(models.PriceTick)
}

// NewConsumerFunc returns a consumer calling fn for ticks matching keys.
func NewConsumerFunc(keys []string, fn func(models.PriceTick)) *ConsumerFunc {
	return &ConsumerFunc{keys: keys, fn: fn}
}

// OnTick implements Consumer.
func (c *ConsumerFunc) OnTick(tick models.PriceTick) {
	if c.fn != nil {
		c.fn(tick)
	}
}

// Keys implements Consumer.
func (c *ConsumerFunc) Keys() []string { return c.keys }
