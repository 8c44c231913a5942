// Package throttle paces requests to the backend and reports process
// resource usage.
package throttle

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Limiter is a token bucket. A nil Limiter never blocks.
type Limiter struct {
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewLimiter returns a limiter refilling rate tokens per second up to burst.
// A non-positive rate returns nil.
func NewLimiter(rate float64, burst int) *Limiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	_, ok := l.reserve()
	return ok
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	for {
		delay, ok := l.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token, or reports how long until the next one.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	l.lastUpdate = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	missing := 1 - l.tokens
	return time.Duration(missing / l.rate * float64(time.Second)), false
}

// ProcessStats is a snapshot of the console's own resource usage.
type ProcessStats struct {
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapInuse  uint64 `json:"heap_inuse"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// ReadProcessStats returns current memory and goroutine counts.
func ReadProcessStats() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return ProcessStats{
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// String formats the stats for a status line.
func (s ProcessStats) String() string {
	return fmt.Sprintf("heap %s, sys %s, %d goroutines, %d GCs",
		FormatBytes(s.HeapAlloc), FormatBytes(s.Sys), s.Goroutines, s.NumGC)
}

// FormatBytes formats a byte count with binary units, e.g. "1.5 MB".
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), []string{"KB", "MB", "GB", "TB"}[exp])
}
