package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsBurstThenRefills(t *testing.T) {
	limiter := NewLimiter(100, 10)

	allowed := 0
	for i := 0; i < 15; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 10)
	assert.Less(t, allowed, 15)

	time.Sleep(50 * time.Millisecond)
	assert.True(t, limiter.Allow(), "tokens refill over time")
}

func TestLimiter_WaitPacesCallers(t *testing.T) {
	limiter := NewLimiter(50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	// first token is free, the other three take ~20ms each
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}

func TestLimiter_NilNeverBlocks(t *testing.T) {
	var limiter *Limiter
	assert.Nil(t, NewLimiter(0, 5))
	assert.True(t, limiter.Allow())
	assert.NoError(t, limiter.Wait(context.Background()))
}

func TestLimiter_ConcurrentUse(t *testing.T) {
	limiter := NewLimiter(1000, 20)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, granted)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestReadProcessStats(t *testing.T) {
	stats := ReadProcessStats()
	assert.NotZero(t, stats.HeapAlloc)
	assert.NotZero(t, stats.Goroutines)
	assert.Contains(t, stats.String(), "goroutines")
}
