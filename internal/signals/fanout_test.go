package signals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-console/internal/api"
)

// signalBackend answers /api/signals/{ticker}, failing with 500 for the
// tickers in down.
type signalBackend struct {
	down map[string]bool
	mu   sync.Mutex
	hits map[string]int
}

func (b *signalBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticker := strings.TrimPrefix(r.URL.Path, "/api/signals/")
	b.mu.Lock()
	b.hits[ticker]++
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if b.down[ticker] {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model unavailable"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"signal_data": map[string]interface{}{"ticker": ticker, "signal": "buy", "current_price": 100},
	})
}

func TestFetch_ServerErrorsDoNotTripHealthyTickers(t *testing.T) {
	be := &signalBackend{
		down: map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true},
		hits: make(map[string]int),
	}
	srv := httptest.NewServer(be)
	defer srv.Close()

	client := api.New(api.DefaultConfig(srv.URL), zerolog.Nop())
	o := NewOrchestrator(client, Config{
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RatePerSecond:  10,
		Burst:          5,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := o.Fetch(ctx, []string{"A", "B", "C", "D", "E", "GOOD"})

	assert.Equal(t, StatePartial, res.State)
	require.Len(t, res.Valid, 1)
	assert.Equal(t, "GOOD", res.Valid[0].Ticker)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D", "E"}, res.FailedTickers())
	for _, f := range res.Failed {
		assert.Equal(t, 3, f.Attempts, f.Ticker)
	}

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, 1, be.hits["GOOD"])
	for _, ticker := range []string{"A", "B", "C", "D", "E"} {
		assert.Equal(t, 3, be.hits[ticker], ticker)
	}
}
