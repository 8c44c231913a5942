package signals

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
)

// outcome describes how the fake backend answers one ticker.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeServerError
	outcomeClientError
	outcomeNetworkError
	outcomeFlakyOnce
	outcomeFlakyTwice
)

type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]outcome
	calls    map[string]int
}

func newFakeFetcher(outcomes map[string]outcome) *fakeFetcher {
	return &fakeFetcher{outcomes: outcomes, calls: make(map[string]int)}
}

func (f *fakeFetcher) Signal(ctx context.Context, ticker string) (*models.Signal, error) {
	f.mu.Lock()
	f.calls[ticker]++
	n := f.calls[ticker]
	o := f.outcomes[ticker]
	f.mu.Unlock()

	path := "/api/signals/" + ticker
	switch o {
	case outcomeServerError:
		return nil, apperrors.NewAPIError(http.MethodGet, path, http.StatusInternalServerError, "model unavailable")
	case outcomeClientError:
		return nil, apperrors.NewAPIError(http.MethodGet, path, http.StatusNotFound, "unknown ticker")
	case outcomeNetworkError:
		return nil, apperrors.NewNetworkError(path, fmt.Errorf("connection refused"))
	case outcomeFlakyOnce:
		if n == 1 {
			return nil, apperrors.NewAPIError(http.MethodGet, path, http.StatusBadGateway, "")
		}
	case outcomeFlakyTwice:
		if n <= 2 {
			return nil, apperrors.NewNetworkError(path, fmt.Errorf("reset by peer"))
		}
	}
	return &models.Signal{Ticker: ticker, Signal: models.SignalBuy, Probability: 0.6}, nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, n := range f.calls {
		sum += n
	}
	return sum
}

func testOrchestrator(f Fetcher) *Orchestrator {
	return NewOrchestrator(f, Config{MaxRetries: 2, RetryBaseDelay: 0}, zerolog.Nop())
}

func outcomesFor(kinds []int) ([]string, map[string]outcome) {
	tickers := make([]string, len(kinds))
	outcomes := make(map[string]outcome, len(kinds))
	for i, k := range kinds {
		tickers[i] = fmt.Sprintf("T%d.NS", i)
		outcomes[tickers[i]] = outcome(k)
	}
	return tickers, outcomes
}

// Property: N tickers yield N initial requests, at most 3N requests in
// total, and every ticker lands in exactly one of the valid or failed sets.
func TestProperty_FetchAccountsForEveryTicker(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("valid + failed == N and N <= requests <= 3N", prop.ForAll(
		func(kinds []int) bool {
			tickers, outcomes := outcomesFor(kinds)
			f := newFakeFetcher(outcomes)
			res := testOrchestrator(f).Fetch(context.Background(), tickers)

			n := len(tickers)
			if len(res.Valid)+len(res.Failed) != n {
				t.Logf("valid %d + failed %d != %d", len(res.Valid), len(res.Failed), n)
				return false
			}
			for _, ticker := range tickers {
				if f.calls[ticker] < 1 {
					t.Logf("%s was never requested", ticker)
					return false
				}
			}
			total := f.total()
			return total >= n && total <= 3*n
		},
		gen.SliceOf(gen.IntRange(int(outcomeOK), int(outcomeFlakyTwice))),
	))

	properties.Property("client errors are never retried", prop.ForAll(
		func(n int) bool {
			kinds := make([]int, n)
			for i := range kinds {
				kinds[i] = int(outcomeClientError)
			}
			tickers, outcomes := outcomesFor(kinds)
			f := newFakeFetcher(outcomes)
			res := testOrchestrator(f).Fetch(context.Background(), tickers)
			return f.total() == n && len(res.Failed) == n && res.State == StateFailed
		},
		gen.IntRange(1, 20),
	))

	properties.Property("server and network errors use every retry", prop.ForAll(
		func(kinds []bool) bool {
			mapped := make([]int, len(kinds))
			for i, network := range kinds {
				mapped[i] = int(outcomeServerError)
				if network {
					mapped[i] = int(outcomeNetworkError)
				}
			}
			tickers, outcomes := outcomesFor(mapped)
			f := newFakeFetcher(outcomes)
			res := testOrchestrator(f).Fetch(context.Background(), tickers)
			for _, fail := range res.Failed {
				if fail.Attempts != 3 {
					return false
				}
			}
			return f.total() == 3*len(tickers)
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("result state follows the valid/failed split", prop.ForAll(
		func(kinds []int) bool {
			tickers, outcomes := outcomesFor(kinds)
			res := testOrchestrator(newFakeFetcher(outcomes)).Fetch(context.Background(), tickers)
			switch {
			case len(tickers) == 0:
				return res.State == StateEmpty
			case len(res.Failed) == 0:
				return res.State == StateOK && res.Warning() == ""
			case len(res.Valid) == 0:
				return res.State == StateFailed
			default:
				return res.State == StatePartial && res.Warning() != ""
			}
		},
		gen.SliceOf(gen.IntRange(int(outcomeOK), int(outcomeFlakyTwice))),
	))

	properties.TestingRun(t)
}

func TestFetch_FlakyTickersRecover(t *testing.T) {
	tickers, outcomes := outcomesFor([]int{int(outcomeFlakyOnce), int(outcomeFlakyTwice), int(outcomeOK)})
	f := newFakeFetcher(outcomes)

	res := testOrchestrator(f).Fetch(context.Background(), tickers)

	if res.State != StateOK {
		t.Fatalf("expected ok, got %s (%v)", res.State, res.FailedTickers())
	}
	if got := f.total(); got != 2+3+1 {
		t.Errorf("expected 6 requests, got %d", got)
	}
	for i, sig := range res.Valid {
		if sig.Ticker != tickers[i] {
			t.Errorf("valid[%d] = %s, want %s", i, sig.Ticker, tickers[i])
		}
	}
}

func TestFetch_DeduplicatesTickers(t *testing.T) {
	f := newFakeFetcher(map[string]outcome{})
	res := testOrchestrator(f).Fetch(context.Background(), []string{"tcs.ns", "TCS.NS", " infy.ns ", ""})

	if res.Requested != 2 {
		t.Fatalf("expected 2 distinct tickers, got %d", res.Requested)
	}
	if f.calls["TCS.NS"] != 1 || f.calls["INFY.NS"] != 1 {
		t.Errorf("unexpected calls: %v", f.calls)
	}
}

func TestFetch_PartialWarningListsFailedTickers(t *testing.T) {
	f := newFakeFetcher(map[string]outcome{"BAD.NS": outcomeClientError})
	res := testOrchestrator(f).Fetch(context.Background(), []string{"TCS.NS", "BAD.NS"})

	if res.State != StatePartial {
		t.Fatalf("expected partial, got %s", res.State)
	}
	want := "Could not load signals for 1 of 2 tickers: BAD.NS"
	if res.Warning() != want {
		t.Errorf("warning = %q, want %q", res.Warning(), want)
	}
}

func TestFetch_BackoffIsLinear(t *testing.T) {
	f := newFakeFetcher(map[string]outcome{"X.NS": outcomeServerError})
	o := NewOrchestrator(f, Config{MaxRetries: 2, RetryBaseDelay: 20 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	res := o.Fetch(context.Background(), []string{"X.NS"})
	elapsed := time.Since(start)

	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	// 20ms after the first attempt, 40ms after the second.
	if elapsed < 60*time.Millisecond {
		t.Errorf("expected at least 60ms of backoff, got %v", elapsed)
	}
}

func TestCard_RelianceScenario(t *testing.T) {
	sig := models.Signal{
		Ticker:       "RELIANCE.NS",
		Signal:       models.SignalBuy,
		CurrentPrice: 2500,
		EntryLevel:   2490,
		StopLoss:     2450,
		Target1:      2560,
		Target2:      2600,
		Probability:  0.72,
	}

	card := NewCard(sig)
	if card.Badge != "BUY" {
		t.Errorf("badge = %q", card.Badge)
	}
	if card.Confidence != "72%" {
		t.Errorf("confidence = %q", card.Confidence)
	}
	if card.RiskReward != "1:1.75" {
		t.Errorf("risk:reward = %q", card.RiskReward)
	}
}

func TestCard_ZeroRisk(t *testing.T) {
	card := NewCard(models.Signal{Signal: models.SignalBuy, EntryLevel: 100, StopLoss: 100, Target1: 110})
	if card.RiskReward != "1:-" {
		t.Errorf("risk:reward = %q, want 1:-", card.RiskReward)
	}
}
