// Package signals fetches signals for a set of tickers in parallel and
// classifies the outcome.
package signals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/throttle"
	"autotrade-console/pkg/utils"
)

// Fetcher fetches the signal for one ticker.
type Fetcher interface {
	Signal(ctx context.Context, ticker string) (*models.Signal, error)
}

// State classifies a fetch outcome.
type State string

const (
	StateOK      State = "ok"      // every ticker returned a signal
	StatePartial State = "partial" // some tickers failed
	StateFailed  State = "failed"  // every ticker failed
	StateEmpty   State = "empty"   // nothing was requested
)

// Failure records a ticker whose fetch failed after all attempts.
type Failure struct {
	Ticker   string
	Attempts int
	Err      error
}

// Result is the outcome of one orchestrated fetch. Valid and Failed are
// in request order and together cover every requested ticker exactly once.
type Result struct {
	Valid     []models.Signal
	Failed    []Failure
	State     State
	Requested int
	Duration  time.Duration
}

// FailedTickers returns the tickers that failed, in request order.
func (r Result) FailedTickers() []string {
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Ticker
	}
	return out
}

// Warning returns the banner text for a partial result, or "" otherwise.
func (r Result) Warning() string {
	switch r.State {
	case StatePartial:
		return fmt.Sprintf("Could not load signals for %d of %d tickers: %s",
			len(r.Failed), r.Requested, strings.Join(r.FailedTickers(), ", "))
	case StateFailed:
		return fmt.Sprintf("Failed to load signals for all %d tickers", r.Requested)
	}
	return ""
}

// Config holds orchestrator configuration.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryBaseDelay is multiplied by the retry number.
	RetryBaseDelay time.Duration
	// Timeout bounds each individual attempt. Zero leaves it to the fetcher.
	Timeout time.Duration
	// RatePerSecond paces attempts across all tickers. Zero disables pacing.
	RatePerSecond float64
	Burst         int
}

// DefaultConfig returns two retries with 1s, 2s backoff and a 30s
// per-attempt timeout.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		RetryBaseDelay: time.Second,
		Timeout:        30 * time.Second,
	}
}

// Orchestrator fans signal requests out to a Fetcher.
type Orchestrator struct {
	fetcher Fetcher
	config  Config
	limiter *throttle.Limiter
	logger  zerolog.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(fetcher Fetcher, config Config, logger zerolog.Logger) *Orchestrator {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Orchestrator{
		fetcher: fetcher,
		config:  config,
		limiter: throttle.NewLimiter(config.RatePerSecond, config.Burst),
		logger:  logger.With().Str("component", "signals").Logger(),
	}
}

type tickerResult struct {
	index    int
	signal   *models.Signal
	attempts int
	err      error
}

// Fetch requests every distinct ticker concurrently. Each ticker is retried
// on network failures and 5xx responses only. Fetch never returns an error;
// failures are reported in the result.
func (o *Orchestrator) Fetch(ctx context.Context, tickers []string) Result {
	start := time.Now()
	tickers = Dedupe(tickers)
	if len(tickers) == 0 {
		return Result{State: StateEmpty}
	}

	results := make(chan tickerResult, len(tickers))
	var wg sync.WaitGroup
	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			sig, attempts, err := o.fetchOne(ctx, ticker)
			results <- tickerResult{index: i, signal: sig, attempts: attempts, err: err}
		}(i, ticker)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	signals := make([]*models.Signal, len(tickers))
	failures := make([]*Failure, len(tickers))
	for r := range results {
		if r.err != nil {
			failures[r.index] = &Failure{Ticker: tickers[r.index], Attempts: r.attempts, Err: r.err}
			continue
		}
		signals[r.index] = r.signal
	}

	res := Result{Requested: len(tickers)}
	for i := range tickers {
		if signals[i] != nil {
			res.Valid = append(res.Valid, *signals[i])
		} else if failures[i] != nil {
			res.Failed = append(res.Failed, *failures[i])
		}
	}

	switch {
	case len(res.Failed) == 0:
		res.State = StateOK
	case len(res.Valid) == 0:
		res.State = StateFailed
	default:
		res.State = StatePartial
	}
	res.Duration = time.Since(start)

	event := o.logger.Info()
	if res.State != StateOK {
		event = o.logger.Warn().Strs("failed", res.FailedTickers())
	}
	event.Int("requested", res.Requested).
		Int("valid", len(res.Valid)).
		Str("state", string(res.State)).
		Dur("duration", res.Duration).
		Msg("Signals fetched")
	return res
}

func (o *Orchestrator) fetchOne(ctx context.Context, ticker string) (*models.Signal, int, error) {
	attempts := 0
	cfg := utils.RetryConfig{
		MaxAttempts: o.config.MaxRetries + 1,
		Backoff:     utils.LinearBackoff(o.config.RetryBaseDelay),
		ShouldRetry: apperrors.IsRetryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			o.logger.Debug().
				Str("ticker", ticker).
				Int("retry", attempt).
				Dur("delay", delay).
				Err(err).
				Msg("Retrying signal fetch")
		},
	}

	sig, err := utils.RetryWithResult(ctx, cfg, func() (*models.Signal, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		attempts++
		callCtx := ctx
		if o.config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.config.Timeout)
			defer cancel()
		}
		return o.fetcher.Signal(callCtx, ticker)
	})
	if err != nil {
		return nil, attempts, apperrors.Wrapf(err, "signal %s", ticker)
	}
	if sig.Ticker == "" {
		sig.Ticker = ticker
	}
	return sig, attempts, nil
}

// Dedupe trims, upper-cases and removes duplicate tickers, keeping the
// first occurrence's position.
func Dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
