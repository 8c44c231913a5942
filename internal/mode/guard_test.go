package mode

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/store"
)

type setCall struct {
	mode      models.TradingMode
	confirmed bool
}

type fakeBackend struct {
	mu      sync.Mutex
	mode    models.TradingMode
	sets    []setCall
	failSet error
}

func (f *fakeBackend) TradingMode(context.Context) (models.TradingMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, nil
}

func (f *fakeBackend) SetTradingMode(_ context.Context, mode models.TradingMode, confirmed bool) (models.TradingMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, setCall{mode, confirmed})
	if f.failSet != nil {
		return "", f.failSet
	}
	f.mode = mode
	return mode, nil
}

func typed(s string) PromptFunc {
	return func(context.Context, string) (string, error) { return s, nil }
}

func TestConfirmEnabled(t *testing.T) {
	for _, in := range []string{"CONFIRM", "confirm", "  Confirm\n", "\tCONFIRM "} {
		assert.True(t, ConfirmEnabled(in), in)
	}
	for _, in := range []string{"", "CONFIRMED", "CONF IRM", "yes", "C0NFIRM"} {
		assert.False(t, ConfirmEnabled(in), in)
	}
}

// Property: the live switch call is issued iff the typed text enables it,
// and then always with user_confirmation=true.
func TestProperty_LiveSwitchRequiresConfirmWord(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	inputGen := gen.OneGenOf(
		gen.AlphaString(),
		gen.OneConstOf("CONFIRM", "confirm", " CONFIRM ", "Confirm\n", "CONFIRMED", "no", ""),
		gen.AlphaString().Map(func(s string) string { return " " + strings.ToLower(ConfirmWord) + s }),
	)

	properties.Property("switch issued iff ConfirmEnabled", prop.ForAll(
		func(input string) bool {
			backend := &fakeBackend{mode: models.ModePaper}
			g := NewGuard(backend, Options{}, zerolog.Nop())
			mode, err := g.Switch(context.Background(), models.ModeLive, typed(input))

			if ConfirmEnabled(input) {
				return err == nil && mode == models.ModeLive && len(backend.sets) == 1 &&
					backend.sets[0] == setCall{models.ModeLive, true}
			}
			return apperrors.Is(err, apperrors.ErrConfirmationDeclined) &&
				len(backend.sets) == 0 && g.Current() == models.ModePaper
		},
		inputGen,
	))

	properties.TestingRun(t)
}

// Property: a rejected switch leaves the displayed mode where it started.
func TestProperty_FailedSwitchReverts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("display reverts on server failure", prop.ForAll(
		func(startLive bool, status int) bool {
			start, target := models.ModePaper, models.ModeLive
			if startLive {
				start, target = models.ModeLive, models.ModePaper
			}
			backend := &fakeBackend{mode: start, failSet: apperrors.NewAPIError("POST", "/api/trading-mode", status, "broker not connected")}
			g := NewGuard(backend, Options{}, zerolog.Nop())
			if _, err := g.Refresh(context.Background()); err != nil {
				return false
			}

			var seen []models.TradingMode
			g.OnChange(func(m models.TradingMode) { seen = append(seen, m) })

			mode, err := g.Switch(context.Background(), target, typed("CONFIRM"))
			return err != nil && mode == start && g.Current() == start &&
				len(seen) == 2 && seen[0] == target && seen[1] == start
		},
		gen.Bool(),
		gen.OneConstOf(400, 409, 500, 503),
	))

	properties.TestingRun(t)
}

func TestSwitchToPaperIsImmediate(t *testing.T) {
	backend := &fakeBackend{mode: models.ModeLive}
	g := NewGuard(backend, Options{Access: security.NewAccess(true, nil)}, zerolog.Nop())
	_, err := g.Refresh(context.Background())
	require.NoError(t, err)

	prompted := false
	mode, err := g.Switch(context.Background(), models.ModePaper, PromptFunc(func(context.Context, string) (string, error) {
		prompted = true
		return "", nil
	}))
	require.NoError(t, err)
	assert.False(t, prompted)
	assert.Equal(t, models.ModePaper, mode)
	assert.Equal(t, []setCall{{models.ModePaper, false}}, backend.sets)
}

func TestReadOnlyForbidsGoingLive(t *testing.T) {
	backend := &fakeBackend{mode: models.ModePaper}
	g := NewGuard(backend, Options{Access: security.NewAccess(true, nil)}, zerolog.Nop())

	_, err := g.Switch(context.Background(), models.ModeLive, typed("CONFIRM"))
	assert.ErrorIs(t, err, apperrors.ErrReadOnlyMode)
	assert.Empty(t, backend.sets)
}

func TestSwitchIsAuditedAndCached(t *testing.T) {
	cache, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	var audit strings.Builder
	backend := &fakeBackend{mode: models.ModePaper}
	g := NewGuard(backend, Options{Cache: cache, Audit: security.NewAuditTrail(nopCloser{&audit})}, zerolog.Nop())

	_, err = g.Switch(context.Background(), models.ModeLive, typed("nope"))
	require.Error(t, err)
	_, err = g.Switch(context.Background(), models.ModeLive, typed("confirm"))
	require.NoError(t, err)

	cached, _, err := cache.GetMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ModeLive, cached)

	restored := NewGuard(backend, Options{Cache: cache}, zerolog.Nop())
	assert.True(t, restored.Restore(context.Background()))
	assert.Equal(t, models.ModeLive, restored.Current())

	assert.Equal(t, 2, strings.Count(audit.String(), `"mode_changed"`))
	assert.Equal(t, 1, strings.Count(audit.String(), `"confirmation_declined"`))
}

func TestInvalidTarget(t *testing.T) {
	g := NewGuard(&fakeBackend{}, Options{}, zerolog.Nop())
	_, err := g.Switch(context.Background(), models.TradingMode("demo"), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidMode)
}

type nopCloser struct {
	*strings.Builder
}

func (nopCloser) Close() error { return nil }
