package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/notify"
)

// fakeBackend records every request it serves.
type fakeBackend struct {
	mu       sync.Mutex
	requests []string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/auto-trading/status":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": map[string]interface{}{
				"running":        true,
				"mode":           "paper",
				"trades_today":   3,
				"open_positions": 2,
			},
		})
	case r.URL.Path == "/api/trading-mode":
		_ = json.NewEncoder(w).Encode(map[string]string{"mode": "paper"})
	case r.URL.Path == "/api/trade-plans":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"plans": []map[string]interface{}{{
				"plan_id":      "p1",
				"ticker":       "INFY.NS",
				"symbol":       "INFY",
				"signal":       "BUY",
				"trading_type": "swing",
				"status":       "draft",
				"entry_price":  1500,
				"stop_loss":    1450,
				"target_1":     1600,
			}},
		})
	case r.URL.Path == "/api/signals/TCS.NS":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"signal_data": map[string]interface{}{
				"ticker":        "TCS.NS",
				"signal":        "buy",
				"current_price": 3500,
				"entry_level":   3490,
				"stop_loss":     3400,
				"target_1":      3700,
				"target_2":      3800,
				"probability":   0.7,
			},
		})
	case strings.HasPrefix(r.URL.Path, "/api/signals/"):
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model unavailable"})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}
}

func (b *fakeBackend) saw(request string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.requests {
		if r == request {
			return true
		}
	}
	return false
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// writeConfig creates a config directory pointing the console at baseURL.
func writeConfig(t *testing.T, baseURL string, readOnly bool) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`[api]
base_url = %q
timeout = "5s"

[signals]
max_retries = 0
retry_base_delay = "10ms"

[security]
read_only_mode = %v
audit_enabled = true
audit_dir = %q

[notifications]
enabled = false

[logging]
level = "error"
console = false
file = false
`, baseURL, readOnly, filepath.Join(dir, "audit"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
	return dir
}

// runConsole executes the root command and returns stdout, stderr and the
// command error.
func runConsole(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion_JSONRunsWithoutConfig(t *testing.T) {
	stdout, _, err := runConsole(t, "", "version", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, Version, got["version"])
	assert.Equal(t, BuildDate, got["build_date"])
}

func TestStatus_YAMLOutput(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	stdout, _, err := runConsole(t, "", "--config", dir, "status", "-o", "yaml")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, true, got["running"])
	assert.Equal(t, "paper", got["mode"])
	assert.Equal(t, 3, got["trades_today"])
}

func TestStatus_UnknownOutputFormat(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	_, _, err := runConsole(t, "", "--config", dir, "status", "-o", "xml")
	require.Error(t, err)
	assert.Zero(t, be.count())
}

func TestPlanDelete_DeclinedKeepsPlan(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	stdout, stderr, err := runConsole(t, "n\n", "--config", dir, "plan", "delete", "p1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfirmationDeclined))
	assert.Contains(t, stderr, "Delete draft plan p1 for INFY?")
	assert.Contains(t, stdout, "Plan p1 kept")
	assert.False(t, be.saw("DELETE /api/trade-plan/p1"))
}

func TestModeLive_DeclinedStaysPaper(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	stdout, _, err := runConsole(t, "no\n", "--config", dir, "mode", "live")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfirmationDeclined))
	assert.Contains(t, stdout, "Still in paper mode")
	assert.False(t, be.saw("POST /api/trading-mode"))
}

func TestAutoTradeStart_BlockedInReadOnlyMode(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, true)

	_, _, err := runConsole(t, "", "--config", dir, "autotrade", "start")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrReadOnlyMode))
	assert.False(t, be.saw("POST /api/auto-trading/start"))
}

func TestSignals_PartialFailureShowsBanner(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	stdout, _, err := runConsole(t, "", "--config", dir, "signals", "TCS.NS", "INFY.NS")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Could not load signals for 1 of 2 tickers: INFY.NS")
	assert.Contains(t, stdout, "TCS.NS")
	assert.Contains(t, stdout, "1 of 2 loaded")
}

func TestSignals_AllFailedIsAnError(t *testing.T) {
	be := &fakeBackend{}
	srv := httptest.NewServer(be)
	defer srv.Close()
	dir := writeConfig(t, srv.URL, false)

	stdout, _, err := runConsole(t, "", "--config", dir, "signals", "INFY.NS", "WIPRO.NS", "--json")
	require.Error(t, err)

	var view struct {
		State     string `json:"state"`
		Requested int    `json:"requested"`
		Failed    []struct {
			Ticker string `json:"ticker"`
		} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, 2, view.Requested)
	assert.Len(t, view.Failed, 2)
}

func TestEngineWatch_NotifiesOnTransitions(t *testing.T) {
	w := &engineWatch{}

	_, ok := w.observe(models.AutoTradingStatus{Running: true})
	assert.False(t, ok, "first observation is silent")
	_, ok = w.observe(models.AutoTradingStatus{Running: true})
	assert.False(t, ok)

	n, ok := w.observe(models.AutoTradingStatus{Running: true, Paused: true})
	require.True(t, ok)
	assert.Equal(t, notify.KindEngine, n.Kind)
	assert.Equal(t, "Engine is now PAUSED", n.Title)
	assert.Equal(t, "was RUNNING", n.Message)

	n, ok = w.observe(models.AutoTradingStatus{CircuitBreaker: models.CircuitBreakerState{
		Triggered: true, Reason: "daily loss limit",
	}})
	require.True(t, ok)
	assert.Equal(t, notify.KindError, n.Kind)
	assert.Equal(t, "daily loss limit", n.Message)
}
