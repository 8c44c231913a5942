package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-console/internal/config"
)

// Property: trades_only passes plan-level and engine events, errors_only
// passes errors, all passes everything.
func TestProperty_LevelFilter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	kinds := []Kind{KindPlanLevel, KindEngine, KindError, KindInfo}
	filters := []Filter{FilterAll, FilterTradesOnly, FilterErrorsOnly}

	properties.Property("level filter", prop.ForAll(
		func(kindIdx, filterIdx int) bool {
			var buf bytes.Buffer
			filter, kind := filters[filterIdx], kinds[kindIdx]
			d := NewDispatcher(config.NotificationConfig{Enabled: true, Level: string(filter)},
				NewTerminal(&buf, false))

			if err := d.Send(context.Background(), Notification{Kind: kind, Title: "t"}); err != nil {
				return false
			}
			sent := buf.Len() > 0
			switch filter {
			case FilterTradesOnly:
				return sent == (kind == KindPlanLevel || kind == KindEngine)
			case FilterErrorsOnly:
				return sent == (kind == KindError)
			default:
				return sent
			}
		},
		gen.IntRange(0, len(kinds)-1),
		gen.IntRange(0, len(filters)-1),
	))

	properties.TestingRun(t)
}

func TestDispatcher_DisabledSendsNothing(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(config.NotificationConfig{Enabled: false}, NewTerminal(&buf, false))
	require.NoError(t, d.Send(context.Background(), Notification{Kind: KindError, Title: "x"}))
	assert.Zero(t, buf.Len())
	assert.Empty(t, d.Channels())
}

type failingChannel struct{}

func (failingChannel) Name() string { return "broken" }
func (failingChannel) Send(context.Context, Notification) error {
	return errors.New("unreachable")
}

func TestDispatcher_TriesEveryChannel(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(config.NotificationConfig{Enabled: true},
		failingChannel{}, NewTerminal(&buf, false))

	err := d.Send(context.Background(), Notification{Kind: KindInfo, Title: "relay connected"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: unreachable")
	assert.Contains(t, buf.String(), "relay connected")
	assert.Equal(t, []string{"broken", "terminal"}, d.Channels())
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(config.NotificationConfig{
		Enabled: true,
		Webhook: config.WebhookConfig{Enabled: true, URL: srv.URL},
	})
	require.Equal(t, []string{"webhook"}, d.Channels())

	err := d.Send(context.Background(), Notification{
		Kind:       KindPlanLevel,
		Title:      "TCS crossed stop_loss",
		PlanID:     "p9",
		LevelPrice: 3400,
		Price:      3398.5,
		Crossed:    true,
		Time:       time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "TCS crossed stop_loss", got.Title)
	assert.Equal(t, KindPlanLevel, got.Kind)
	assert.Equal(t, "p9", got.PlanID)
	assert.True(t, got.Crossed)
}

func TestWebhook_ReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Send(context.Background(), Notification{Kind: KindInfo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFormat(t *testing.T) {
	line := Format(Notification{
		Kind:       KindPlanLevel,
		Title:      "RELIANCE approaching entry",
		Message:    "0.30% away",
		Time:       time.Date(2024, 5, 2, 9, 45, 0, 0, time.UTC),
		Level:      "entry",
		Price:      2497.5,
		LevelPrice: 2490,
	}, false)

	assert.Equal(t, "[09:45:00] PLAN | RELIANCE approaching entry | 0.30% away | LTP ₹2,497.50 -> entry ₹2,490.00", line)
}

func TestTerminal_RingBell(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)
	term.RingBell(true)

	require.NoError(t, term.Send(context.Background(), Notification{Kind: KindInfo, Title: "quiet"}))
	require.NoError(t, term.Send(context.Background(), Notification{Kind: KindError, Title: "loud"}))
	assert.Equal(t, "INFO | quiet\n\aERROR | loud\n", buf.String())
}
