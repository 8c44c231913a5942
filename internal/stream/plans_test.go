package stream

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-console/internal/models"
	"autotrade-console/internal/notify"
	"autotrade-console/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Title
	}
	return out
}

func approvedPlan() models.TradePlan {
	return models.TradePlan{
		ID:         "p1",
		Symbol:     "RELIANCE",
		Signal:     models.SignalBuy,
		Status:     models.PlanApproved,
		EntryPrice: 2400,
		StopLoss:   2350,
		Target1:    2500,
		Target2:    2600,
	}
}

func TestPlanMonitor_ApproachThenCross(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewPlanMonitor(nil, rec, zerolog.Nop())
	m.AddPlan(approvedPlan())

	// 0.25% above entry: approaching, once.
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2406})
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2405})
	// Through entry.
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2398})
	// Back and forth does not re-fire a crossed level.
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2402})

	assert.Equal(t, []string{
		"RELIANCE approaching entry",
		"RELIANCE crossed entry",
	}, rec.titles())
}

func TestPlanMonitor_IgnoresDraftsAndOtherSymbols(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewPlanMonitor(nil, rec, zerolog.Nop())

	draft := approvedPlan()
	draft.Status = models.PlanDraft
	m.AddPlan(draft)
	assert.Equal(t, 0, m.PlanCount())

	m.AddPlan(approvedPlan())
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|TCS", LTP: 2400})
	assert.Empty(t, rec.titles())
	assert.Equal(t, []string{"RELIANCE"}, m.Keys())

	m.RemovePlan("p1")
	assert.Equal(t, 0, m.PlanCount())
}

func TestPlanMonitor_LoadPlansFromCache(t *testing.T) {
	cache, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	executed := approvedPlan()
	executed.ID, executed.Symbol, executed.Status = "p2", "TCS", models.PlanExecuted
	draft := approvedPlan()
	draft.ID, draft.Status = "p3", models.PlanDraft
	require.NoError(t, cache.SavePlans(context.Background(), []models.TradePlan{approvedPlan(), executed, draft}))

	m := NewPlanMonitor(cache, nil, zerolog.Nop())
	require.NoError(t, m.LoadPlans(context.Background()))
	assert.Equal(t, 2, m.PlanCount())
	assert.ElementsMatch(t, []string{"RELIANCE", "TCS"}, m.Keys())
}

func TestPlanMonitor_Status(t *testing.T) {
	m := NewPlanMonitor(nil, nil, zerolog.Nop())
	m.AddPlan(approvedPlan())

	statuses := m.Status(map[string]float64{"RELIANCE": 2490})
	require.Len(t, statuses, 1)
	assert.Equal(t, PlanLevelTarget1, statuses[0].NearestLevel)
	assert.InDelta(t, -0.4, statuses[0].NearestDistance, 1e-9)
}

func TestPlanMonitor_ReAddKeepsNotifiedLevels(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewPlanMonitor(nil, rec, zerolog.Nop())
	m.AddPlan(approvedPlan())
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2406})

	// A relist re-adds the same plan.
	m.AddPlan(approvedPlan())
	assert.Equal(t, 1, m.PlanCount())
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2405})

	assert.Equal(t, []string{"RELIANCE approaching entry"}, rec.titles())
}

func TestPlanMonitor_ApproachWindowOption(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewPlanMonitor(nil, rec, zerolog.Nop(), WithApproachPct(2))
	m.AddPlan(approvedPlan())

	// 1.5% below target 1; entry is 2.6% away.
	m.Check(models.PriceTick{InstrumentKey: "NSE_EQ|RELIANCE", LTP: 2463})
	assert.ElementsMatch(t, []string{
		"RELIANCE approaching target_1",
	}, rec.titles())
}

func TestPlanMonitor_SyncFollowsStatus(t *testing.T) {
	m := NewPlanMonitor(nil, nil, zerolog.Nop())
	plan := approvedPlan()
	m.Sync([]models.TradePlan{plan})
	assert.Equal(t, 1, m.PlanCount())

	plan.Status = models.PlanCancelled
	m.Sync([]models.TradePlan{plan})
	assert.Equal(t, 0, m.PlanCount())
	assert.Empty(t, m.Keys())
}

func TestPlanNotification_Conversion(t *testing.T) {
	pn := PlanNotification{
		Plan:         approvedPlan(),
		Level:        PlanLevelStopLoss,
		LevelPrice:   2350,
		CurrentPrice: 2340,
		Distance:     -0.43,
	}
	n := pn.Notification()
	assert.Equal(t, notify.KindPlanLevel, n.Kind)
	assert.True(t, n.Crossed)
	assert.Equal(t, "RELIANCE crossed stop_loss", n.Title)
	assert.Empty(t, n.Message)

	pn.Approaching = true
	assert.Equal(t, "0.43% away", pn.Notification().Message)
}
