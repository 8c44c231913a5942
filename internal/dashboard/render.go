package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"autotrade-console/internal/models"
	"autotrade-console/internal/signals"
	"autotrade-console/internal/stream"
	"autotrade-console/internal/ui"
	"autotrade-console/pkg/utils"
)

// Render draws the header and the current view of s.
func Render(out *ui.Output, s *State) {
	RenderHeader(out, s)
	out.Println()

	switch s.View() {
	case ViewPlans:
		plans, _, ok := s.Plans.Get()
		RenderPlans(out, plans, ok)
	case ViewSignals:
		result, _, ok := s.Signals.Get()
		if !ok {
			out.Dim("Loading signals...")
		} else {
			RenderSignals(out, result)
		}
	case ViewPositions:
		positions, _, ok := s.Positions.Get()
		RenderPositions(out, positions, ok)
		out.Println()
		holdings, _, ok := s.Holdings.Get()
		RenderHoldings(out, holdings, ok)
	case ViewHistory:
		records, _, ok := s.History.Get()
		RenderHistory(out, records, ok)
	default:
		status, _, ok := s.Status.Get()
		RenderStatus(out, status, ok)
		out.Println()
		prices, _, _ := s.Prices.Get()
		RenderPrices(out, prices, s.Ticks())
		out.Println()
		positions, _, ok := s.Positions.Get()
		RenderPositions(out, positions, ok)
	}

	RenderErrors(out, s.Errors())
}

// RenderHeader draws the one-line mode, engine and relay summary.
func RenderHeader(out *ui.Output, s *State) {
	engine := "-"
	if status, _, ok := s.Status.Get(); ok {
		engine = status.State()
	}
	relay := s.RelayState()
	if relay == "" {
		relay = "off"
	}
	updated := "never"
	if t := s.Updated(); !t.IsZero() {
		updated = t.Format("15:04:05")
	}
	out.Printf("%s  mode %s  engine %s  relay %s  view %s  %s\n",
		out.BoldText("AUTOTRADE"),
		out.ModeBadge(string(s.Mode())),
		out.StatusBadge(strings.ToLower(engine)),
		out.StatusBadge(relay),
		s.View(),
		out.DimText("updated "+updated))
}

// RenderStatus draws the engine status and circuit breaker panel.
func RenderStatus(out *ui.Output, st models.AutoTradingStatus, ok bool) {
	if !ok {
		out.Dim("Loading status...")
		return
	}
	cb := st.CircuitBreaker
	lines := []string{
		fmt.Sprintf("State:        %s", out.StatusBadge(strings.ToLower(st.State()))),
		fmt.Sprintf("Mode:         %s", out.ModeBadge(string(st.Mode))),
		fmt.Sprintf("Daily P&L:    %s", out.FormatPnL(st.DailyPnL)),
		fmt.Sprintf("Trades today: %d", st.TradesToday),
		fmt.Sprintf("Open:         %d", st.OpenPositions),
		fmt.Sprintf("Last scan:    %s", formatTime(st.LastScan)),
		fmt.Sprintf("Next scan:    %s", formatTime(st.NextScan)),
	}
	breaker := out.Green("armed")
	if cb.Triggered {
		breaker = out.Red("TRIGGERED")
		if cb.Reason != "" {
			breaker += " (" + cb.Reason + ")"
		}
	}
	lines = append(lines,
		fmt.Sprintf("Breaker:      %s", breaker),
		fmt.Sprintf("Losses:       %d/%d (%d left)", cb.ConsecutiveLosses, cb.MaxConsecutiveLosses, cb.LossesRemaining()),
		fmt.Sprintf("Loss limit:   %.1f%%  cooldown %dm", cb.DailyLossLimitPct, cb.CooldownMinutes),
	)
	if st.Message != "" {
		lines = append(lines, out.DimText(st.Message))
	}
	out.Box("Auto-Trading", lines)
}

// RenderPositions draws the positions table.
func RenderPositions(out *ui.Output, positions []models.Position, ok bool) {
	out.Bold("Positions")
	if !ok {
		out.Dim("Loading positions...")
		return
	}
	if len(positions) == 0 {
		out.Dim("No open positions")
		return
	}
	table := ui.NewTable(out, "SYMBOL", "QTY", "AVG", "LTP", "P&L", "P&L %", "")
	var total float64
	for _, p := range positions {
		tag := ""
		if p.IsPaper {
			tag = out.DimText("paper")
		}
		table.AddRow(
			p.Symbol,
			fmt.Sprintf("%d", p.Quantity),
			utils.FormatIndianCurrency(p.AveragePrice),
			utils.FormatIndianCurrency(p.LTP),
			out.FormatPnL(p.PnL),
			out.FormatPercent(p.PnLPercent),
			tag,
		)
		total += p.PnL
	}
	table.Render()
	out.Printf("Total P&L: %s\n", out.FormatPnL(total))
}

// RenderHoldings draws the holdings table.
func RenderHoldings(out *ui.Output, holdings []models.Holding, ok bool) {
	out.Bold("Holdings")
	if !ok {
		out.Dim("Loading holdings...")
		return
	}
	if len(holdings) == 0 {
		out.Dim("No holdings")
		return
	}
	table := ui.NewTable(out, "SYMBOL", "QTY", "AVG", "LTP", "VALUE", "P&L", "P&L %", "DAY")
	var invested, current float64
	for _, h := range holdings {
		table.AddRow(
			h.Symbol,
			utils.FormatQuantity(int64(h.Quantity)),
			utils.FormatIndianCurrency(h.AveragePrice),
			utils.FormatIndianCurrency(h.LTP),
			utils.FormatCompact(h.CurrentValue),
			out.FormatPnL(h.PnL),
			out.FormatPercent(h.PnLPercent()),
			out.FormatPercent(h.DayChange),
		)
		invested += h.InvestedValue
		current += h.CurrentValue
	}
	table.Render()
	out.Printf("Invested %s  Current %s  P&L %s\n",
		utils.FormatCompact(invested), utils.FormatCompact(current), out.FormatPnL(current-invested))
}

// RenderPlans draws one row per plan with the actions its status offers.
func RenderPlans(out *ui.Output, plans []models.TradePlan, ok bool) {
	out.Bold("Trade Plans")
	if !ok {
		out.Dim("Loading plans...")
		return
	}
	if len(plans) == 0 {
		out.Dim("No trade plans. Generate one with: console plan generate <ticker>")
		return
	}
	table := ui.NewTable(out, "ID", "SYMBOL", "SIGNAL", "TYPE", "STATUS", "ENTRY", "SL", "T1", "QTY", "ACTIONS")
	for _, p := range plans {
		table.AddRow(
			p.ID,
			p.DisplaySymbol(),
			out.SignalBadge(string(p.Signal)),
			string(p.TradingType),
			out.StatusBadge(string(p.Status)),
			utils.FormatIndianCurrency(p.EntryPrice),
			utils.FormatIndianCurrency(p.StopLoss),
			utils.FormatIndianCurrency(p.Target1),
			fmt.Sprintf("%d", p.Quantity),
			joinActions(p.Status.Actions()),
		)
	}
	table.Render()
}

// RenderPlanCard draws the detail view of one plan.
func RenderPlanCard(out *ui.Output, p models.TradePlan, validation *models.PlanValidation) {
	lines := []string{
		fmt.Sprintf("Status:     %s", out.StatusBadge(string(p.Status))),
		fmt.Sprintf("Signal:     %s  (%s)", out.SignalBadge(string(p.Signal)), p.TradingType),
		fmt.Sprintf("Entry:      %s", utils.FormatIndianCurrency(p.EntryPrice)),
		fmt.Sprintf("Stop loss:  %s", utils.FormatIndianCurrency(p.StopLoss)),
		fmt.Sprintf("Target 1:   %s", utils.FormatIndianCurrency(p.Target1)),
		fmt.Sprintf("Target 2:   %s", utils.FormatIndianCurrency(p.Target2)),
		fmt.Sprintf("Quantity:   %d", p.Quantity),
		fmt.Sprintf("Capital:    %s", utils.FormatIndianCurrency(p.CapitalRequired)),
		fmt.Sprintf("Risk:       %s (%.2f%%)", utils.FormatIndianCurrency(p.RiskAmount), p.RiskPerTradePct),
		fmt.Sprintf("R:R:        %s", models.FormatRiskReward(p.RiskReward, p.RiskReward > 0)),
		fmt.Sprintf("Confidence: %.0f%%", p.Confidence*100),
		fmt.Sprintf("Actions:    %s", joinActions(p.Status.Actions())),
	}
	if validation != nil {
		verdict := out.Green("valid")
		if !validation.Valid {
			verdict = out.Red("invalid")
		}
		lines = append(lines, fmt.Sprintf("Validation: %s", verdict))
		for _, e := range validation.Errors {
			lines = append(lines, out.Red("  x "+e))
		}
		for _, w := range validation.Warnings {
			lines = append(lines, out.Yellow("  ! "+w))
		}
	}
	out.Box(fmt.Sprintf("%s  %s", p.DisplaySymbol(), p.ID), lines)
}

func joinActions(actions []models.PlanAction) string {
	if len(actions) == 0 {
		return "-"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}

// RenderSignals draws the valid signal cards, a warning banner naming the
// failed tickers when only some failed, and an error state when all did.
func RenderSignals(out *ui.Output, result signals.Result) {
	switch result.State {
	case signals.StateEmpty:
		out.Dim("No tickers requested")
		return
	case signals.StateFailed:
		out.Error("%s", result.Warning())
		for _, f := range result.Failed {
			out.Dim("  %s: %v", f.Ticker, f.Err)
		}
		return
	case signals.StatePartial:
		out.Warning("%s", result.Warning())
		out.Println()
	}
	for _, card := range result.Cards() {
		RenderCard(out, card)
	}
}

// RenderCard draws one signal card.
func RenderCard(out *ui.Output, card signals.Card) {
	out.Box(card.Ticker+"  "+out.SignalBadge(card.Badge), []string{
		fmt.Sprintf("Price:      %s", card.Price),
		fmt.Sprintf("Entry:      %s", card.Entry),
		fmt.Sprintf("Stop loss:  %s", card.StopLoss),
		fmt.Sprintf("Targets:    %s / %s", card.Target1, card.Target2),
		fmt.Sprintf("Confidence: %s", card.Confidence),
		fmt.Sprintf("Risk:Reward %s", card.RiskReward),
	})
}

// RenderHistory draws the trade history table.
func RenderHistory(out *ui.Output, records []models.TradeRecord, ok bool) {
	out.Bold("Trade History")
	if !ok {
		out.Dim("Loading history...")
		return
	}
	if len(records) == 0 {
		out.Dim("No trades yet")
		return
	}
	table := ui.NewTable(out, "TIME", "TICKER", "SIDE", "QTY", "ENTRY", "EXIT", "P&L", "STATUS", "MODE")
	for _, r := range records {
		table.AddRow(
			formatTime(r.Timestamp),
			r.Ticker,
			out.SignalBadge(string(r.Side)),
			fmt.Sprintf("%d", r.Quantity),
			utils.FormatIndianCurrency(r.EntryPrice),
			utils.FormatIndianCurrency(r.ExitPrice),
			out.FormatPnL(r.PnL),
			r.Status,
			r.Mode,
		)
	}
	table.Render()
}

// RenderPrices draws polled quotes, overlaid with newer relay ticks for the
// same symbol.
func RenderPrices(out *ui.Output, quotes map[string]models.Quote, ticks map[string]models.PriceTick) {
	out.Bold("Prices")
	rows := make(map[string]models.Quote, len(quotes)+len(ticks))
	for sym, q := range quotes {
		rows[strings.ToUpper(sym)] = q
	}
	live := make(map[string]bool)
	for _, t := range ticks {
		sym := stream.TickSymbol(t)
		rows[sym] = models.Quote{
			Symbol:        sym,
			LTP:           t.LTP,
			Change:        t.Change,
			ChangePercent: t.ChangePercent,
			Volume:        t.Volume,
		}
		live[sym] = true
	}
	if len(rows) == 0 {
		out.Dim("No prices")
		return
	}
	symbols := make([]string, 0, len(rows))
	for sym := range rows {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	table := ui.NewTable(out, "SYMBOL", "LTP", "CHANGE", "%", "VOLUME", "")
	for _, sym := range symbols {
		q := rows[sym]
		src := ""
		if live[sym] {
			src = out.Cyan("live")
		}
		table.AddRow(
			sym,
			utils.FormatIndianCurrency(q.LTP),
			out.FormatPnL(q.Change),
			out.FormatPercent(q.ChangePercent),
			utils.FormatVolume(q.Volume),
			src,
		)
	}
	table.Render()
}

// RenderErrors lists the failing refresh tasks.
func RenderErrors(out *ui.Output, errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	tasks := make([]string, 0, len(errs))
	for task := range errs {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	out.Println()
	for _, task := range tasks {
		out.Warning("%s: %s (retrying next refresh)", task, errs[task])
	}
}

func formatTime(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	local := ts.Time.Local()
	if time.Since(local) < 24*time.Hour && local.Day() == time.Now().Day() {
		return local.Format("15:04:05")
	}
	return local.Format("02 Jan 15:04")
}
