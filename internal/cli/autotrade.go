package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autotrade-console/internal/dashboard"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/store"
	"autotrade-console/pkg/utils"
)

// addAutoTradeCommands adds engine control, circuit breaker and trading
// mode commands.
func addAutoTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newAutoTradeCmd(app))
	rootCmd.AddCommand(newBreakerCmd(app))
	rootCmd.AddCommand(newModeCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show auto-trading engine status",
		Long:  "Show the engine state, trading mode, today's P&L and the circuit breaker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			status, err := app.API.Status(ctx)
			if err != nil {
				return err
			}
			if app.Store != nil && status.Mode != "" {
				if err := app.Store.SaveMode(ctx, status.Mode); err == nil {
					app.touch(store.DatasetStatus)
				}
			}
			if output.IsStructured() {
				return output.Emit(status)
			}

			dashboard.RenderStatus(output, *status, true)
			output.Dim("Market: %s", utils.DescribeSession(time.Now()))
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show auto-trading history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			records, err := app.API.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(records)
			}
			dashboard.RenderHistory(output, records, true)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "maximum number of trades")
	return cmd
}

func newAutoTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autotrade",
		Short: "Control the auto-trading engine",
		Long: `Start, stop or pause the engine, trigger scans, run backtests and
manage engine settings. Stop and pause are always allowed; everything else
is blocked in read-only mode.`,
	}

	simple := []struct {
		use, short string
		op         security.Operation
		call       func(ctx context.Context) (*models.ActionResult, error)
	}{
		{"start", "Start the engine", security.OpAutoTrade, app.apiStart},
		{"stop", "Stop the engine", "", app.apiStop},
		{"pause", "Pause the engine", "", app.apiPause},
		{"scan", "Trigger a market scan", security.OpAutoTrade, app.apiScan},
		{"apply-backtest", "Apply the last backtest's parameters", security.OpModifySettings, app.apiApplyBacktest},
		{"retrain", "Retrain the elite model set", security.OpAutoTrade, app.apiRetrain},
	}
	for _, s := range simple {
		s := s
		cmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				output := NewOutput(cmd)
				if s.use == "scan" || s.use == "retrain" {
					output.Dim("This can take a few minutes...")
				}
				result, err := app.engineAction(cmd.Context(), s.use, s.op, s.call)
				if err != nil {
					return err
				}
				return printAction(output, s.use, result)
			},
		})
	}

	cmd.AddCommand(newSettingsCmd(app))
	cmd.AddCommand(newBacktestCmd(app))
	return cmd
}

func (app *App) apiStart(ctx context.Context) (*models.ActionResult, error) {
	return app.API.Start(ctx)
}
func (app *App) apiStop(ctx context.Context) (*models.ActionResult, error) { return app.API.Stop(ctx) }
func (app *App) apiPause(ctx context.Context) (*models.ActionResult, error) {
	return app.API.Pause(ctx)
}
func (app *App) apiScan(ctx context.Context) (*models.ActionResult, error) { return app.API.Scan(ctx) }
func (app *App) apiApplyBacktest(ctx context.Context) (*models.ActionResult, error) {
	return app.API.ApplyBacktest(ctx)
}
func (app *App) apiRetrain(ctx context.Context) (*models.ActionResult, error) {
	return app.API.RetrainElite(ctx)
}

// engineAction gates, performs and audits one engine command. A result
// with success=false is reported as an error carrying the server message.
func (app *App) engineAction(ctx context.Context, action string, op security.Operation, call func(context.Context) (*models.ActionResult, error)) (*models.ActionResult, error) {
	if op != "" {
		if err := app.Access.Check(ctx, op); err != nil {
			return nil, err
		}
	}
	result, err := call(ctx)
	if err == nil {
		err = actionError(action, result)
	}
	app.Audit.Engine(ctx, action, err)
	if err != nil {
		app.Logger.Error().Err(err).Str("action", action).Msg("Engine action failed")
		return nil, err
	}
	app.Logger.Info().Str("action", action).Msg("Engine action completed")
	return result, nil
}

func actionError(action string, result *models.ActionResult) error {
	if result == nil || result.Success || (result.Error == "" && result.Message == "") {
		return nil
	}
	msg := result.Error
	if msg == "" {
		msg = result.Message
	}
	return apperrors.NewAPIError("POST", action, 200, msg)
}

func printAction(output *Output, action string, result *models.ActionResult) error {
	if output.IsStructured() {
		return output.Emit(result)
	}
	msg := result.Message
	if msg == "" {
		msg = action + " requested"
	}
	output.Success("✓ %s", msg)
	return nil
}

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show engine settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			settings, err := app.API.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(settings.Raw)
			}

			output.Bold("Engine Settings")
			keys := make([]string, 0, len(settings.Raw))
			for k := range settings.Raw {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			table := NewTable(output, "KEY", "VALUE")
			for _, k := range keys {
				table.AddRow(k, fmt.Sprintf("%v", settings.Raw[k]))
			}
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key=value>...",
		Short: "Update engine settings",
		Example: `  console autotrade settings set max_positions=5 min_confidence=0.65
  console autotrade settings set tickers=RELIANCE.NS,TCS.NS`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			changes, err := parseSettings(app.Validator, args)
			if err != nil {
				return err
			}
			if err := app.Access.Check(ctx, security.OpModifySettings); err != nil {
				return err
			}
			result, err := app.API.UpdateSettings(ctx, changes)
			if err == nil {
				err = actionError("settings", result)
			}
			app.Audit.Settings(ctx, changes, err)
			if err != nil {
				return err
			}
			return printAction(output, "settings update", result)
		},
	})
	return cmd
}

// parseSettings turns key=value pairs into a settings update. Values are
// typed as bool, integer, float or comma list where they parse as one.
func parseSettings(v *security.InputValidator, args []string) (map[string]interface{}, error) {
	changes := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, apperrors.NewValidationError("setting", arg, "expected key=value")
		}
		if err := v.ValidateSetting(key, value); err != nil {
			return nil, err
		}
		changes[key] = parseSettingValue(value)
	}
	return changes, nil
}

func parseSettingValue(v string) interface{} {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return v
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a backtest on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			days, _ := cmd.Flags().GetInt("days")
			capital, _ := cmd.Flags().GetFloat64("capital")
			tickers, _ := cmd.Flags().GetStringSlice("tickers")

			params := map[string]interface{}{}
			if days > 0 {
				params["days"] = days
			}
			if capital > 0 {
				params["initial_capital"] = capital
			}
			if len(tickers) > 0 {
				normalized, err := app.Validator.ValidateTickers(tickers)
				if err != nil {
					return err
				}
				params["tickers"] = normalized
			}

			if !output.IsStructured() {
				output.Dim("Running backtest, this can take a few minutes...")
			}
			report, err := app.API.RunBacktest(ctx, params)
			app.Audit.Engine(ctx, "backtest", err)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(report)
			}

			output.Bold("Backtest Report")
			keys := make([]string, 0, len(report))
			for k := range report {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			table := NewTable(output, "METRIC", "VALUE")
			for _, k := range keys {
				table.AddRow(k, formatReportValue(report[k]))
			}
			table.Render()
			output.Println()
			output.Dim("Apply these parameters with: console autotrade apply-backtest")
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "lookback in days (server default when 0)")
	cmd.Flags().Float64("capital", 0, "initial capital (server default when 0)")
	cmd.Flags().StringSlice("tickers", nil, "tickers to backtest")
	return cmd
}

func formatReportValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case map[string]interface{}, []interface{}:
		return utils.TruncateString(fmt.Sprintf("%v", x), 60)
	}
	return fmt.Sprintf("%v", v)
}

func newBreakerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Trading circuit breaker",
		Long:  "Inspect or reset the backend's trading circuit breaker.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show circuit breaker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status, err := app.API.Status(cmd.Context())
			if err != nil {
				return err
			}
			cb := status.CircuitBreaker
			if output.IsStructured() {
				return output.Emit(cb)
			}

			state := output.Green("armed")
			if cb.Triggered {
				state = output.Red("TRIGGERED")
			}
			output.Box("Circuit Breaker", []string{
				fmt.Sprintf("State:              %s", state),
				fmt.Sprintf("Daily P&L:          %s", output.FormatPnL(cb.DailyPnL)),
				fmt.Sprintf("Daily loss limit:   %.1f%%", cb.DailyLossLimitPct),
				fmt.Sprintf("Consecutive losses: %d/%d", cb.ConsecutiveLosses, cb.MaxConsecutiveLosses),
				fmt.Sprintf("Losses remaining:   %d", cb.LossesRemaining()),
				fmt.Sprintf("Cooldown:           %dm", cb.CooldownMinutes),
			})
			if cb.Triggered && cb.Reason != "" {
				output.Warning("Reason: %s", cb.Reason)
			}
			return nil
		},
	})

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset a triggered circuit breaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if err := app.Access.Check(ctx, security.OpResetBreaker); err != nil {
				return err
			}
			ok, err := app.confirmer(cmd).Confirm(ctx, "Reset the trading circuit breaker and allow trading to resume?")
			if err != nil {
				return err
			}
			if !ok {
				app.Audit.Declined(ctx, "reset_breaker", "")
				output.Warning("Reset cancelled")
				return apperrors.ErrConfirmationDeclined
			}

			result, err := app.API.ResetCircuitBreaker(ctx)
			if err == nil {
				err = actionError("reset-circuit-breaker", result)
			}
			app.Audit.BreakerReset(ctx, err)
			if err != nil {
				return err
			}
			return printAction(output, "circuit breaker reset", result)
		},
	}
	reset.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(reset)
	return cmd
}

func newModeCmd(app *App) *cobra.Command {
	show := func(cmd *cobra.Command, args []string) error {
		output := NewOutput(cmd)
		ctx := cmd.Context()

		current, err := app.Mode.Refresh(ctx)
		if err != nil {
			if !app.Mode.Restore(ctx) {
				return err
			}
			current = app.Mode.Current()
			output.Warning("Backend unreachable, showing last known mode")
		}
		if output.IsStructured() {
			return output.Emit(map[string]string{"mode": string(current)})
		}
		output.Printf("Trading mode: %s\n", output.ModeBadge(string(current)))
		return nil
	}

	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or switch the trading mode",
		Long: `Show or switch between paper and live trading.

Switching to live requires typing CONFIRM. Switching back to paper is
immediate and always allowed.`,
		RunE: show,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the trading mode",
		RunE:  show,
	})

	for _, target := range []models.TradingMode{models.ModePaper, models.ModeLive} {
		target := target
		cmd.AddCommand(&cobra.Command{
			Use:   string(target),
			Short: fmt.Sprintf("Switch to %s trading", target),
			RunE: func(cmd *cobra.Command, args []string) error {
				output := NewOutput(cmd)
				ctx := cmd.Context()

				if _, err := app.Mode.Refresh(ctx); err != nil {
					app.Logger.Debug().Err(err).Msg("Could not read trading mode before switch")
				}
				if target.IsLive() && !output.IsStructured() {
					output.Warning("You are about to enable LIVE trading.")
				}
				current, err := app.Mode.Switch(ctx, target, app.prompter(cmd))
				if err != nil {
					if apperrors.Is(err, apperrors.ErrConfirmationDeclined) {
						output.Warning("Still in %s mode", current)
					}
					return err
				}
				if output.IsStructured() {
					return output.Emit(map[string]string{"mode": string(current)})
				}
				output.Success("✓ Trading mode: %s", output.ModeBadge(string(current)))
				return nil
			},
		})
	}
	return cmd
}
