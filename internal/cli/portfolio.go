package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"autotrade-console/internal/api"
	"autotrade-console/internal/dashboard"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/store"
	"autotrade-console/pkg/utils"
)

// addPortfolioCommands adds holdings, positions and paper account commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(
		newHoldingsCmd(app),
		newPositionsCmd(app),
		newPaperCmd(app),
		newSnapshotCmd(app),
	)
}

// viewCmd builds a read-only command that fetches a value and either emits
// it or renders it as text.
func viewCmd[T any](app *App, use, short string, fetch func(*api.Client, context.Context) (T, error), render func(*Output, T)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			v, err := fetch(app.API, cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(v)
			}
			render(output, v)
			return nil
		},
	}
}

type field struct {
	label, value string
}

// fieldBox prints label/value pairs in a box with the values aligned.
func fieldBox(output *Output, title string, fields ...field) {
	w := 0
	for _, f := range fields {
		w = max(w, len(f.label))
	}
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = fmt.Sprintf("%-*s  %s", w+1, f.label+":", f.value)
	}
	output.Box(title, lines)
}

func renderPositions(output *Output, positions []models.Position) {
	dashboard.RenderPositions(output, positions, true)
}

func newHoldingsCmd(app *App) *cobra.Command {
	return viewCmd(app, "holdings", "Show delivery holdings", (*api.Client).Holdings,
		func(output *Output, holdings []models.Holding) {
			dashboard.RenderHoldings(output, holdings, true)
		})
}

func newPositionsCmd(app *App) *cobra.Command {
	cmd := viewCmd(app, "positions", "Show open positions",
		func(c *api.Client, ctx context.Context) ([]models.Position, error) {
			positions, err := c.Positions(ctx)
			if err == nil {
				app.touch(store.DatasetPositions)
			}
			return positions, err
		}, renderPositions)

	cmd.AddCommand(
		viewCmd(app, "daily", "Show today's positions", (*api.Client).DailyPositions, renderPositions),
		viewCmd(app, "stats", "Show today's position statistics", (*api.Client).DailyPositionStats,
			func(output *Output, st *models.DailyPositionStats) {
				fieldBox(output, "Daily Positions",
					field{"Total", fmt.Sprint(st.TotalPositions)},
					field{"Open", fmt.Sprint(st.OpenPositions)},
					field{"Closed", fmt.Sprint(st.ClosedToday)},
					field{"Realized", output.FormatPnL(st.RealizedPnL)},
					field{"Unrealized", output.FormatPnL(st.UnrealizedPnL)},
					field{"Win rate", fmt.Sprintf("%.1f%%", st.WinRate)},
				)
			}),
		&cobra.Command{
			Use:   "sync",
			Short: "Sync today's positions from the broker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				if err := app.Access.Check(ctx, security.OpSyncPositions); err != nil {
					return err
				}
				result, err := app.API.SyncDailyPositions(ctx)
				if err == nil {
					err = actionError("sync-positions", result)
				}
				app.Audit.Engine(ctx, "sync_positions", err)
				if err != nil {
					return err
				}
				app.touch(store.DatasetPositions)
				return printAction(NewOutput(cmd), "positions synced", result)
			},
		},
	)
	return cmd
}

func newPaperCmd(app *App) *cobra.Command {
	status := viewCmd(app, "status", "Show paper account status", (*api.Client).PaperStatus,
		func(output *Output, st *models.PaperStatus) {
			state := output.DimText("disabled")
			if st.Enabled {
				state = output.Green("enabled")
			}
			var ret float64
			if st.InitialCapital > 0 {
				ret = st.TotalPnL / st.InitialCapital * 100
			}
			fieldBox(output, "Paper Account",
				field{"State", state},
				field{"Capital", utils.FormatIndianCurrency(st.InitialCapital)},
				field{"Cash", utils.FormatIndianCurrency(st.Cash)},
				field{"Value", utils.FormatIndianCurrency(st.PortfolioValue)},
				field{"P&L", fmt.Sprintf("%s (%s)", output.FormatPnL(st.TotalPnL), output.FormatPercent(ret))},
				field{"Positions", fmt.Sprint(st.OpenPositions)},
			)
		})

	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Paper trading account",
		Long:  "Inspect the backend's simulated trading account.",
		Args:  cobra.NoArgs,
		RunE:  status.RunE,
	}
	cmd.AddCommand(status,
		viewCmd(app, "positions", "Show paper positions", (*api.Client).PaperPositions, renderPositions))
	return cmd
}

func newSnapshotCmd(app *App) *cobra.Command {
	return viewCmd(app, "snapshot", "Show the portfolio snapshot", (*api.Client).PortfolioSnapshot,
		func(output *Output, snap *models.PortfolioSnapshot) {
			fieldBox(output, "Portfolio",
				field{"Value", utils.FormatIndianCurrency(snap.TotalValue)},
				field{"Invested", utils.FormatIndianCurrency(snap.InvestedValue)},
				field{"Cash", utils.FormatIndianCurrency(snap.Cash)},
				field{"Total P&L", output.FormatPnL(snap.TotalPnL)},
				field{"Day P&L", output.FormatPnL(snap.DayPnL)},
				field{"Positions", fmt.Sprintf("%d  Holdings: %d", snap.Positions, snap.Holdings)},
			)
			if !snap.Timestamp.IsZero() {
				output.Dim("As of %s", utils.FormatDateTime(snap.Timestamp.Time))
			}
		})
}
