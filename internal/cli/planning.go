package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"autotrade-console/internal/dashboard"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/store"
	"autotrade-console/pkg/utils"
)

// addPlanningCommands adds trade plan lifecycle commands.
func addPlanningCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPlanCmd(app))
}

func newPlanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Trade plan management",
		Long: `Generate, list, approve, execute and delete server-side trade plans.

Plans move draft -> approved -> executed, or draft|approved -> cancelled.
Only the actions offered for a plan's current status are accepted, and
every change is re-read from the backend before it is shown.`,
	}

	cmd.AddCommand(newPlanGenerateCmd(app))
	cmd.AddCommand(newPlanListCmd(app))
	cmd.AddCommand(newPlanShowCmd(app))
	cmd.AddCommand(newPlanApproveCmd(app))
	cmd.AddCommand(newPlanExecuteCmd(app))
	cmd.AddCommand(newPlanDeleteCmd(app))

	return cmd
}

func newPlanGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <ticker>",
		Short: "Generate a new trade plan",
		Long: `Ask the backend to build a draft plan for a ticker. Each call creates
a new plan; the validation verdict is shown with it.`,
		Example: `  console plan generate RELIANCE.NS
  console plan generate INFY.NS --type intraday`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			ticker := ""
			if len(args) > 0 {
				ticker = args[0]
			}
			typeName, _ := cmd.Flags().GetString("type")
			tradingType, err := models.ParseTradingType(typeName)
			if err != nil {
				return apperrors.NewValidationError("type", typeName, err.Error())
			}

			detail, err := app.Plans.Generate(cmd.Context(), ticker, tradingType)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(detail)
			}

			output.Success("✓ Plan %s generated", detail.Plan.ID)
			output.Println()
			dashboard.RenderPlanCard(output, detail.Plan, detail.Validation)
			return nil
		},
	}
	cmd.Flags().StringP("type", "t", string(models.TradingSwing), "trading type: intraday, swing or position")
	return cmd
}

func newPlanListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trade plans",
		Example: `  console plan list
  console plan list --status draft
  console plan list --symbol TCS --cached`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			filter, err := planFilter(cmd)
			if err != nil {
				return err
			}
			cachedOnly, _ := cmd.Flags().GetBool("cached")

			var list []models.TradePlan
			if !cachedOnly {
				list, err = app.Plans.List(ctx, filter)
			}
			if cachedOnly || err != nil {
				if err != nil {
					app.Logger.Warn().Err(err).Msg("Listing plans failed, falling back to cache")
				}
				cached, _, cacheErr := app.Plans.Cached(ctx, filter)
				if cacheErr != nil {
					if err != nil {
						return err
					}
					return apperrors.Wrap(cacheErr, "read cached plans")
				}
				list = cached
				if !output.IsStructured() {
					if err != nil {
						output.Warning("Backend unreachable: %s", apperrors.UserMessage(err))
					}
					if app.Sync != nil {
						output.Dim("%s", app.Sync.Freshness(store.DatasetPlans).Describe())
					}
				}
			}

			if output.IsStructured() {
				return output.Emit(list)
			}
			dashboard.RenderPlans(output, list, true)
			if len(list) > 0 {
				output.Dim("%d plan(s)", len(list))
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "filter by status: draft, approved, executed or cancelled")
	cmd.Flags().String("symbol", "", "filter by symbol or ticker")
	cmd.Flags().String("type", "", "filter by trading type")
	cmd.Flags().IntP("limit", "n", 0, "maximum number of plans")
	cmd.Flags().Bool("cached", false, "show the last cached snapshot without contacting the backend")
	return cmd
}

func planFilter(cmd *cobra.Command) (store.PlanFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	symbol, _ := cmd.Flags().GetString("symbol")
	typeName, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.PlanFilter{Symbol: strings.TrimSpace(symbol), Limit: limit}
	if status != "" {
		s := models.PlanStatus(strings.ToLower(strings.TrimSpace(status)))
		switch s {
		case models.PlanDraft, models.PlanApproved, models.PlanExecuted, models.PlanCancelled:
			filter.Status = s
		default:
			return filter, apperrors.NewValidationError("status", status, "must be draft, approved, executed or cancelled")
		}
	}
	if typeName != "" {
		t, err := models.ParseTradingType(typeName)
		if err != nil {
			return filter, apperrors.NewValidationError("type", typeName, err.Error())
		}
		filter.TradingType = t
	}
	return filter, nil
}

func newPlanShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one trade plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			detail, err := app.Plans.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(detail)
			}
			dashboard.RenderPlanCard(output, detail.Plan, detail.Validation)
			if ts := detail.Plan.Timestamp.Time; !ts.IsZero() {
				output.Dim("Created %s", utils.FormatDateTime(ts))
			}
			return nil
		},
	}
}

func newPlanApproveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <plan-id>",
		Short: "Approve a draft plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			res, err := app.Plans.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(res)
			}
			output.Success("✓ Plan %s approved", args[0])
			if !res.Synced {
				output.Warning("Could not refresh plans; run 'console plan list' to see the server's copy")
			}
			output.Println()
			dashboard.RenderPlanCard(output, res.Plan, nil)
			return nil
		},
	}
}

func newPlanExecuteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Get order details for an approved plan",
		Long: `Ask the backend for the order details of an approved plan and show
them as a pre-filled order form. No order is placed by this command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			result, err := app.Plans.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(result)
			}

			output.Success("✓ Plan %s executed", args[0])
			output.Println()
			renderOrderForm(output, result.Form)
			return nil
		},
	}
}

func renderOrderForm(output *Output, form models.OrderForm) {
	lines := []string{
		fmt.Sprintf("Symbol:     %s (%s)", form.Symbol, form.Exchange),
		fmt.Sprintf("Side:       %s", output.SignalBadge(string(form.Side))),
		fmt.Sprintf("Quantity:   %d", form.Quantity),
		fmt.Sprintf("Order type: %s", form.OrderType),
		fmt.Sprintf("Price:      %s", utils.FormatIndianCurrency(form.Price)),
	}
	if form.TriggerPrice > 0 {
		lines = append(lines, fmt.Sprintf("Trigger:    %s", utils.FormatIndianCurrency(form.TriggerPrice)))
	}
	if form.Product != "" {
		lines = append(lines, fmt.Sprintf("Product:    %s", form.Product))
	}
	lines = append(lines,
		fmt.Sprintf("Stop loss:  %s", utils.FormatIndianCurrency(form.StopLoss)),
		fmt.Sprintf("Target:     %s", utils.FormatIndianCurrency(form.Target)),
	)
	output.Box("Order Form  "+form.PlanID, lines)
	output.Dim("Review and place this order with your broker.")
}

func newPlanDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <plan-id>",
		Aliases: []string{"cancel"},
		Short:   "Delete a draft or approved plan",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			err := app.Plans.Delete(cmd.Context(), args[0], app.confirmer(cmd))
			if apperrors.Is(err, apperrors.ErrConfirmationDeclined) {
				output.Warning("Plan %s kept", args[0])
			}
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(map[string]interface{}{"plan_id": args[0], "deleted": true})
			}
			output.Success("✓ Plan %s deleted", args[0])
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	return cmd
}
