package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autotrade-console/internal/dashboard"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/signals"
	"autotrade-console/internal/store"
	"autotrade-console/pkg/utils"
)

// addMarketDataCommands adds signal and market data commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSignalsCmd(app))
	rootCmd.AddCommand(newPricesCmd(app))
	rootCmd.AddCommand(newIndicesCmd(app))
	rootCmd.AddCommand(newTopCmd(app))
	rootCmd.AddCommand(newUniverseCmd(app))
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newBrokerCmd(app))
}

// signalsView is the structured form of a signals fetch.
type signalsView struct {
	State     signals.State   `json:"state"`
	Requested int             `json:"requested"`
	Signals   []models.Signal `json:"signals"`
	Failed    []failedTicker  `json:"failed,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Duration  string          `json:"duration"`
}

type failedTicker struct {
	Ticker   string `json:"ticker"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

func newSignalsView(r signals.Result) signalsView {
	v := signalsView{
		State:     r.State,
		Requested: r.Requested,
		Signals:   r.Valid,
		Warning:   r.Warning(),
		Duration:  r.Duration.String(),
	}
	if v.Signals == nil {
		v.Signals = []models.Signal{}
	}
	for _, f := range r.Failed {
		v.Failed = append(v.Failed, failedTicker{Ticker: f.Ticker, Attempts: f.Attempts, Error: apperrors.UserMessage(f.Err)})
	}
	return v
}

func newSignalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals [tickers...]",
		Short: "Fetch trading signals",
		Long: `Fetch signals for several tickers at once. Each ticker is requested
independently; tickers that fail are named in a warning while the rest
are shown. Without arguments the configured tickers are used.`,
		Example: `  console signals RELIANCE.NS TCS.NS INFY.NS
  console signals --cached`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			tickers, err := signalTickers(app, args)
			if err != nil {
				return err
			}

			if cachedOnly, _ := cmd.Flags().GetBool("cached"); cachedOnly {
				return showCachedSignals(cmd, app, output, tickers)
			}

			result := app.Signals.Fetch(ctx, tickers)
			if app.Store != nil && len(result.Valid) > 0 {
				if err := app.Store.SaveSignals(ctx, result.Valid); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to cache signals")
				} else {
					app.touch(store.DatasetSignals)
				}
			}

			if output.IsStructured() {
				if err := output.Emit(newSignalsView(result)); err != nil {
					return err
				}
			} else {
				dashboard.RenderSignals(output, result)
				if result.State != signals.StateEmpty {
					output.Dim("%d of %d loaded in %s", len(result.Valid), result.Requested, utils.FormatDuration(result.Duration))
				}
			}
			if result.State == signals.StateFailed {
				return apperrors.New(result.Warning())
			}
			return nil
		},
	}
	cmd.Flags().Bool("cached", false, "show the last cached signals without contacting the backend")

	cmd.AddCommand(&cobra.Command{
		Use:   "tickers",
		Short: "List tickers the backend produces signals for",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			tickers, err := app.API.SignalTickers(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(tickers)
			}
			output.Bold("Signal Tickers (%d)", len(tickers))
			for _, t := range tickers {
				output.Println("  " + t)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "index",
		Short: "Show index signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			indexSignals, err := app.API.IndexSignals(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(indexSignals)
			}
			output.Bold("Index Signals")
			if len(indexSignals) == 0 {
				output.Dim("No index signals")
				return nil
			}
			table := NewTable(output, "INDEX", "SIGNAL", "VALUE", "PROBABILITY", "TREND")
			for _, s := range indexSignals {
				table.AddRow(
					s.Index,
					output.SignalBadge(string(s.Signal)),
					utils.FormatIndianCurrency(s.Value),
					fmt.Sprintf("%.0f%%", s.Probability*100),
					s.Trend,
				)
			}
			table.Render()
			return nil
		},
	})
	return cmd
}

// signalTickers validates args, or falls back to the configured tickers.
func signalTickers(app *App, args []string) ([]string, error) {
	if len(args) == 0 {
		return append([]string(nil), app.Config.Signals.Tickers...), nil
	}
	tickers := make([]string, 0, len(args))
	for _, arg := range args {
		for _, t := range strings.Split(arg, ",") {
			if strings.TrimSpace(t) == "" {
				continue
			}
			norm, err := app.Validator.ValidateTicker(t)
			if err != nil {
				return nil, err
			}
			tickers = append(tickers, norm)
		}
	}
	return tickers, nil
}

func showCachedSignals(cmd *cobra.Command, app *App, output *Output, tickers []string) error {
	if app.Store == nil {
		return apperrors.Wrap(apperrors.ErrDataNotFound, "local cache unavailable")
	}
	cached, err := app.Store.GetSignals(cmd.Context(), signals.Dedupe(tickers))
	if err != nil {
		return err
	}
	if output.IsStructured() {
		return output.Emit(cached)
	}
	if app.Sync != nil {
		output.Dim("%s", app.Sync.Freshness(store.DatasetSignals).Describe())
	}
	if len(cached) == 0 {
		output.Dim("No cached signals")
		return nil
	}
	for _, sig := range cached {
		dashboard.RenderCard(output, signals.NewCard(sig))
	}
	return nil
}

func newPricesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prices [tickers...]",
		Short: "Show latest prices",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			tickers, err := signalTickers(app, args)
			if err != nil {
				return err
			}
			quotes, err := app.API.Prices(cmd.Context(), signals.Dedupe(tickers))
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(quotes)
			}
			dashboard.RenderPrices(output, quotes, nil)
			return nil
		},
	}
}

func newIndicesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "indices",
		Short: "Show market indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			indices, err := app.API.MarketIndices(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(indices)
			}
			output.Bold("Market Indices")
			table := NewTable(output, "INDEX", "VALUE", "CHANGE", "%")
			for _, idx := range indices {
				table.AddRow(
					idx.Name,
					utils.FormatIndianCurrency(idx.Value),
					output.FormatPnL(idx.Change),
					output.FormatPercent(idx.ChangePercent),
				)
			}
			table.Render()
			output.Dim("Market: %s", utils.DescribeSession(time.Now()))
			return nil
		},
	}
}

func newTopCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show top ranked stocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			stocks, err := app.API.TopStocks(cmd.Context())
			if err != nil {
				return err
			}
			sort.SliceStable(stocks, func(i, j int) bool { return stocks[i].Score > stocks[j].Score })
			if limit > 0 && len(stocks) > limit {
				stocks = stocks[:limit]
			}
			if output.IsStructured() {
				return output.Emit(stocks)
			}
			output.Bold("Top Stocks")
			table := NewTable(output, "#", "TICKER", "NAME", "SIGNAL", "SCORE", "PRICE", "CHANGE", "CONF")
			for i, s := range stocks {
				table.AddRow(
					fmt.Sprintf("%d", i+1),
					s.Ticker,
					utils.TruncateString(s.Name, 24),
					output.SignalBadge(s.Signal),
					fmt.Sprintf("%.2f", s.Score),
					utils.FormatIndianCurrency(s.Price),
					output.FormatPercent(s.Change),
					fmt.Sprintf("%.0f%%", s.Confidence*100),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum number of stocks")
	return cmd
}

func newUniverseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Show the tradable stock universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sector, _ := cmd.Flags().GetString("sector")
			stocks, err := app.API.Universe(cmd.Context())
			if err != nil {
				return err
			}
			if sector != "" {
				filtered := stocks[:0]
				for _, s := range stocks {
					if strings.EqualFold(s.Sector, sector) {
						filtered = append(filtered, s)
					}
				}
				stocks = filtered
			}
			if output.IsStructured() {
				return output.Emit(stocks)
			}
			output.Bold("Universe (%d)", len(stocks))
			table := NewTable(output, "TICKER", "NAME", "SECTOR")
			for _, s := range stocks {
				table.AddRow(s.Ticker, utils.TruncateString(s.Name, 32), s.Sector)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("sector", "", "filter by sector")
	return cmd
}

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Show the backend watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			items, err := app.API.Watchlist(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(items)
			}
			output.Bold("Watchlist")
			if len(items) == 0 {
				output.Dim("Watchlist is empty. Add a ticker with: console watchlist add <ticker>")
				return nil
			}
			table := NewTable(output, "TICKER", "NAME", "ADDED")
			for _, item := range items {
				table.AddRow(item.Ticker, item.Name, utils.FormatDateTime(item.AddedAt.Time))
			}
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <ticker>",
		Short: "Add a ticker to the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			ticker, err := app.Validator.ValidateTicker(args[0])
			if err != nil {
				return err
			}
			if err := app.Access.Check(ctx, security.OpModifyWatch); err != nil {
				return err
			}
			if err := app.API.AddToWatchlist(ctx, ticker); err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(map[string]interface{}{"ticker": ticker, "added": true})
			}
			output.Success("✓ %s added to watchlist", ticker)
			return nil
		},
	})
	return cmd
}

func newBrokerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "broker",
		Short: "Show broker connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status, err := app.API.BrokerStatus(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Emit(status)
			}
			conn := output.Red("disconnected")
			if status.Connected {
				conn = output.Green("connected")
			}
			auth := output.Yellow("no")
			if status.Authenticated {
				auth = output.Green("yes")
			}
			output.Printf("Broker:        %s\n", conn)
			output.Printf("Authenticated: %s\n", auth)
			if status.Message != "" {
				output.Dim("%s", status.Message)
			}
			return nil
		},
	}
}
