package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"autotrade-console/internal/dashboard"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
	"autotrade-console/internal/notify"
	"autotrade-console/internal/poll"
	"autotrade-console/internal/relay"
	"autotrade-console/internal/resilience"
	"autotrade-console/internal/signals"
	"autotrade-console/internal/store"
	"autotrade-console/internal/stream"
	"autotrade-console/internal/throttle"
	"autotrade-console/pkg/utils"
)

// addMonitoringCommands adds live streaming, dashboard and health commands.
func addMonitoringCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStreamCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newHealthCmd(app))
}

// tickClock records when the last tick arrived. It sits between the relay
// and the hub.
type tickClock struct {
	next relay.Publisher
	mu   sync.Mutex
	last time.Time
}

func (c *tickClock) Publish(tick models.PriceTick) {
	c.mu.Lock()
	c.last = time.Now()
	c.mu.Unlock()
	if c.next != nil {
		c.next.Publish(tick)
	}
}

func (c *tickClock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// openRelay creates the relay client for the configured URL, publishing into
// hub.
func (app *App) openRelay(hub *stream.Hub) (*relay.Client, *tickClock, error) {
	url := app.Config.RelayURL()
	if url == "" {
		return nil, nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "no relay URL configured")
	}
	cfg := relay.DefaultConfig(url)
	if app.Config.Relay.MaxReconnectAttempts > 0 {
		cfg.MaxReconnectAttempts = app.Config.Relay.MaxReconnectAttempts
	}
	if app.Config.Relay.ReconnectDelay > 0 {
		cfg.ReconnectDelay = app.Config.Relay.ReconnectDelay
	}
	clock := &tickClock{next: hub}
	client, err := relay.New(cfg, nil, clock, app.Logger)
	if err != nil {
		return nil, nil, err
	}
	return client, clock, nil
}

// planMonitor returns a monitor loaded with the cached approved and
// executed plans.
func (app *App) planMonitor(ctx context.Context) *stream.PlanMonitor {
	monitor := stream.NewPlanMonitor(app.Store, app.Notifier, app.Logger,
		stream.WithApproachPct(app.Config.Notifications.ApproachPct))
	if err := monitor.LoadPlans(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to load cached plans for monitoring")
	}
	return monitor
}

func nearestLevel(monitor *stream.PlanMonitor, tick models.PriceTick) string {
	if monitor == nil {
		return ""
	}
	var parts []string
	for _, st := range monitor.Nearest(stream.TickSymbol(tick), tick.LTP) {
		if st.NearestLevel != "" {
			parts = append(parts, fmt.Sprintf("%s %s %+.2f%%", st.Plan.ID, st.NearestLevel, st.NearestDistance))
		}
	}
	return strings.Join(parts, ", ")
}

func newStreamCmd(app *App) *cobra.Command {
	var withPlans bool

	cmd := &cobra.Command{
		Use:   "stream <instrument-keys...>",
		Short: "Stream live prices from the relay",
		Long: `Connect to the backend's push channel and print every tick for the
given instrument keys until interrupted.`,
		Example: `  console stream NSE_EQ|INE002A01018 NSE_EQ|INE467B01029
  console stream NSE_EQ|INE002A01018 --plans
  console stream NSE_INDEX|Nifty\ 50 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			keys := make([]string, 0, len(args))
			for _, k := range args {
				if err := app.Validator.ValidateInstrumentKey(k); err != nil {
					return err
				}
				keys = append(keys, strings.TrimSpace(k))
			}

			hub := stream.NewHub()
			hub.Start(ctx)
			defer hub.Stop()

			client, _, err := app.openRelay(hub)
			if err != nil {
				return err
			}
			defer client.Close()

			client.OnStateChange(func(s relay.State) {
				if !output.IsStructured() {
					output.Dim("relay %s", s)
				}
			})
			if err := client.Subscribe(keys, nil); err != nil {
				return err
			}

			var monitor *stream.PlanMonitor
			if withPlans {
				monitor = app.planMonitor(ctx)
				hub.RegisterConsumer(monitor)
			}

			ticks := hub.Subscribe(stream.AllKeys)
			defer hub.Unsubscribe(stream.AllKeys, ticks)

			if err := client.Connect(ctx); err != nil {
				return err
			}
			if !output.IsStructured() {
				output.Info("Streaming %d key(s), press Ctrl+C to stop", len(keys))
			}

			for {
				select {
				case <-ctx.Done():
					st := hub.Stats()
					app.Logger.Info().
						Uint64("published", st.Published).
						Uint64("dropped", st.Dropped).
						Msg("Stream stopped")
					if st.Dropped > 0 && !output.IsStructured() {
						output.Warning("%d tick(s) dropped while output was busy", st.Dropped)
					}
					return nil
				case tick := <-ticks:
					if output.IsStructured() {
						if err := output.Emit(tick); err != nil {
							return err
						}
						continue
					}
					line := fmt.Sprintf("%s  %-20s %12s %s %s",
						tickTime(tick),
						stream.TickSymbol(tick),
						utils.FormatIndianCurrency(tick.LTP),
						output.FormatPnL(tick.Change),
						output.FormatPercent(tick.ChangePercent),
					)
					if near := nearestLevel(monitor, tick); near != "" {
						line += "  " + output.DimText(near)
					}
					output.Println(line)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&withPlans, "plans", false, "Watch approved plans and show the nearest level per tick")
	return cmd
}

func tickTime(tick models.PriceTick) string {
	t := tick.Timestamp.Time
	if t.IsZero() {
		t = time.Now()
	}
	return t.In(utils.IndiaLocation).Format("15:04:05")
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard",
		Long: `Show a live dashboard refreshed on fixed cadences: engine status,
prices, positions, history and signals. Relay ticks are overlaid on prices
and approved plans are watched for entry, stop-loss and target levels.

Type a command and press Enter:
  o, p, s, d, h  - overview, plans, signals, positions, history
  r              - refresh now
  q              - quit

Polling pauses while the process is stopped (Ctrl+Z) and restarts on
resume.`,
		Example: `  console watch
  console watch --view plans
  console watch --keys NSE_EQ|INE002A01018 --no-relay`,
		RunE: func(cmd *cobra.Command, args []string) error {
			viewName, _ := cmd.Flags().GetString("view")
			keys, _ := cmd.Flags().GetStringSlice("keys")
			noRelay, _ := cmd.Flags().GetBool("no-relay")
			return app.watch(cmd, dashboard.ParseView(viewName), keys, !noRelay)
		},
	}
	cmd.Flags().String("view", string(dashboard.ViewOverview), "initial view: overview, plans, signals, positions or history")
	cmd.Flags().StringSlice("keys", nil, "instrument keys to stream from the relay")
	cmd.Flags().Bool("no-relay", false, "poll only, without the push channel")
	return cmd
}

var watchViews = map[string]dashboard.View{
	"o": dashboard.ViewOverview,
	"p": dashboard.ViewPlans,
	"s": dashboard.ViewSignals,
	"d": dashboard.ViewPositions,
	"h": dashboard.ViewHistory,
}

func (app *App) watch(cmd *cobra.Command, view dashboard.View, keys []string, useRelay bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	output := NewOutput(cmd)
	if output.IsStructured() {
		return apperrors.New("watch does not support structured output")
	}

	state := dashboard.NewState()
	state.SetView(view)

	if app.Mode.Restore(ctx) {
		state.SetMode(app.Mode.Current())
	}
	app.Mode.OnChange(state.SetMode)

	dirty := make(chan struct{}, 1)
	markDirty := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	state.OnChange(markDirty)

	sched := app.newWatchScheduler(state)
	sched.OnError(func(name string, err error) {
		state.SetError(name, err)
		markDirty()
	})

	hub := stream.NewHub()
	hub.Start(ctx)
	defer hub.Stop()
	hub.RegisterConsumer(stream.NewConsumerFunc(nil, func(tick models.PriceTick) {
		state.ApplyTick(tick)
		markDirty()
	}))

	monitor := app.planMonitor(ctx)
	hub.RegisterConsumer(monitor)
	app.Plans.OnChange(monitor.Sync)

	if useRelay {
		client, _, err := app.openRelay(hub)
		if err != nil {
			state.SetRelayState("unavailable")
			app.Logger.Warn().Err(err).Msg("Relay disabled")
		} else {
			defer client.Close()
			client.OnStateChange(func(s relay.State) { state.SetRelayState(string(s)) })
			if len(keys) > 0 {
				if err := client.Subscribe(keys, nil); err != nil {
					app.Logger.Warn().Err(err).Msg("Relay subscribe failed")
				}
			}
			go func() {
				if err := client.Connect(ctx); err != nil {
					state.SetRelayState("unavailable")
					state.SetError("relay", err)
				}
			}()
		}
	}

	sched.Show(ctx)
	defer sched.Stop()
	stopVisibility := poll.WatchVisibility(ctx, sched)
	defer stopVisibility()

	commands := make(chan string)
	go readCommands(app.in, commands)

	redraw := time.NewTicker(250 * time.Millisecond)
	defer redraw.Stop()
	pending := true

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dirty:
			pending = true
		case <-redraw.C:
			if !pending {
				continue
			}
			pending = false
			if output.IsTerminal() {
				output.Printf("\033[H\033[2J")
			}
			dashboard.Render(output, state)
			output.Dim("[o]verview [p]lans [s]ignals [d]positions [h]istory [r]efresh [q]uit")
		case line, ok := <-commands:
			if !ok {
				// Input closed: keep running until interrupted.
				commands = nil
				continue
			}
			switch line = strings.ToLower(strings.TrimSpace(line)); line {
			case "q", "quit", "exit":
				return nil
			case "r", "refresh":
				sched.RefreshNow()
			default:
				if v, ok := watchViews[line]; ok {
					state.SetView(v)
				} else if line != "" {
					state.SetView(dashboard.ParseView(line))
				}
			}
		}
	}
}

// newWatchScheduler registers the dashboard's refresh tasks. Each task
// stores its result under the run's stamp so an older response never
// overwrites a newer one.
func (app *App) newWatchScheduler(state *dashboard.State) *poll.Scheduler {
	sched := poll.NewScheduler(app.Logger)
	intervals := poll.Intervals(app.Config.Polling)
	tickers := signals.Dedupe(app.Config.Signals.Tickers)
	engine := &engineWatch{}

	sched.Add(poll.TaskStatus, intervals[poll.TaskStatus], func(ctx context.Context, stamp poll.Stamp) error {
		st, err := app.API.Status(ctx)
		if err != nil {
			return err
		}
		if !state.SetStatus(stamp, *st) {
			return nil
		}
		app.touch(store.DatasetStatus)
		if n, ok := engine.observe(*st); ok {
			if err := app.Notifier.Send(ctx, n); err != nil {
				app.Logger.Warn().Err(err).Msg("Engine notification failed")
			}
		}
		return nil
	})

	sched.Add(poll.TaskPrices, intervals[poll.TaskPrices], func(ctx context.Context, stamp poll.Stamp) error {
		if len(tickers) == 0 {
			state.SetPrices(stamp, map[string]models.Quote{})
			return nil
		}
		quotes, err := app.API.Prices(ctx, tickers)
		if err != nil {
			return err
		}
		state.SetPrices(stamp, quotes)
		return nil
	})

	sched.Add(poll.TaskPositions, intervals[poll.TaskPositions], func(ctx context.Context, stamp poll.Stamp) error {
		positions, err := app.API.Positions(ctx)
		if err != nil {
			return err
		}
		state.SetPositions(stamp, positions)
		holdings, err := app.API.Holdings(ctx)
		if err != nil {
			return err
		}
		state.SetHoldings(stamp, holdings)
		return nil
	})

	sched.Add(poll.TaskHistory, intervals[poll.TaskHistory], func(ctx context.Context, stamp poll.Stamp) error {
		records, err := app.API.History(ctx, 20)
		if err != nil {
			return err
		}
		state.SetHistory(stamp, records)
		return nil
	})

	sched.Add(poll.TaskSignals, intervals[poll.TaskSignals], func(ctx context.Context, stamp poll.Stamp) error {
		result := app.Signals.Fetch(ctx, tickers)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state.SetSignals(stamp, result)
		if result.State == signals.StateFailed {
			return apperrors.New(result.Warning())
		}
		return nil
	})

	sched.Add("plans", intervals[poll.TaskHistory], func(ctx context.Context, stamp poll.Stamp) error {
		list, err := app.Plans.List(ctx, store.PlanFilter{})
		if err != nil {
			return err
		}
		state.SetPlans(stamp, list)
		return nil
	})

	return sched
}

// engineWatch turns engine state transitions into notifications. The first
// observed state is recorded silently.
type engineWatch struct {
	mu   sync.Mutex
	last string
}

func (w *engineWatch) observe(st models.AutoTradingStatus) (notify.Notification, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, prev := st.State(), w.last
	w.last = next
	if prev == "" || prev == next {
		return notify.Notification{}, false
	}
	if st.CircuitBreaker.Triggered {
		return notify.Notification{
			Kind:    notify.KindError,
			Title:   "Trading circuit breaker triggered",
			Message: st.CircuitBreaker.Reason,
		}, true
	}
	return notify.Notification{
		Kind:    notify.KindEngine,
		Title:   "Engine is now " + next,
		Message: "was " + prev,
	}, true
}

// readCommands forwards input lines to out until in is exhausted.
func readCommands(in io.Reader, out chan<- string) {
	defer close(out)
	if in == nil {
		return
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func newHealthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check backend, cache and relay health",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if checkRelay, _ := cmd.Flags().GetBool("relay"); checkRelay {
				hub := stream.NewHub()
				hub.Start(ctx)
				defer hub.Stop()
				if client, clock, err := app.openRelay(hub); err == nil {
					defer client.Close()
					connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
					if err := client.Connect(connectCtx); err != nil {
						app.Logger.Debug().Err(err).Msg("Relay health connect failed")
					}
					cancel()
					app.Health.Register("relay", resilience.FeedProbe(
						func() bool { return client.Status().State == relay.StateConnected },
						clock.Last,
						5*time.Minute,
					))
				}
			}

			health := app.Health.Check(ctx)
			process := throttle.ReadProcessStats()
			if output.IsStructured() {
				return output.Emit(struct {
					resilience.Report
					Process throttle.ProcessStats `json:"process"`
				}{health, process})
			}

			output.Bold("System Health: %s", output.StatusBadge(string(health.Status)))
			table := NewTable(output, "COMPONENT", "STATUS", "LATENCY", "MESSAGE")
			for _, c := range health.Components {
				table.AddRow(c.Name, output.StatusBadge(string(c.Status)), c.Latency.Round(time.Millisecond).String(), c.Message)
			}
			table.Render()
			output.Dim("Process: %s", process)

			if app.Sync != nil {
				output.Println()
				output.Bold("Cache")
				for _, f := range app.Sync.All() {
					output.Printf("  %s\n", f)
				}
			}
			if health.Status == resilience.HealthUnhealthy {
				return apperrors.New(fmt.Sprintf("system %s", strings.ToLower(string(health.Status))))
			}
			return nil
		},
	}
	cmd.Flags().Bool("relay", false, "also connect to the relay")
	return cmd
}
