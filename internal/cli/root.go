// Package cli provides the command-line interface for the trading console.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autotrade-console/internal/api"
	"autotrade-console/internal/config"
	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/logging"
	"autotrade-console/internal/mode"
	"autotrade-console/internal/notify"
	"autotrade-console/internal/plans"
	"autotrade-console/internal/resilience"
	"autotrade-console/internal/security"
	"autotrade-console/internal/signals"
	"autotrade-console/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	API       *api.Client
	Store     store.Cache
	Sync      *store.Tracker
	Audit     *security.AuditTrail
	Access    *security.Access
	Validator *security.InputValidator
	Notifier  *notify.Dispatcher
	Plans     *plans.Manager
	Mode      *mode.Guard
	Signals   *signals.Orchestrator
	Health    *resilience.Monitor

	in      io.Reader
	prompts *lineReader
}

// annotationNoInit marks commands that run without configuration.
const annotationNoInit = "no-init"

// Execute runs the console and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd(os.Stdin)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %s", apperrors.UserMessage(err)))
		return 1
	}
	return 0
}

// NewRootCmd creates the root command for the CLI. Dependencies are wired
// once flags are parsed, before any subcommand runs.
func NewRootCmd(in io.Reader) *cobra.Command {
	app := &App{in: in, Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "console",
		Short: "Auto-trading console - monitor and control the trading backend",
		Long: `The auto-trading console talks to a running auto-trading backend.

It controls the engine, manages trade plans through their lifecycle,
switches between paper and live trading, fans out signal requests and
streams live prices from the backend's push channel.

Every state change is confirmed by the backend before it is shown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoInit] == "true" {
				return nil
			}
			format, _ := cmd.Flags().GetString("output")
			if _, err := parseFormat(cmd, format); err != nil {
				return err
			}
			configDir, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")
			return app.init(configDir, debug)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/autotrade-console)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: text, json or yaml")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAutoTradeCommands(rootCmd, app)
	addPlanningCommands(rootCmd, app)
	addMarketDataCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addMonitoringCommands(rootCmd, app)

	return rootCmd
}

// init loads configuration and wires every service. A missing cache or
// audit directory degrades the console rather than stopping it.
func (app *App) init(configDir string, debug bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}
	app.Config = cfg

	logOpts := logging.DefaultOptions()
	logOpts.Level = cfg.Logging.Level
	logOpts.Console = cfg.Logging.Console
	logOpts.File = cfg.Logging.File
	logOpts.FilePath = cfg.Logging.FilePath
	if debug {
		logOpts.Level = "debug"
		logOpts.Console = true
	}
	app.Logger = logging.New(logOpts)

	if cfg.Security.AuditEnabled {
		auditCfg := security.DefaultAuditConfig()
		if cfg.Security.AuditDir != "" {
			auditCfg.Dir = cfg.Security.AuditDir
		}
		audit, err := security.OpenAuditTrail(auditCfg)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Audit log unavailable")
		} else {
			app.Audit = audit
		}
	}
	app.Access = security.NewAccess(cfg.Security.ReadOnlyMode, app.Audit)
	app.Validator = security.NewInputValidator(true)

	dir := configDir
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	sqlite, err := store.NewSQLiteStore(filepath.Join(dir, "console.db"))
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to open local cache, cached views are unavailable")
	} else {
		app.Store = sqlite
		app.Sync = store.NewTracker(sqlite, nil)
		app.Logger.Debug().Msg("SQLite cache opened")
	}

	app.API = api.New(api.Config{
		BaseURL:          cfg.API.BaseURL,
		Token:            cfg.Credentials.APIToken,
		Timeout:          cfg.API.Timeout,
		SignalTimeout:    cfg.API.SignalTimeout,
		BulkTimeout:      cfg.API.BulkTimeout,
		BreakerThreshold: cfg.API.BreakerThreshold,
		BreakerCooldown:  cfg.API.BreakerCooldown,
	}, app.Logger)

	terminal := notify.NewTerminal(os.Stderr, cfg.UI.ColorEnabled)
	terminal.RingBell(cfg.Notifications.Bell)
	app.Notifier = notify.NewDispatcher(cfg.Notifications, terminal)

	app.Plans = plans.NewManager(app.API, plans.Options{
		Cache:     app.Store,
		Access:    app.Access,
		Audit:     app.Audit,
		Validator: app.Validator,
	}, app.Logger)

	app.Mode = mode.NewGuard(app.API, mode.Options{
		Cache:  app.Store,
		Access: app.Access,
		Audit:  app.Audit,
	}, app.Logger)

	app.Signals = signals.NewOrchestrator(app.API, signals.Config{
		MaxRetries:     cfg.Signals.MaxRetries,
		RetryBaseDelay: cfg.Signals.RetryBaseDelay,
		Timeout:        app.API.SignalTimeout(),
		RatePerSecond:  cfg.Signals.RatePerSecond,
		Burst:          cfg.Signals.Burst,
	}, app.Logger)

	app.Health = resilience.NewMonitor(10 * time.Second)
	app.Health.Register("api", resilience.PingProbe(func(ctx context.Context) error {
		_, err := app.API.Status(ctx)
		return err
	}, 2*time.Second))
	if breakers := app.API.Breakers(); breakers != nil {
		app.Health.Register("breakers", resilience.BreakerProbe(breakers))
	}
	if app.Store != nil {
		app.Health.Register("cache", resilience.PingProbe(app.Store.Ping, 100*time.Millisecond))
	}

	app.Logger.Debug().
		Str("base_url", cfg.API.BaseURL).
		Str("token", security.MaskCredential(cfg.Credentials.APIToken)).
		Bool("read_only", cfg.Security.ReadOnlyMode).
		Msg("Console initialized")
	return nil
}

// touch records a successful sync of ds. It is a no-op without a cache.
func (app *App) touch(ds store.Dataset) {
	if app.Sync == nil {
		return
	}
	if err := app.Sync.Touch(ds); err != nil {
		app.Logger.Debug().Err(err).Str("dataset", string(ds)).Msg("Failed to record sync")
	}
}

// Close releases the cache and audit log.
func (app *App) Close() error {
	var firstErr error
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			firstErr = err
		}
		app.Store = nil
	}
	if app.Audit != nil {
		if err := app.Audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		app.Audit = nil
	}
	return firstErr
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationNoInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Emit(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("autotrade-console v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the console configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				masked := *app.Config
				masked.Credentials.APIToken = security.MaskCredential(masked.Credentials.APIToken)
				return output.Emit(masked)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsStructured() {
				return output.Emit(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Emit(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  Base URL:        %s\n", cfg.API.BaseURL)
	output.Printf("  Token:           %s\n", security.MaskCredential(cfg.Credentials.APIToken))
	output.Printf("  Timeouts:        %s / signals %s / bulk %s\n", cfg.API.Timeout, cfg.API.SignalTimeout, cfg.API.BulkTimeout)
	output.Println()

	output.Bold("Relay")
	output.Printf("  URL:             %s\n", cfg.RelayURL())
	output.Printf("  Reconnects:      %d every %s\n", cfg.Relay.MaxReconnectAttempts, cfg.Relay.ReconnectDelay)
	output.Println()

	output.Bold("Polling")
	output.Printf("  Status:          %s\n", cfg.Polling.StatusInterval)
	output.Printf("  Prices:          %s\n", cfg.Polling.PricesInterval)
	output.Printf("  Positions:       %s\n", cfg.Polling.PositionsInterval)
	output.Printf("  History:         %s\n", cfg.Polling.HistoryInterval)
	output.Printf("  Signals:         %s\n", cfg.Polling.SignalsInterval)
	output.Println()

	output.Bold("Security")
	output.Printf("  Read-only:       %v\n", cfg.Security.ReadOnlyMode)
	output.Printf("  Audit log:       %v\n", cfg.Security.AuditEnabled)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
}
