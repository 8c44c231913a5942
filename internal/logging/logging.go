// Package logging builds the console's zerolog logger and holds the shared
// event helpers.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go. With neither Console nor File set
// the logger discards everything, so structured command output on stdout
// is never mixed with log lines.
type Options struct {
	Level    string
	Console  bool
	File     bool
	FilePath string

	// rotation, see lumberjack.Logger
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions logs info and above to a rotating file under the user's
// config directory.
func DefaultOptions() Options {
	home, _ := os.UserHomeDir()
	return Options{
		Level:      "info",
		File:       true,
		FilePath:   filepath.Join(home, ".config", "autotrade-console", "logs", "console.log"),
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// New returns a logger for opts and sets the global level. A log directory
// that cannot be created drops the file sink.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var sinks []io.Writer
	if opts.Console {
		sinks = append(sinks, consoleWriter(os.Stderr))
	}
	if opts.File && opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0700); err == nil {
			sinks = append(sinks, &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   true,
			})
		}
	}

	switch len(sinks) {
	case 0:
		return zerolog.Nop()
	case 1:
		return zerolog.New(sinks[0]).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.MultiLevelWriter(sinks...)).With().Timestamp().Logger()
}

var levelColors = map[string]*color.Color{
	zerolog.LevelDebugValue: color.New(color.FgCyan),
	zerolog.LevelInfoValue:  color.New(color.FgGreen),
	zerolog.LevelWarnValue:  color.New(color.FgYellow),
	zerolog.LevelErrorValue: color.New(color.FgRed, color.Bold),
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    color.NoColor,
		FormatLevel: func(i interface{}) string {
			name, _ := i.(string)
			label := "???"
			if len(name) >= 3 {
				label = name[:3]
			}
			label = strings.ToUpper(label)
			if c, ok := levelColors[name]; ok && !color.NoColor {
				return c.Sprint(label)
			}
			return label
		},
	}
}

type ctxKey struct{}

// WithRequestID stores the id sent as X-Request-ID and written to the
// audit log.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithComponent tags every line of logger with a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogPlanAction records a plan lifecycle step. Failures log at warn.
func LogPlanAction(logger zerolog.Logger, planID, action, status string, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	if planID != "" {
		event = event.Str("plan_id", planID)
	}
	event.Str("action", action).Str("status", status).Msg("Plan " + action)
}

// LogModeChange records a trading mode switch attempt.
func LogModeChange(logger zerolog.Logger, from, to string, confirmed bool, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Str("from", from).Str("to", to).Bool("confirmed", confirmed).Msg("Trading mode change")
}

// LogAPICall records one backend request at debug, or warn when it failed.
func LogAPICall(logger zerolog.Logger, method, endpoint string, status int, took time.Duration, err error) {
	event := logger.Debug()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Str("method", method).
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("took", took).
		Msg("API call")
}
