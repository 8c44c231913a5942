// Package ui provides formatted terminal output shared by the command line
// and the dashboard renderer.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"autotrade-console/pkg/utils"
)

// Format selects how structured data is written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var formatAliases = map[string]Format{
	"":     FormatText,
	"text": FormatText,
	"json": FormatJSON,
	"yaml": FormatYAML,
	"yml":  FormatYAML,
}

// ParseFormat parses an output format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (text, json, yaml)", s)
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool { return isTTY(os.Stdout) }

func isTTY(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type palette struct {
	ok, bad, warn, info, accent, strong, faint, alarm *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:     color.New(color.FgGreen),
		bad:    color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		info:   color.New(color.FgCyan),
		accent: color.New(color.FgMagenta),
		strong: color.New(color.Bold),
		faint:  color.New(color.Faint),
		alarm:  color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.bad, p.warn, p.info, p.accent, p.strong, p.faint, p.alarm} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Output writes human text or structured data to a single writer.
// Colour applies to text output only.
type Output struct {
	w      io.Writer
	format Format
	colors palette
}

// NewOutput creates an Output writing to w.
func NewOutput(w io.Writer, format Format, colorEnabled bool) *Output {
	if format == "" {
		format = FormatText
	}
	return &Output{
		w:      w,
		format: format,
		colors: newPalette(colorEnabled && format == FormatText),
	}
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer { return o.w }

// IsTerminal reports whether text output goes straight to a terminal.
func (o *Output) IsTerminal() bool {
	f, ok := o.w.(*os.File)
	return ok && o.format == FormatText && isTTY(f)
}

// IsJSON reports whether the format is JSON.
func (o *Output) IsJSON() bool { return o.format == FormatJSON }

// IsStructured reports whether data should be emitted instead of text.
func (o *Output) IsStructured() bool {
	return o.format == FormatJSON || o.format == FormatYAML
}

// JSON writes data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAML writes data as YAML. The value goes through JSON first so json tags
// and custom marshalers decide the keys.
func (o *Output) YAML(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var tree interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	enc := yaml.NewEncoder(o.w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return err
	}
	return enc.Close()
}

// Emit writes data in the selected structured format.
func (o *Output) Emit(data interface{}) error {
	if o.format == FormatYAML {
		return o.YAML(data)
	}
	return o.JSON(data)
}

func (o *Output) Println(args ...interface{}) { fmt.Fprintln(o.w, args...) }

func (o *Output) Printf(format string, args ...interface{}) { fmt.Fprintf(o.w, format, args...) }

func (o *Output) Success(format string, args ...interface{}) { o.say(o.colors.ok, format, args) }
func (o *Output) Error(format string, args ...interface{})   { o.say(o.colors.bad, format, args) }
func (o *Output) Warning(format string, args ...interface{}) { o.say(o.colors.warn, format, args) }
func (o *Output) Info(format string, args ...interface{})    { o.say(o.colors.info, format, args) }
func (o *Output) Bold(format string, args ...interface{})    { o.say(o.colors.strong, format, args) }
func (o *Output) Dim(format string, args ...interface{})     { o.say(o.colors.faint, format, args) }

func (o *Output) say(c *color.Color, format string, args []interface{}) {
	fmt.Fprintln(o.w, c.Sprintf(format, args...))
}

func (o *Output) Green(s string) string    { return o.colors.ok.Sprint(s) }
func (o *Output) Red(s string) string      { return o.colors.bad.Sprint(s) }
func (o *Output) Yellow(s string) string   { return o.colors.warn.Sprint(s) }
func (o *Output) Cyan(s string) string     { return o.colors.info.Sprint(s) }
func (o *Output) Magenta(s string) string  { return o.colors.accent.Sprint(s) }
func (o *Output) BoldText(s string) string { return o.colors.strong.Sprint(s) }
func (o *Output) DimText(s string) string  { return o.colors.faint.Sprint(s) }

// FormatPnL formats a rupee P&L, green when positive and red when negative.
func (o *Output) FormatPnL(pnl float64) string {
	return o.bySign(pnl, utils.FormatPnL(pnl))
}

// FormatPercent formats a signed percentage coloured by sign.
func (o *Output) FormatPercent(pct float64) string {
	return o.bySign(pct, utils.FormatPercent(pct))
}

func (o *Output) bySign(v float64, s string) string {
	if v > 0 {
		return o.Green(s)
	}
	if v < 0 {
		return o.Red(s)
	}
	return s
}

// SignalBadge colours a BUY/SELL/HOLD badge.
func (o *Output) SignalBadge(signal string) string {
	label := strings.ToUpper(signal)
	switch label {
	case "BUY":
		return o.Green(label)
	case "SELL":
		return o.Red(label)
	case "HOLD":
		return o.Yellow(label)
	}
	return signal
}

// ModeBadge upper-cases a trading mode. Live is shown in bold red.
func (o *Output) ModeBadge(mode string) string {
	label := strings.ToUpper(mode)
	if label == "LIVE" {
		return o.colors.alarm.Sprint(label)
	}
	return o.Cyan(label)
}

var statusTones = map[string]func(*Output, string) string{
	"approved": (*Output).Green, "running": (*Output).Green, "connected": (*Output).Green,
	"healthy": (*Output).Green, "closed": (*Output).Green,
	"executed": (*Output).Cyan,
	"draft":    (*Output).Yellow, "paused": (*Output).Yellow, "connecting": (*Output).Yellow,
	"degraded": (*Output).Yellow, "half_open": (*Output).Yellow,
	"cancelled": (*Output).Red, "halted": (*Output).Red, "stopped": (*Output).Red,
	"disconnected": (*Output).Red, "unhealthy": (*Output).Red, "open": (*Output).Red,
}

// StatusBadge colours a plan, engine, feed or breaker status word.
func (o *Output) StatusBadge(status string) string {
	if tone, ok := statusTones[strings.ToLower(status)]; ok {
		return tone(o, status)
	}
	return status
}
