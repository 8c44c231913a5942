package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"autotrade-console/pkg/utils"
)

// Terminal prints one line per notification.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	bell  bool
}

// NewTerminal writes to out, or stderr when out is nil.
func NewTerminal(out io.Writer, colorEnabled bool) *Terminal {
	if out == nil {
		out = os.Stderr
	}
	return &Terminal{out: out, color: colorEnabled}
}

// RingBell makes plan-level and error lines ring the terminal bell.
func (t *Terminal) RingBell(on bool) {
	t.mu.Lock()
	t.bell = on
	t.mu.Unlock()
}

// Name implements Channel.
func (t *Terminal) Name() string { return "terminal" }

// Send implements Channel.
func (t *Terminal) Send(ctx context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := Format(n, t.color)
	if t.bell && (n.Kind == KindPlanLevel || n.Kind == KindError) {
		line = "\a" + line
	}
	_, err := fmt.Fprintln(t.out, line)
	return err
}

var kindLabels = map[Kind]struct {
	label string
	attrs []color.Attribute
}{
	KindPlanLevel: {"PLAN", []color.Attribute{color.FgYellow, color.Bold}},
	KindEngine:    {"ENGINE", []color.Attribute{color.FgMagenta, color.Bold}},
	KindError:     {"ERROR", []color.Attribute{color.FgRed, color.Bold}},
	KindInfo:      {"INFO", []color.Attribute{color.FgCyan}},
}

// Format renders n as "[15:04:05] LABEL | title | message | LTP a -> b".
func Format(n Notification, colorEnabled bool) string {
	style, ok := kindLabels[n.Kind]
	if !ok {
		style = kindLabels[KindInfo]
	}
	paint := color.New(style.attrs...)
	if colorEnabled {
		paint.EnableColor()
	} else {
		paint.DisableColor()
	}

	parts := make([]string, 0, 4)
	head := paint.Sprint(style.label)
	if !n.Time.IsZero() {
		head = "[" + n.Time.Format("15:04:05") + "] " + head
	}
	parts = append(parts, head)
	if n.Title != "" {
		parts = append(parts, n.Title)
	}
	if n.Message != "" {
		parts = append(parts, n.Message)
	}
	if n.Kind == KindPlanLevel && n.Price > 0 && n.LevelPrice > 0 {
		parts = append(parts, fmt.Sprintf("LTP %s -> %s %s",
			utils.FormatIndianCurrency(n.Price), n.Level, utils.FormatIndianCurrency(n.LevelPrice)))
	}
	return strings.Join(parts, " | ")
}
