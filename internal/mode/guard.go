// Package mode guards switches between paper and live trading.
package mode

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/logging"
	"autotrade-console/internal/models"
	"autotrade-console/internal/security"
	"autotrade-console/internal/store"
)

// ConfirmWord must be typed to enable a switch to live trading.
const ConfirmWord = "CONFIRM"

// LivePrompt is shown when asking for the confirmation word.
const LivePrompt = "Live trading places real orders with real money. Type CONFIRM to continue: "

// ConfirmEnabled reports whether input enables the live switch. Surrounding
// whitespace and letter case are ignored.
func ConfirmEnabled(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), ConfirmWord)
}

// Backend is the subset of the REST client the guard needs.
type Backend interface {
	TradingMode(ctx context.Context) (models.TradingMode, error)
	SetTradingMode(ctx context.Context, mode models.TradingMode, confirmed bool) (models.TradingMode, error)
}

// Prompter collects a line of text from the user.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, message string) (string, error)

// Prompt implements Prompter.
func (f PromptFunc) Prompt(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Options wires the optional collaborators. Every field may be nil.
type Options struct {
	Cache  store.Cache
	Access *security.Access
	Audit  *security.AuditTrail
}

// Guard holds the displayed trading mode and performs switches.
//
// The displayed mode flips as soon as a switch is attempted and reverts to
// the previous mode if the backend rejects it. The cached mode only changes
// on server success.
type Guard struct {
	backend Backend
	cache   store.Cache
	access  *security.Access
	audit   *security.AuditTrail
	logger  zerolog.Logger

	mu        sync.Mutex
	displayed models.TradingMode
	switching bool
	onChange  func(models.TradingMode)
}

// NewGuard creates a guard. The displayed mode starts as paper until
// Refresh or Restore says otherwise.
func NewGuard(backend Backend, opts Options, logger zerolog.Logger) *Guard {
	return &Guard{
		backend:   backend,
		cache:     opts.Cache,
		access:    opts.Access,
		audit:     opts.Audit,
		logger:    logging.WithComponent(logger, "mode"),
		displayed: models.ModePaper,
	}
}

// OnChange registers fn to receive every change of the displayed mode.
func (g *Guard) OnChange(fn func(models.TradingMode)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Current returns the displayed mode.
func (g *Guard) Current() models.TradingMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.displayed
}

// Restore sets the displayed mode from the local cache, if any.
func (g *Guard) Restore(ctx context.Context) bool {
	if g.cache == nil {
		return false
	}
	mode, _, err := g.cache.GetMode(ctx)
	if err != nil {
		return false
	}
	g.display(mode)
	return true
}

// Refresh reads the mode from the backend.
func (g *Guard) Refresh(ctx context.Context) (models.TradingMode, error) {
	mode, err := g.backend.TradingMode(ctx)
	if err != nil {
		return g.Current(), apperrors.Wrap(err, "get trading mode")
	}
	g.mu.Lock()
	switching := g.switching
	g.mu.Unlock()
	// A poll landing mid-switch must not clobber the pending display.
	if !switching {
		g.display(mode)
	}
	g.persist(ctx, mode)
	return mode, nil
}

// Switch moves to target. Going live asks prompter for the confirmation
// word first; anything else returns ErrConfirmationDeclined without a
// request. Going to paper is issued immediately. On failure the displayed
// mode reverts and the error is returned.
func (g *Guard) Switch(ctx context.Context, target models.TradingMode, prompter Prompter) (models.TradingMode, error) {
	if target != models.ModePaper && target != models.ModeLive {
		return g.Current(), apperrors.Wrapf(apperrors.ErrInvalidMode, "%q", target)
	}

	g.mu.Lock()
	if g.switching {
		g.mu.Unlock()
		return g.Current(), apperrors.New("a trading mode switch is already in progress")
	}
	g.switching = true
	previous := g.displayed
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.switching = false
		g.mu.Unlock()
	}()

	confirmed := false
	if target.IsLive() {
		if err := g.access.Check(ctx, security.OpGoLive); err != nil {
			g.record(ctx, previous, target, false, err)
			return previous, err
		}
		input := ""
		if prompter != nil {
			var err error
			input, err = prompter.Prompt(ctx, LivePrompt)
			if err != nil {
				g.record(ctx, previous, target, false, err)
				return previous, apperrors.Wrap(err, "read confirmation")
			}
		}
		if !ConfirmEnabled(input) {
			g.audit.Declined(ctx, "go_live", string(target))
			g.record(ctx, previous, target, false, apperrors.ErrConfirmationDeclined)
			return previous, apperrors.ErrConfirmationDeclined
		}
		confirmed = true
	} else if err := g.access.Check(ctx, security.OpGoPaper); err != nil {
		return previous, err
	}

	g.display(target)
	mode, err := g.backend.SetTradingMode(ctx, target, confirmed)
	if err != nil {
		g.display(previous)
		g.record(ctx, previous, target, confirmed, err)
		return previous, apperrors.Wrapf(err, "switch to %s", target)
	}
	if mode == "" {
		mode = target
	}

	g.display(mode)
	g.persist(ctx, mode)
	g.record(ctx, previous, target, confirmed, nil)
	return mode, nil
}

func (g *Guard) display(mode models.TradingMode) {
	g.mu.Lock()
	changed := g.displayed != mode
	g.displayed = mode
	onChange := g.onChange
	g.mu.Unlock()

	if changed && onChange != nil {
		onChange(mode)
	}
}

func (g *Guard) persist(ctx context.Context, mode models.TradingMode) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SaveMode(ctx, mode); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to cache trading mode")
	}
}

func (g *Guard) record(ctx context.Context, from, to models.TradingMode, confirmed bool, err error) {
	logging.LogModeChange(g.logger, string(from), string(to), confirmed, err)
	g.audit.ModeChange(ctx, string(from), string(to), confirmed, err)
}
