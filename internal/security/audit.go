// Package security guards state-changing console operations: the
// read-only gate, input validation, secret redaction and the audit trail.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"autotrade-console/internal/logging"
)

// AuditKind classifies an audit record.
type AuditKind string

const (
	AuditPlanGenerated AuditKind = "plan_generated"
	AuditPlanApproved  AuditKind = "plan_approved"
	AuditPlanExecuted  AuditKind = "plan_executed"
	AuditPlanDeleted   AuditKind = "plan_deleted"

	AuditModeChanged     AuditKind = "mode_changed"
	AuditEngineAction    AuditKind = "engine_action"
	AuditBreakerReset    AuditKind = "breaker_reset"
	AuditSettingsChanged AuditKind = "settings_changed"

	AuditDeclined     AuditKind = "confirmation_declined"
	AuditBlocked      AuditKind = "read_only_blocked"
	AuditInvalidInput AuditKind = "invalid_input"
)

// AuditRecord is one line of the audit trail.
type AuditRecord struct {
	At        time.Time      `json:"at"`
	Kind      AuditKind      `json:"kind"`
	Session   string         `json:"session"`
	RequestID string         `json:"request_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	PlanID    string         `json:"plan_id,omitempty"`
	Symbol    string         `json:"symbol,omitempty"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AuditConfig locates and rotates the audit file.
type AuditConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultAuditConfig keeps a year of audit history under the user's
// config directory.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		Dir:        filepath.Join(home, ".config", "autotrade-console", "audit"),
		MaxSizeMB:  20,
		MaxBackups: 30,
		MaxAgeDays: 365,
	}
}

// AuditTrail appends records as JSON lines. Every record carries the
// process's session id. A nil *AuditTrail drops records.
type AuditTrail struct {
	session string
	now     func() time.Time

	mu  sync.Mutex
	out io.WriteCloser
}

// OpenAuditTrail opens the rotated audit.log in cfg.Dir.
func OpenAuditTrail(cfg AuditConfig) (*AuditTrail, error) {
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return NewAuditTrail(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "audit.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}), nil
}

// NewAuditTrail writes records to out.
func NewAuditTrail(out io.WriteCloser) *AuditTrail {
	return &AuditTrail{session: uuid.NewString(), now: time.Now, out: out}
}

// Session returns the id stamped on this process's records.
func (a *AuditTrail) Session() string {
	if a == nil {
		return ""
	}
	return a.session
}

// Record stamps r with time, session and the context's request id,
// redacts its details and appends it.
func (a *AuditTrail) Record(ctx context.Context, r AuditRecord) error {
	if a == nil {
		return nil
	}
	r.Session = a.session
	if r.RequestID == "" {
		r.RequestID = logging.RequestID(ctx)
	}
	if len(r.Details) > 0 {
		r.Details = RedactMap(r.Details)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	r.At = a.now().UTC()
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	if _, err := a.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// outcome fills OK and Error from err.
func outcome(r AuditRecord, err error) AuditRecord {
	r.OK = err == nil
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Plan records a generate, approve, execute or delete attempt.
func (a *AuditTrail) Plan(ctx context.Context, kind AuditKind, planID, symbol string, details map[string]any, err error) error {
	return a.Record(ctx, outcome(AuditRecord{Kind: kind, PlanID: planID, Symbol: symbol, Details: details}, err))
}

// ModeChange records a trading-mode switch attempt.
func (a *AuditTrail) ModeChange(ctx context.Context, from, to string, confirmed bool, err error) error {
	return a.Record(ctx, outcome(AuditRecord{
		Kind:    AuditModeChanged,
		Action:  from + "->" + to,
		Details: map[string]any{"from": from, "to": to, "confirmed": confirmed},
	}, err))
}

// Engine records an engine command such as start, scan or backtest.
func (a *AuditTrail) Engine(ctx context.Context, action string, err error) error {
	return a.Record(ctx, outcome(AuditRecord{Kind: AuditEngineAction, Action: action}, err))
}

// BreakerReset records a trading circuit breaker reset.
func (a *AuditTrail) BreakerReset(ctx context.Context, err error) error {
	return a.Record(ctx, outcome(AuditRecord{Kind: AuditBreakerReset, Action: "reset"}, err))
}

// Settings records an engine settings update.
func (a *AuditTrail) Settings(ctx context.Context, changes map[string]any, err error) error {
	return a.Record(ctx, outcome(AuditRecord{Kind: AuditSettingsChanged, Details: changes}, err))
}

// Declined records a confirmation prompt the user answered no to.
func (a *AuditTrail) Declined(ctx context.Context, action, subject string) error {
	return a.Record(ctx, AuditRecord{Kind: AuditDeclined, Action: action, PlanID: subject})
}

// Blocked records a write attempted in read-only mode.
func (a *AuditTrail) Blocked(ctx context.Context, op Operation) error {
	return a.Record(ctx, AuditRecord{Kind: AuditBlocked, Action: string(op), Error: "read-only mode"})
}

// InvalidInput records rejected user input; the value is masked.
func (a *AuditTrail) InvalidInput(ctx context.Context, field, value, reason string) error {
	return a.Record(ctx, AuditRecord{
		Kind:    AuditInvalidInput,
		Error:   reason,
		Details: map[string]any{"field": field, "value": MaskSecrets(value)},
	})
}

// Close closes the underlying file.
func (a *AuditTrail) Close() error {
	if a == nil {
		return nil
	}
	return a.out.Close()
}
