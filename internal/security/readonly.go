package security

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	apperrors "autotrade-console/internal/errors"
)

// Operation names something the console can ask the backend to do.
type Operation string

const (
	OpRead    Operation = "read"
	OpGoPaper Operation = "go_paper"

	OpGeneratePlan   Operation = "generate_plan"
	OpApprovePlan    Operation = "approve_plan"
	OpExecutePlan    Operation = "execute_plan"
	OpDeletePlan     Operation = "delete_plan"
	OpGoLive         Operation = "go_live"
	OpAutoTrade      Operation = "auto_trade"
	OpResetBreaker   Operation = "reset_breaker"
	OpModifySettings Operation = "modify_settings"
	OpSyncPositions  Operation = "sync_positions"
	OpModifyWatch    Operation = "modify_watchlist"
)

type opInfo struct {
	write bool
	label string
}

var operations = map[Operation]opInfo{
	OpRead:           {false, "Read data"},
	OpGoPaper:        {false, "Switch to paper trading"},
	OpGeneratePlan:   {true, "Generate trade plan"},
	OpApprovePlan:    {true, "Approve trade plan"},
	OpExecutePlan:    {true, "Execute trade plan"},
	OpDeletePlan:     {true, "Delete trade plan"},
	OpGoLive:         {true, "Switch to live trading"},
	OpAutoTrade:      {true, "Control auto-trading engine"},
	OpResetBreaker:   {true, "Reset trading circuit breaker"},
	OpModifySettings: {true, "Modify engine settings"},
	OpSyncPositions:  {true, "Sync daily positions"},
	OpModifyWatch:    {true, "Modify watchlist"},
}

// IsWrite reports whether op changes backend state. Unknown operations
// count as writes.
func (op Operation) IsWrite() bool {
	info, ok := operations[op]
	return !ok || info.write
}

// String returns a human label such as "Approve trade plan".
func (op Operation) String() string {
	if info, ok := operations[op]; ok {
		return info.label
	}
	return string(op)
}

// WriteOperations lists every known write, sorted.
func WriteOperations() []Operation {
	var out []Operation
	for op, info := range operations {
		if info.write {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadOnlyError is returned for a write attempted in read-only mode.
// It matches apperrors.ErrReadOnlyMode.
type ReadOnlyError struct {
	Operation Operation
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s is blocked: read-only mode is enabled", e.Operation)
}

func (e *ReadOnlyError) Unwrap() error { return apperrors.ErrReadOnlyMode }

// Access is the read-only gate in front of every write. A nil *Access
// allows everything.
type Access struct {
	readOnly atomic.Bool
	audit    *AuditTrail
}

// NewAccess returns a gate; blocked attempts are recorded on audit.
func NewAccess(readOnly bool, audit *AuditTrail) *Access {
	a := &Access{audit: audit}
	a.readOnly.Store(readOnly)
	return a
}

// ReadOnly reports whether writes are blocked.
func (a *Access) ReadOnly() bool {
	return a != nil && a.readOnly.Load()
}

// SetReadOnly toggles the gate.
func (a *Access) SetReadOnly(on bool) { a.readOnly.Store(on) }

// Check returns a *ReadOnlyError when op is a write and the gate is closed.
func (a *Access) Check(ctx context.Context, op Operation) error {
	if !a.ReadOnly() || !op.IsWrite() {
		return nil
	}
	a.audit.Blocked(ctx, op)
	return &ReadOnlyError{Operation: op}
}
