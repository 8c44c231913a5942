package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/models"
)

// schema is applied on open; every statement is idempotent. Rows hold the
// JSON the backend returned so new fields survive a round trip.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trade_plans (
		plan_id      TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		ticker       TEXT NOT NULL,
		status       TEXT NOT NULL,
		trading_type TEXT NOT NULL,
		position     INTEGER NOT NULL,
		payload      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_plans_status ON trade_plans(status)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_plans_symbol ON trade_plans(symbol)`,
	`CREATE TABLE IF NOT EXISTS plan_validations (
		plan_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trading_mode (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		mode       TEXT NOT NULL,
		updated_ns INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		ticker  TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_marks (
		dataset   TEXT PRIMARY KEY,
		synced_ns INTEGER NOT NULL
	)`,
}

// SQLiteStore is the Cache backed by a single SQLite file in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the cache at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("preparing cache schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDatabaseError, err)
	}
	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// decodeRows decodes the single JSON column of every row.
func decodeRows[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding cached row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// decodeRow decodes one JSON column, mapping no rows to missing.
func decodeRow[T any](row *sql.Row, missing error) (*T, error) {
	var raw []byte
	if err := row.Scan(&raw); errors.Is(err, sql.ErrNoRows) {
		return nil, missing
	} else if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding cached row: %w", err)
	}
	return &v, nil
}

// SavePlans replaces every cached plan with a fresh listing, keeping its
// order.
func (s *SQLiteStore) SavePlans(ctx context.Context, plans []models.TradePlan) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trade_plans`); err != nil {
			return fmt.Errorf("clearing plans: %w", err)
		}
		for i, p := range plans {
			payload, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding plan %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO trade_plans (plan_id, symbol, ticker, status, trading_type, position, payload)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, strings.ToUpper(p.Symbol), strings.ToUpper(p.Ticker),
				string(p.Status), string(p.TradingType), i, payload); err != nil {
				return fmt.Errorf("saving plan %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// GetPlans returns cached plans matching filter in listing order.
func (s *SQLiteStore) GetPlans(ctx context.Context, filter PlanFilter) ([]models.TradePlan, error) {
	var where []string
	var args []any
	if sym := strings.ToUpper(strings.TrimSpace(filter.Symbol)); sym != "" {
		where = append(where, "(symbol = ? OR ticker = ?)")
		args = append(args, sym, sym)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.TradingType != "" {
		where = append(where, "trading_type = ?")
		args = append(args, string(filter.TradingType))
	}

	q := "SELECT payload FROM trade_plans"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY position"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	return decodeRows[models.TradePlan](rows)
}

// GetPlan returns one cached plan or ErrPlanNotFound.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*models.TradePlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM trade_plans WHERE plan_id = ?`, planID)
	return decodeRow[models.TradePlan](row, apperrors.ErrPlanNotFound)
}

// SavePlanValidation keeps the verdict returned when planID was generated.
func (s *SQLiteStore) SavePlanValidation(ctx context.Context, planID string, v models.PlanValidation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding validation: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO plan_validations (plan_id, payload) VALUES (?, ?)`, planID, payload); err != nil {
		return fmt.Errorf("saving validation for %s: %w", planID, err)
	}
	return nil
}

// GetPlanValidation returns the verdict for planID or ErrDataNotFound.
func (s *SQLiteStore) GetPlanValidation(ctx context.Context, planID string) (*models.PlanValidation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM plan_validations WHERE plan_id = ?`, planID)
	return decodeRow[models.PlanValidation](row, apperrors.ErrDataNotFound)
}

// SaveMode records the mode the backend last confirmed.
func (s *SQLiteStore) SaveMode(ctx context.Context, mode models.TradingMode) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trading_mode (id, mode, updated_ns) VALUES (1, ?, ?)`,
		string(mode), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("saving trading mode: %w", err)
	}
	return nil
}

// GetMode returns the cached mode and when it was saved, or ErrDataNotFound.
func (s *SQLiteStore) GetMode(ctx context.Context) (models.TradingMode, time.Time, error) {
	var mode string
	var ns int64
	err := s.db.QueryRowContext(ctx, `SELECT mode, updated_ns FROM trading_mode WHERE id = 1`).Scan(&mode, &ns)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", time.Time{}, apperrors.ErrDataNotFound
	case err != nil:
		return "", time.Time{}, fmt.Errorf("reading trading mode: %w", err)
	}
	return models.TradingMode(mode), time.Unix(0, ns), nil
}

// SaveSignals upserts the latest signal per ticker.
func (s *SQLiteStore) SaveSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, sig := range signals {
			payload, err := json.Marshal(sig)
			if err != nil {
				return fmt.Errorf("encoding signal %s: %w", sig.Ticker, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO signals (ticker, payload) VALUES (?, ?)`,
				strings.ToUpper(sig.Ticker), payload); err != nil {
				return fmt.Errorf("saving signal %s: %w", sig.Ticker, err)
			}
		}
		return nil
	})
}

// GetSignals returns cached signals for tickers (all when empty), ordered
// by ticker.
func (s *SQLiteStore) GetSignals(ctx context.Context, tickers []string) ([]models.Signal, error) {
	q := "SELECT payload FROM signals"
	args := make([]any, len(tickers))
	if len(tickers) > 0 {
		for i, t := range tickers {
			args[i] = strings.ToUpper(strings.TrimSpace(t))
		}
		q += " WHERE ticker IN (?" + strings.Repeat(",?", len(tickers)-1) + ")"
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY ticker", args...)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	return decodeRows[models.Signal](rows)
}

// GetLastSync returns when dataset was last confirmed, or the zero time.
func (s *SQLiteStore) GetLastSync(dataset string) time.Time {
	var ns int64
	if err := s.db.QueryRow(`SELECT synced_ns FROM sync_marks WHERE dataset = ?`, dataset).Scan(&ns); err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// SetLastSync records when dataset was last confirmed.
func (s *SQLiteStore) SetLastSync(dataset string, t time.Time) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO sync_marks (dataset, synced_ns) VALUES (?, ?)`,
		dataset, t.UnixNano()); err != nil {
		return fmt.Errorf("recording %s sync: %w", dataset, err)
	}
	return nil
}
