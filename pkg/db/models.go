package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by point lookups when no row exists.
var ErrNotFound = errors.New("record not found")

// Position is the durable per-symbol trading state. A row is created the
// first time a symbol enters the universe and is only ever reset to the flat
// state afterwards, never deleted.
type Position struct {
	Symbol     string
	Balance    float64 // quote-currency funds available while flat
	IsOpen     bool
	EntryPrice float64
	Qty        float64
	PeakPrice  float64 // highest price seen since entry
	UpdatedAt  time.Time
}

// Trade is an immutable ledger entry, written exactly once per executed
// entry or exit.
type Trade struct {
	ID        string
	Symbol    string
	Side      string // BUY or SELL
	Price     float64
	Qty       float64
	Profit    float64 // realized, zero on BUY
	Reason    string  // exit trigger, empty on BUY
	CreatedAt time.Time
}

// SignalStatus is the latest indicator snapshot per symbol, kept for the
// dashboard regardless of whether the decision led to a trade.
type SignalStatus struct {
	Symbol    string
	RSI       float64
	Score     float64
	Decision  string
	UpdatedAt time.Time
}

// Calibration records the tuned parameters and simulated profit for one
// candidate symbol from the latest calibration pass.
type Calibration struct {
	Symbol       string
	RSIThreshold float64
	MinScore     float64
	Profit       float64
	Elite        bool
	UpdatedAt    time.Time
}

// DailyAggregate summarizes one symbol's closed trades for a calendar day.
type DailyAggregate struct {
	Symbol string
	Profit float64
	Trades int
	Wins   int
}

// SavePosition upserts the snapshot for a symbol.
func (d *Database) SavePosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, balance, is_open, entry_price, qty, peak_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			balance = excluded.balance,
			is_open = excluded.is_open,
			entry_price = excluded.entry_price,
			qty = excluded.qty,
			peak_price = excluded.peak_price,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Balance, boolToInt(p.IsOpen), p.EntryPrice, p.Qty, p.PeakPrice)
	return err
}

// LoadPosition returns the saved snapshot for a symbol, or ErrNotFound.
func (d *Database) LoadPosition(ctx context.Context, symbol string) (Position, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT symbol, balance, is_open, entry_price, qty, peak_price, updated_at
		FROM positions WHERE symbol = ?
	`, symbol)

	var p Position
	var open int
	if err := row.Scan(&p.Symbol, &p.Balance, &open, &p.EntryPrice, &p.Qty, &p.PeakPrice, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, ErrNotFound
		}
		return Position{}, err
	}
	p.IsOpen = open != 0
	return p, nil
}

// ListPositions returns all saved positions.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, balance, is_open, entry_price, qty, peak_price, updated_at
		FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Position
	for rows.Next() {
		var p Position
		var open int
		if err := rows.Scan(&p.Symbol, &p.Balance, &open, &p.EntryPrice, &p.Qty, &p.PeakPrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.IsOpen = open != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

// AppendTrade inserts a new ledger row. Ledger rows are never updated.
func (d *Database) AppendTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, price, qty, profit, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.Symbol, t.Side, t.Price, t.Qty, t.Profit, t.Reason, nullTime(t.CreatedAt))
	return err
}

// LastTrade returns the most recent ledger entry for a symbol, or ErrNotFound.
func (d *Database) LastTrade(ctx context.Context, symbol string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, side, price, qty, profit, reason, created_at
		FROM trades WHERE symbol = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, symbol)

	var t Trade
	if err := row.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Profit, &t.Reason, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, ErrNotFound
		}
		return Trade{}, err
	}
	return t, nil
}

// LastTradeBySide returns the most recent ledger entry of one side for a
// symbol, or ErrNotFound.
func (d *Database) LastTradeBySide(ctx context.Context, symbol, side string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, side, price, qty, profit, reason, created_at
		FROM trades WHERE symbol = ? AND side = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, symbol, side)

	var t Trade
	if err := row.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Profit, &t.Reason, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, ErrNotFound
		}
		return Trade{}, err
	}
	return t, nil
}

// ListTrades returns the most recent ledger entries, newest first.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, price, qty, profit, reason, created_at
		FROM trades ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Profit, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ProfitStats aggregates the full ledger of closed trades.
func (d *Database) ProfitStats(ctx context.Context) (profit float64, trades, wins int, err error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(profit), 0),
		       COUNT(*),
		       COUNT(CASE WHEN profit > 0 THEN 1 END)
		FROM trades WHERE side = 'SELL'
	`)
	err = row.Scan(&profit, &trades, &wins)
	return profit, trades, wins, err
}

// DailySummary aggregates closed trades (SELL side) per symbol for one day.
// date is formatted YYYY-MM-DD.
func (d *Database) DailySummary(ctx context.Context, date string) ([]DailyAggregate, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol,
		       COALESCE(SUM(profit), 0),
		       COUNT(*),
		       COUNT(CASE WHEN profit > 0 THEN 1 END)
		FROM trades
		WHERE side = 'SELL' AND created_at LIKE ? || '%'
		GROUP BY symbol
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.Symbol, &a.Profit, &a.Trades, &a.Wins); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpsertSignalStatus stores the latest indicator snapshot for a symbol.
func (d *Database) UpsertSignalStatus(ctx context.Context, s SignalStatus) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signal_status (symbol, rsi, score, decision, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			rsi = excluded.rsi,
			score = excluded.score,
			decision = excluded.decision,
			updated_at = CURRENT_TIMESTAMP
	`, s.Symbol, s.RSI, s.Score, s.Decision)
	return err
}

// ListSignalStatus returns the latest snapshot per symbol.
func (d *Database) ListSignalStatus(ctx context.Context) ([]SignalStatus, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, rsi, score, decision, updated_at FROM signal_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SignalStatus
	for rows.Next() {
		var s SignalStatus
		if err := rows.Scan(&s.Symbol, &s.RSI, &s.Score, &s.Decision, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpsertCalibration stores the latest calibration result for a candidate.
func (d *Database) UpsertCalibration(ctx context.Context, c Calibration) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO calibrations (symbol, rsi_threshold, min_score, profit, elite, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			rsi_threshold = excluded.rsi_threshold,
			min_score = excluded.min_score,
			profit = excluded.profit,
			elite = excluded.elite,
			updated_at = CURRENT_TIMESTAMP
	`, c.Symbol, c.RSIThreshold, c.MinScore, c.Profit, boolToInt(c.Elite))
	return err
}

// ListCalibrations returns calibration results for all candidates.
func (d *Database) ListCalibrations(ctx context.Context) ([]Calibration, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, rsi_threshold, min_score, profit, elite, updated_at
		FROM calibrations ORDER BY profit DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Calibration
	for rows.Next() {
		var c Calibration
		var elite int
		if err := rows.Scan(&c.Symbol, &c.RSIThreshold, &c.MinScore, &c.Profit, &elite, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Elite = elite != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

// GetConfigValue reads one bot_config key; returns def when absent.
func (d *Database) GetConfigValue(ctx context.Context, key, def string) (string, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT value FROM bot_config WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return "", err
	}
	return v, nil
}

// SetConfigValue upserts one bot_config key.
func (d *Database) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
