package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"autotrader/internal/models"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Closed trades, append-only.
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		size REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		reason TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);

	-- Equity snapshots, append-only.
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		equity REAL NOT NULL,
		period_return REAL NOT NULL,
		drawdown REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);

	-- OHLCV history, used by the replay feed and the optimizer backtest.
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		UNIQUE(symbol, timestamp)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTrade appends one closed trade.
func (s *SQLiteStore) SaveTrade(t models.ClosedTrade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (id, symbol, side, entry_price, exit_price, size,
			realized_pnl, pnl_percent, reason, opened_at, closed_at, duration_ns, simulated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice, t.Size,
		t.RealizedPnL, t.PnLPercent, string(t.Reason), t.OpenedAt, t.ClosedAt,
		int64(t.Duration), boolToInt(t.Simulated))
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// Trades returns the most recent closed trades, oldest first.
func (s *SQLiteStore) Trades(limit int) ([]models.ClosedTrade, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, side, entry_price, exit_price, size,
			realized_pnl, pnl_percent, reason, opened_at, closed_at, duration_ns, simulated
		FROM (
			SELECT * FROM trades ORDER BY closed_at DESC LIMIT ?
		) ORDER BY closed_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var t models.ClosedTrade
		var side, reason string
		var durationNs int64
		var simulated int
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
			&t.Size, &t.RealizedPnL, &t.PnLPercent, &reason,
			&t.OpenedAt, &t.ClosedAt, &durationNs, &simulated); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.Reason = models.CloseReason(reason)
		t.Duration = time.Duration(durationNs)
		t.Simulated = simulated != 0
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveSnapshot appends one equity snapshot.
func (s *SQLiteStore) SaveSnapshot(snap models.PerformanceSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (timestamp, equity, period_return, drawdown)
		VALUES (?, ?, ?, ?)`,
		snap.Timestamp, snap.Equity, snap.Return, snap.Drawdown)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Snapshots returns snapshots at or after the given time, oldest first.
func (s *SQLiteStore) Snapshots(since time.Time) ([]models.PerformanceSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, equity, period_return, drawdown
		FROM snapshots WHERE timestamp >= ? ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.PerformanceSnapshot
	for rows.Next() {
		var snap models.PerformanceSnapshot
		if err := rows.Scan(&snap.Timestamp, &snap.Equity, &snap.Return, &snap.Drawdown); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SaveCandles upserts OHLCV bars for a symbol inside one transaction.
func (s *SQLiteStore) SaveCandles(symbol string, candles []models.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}
	return tx.Commit()
}

// Candles returns the most recent bars for a symbol, oldest first.
func (s *SQLiteStore) Candles(symbol string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`
		SELECT timestamp, open, high, low, close, volume
		FROM (
			SELECT * FROM candles WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
