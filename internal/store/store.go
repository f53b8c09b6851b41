// Package store persists trade and performance history. The trade and
// snapshot tables are append-only; nothing in the system updates or
// deletes a recorded row.
package store

import (
	"time"

	"autotrader/internal/models"
)

// Store is the persistence interface the ledger and performance evaluator
// write through.
type Store interface {
	SaveTrade(t models.ClosedTrade) error
	Trades(limit int) ([]models.ClosedTrade, error)

	SaveSnapshot(s models.PerformanceSnapshot) error
	Snapshots(since time.Time) ([]models.PerformanceSnapshot, error)

	SaveCandles(symbol string, candles []models.Candle) error
	Candles(symbol string, limit int) ([]models.Candle, error)

	Close() error
}
