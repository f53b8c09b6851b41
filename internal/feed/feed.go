// Package feed defines the market data interface the scan loop consumes
// and a candle replay implementation for offline runs.
package feed

import (
	"context"
	"sync"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// Feed supplies the market data one decision cycle needs. Implementations
// must return a FeedError when data for a symbol is stale or missing; the
// scan loop skips that symbol for the cycle.
type Feed interface {
	Candles(ctx context.Context, symbol string, limit int) ([]models.Candle, error)
	Book(ctx context.Context, symbol string) (*models.OrderBook, error)
	Tape(ctx context.Context, symbol string, limit int) ([]models.TapeEntry, error)
}

// CheckStaleness returns a FeedError when the newest candle is older than
// the allowed window.
func CheckStaleness(symbol string, candles []models.Candle, window time.Duration) error {
	if len(candles) == 0 {
		return errors.NewFeedError(symbol, "no candles", errors.ErrFeedUnavailable)
	}
	age := time.Since(candles[len(candles)-1].Timestamp)
	if window > 0 && age > window {
		return errors.NewFeedError(symbol, "last candle age "+age.Truncate(time.Second).String(),
			errors.ErrFeedStale)
	}
	return nil
}

// ReplayFeed serves a fixed candle history through a growing window, so a
// full scan pipeline can run against recorded data. Each Advance exposes
// one more candle per symbol. The book is synthesized around the latest
// close; the tape reports the latest candle's volume at its close.
type ReplayFeed struct {
	mu      sync.Mutex
	history map[string][]models.Candle
	cursor  map[string]int
	spread  float64 // synthetic relative spread
	depth   float64 // synthetic quantity per level
}

// NewReplayFeed creates a replay feed over recorded history. The initial
// window is the full history; call Rewind to start from a warmup prefix.
func NewReplayFeed(history map[string][]models.Candle) *ReplayFeed {
	cursor := make(map[string]int, len(history))
	for symbol, candles := range history {
		cursor[symbol] = len(candles)
	}
	return &ReplayFeed{
		history: history,
		cursor:  cursor,
		spread:  0.0004,
		depth:   10,
	}
}

// Rewind resets every symbol's window to the first n candles.
func (f *ReplayFeed) Rewind(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for symbol, candles := range f.history {
		if n > len(candles) {
			f.cursor[symbol] = len(candles)
		} else {
			f.cursor[symbol] = n
		}
	}
}

// Advance grows every symbol's window by one candle. It returns false once
// all histories are exhausted.
func (f *ReplayFeed) Advance() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	advanced := false
	for symbol, candles := range f.history {
		if f.cursor[symbol] < len(candles) {
			f.cursor[symbol]++
			advanced = true
		}
	}
	return advanced
}

// LastClose returns the close of the newest visible candle.
func (f *ReplayFeed) LastClose(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := f.window(symbol)
	if len(window) == 0 {
		return 0
	}
	return window[len(window)-1].Close
}

func (f *ReplayFeed) Candles(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := f.window(symbol)
	if len(window) == 0 {
		return nil, errors.NewFeedError(symbol, "symbol not in replay history", errors.ErrFeedUnavailable)
	}
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]models.Candle, len(window))
	copy(out, window)
	return out, nil
}

func (f *ReplayFeed) Book(ctx context.Context, symbol string) (*models.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := f.window(symbol)
	if len(window) == 0 {
		return nil, errors.NewFeedError(symbol, "symbol not in replay history", errors.ErrFeedUnavailable)
	}
	last := window[len(window)-1]
	half := last.Close * f.spread / 2
	book := &models.OrderBook{Symbol: symbol, Timestamp: last.Timestamp}
	for i := 1; i <= 5; i++ {
		offset := half * float64(i)
		book.Bids = append(book.Bids, models.BookLevel{Price: last.Close - offset, Amount: f.depth})
		book.Asks = append(book.Asks, models.BookLevel{Price: last.Close + offset, Amount: f.depth})
	}
	return book, nil
}

func (f *ReplayFeed) Tape(ctx context.Context, symbol string, limit int) ([]models.TapeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := f.window(symbol)
	if len(window) == 0 {
		return nil, errors.NewFeedError(symbol, "symbol not in replay history", errors.ErrFeedUnavailable)
	}
	n := limit
	if n <= 0 || n > len(window) {
		n = len(window)
	}
	entries := make([]models.TapeEntry, 0, n)
	for _, c := range window[len(window)-n:] {
		side := models.SideBuy
		if c.Close < c.Open {
			side = models.SideSell
		}
		entries = append(entries, models.TapeEntry{
			Symbol:    symbol,
			Price:     c.Close,
			Amount:    c.Volume,
			Side:      side,
			Timestamp: c.Timestamp,
		})
	}
	return entries, nil
}

func (f *ReplayFeed) window(symbol string) []models.Candle {
	candles, ok := f.history[symbol]
	if !ok {
		return nil
	}
	return candles[:f.cursor[symbol]]
}

var _ Feed = (*ReplayFeed)(nil)
