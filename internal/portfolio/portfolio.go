// Package portfolio provides the shared portfolio state. All mutation goes
// through one mutex-guarded accessor so concurrent loops never race.
package portfolio

import (
	"sync"
	"time"

	"autotrader/internal/models"
)

// Snapshot is an immutable copy of the portfolio state handed to the pure
// calculators (risk engine, performance evaluator).
type Snapshot struct {
	Equity        float64
	PeakEquity    float64
	Cash          float64
	DailyPnL      float64
	OpenPositions []models.Position
	TakenAt       time.Time
}

// Drawdown returns the current fraction below the running equity peak.
func (s Snapshot) Drawdown() float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

// TotalExposure returns the sum of open position notionals as a fraction
// of equity.
func (s Snapshot) TotalExposure() float64 {
	if s.Equity <= 0 {
		return 0
	}
	var notional float64
	for _, p := range s.OpenPositions {
		notional += p.Notional()
	}
	return notional / s.Equity
}

// HasPosition reports whether a position is open for the symbol.
func (s Snapshot) HasPosition(symbol string) bool {
	for _, p := range s.OpenPositions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// State is the single serialization point for all portfolio mutation.
// Created at process start, torn down at shutdown; never a package global.
type State struct {
	mu sync.RWMutex

	equity     float64
	peakEquity float64
	cash       float64
	dailyPnL   float64
	dayStart   time.Time

	positions map[string]*models.Position // symbol -> open position

	// per-symbol in-flight guard: no two conflicting orders for the same
	// symbol are ever in flight simultaneously
	inFlight map[string]bool

	returns []float64 // historical period returns for VaR input
	history []models.ClosedTrade
}

// NewState creates a portfolio state with the given starting equity.
func NewState(initialEquity float64) *State {
	return &State{
		equity:     initialEquity,
		peakEquity: initialEquity,
		cash:       initialEquity,
		dayStart:   time.Now(),
		positions:  make(map[string]*models.Position),
		inFlight:   make(map[string]bool),
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}

	return Snapshot{
		Equity:        s.equity,
		PeakEquity:    s.peakEquity,
		Cash:          s.cash,
		DailyPnL:      s.dailyPnL,
		OpenPositions: positions,
		TakenAt:       time.Now(),
	}
}

// Returns returns a copy of the historical period return series.
func (s *State) Returns() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.returns))
	copy(out, s.returns)
	return out
}

// RecordReturn appends one period return to the history.
func (s *State) RecordReturn(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returns = append(s.returns, r)
}

// SetEquity updates equity and the running peak.
func (s *State) SetEquity(equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity = equity
	if equity > s.peakEquity {
		s.peakEquity = equity
	}
}

// ApplyFill reconciles a fill into cash and realized daily P&L accounting.
func (s *State) ApplyFill(side models.Side, amount, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := amount * price
	if side == models.SideBuy {
		s.cash -= value
	} else {
		s.cash += value
	}
}

// RecordRealizedPnL adds realized P&L to equity and the daily counter.
func (s *State) RecordRealizedPnL(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyPnL += pnl
	s.equity += pnl
	if s.equity > s.peakEquity {
		s.peakEquity = s.equity
	}
}

// ResetDaily rolls the daily P&L counter at the start of a new day.
func (s *State) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyPnL = 0
	s.dayStart = time.Now()
}

// Position returns a copy of the open position for the symbol, if any.
func (s *State) Position(symbol string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// SetPosition installs or replaces the open position for a symbol.
func (s *State) SetPosition(p models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.positions[p.Symbol] = &cp
}

// RemovePosition deletes the open position for a symbol.
func (s *State) RemovePosition(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
}

// OpenPositionCount returns the number of open positions.
func (s *State) OpenPositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// TryAcquireSymbol marks a symbol as having an order in flight. Returns
// false when an order for the symbol is already in flight.
func (s *State) TryAcquireSymbol(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[symbol] {
		return false
	}
	s.inFlight[symbol] = true
	return true
}

// ReleaseSymbol clears the in-flight mark for a symbol.
func (s *State) ReleaseSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, symbol)
}

// AppendTrade appends a closed trade to the in-memory history.
func (s *State) AppendTrade(t models.ClosedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

// TradeHistory returns a copy of the closed trade history.
func (s *State) TradeHistory() []models.ClosedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ClosedTrade, len(s.history))
	copy(out, s.history)
	return out
}
