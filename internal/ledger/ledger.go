// Package ledger owns the lifecycle of open positions: opening on fills,
// marking to market, enforcing stops and the take-profit ladder, and
// recording closed trades. No other component mutates a Position.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

// TradeSink receives closed trade records, e.g. the SQLite store.
type TradeSink interface {
	SaveTrade(t models.ClosedTrade) error
}

// Ledger applies fills and price updates to the shared portfolio state.
type Ledger struct {
	cfg    config.LedgerConfig
	state  *portfolio.State
	sink   TradeSink
	logger zerolog.Logger
	sim    bool
}

// New creates a position ledger. sink may be nil, which disables trade
// persistence.
func New(cfg config.LedgerConfig, state *portfolio.State, sink TradeSink, logger zerolog.Logger, sim bool) *Ledger {
	return &Ledger{
		cfg:    cfg,
		state:  state,
		sink:   sink,
		logger: logging.WithComponent(logger, "ledger"),
		sim:    sim,
	}
}

// OpenFromFill opens a position from an execution result. Protective levels
// come from the intent when the signal supplied them, otherwise from the
// configured default stop and target percentages. Opening a symbol that
// already has a position is an error: sizing assumed no existing exposure.
func (l *Ledger) OpenFromFill(result *models.ExecutionResult) (*models.Position, error) {
	intent := result.Intent
	if result.FilledAmount <= 0 {
		return nil, errors.NewValidationError("filledAmount", result.FilledAmount, "nothing filled")
	}
	if _, ok := l.state.Position(intent.Symbol); ok {
		return nil, errors.Wrapf(errors.ErrPositionExists, "open %s", intent.Symbol)
	}

	entry := result.AvgFillPrice
	stop := intent.StopLoss
	target := intent.TakeProfit
	if stop <= 0 {
		stop = entry * (1 - l.cfg.DefaultStopPercent*intent.Side.Sign())
	}
	if target <= 0 {
		target = entry * (1 + l.cfg.DefaultTargetPercent*intent.Side.Sign())
	}

	pos := models.Position{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		EntryPrice:    entry,
		OriginalSize:  result.FilledAmount,
		RemainingSize: result.FilledAmount,
		StopLoss:      stop,
		CurrentPrice:  entry,
		OpenedAt:      time.Now(),
	}
	pos.TakeProfits = l.buildLadder(&pos, target)
	l.state.SetPosition(pos)
	l.state.ApplyFill(intent.Side, result.FilledAmount, entry)

	l.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry", entry).
		Float64("size", pos.OriginalSize).
		Float64("stop", stop).
		Msg("position opened")
	return &pos, nil
}

// buildLadder places take-profit rungs at configured multiples of the
// initial risk. When the stop distance is degenerate the single supplied
// target becomes the only rung.
func (l *Ledger) buildLadder(pos *models.Position, target float64) []models.TakeProfitLevel {
	risk := pos.InitialRisk()
	if risk <= 0 || len(l.cfg.LadderRiskMultiples) == 0 {
		return []models.TakeProfitLevel{{Price: target, CloseFraction: 1.0}}
	}
	levels := make([]models.TakeProfitLevel, 0, len(l.cfg.LadderRiskMultiples))
	for _, mult := range l.cfg.LadderRiskMultiples {
		levels = append(levels, models.TakeProfitLevel{
			Price:         pos.EntryPrice + risk*mult*pos.Side.Sign(),
			CloseFraction: l.cfg.LadderCloseFraction,
		})
	}
	return levels
}

// MarkPrice applies one price tick to the symbol's position: mark to
// market, tighten the trailing stop, then check exits. It returns the
// closed trades the tick produced (usually none).
func (l *Ledger) MarkPrice(symbol string, price float64) []models.ClosedTrade {
	pos, ok := l.state.Position(symbol)
	if !ok || price <= 0 {
		return nil
	}
	pos.MarkToMarket(price)
	l.updateTrailingStop(&pos)

	var closed []models.ClosedTrade
	if trade, done := l.checkStops(&pos, price); done {
		closed = append(closed, trade)
		l.state.RemovePosition(symbol)
		return closed
	}
	closed = append(closed, l.fireLadder(&pos, price)...)
	if pos.RemainingSize <= l.cfg.NegligibleSize && pos.RemainingSize > 0 {
		closed = append(closed, l.closeAll(&pos, price, models.CloseReasonTakeProfit))
		l.state.RemovePosition(symbol)
		return closed
	}
	if pos.RemainingSize <= 0 {
		l.state.RemovePosition(symbol)
		return closed
	}
	l.state.SetPosition(pos)
	return closed
}

// updateTrailingStop arms and tightens the trailing stop while the position
// is in profit. The stop only ever moves in the position's favor.
func (l *Ledger) updateTrailingStop(pos *models.Position) {
	if pos.PnLPercent <= 0 {
		return
	}
	distance := pos.EntryPrice * l.cfg.TrailingStopPercent
	if pos.Side == models.SideBuy {
		candidate := pos.CurrentPrice - distance
		if candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	} else {
		candidate := pos.CurrentPrice + distance
		if pos.TrailingStop == 0 || candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
		}
	}
}

// checkStops closes the full position when price crosses the hard stop or
// an armed trailing stop.
func (l *Ledger) checkStops(pos *models.Position, price float64) (models.ClosedTrade, bool) {
	breached := func(level float64) bool {
		if level <= 0 {
			return false
		}
		if pos.Side == models.SideBuy {
			return price <= level
		}
		return price >= level
	}
	if breached(pos.StopLoss) {
		return l.closeAll(pos, price, models.CloseReasonStopLoss), true
	}
	if breached(pos.TrailingStop) {
		return l.closeAll(pos, price, models.CloseReasonTrailingStop), true
	}
	return models.ClosedTrade{}, false
}

// fireLadder closes ladder fractions whose price has been reached. Each
// rung fires at most once.
func (l *Ledger) fireLadder(pos *models.Position, price float64) []models.ClosedTrade {
	reached := func(level float64) bool {
		if pos.Side == models.SideBuy {
			return price >= level
		}
		return price <= level
	}
	var closed []models.ClosedTrade
	for i := range pos.TakeProfits {
		tp := &pos.TakeProfits[i]
		if tp.Fired || !reached(tp.Price) {
			continue
		}
		tp.Fired = true
		size := pos.OriginalSize * tp.CloseFraction
		if size > pos.RemainingSize {
			size = pos.RemainingSize
		}
		if size <= 0 {
			continue
		}
		closed = append(closed, l.closePartial(pos, price, size, models.CloseReasonTakeProfit))
		if pos.RemainingSize <= 0 {
			break
		}
	}
	return closed
}

// CloseAll force-closes the symbol's position at the given price, e.g. on a
// critical circuit breaker trip.
func (l *Ledger) CloseAll(symbol string, price float64, reason models.CloseReason) (models.ClosedTrade, error) {
	pos, ok := l.state.Position(symbol)
	if !ok {
		return models.ClosedTrade{}, errors.Wrapf(errors.ErrPositionNotFound, "close %s", symbol)
	}
	if price <= 0 {
		price = pos.CurrentPrice
	}
	trade := l.closeAll(&pos, price, reason)
	l.state.RemovePosition(symbol)
	return trade, nil
}

func (l *Ledger) closeAll(pos *models.Position, price float64, reason models.CloseReason) models.ClosedTrade {
	return l.closePartial(pos, price, pos.RemainingSize, reason)
}

// closePartial realizes P&L on part of the position and records the trade.
func (l *Ledger) closePartial(pos *models.Position, price, size float64, reason models.CloseReason) models.ClosedTrade {
	pnl := (price - pos.EntryPrice) * pos.Side.Sign() * size
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = (price - pos.EntryPrice) / pos.EntryPrice * 100 * pos.Side.Sign()
	}
	pos.RemainingSize -= size
	pos.RealizedPnL += pnl

	now := time.Now()
	trade := models.ClosedTrade{
		ID:          uuid.NewString(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Size:        size,
		RealizedPnL: pnl,
		PnLPercent:  pnlPct,
		Reason:      reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
		Duration:    now.Sub(pos.OpenedAt),
		Simulated:   l.sim,
	}

	l.state.ApplyFill(pos.Side.Opposite(), size, price)
	l.state.RecordRealizedPnL(pnl)
	l.state.AppendTrade(trade)
	if l.sink != nil {
		if err := l.sink.SaveTrade(trade); err != nil {
			l.logger.Error().Err(err).Str("symbol", trade.Symbol).Msg("trade not persisted")
		}
	}
	logging.LogClose(l.logger, trade.Symbol, string(reason), pnl, trade.Duration)
	return trade
}

// Describe returns a one-line human summary of the open position, used by
// the status command.
func Describe(pos models.Position) string {
	return fmt.Sprintf("%s %s %.4f @ %.2f (pnl %.2f, stop %.2f)",
		pos.Symbol, pos.Side, pos.RemainingSize, pos.EntryPrice, pos.UnrealizedPnL, pos.StopLoss)
}
