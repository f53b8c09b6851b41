package ledger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

type recordingSink struct {
	trades []models.ClosedTrade
}

func (s *recordingSink) SaveTrade(t models.ClosedTrade) error {
	s.trades = append(s.trades, t)
	return nil
}

func testLedgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		DefaultStopPercent:   0.02,
		DefaultTargetPercent: 0.05,
		TrailingStopPercent:  0.015,
		LadderRiskMultiples:  []float64{1.5, 2.0, 2.5},
		LadderCloseFraction:  1.0 / 3.0,
		NegligibleSize:       1e-6,
	}
}

func newTestLedger(t *testing.T, cfg config.LedgerConfig) (*Ledger, *portfolio.State, *recordingSink) {
	t.Helper()
	state := portfolio.NewState(100000)
	sink := &recordingSink{}
	return New(cfg, state, sink, zerolog.Nop(), true), state, sink
}

func buyFill(symbol string, price, amount float64) *models.ExecutionResult {
	return &models.ExecutionResult{
		Intent:       &models.OrderIntent{ID: "intent-1", Symbol: symbol, Side: models.SideBuy, Notional: price * amount},
		FilledAmount: amount,
		AvgFillPrice: price,
		Simulated:    true,
	}
}

func TestOpenFromFill_Defaults(t *testing.T) {
	l, state, _ := newTestLedger(t, testLedgerConfig())

	pos, err := l.OpenFromFill(buyFill("BTC/USDT", 100, 1))
	require.NoError(t, err)

	assert.InDelta(t, 98.0, pos.StopLoss, 1e-9)
	require.Len(t, pos.TakeProfits, 3)
	// Initial risk is 2, rungs at 1.5x, 2x and 2.5x of it above entry.
	assert.InDelta(t, 103.0, pos.TakeProfits[0].Price, 1e-9)
	assert.InDelta(t, 104.0, pos.TakeProfits[1].Price, 1e-9)
	assert.InDelta(t, 105.0, pos.TakeProfits[2].Price, 1e-9)
	for _, tp := range pos.TakeProfits {
		assert.InDelta(t, 1.0/3.0, tp.CloseFraction, 1e-9)
		assert.False(t, tp.Fired)
	}

	_, ok := state.Position("BTC/USDT")
	assert.True(t, ok)
}

func TestOpenFromFill_SellDefaults(t *testing.T) {
	l, _, _ := newTestLedger(t, testLedgerConfig())

	fill := buyFill("BTC/USDT", 100, 1)
	fill.Intent.Side = models.SideSell
	pos, err := l.OpenFromFill(fill)
	require.NoError(t, err)

	assert.InDelta(t, 102.0, pos.StopLoss, 1e-9)
	require.Len(t, pos.TakeProfits, 3)
	assert.InDelta(t, 97.0, pos.TakeProfits[0].Price, 1e-9)
}

func TestOpenFromFill_Rejections(t *testing.T) {
	l, _, _ := newTestLedger(t, testLedgerConfig())

	empty := buyFill("BTC/USDT", 100, 1)
	empty.FilledAmount = 0
	_, err := l.OpenFromFill(empty)
	assert.Error(t, err, "zero fill must not open a position")

	_, err = l.OpenFromFill(buyFill("BTC/USDT", 100, 1))
	require.NoError(t, err)

	_, err = l.OpenFromFill(buyFill("BTC/USDT", 101, 1))
	assert.True(t, errors.Is(err, errors.ErrPositionExists))
}

func TestMarkPrice_TrailingStopOnlyTightens(t *testing.T) {
	l, state, _ := newTestLedger(t, testLedgerConfig())

	// Explicit wide levels keep the ladder and hard stop out of the way.
	fill := buyFill("BTC/USDT", 100, 1)
	fill.Intent.StopLoss = 80
	fill.Intent.TakeProfit = 200
	_, err := l.OpenFromFill(fill)
	require.NoError(t, err)

	require.Empty(t, l.MarkPrice("BTC/USDT", 105))
	pos, _ := state.Position("BTC/USDT")
	assert.InDelta(t, 103.5, pos.TrailingStop, 1e-9, "armed at price minus the trailing distance")

	require.Empty(t, l.MarkPrice("BTC/USDT", 104))
	pos, _ = state.Position("BTC/USDT")
	assert.InDelta(t, 103.5, pos.TrailingStop, 1e-9, "pullback must not loosen the stop")

	require.Empty(t, l.MarkPrice("BTC/USDT", 106))
	pos, _ = state.Position("BTC/USDT")
	assert.InDelta(t, 104.5, pos.TrailingStop, 1e-9)

	closed := l.MarkPrice("BTC/USDT", 104)
	require.Len(t, closed, 1)
	assert.Equal(t, models.CloseReasonTrailingStop, closed[0].Reason)
	_, ok := state.Position("BTC/USDT")
	assert.False(t, ok)
}

func TestMarkPrice_HardStopClosesAll(t *testing.T) {
	l, state, sink := newTestLedger(t, testLedgerConfig())

	_, err := l.OpenFromFill(buyFill("BTC/USDT", 100, 2))
	require.NoError(t, err)

	closed := l.MarkPrice("BTC/USDT", 97.5)
	require.Len(t, closed, 1)
	trade := closed[0]
	assert.Equal(t, models.CloseReasonStopLoss, trade.Reason)
	assert.InDelta(t, 2.0, trade.Size, 1e-9)
	assert.InDelta(t, -5.0, trade.RealizedPnL, 1e-9)
	assert.True(t, trade.Simulated)

	_, ok := state.Position("BTC/USDT")
	assert.False(t, ok)
	require.Len(t, sink.trades, 1)
}

func TestMarkPrice_LadderFiresEachRungOnce(t *testing.T) {
	l, state, _ := newTestLedger(t, testLedgerConfig())

	_, err := l.OpenFromFill(buyFill("BTC/USDT", 100, 3))
	require.NoError(t, err)

	closed := l.MarkPrice("BTC/USDT", 103.5)
	require.Len(t, closed, 1)
	assert.Equal(t, models.CloseReasonTakeProfit, closed[0].Reason)
	assert.InDelta(t, 1.0, closed[0].Size, 1e-9)

	// Same price again: the rung already fired.
	assert.Empty(t, l.MarkPrice("BTC/USDT", 103.5))

	// A spike through the remaining rungs fires both and empties the
	// position.
	closed = l.MarkPrice("BTC/USDT", 105.5)
	require.Len(t, closed, 2)
	_, ok := state.Position("BTC/USDT")
	assert.False(t, ok)
}

func TestMarkPrice_DustRemainderClosesInFull(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.LadderCloseFraction = 0.33333
	cfg.NegligibleSize = 1e-4
	l, state, sink := newTestLedger(t, cfg)

	_, err := l.OpenFromFill(buyFill("BTC/USDT", 100, 1))
	require.NoError(t, err)

	closed := l.MarkPrice("BTC/USDT", 110)
	require.Len(t, closed, 4, "three rungs plus the dust remainder")
	assert.Equal(t, models.CloseReasonTakeProfit, closed[3].Reason)

	_, ok := state.Position("BTC/USDT")
	assert.False(t, ok)

	var total float64
	for _, tr := range sink.trades {
		total += tr.Size
	}
	assert.InDelta(t, 1.0, total, 1e-9, "closed sizes must sum to the opened size")
}

func TestMarkPrice_IgnoresUnknownSymbolAndBadPrice(t *testing.T) {
	l, _, _ := newTestLedger(t, testLedgerConfig())
	assert.Empty(t, l.MarkPrice("ETH/USDT", 100))

	_, err := l.OpenFromFill(buyFill("BTC/USDT", 100, 1))
	require.NoError(t, err)
	assert.Empty(t, l.MarkPrice("BTC/USDT", 0))
}

func TestCloseAll(t *testing.T) {
	l, state, _ := newTestLedger(t, testLedgerConfig())

	_, err := l.CloseAll("BTC/USDT", 100, models.CloseReasonForced)
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))

	_, err = l.OpenFromFill(buyFill("BTC/USDT", 100, 1))
	require.NoError(t, err)

	trade, err := l.CloseAll("BTC/USDT", 101, models.CloseReasonForced)
	require.NoError(t, err)
	assert.Equal(t, models.CloseReasonForced, trade.Reason)
	assert.InDelta(t, 1.0, trade.RealizedPnL, 1e-9)

	_, ok := state.Position("BTC/USDT")
	assert.False(t, ok)
	assert.Len(t, state.Snapshot().OpenPositions, 0)
}
