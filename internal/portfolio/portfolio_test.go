package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/models"
)

func TestSnapshotDrawdown(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{"at peak", Snapshot{Equity: 100000, PeakEquity: 100000}, 0},
		{"below peak", Snapshot{Equity: 92000, PeakEquity: 100000}, 0.08},
		{"above peak clamps to zero", Snapshot{Equity: 105000, PeakEquity: 100000}, 0},
		{"zero peak", Snapshot{Equity: 1000, PeakEquity: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.snap.Drawdown(), 1e-12)
		})
	}
}

func TestSnapshotTotalExposure(t *testing.T) {
	snap := Snapshot{
		Equity: 100000,
		OpenPositions: []models.Position{
			{Symbol: "BTC/USDT", CurrentPrice: 50000, RemainingSize: 0.5},
			{Symbol: "ETH/USDT", CurrentPrice: 2500, RemainingSize: 4},
		},
	}
	assert.InDelta(t, 0.35, snap.TotalExposure(), 1e-12)

	assert.Zero(t, Snapshot{Equity: 0}.TotalExposure())
	assert.Zero(t, Snapshot{Equity: 100000}.TotalExposure())
}

func TestSnapshotHasPosition(t *testing.T) {
	snap := Snapshot{OpenPositions: []models.Position{{Symbol: "BTC/USDT"}}}
	assert.True(t, snap.HasPosition("BTC/USDT"))
	assert.False(t, snap.HasPosition("ETH/USDT"))
}

func TestStateEquityAndPeak(t *testing.T) {
	s := NewState(100000)

	snap := s.Snapshot()
	assert.Equal(t, 100000.0, snap.Equity)
	assert.Equal(t, 100000.0, snap.PeakEquity)
	assert.Equal(t, 100000.0, snap.Cash)

	s.SetEquity(104000)
	snap = s.Snapshot()
	assert.Equal(t, 104000.0, snap.Equity)
	assert.Equal(t, 104000.0, snap.PeakEquity)

	// Peak ratchets: equity falls, peak holds.
	s.SetEquity(98000)
	snap = s.Snapshot()
	assert.Equal(t, 98000.0, snap.Equity)
	assert.Equal(t, 104000.0, snap.PeakEquity)
	assert.InDelta(t, 6000.0/104000.0, snap.Drawdown(), 1e-12)
}

func TestStateApplyFill(t *testing.T) {
	s := NewState(100000)

	s.ApplyFill(models.SideBuy, 0.5, 50000)
	assert.Equal(t, 75000.0, s.Snapshot().Cash)

	s.ApplyFill(models.SideSell, 0.5, 52000)
	assert.Equal(t, 101000.0, s.Snapshot().Cash)
}

func TestStateRecordRealizedPnL(t *testing.T) {
	s := NewState(100000)

	s.RecordRealizedPnL(1500)
	snap := s.Snapshot()
	assert.Equal(t, 101500.0, snap.Equity)
	assert.Equal(t, 101500.0, snap.PeakEquity)
	assert.Equal(t, 1500.0, snap.DailyPnL)

	s.RecordRealizedPnL(-2500)
	snap = s.Snapshot()
	assert.Equal(t, 99000.0, snap.Equity)
	assert.Equal(t, 101500.0, snap.PeakEquity)
	assert.Equal(t, -1000.0, snap.DailyPnL)

	s.ResetDaily()
	snap = s.Snapshot()
	assert.Zero(t, snap.DailyPnL)
	assert.Equal(t, 99000.0, snap.Equity)
}

func TestStatePositions(t *testing.T) {
	s := NewState(100000)

	_, ok := s.Position("BTC/USDT")
	assert.False(t, ok)
	assert.Zero(t, s.OpenPositionCount())

	s.SetPosition(models.Position{Symbol: "BTC/USDT", Side: models.SideBuy, EntryPrice: 50000, RemainingSize: 0.5})
	s.SetPosition(models.Position{Symbol: "ETH/USDT", Side: models.SideSell, EntryPrice: 2500, RemainingSize: 4})
	assert.Equal(t, 2, s.OpenPositionCount())

	p, ok := s.Position("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, p.EntryPrice)

	// Position returns a copy; mutating it must not leak back.
	p.EntryPrice = 1
	p2, _ := s.Position("BTC/USDT")
	assert.Equal(t, 50000.0, p2.EntryPrice)

	// Replace in place.
	s.SetPosition(models.Position{Symbol: "BTC/USDT", Side: models.SideBuy, EntryPrice: 50000, RemainingSize: 0.25})
	assert.Equal(t, 2, s.OpenPositionCount())
	p3, _ := s.Position("BTC/USDT")
	assert.Equal(t, 0.25, p3.RemainingSize)

	s.RemovePosition("BTC/USDT")
	assert.Equal(t, 1, s.OpenPositionCount())
	_, ok = s.Position("BTC/USDT")
	assert.False(t, ok)
}

func TestStateInFlightGuard(t *testing.T) {
	s := NewState(100000)

	require.True(t, s.TryAcquireSymbol("BTC/USDT"))
	assert.False(t, s.TryAcquireSymbol("BTC/USDT"))
	assert.True(t, s.TryAcquireSymbol("ETH/USDT"))

	s.ReleaseSymbol("BTC/USDT")
	assert.True(t, s.TryAcquireSymbol("BTC/USDT"))
}

func TestStateReturnsCopy(t *testing.T) {
	s := NewState(100000)
	s.RecordReturn(0.01)
	s.RecordReturn(-0.005)

	got := s.Returns()
	require.Equal(t, []float64{0.01, -0.005}, got)

	got[0] = 99
	assert.Equal(t, []float64{0.01, -0.005}, s.Returns())
}

func TestStateTradeHistory(t *testing.T) {
	s := NewState(100000)
	assert.Empty(t, s.TradeHistory())

	s.AppendTrade(models.ClosedTrade{Symbol: "BTC/USDT", RealizedPnL: 120})
	s.AppendTrade(models.ClosedTrade{Symbol: "ETH/USDT", RealizedPnL: -40})

	hist := s.TradeHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "BTC/USDT", hist[0].Symbol)
	assert.Equal(t, -40.0, hist[1].RealizedPnL)
}
