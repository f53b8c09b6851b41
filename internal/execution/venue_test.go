package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

func syntheticBook(mid, spread, levelQty float64) *models.OrderBook {
	book := &models.OrderBook{Symbol: "BTC/USDT", Timestamp: time.Now()}
	half := spread / 2
	for i := 0; i < 5; i++ {
		offset := half + float64(i)*0.01
		book.Bids = append(book.Bids, models.BookLevel{Price: mid - offset, Amount: levelQty})
		book.Asks = append(book.Asks, models.BookLevel{Price: mid + offset, Amount: levelQty})
	}
	return book
}

func TestScore(t *testing.T) {
	deep := syntheticBook(100, 0.02, 10)
	thin := syntheticBook(100, 0.02, 1)
	assert.Greater(t, Score(deep, 0.001), Score(thin, 0.001), "depth scores up")

	tight := syntheticBook(100, 0.02, 10)
	wide := syntheticBook(100, 0.50, 10)
	assert.Greater(t, Score(tight, 0.001), Score(wide, 0.001), "spread scores down")

	assert.Greater(t, Score(deep, 0.0005), Score(deep, 0.002), "taker fee scores down")
	assert.Zero(t, Score(nil, 0.001))
}

func TestSelectVenue(t *testing.T) {
	cheap := NewSimVenue(SimVenueConfig{Name: "cheap", InitialBalance: 1e6, TakerFee: 0.0005})
	expensive := NewSimVenue(SimVenueConfig{Name: "expensive", InitialBalance: 1e6, TakerFee: 0.005})
	cheap.SetPrice("BTC/USDT", 100)
	expensive.SetPrice("BTC/USDT", 100)

	venue, book, err := SelectVenue(context.Background(), []Venue{expensive, cheap}, "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, "cheap", venue.Name(), "identical books select the lower fee")
}

func TestSelectVenue_SkipsFailingVenues(t *testing.T) {
	dead := NewSimVenue(SimVenueConfig{Name: "dead", InitialBalance: 1e6})
	// No mark price set: Book fails for every symbol.
	live := NewSimVenue(SimVenueConfig{Name: "live", InitialBalance: 1e6})
	live.SetPrice("BTC/USDT", 100)

	venue, _, err := SelectVenue(context.Background(), []Venue{dead, live}, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "live", venue.Name())

	_, _, err = SelectVenue(context.Background(), []Venue{dead}, "BTC/USDT")
	assert.Error(t, err)

	_, _, err = SelectVenue(context.Background(), nil, "BTC/USDT")
	assert.True(t, errors.Is(err, errors.ErrInsufficientLiquidity))
}

func TestSimVenue_SubmitFillsWithSlippage(t *testing.T) {
	sim := NewSimVenue(SimVenueConfig{Name: "sim", InitialBalance: 1e6, TakerFee: 0.001, Slippage: 0.0005, FillRatio: 1.0})
	sim.SetPrice("BTC/USDT", 100)

	state, err := sim.SubmitOrder(context.Background(), OrderRequest{
		ClientID: "cid-1",
		Symbol:   "BTC/USDT",
		Side:     models.SideBuy,
		Type:     models.OrderTypeMarket,
		Amount:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SliceFilled, state.Status)
	assert.InDelta(t, 2.0, state.FilledAmount, 1e-9)
	assert.InDelta(t, 100.05, state.AvgFillPrice, 1e-9, "buys pay mid plus slippage")

	bal, err := sim.Balance(context.Background())
	require.NoError(t, err)
	notional := 2 * 100.05
	assert.InDelta(t, 1e6-notional-notional*0.001, bal.Available, 1e-6)
}

func TestSimVenue_IdempotentClientID(t *testing.T) {
	sim := NewSimVenue(DefaultSimVenueConfig())
	sim.SetPrice("BTC/USDT", 100)

	req := OrderRequest{
		ClientID: "cid-dup",
		Symbol:   "BTC/USDT",
		Side:     models.SideBuy,
		Type:     models.OrderTypeMarket,
		Amount:   1,
	}
	first, err := sim.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	balAfterFirst, _ := sim.Balance(context.Background())

	second, err := sim.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.VenueOrderID, second.VenueOrderID, "resubmission must not create a new order")

	balAfterSecond, _ := sim.Balance(context.Background())
	assert.Equal(t, balAfterFirst.Available, balAfterSecond.Available, "resubmission must not move balance")
}

func TestSimVenue_AwayLimitRests(t *testing.T) {
	sim := NewSimVenue(DefaultSimVenueConfig())
	sim.SetPrice("BTC/USDT", 100)

	// A sell limit above the mark is not marketable and must rest open.
	state, err := sim.SubmitOrder(context.Background(), OrderRequest{
		ClientID:   "cid-tp",
		Symbol:     "BTC/USDT",
		Side:       models.SideSell,
		Type:       models.OrderTypeLimit,
		Amount:     1,
		LimitPrice: 105,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SliceSubmitted, state.Status)
	assert.Zero(t, state.FilledAmount)

	require.NoError(t, sim.CancelOrder(context.Background(), state.VenueOrderID))
	after, err := sim.OrderStatus(context.Background(), state.VenueOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.SliceCancelled, after.Status)
}

func TestSimVenue_MarketableLimitCapsAtLimit(t *testing.T) {
	sim := NewSimVenue(SimVenueConfig{Name: "sim", InitialBalance: 1e6, Slippage: 0.01})
	sim.SetPrice("BTC/USDT", 100)

	state, err := sim.SubmitOrder(context.Background(), OrderRequest{
		ClientID:   "cid-cap",
		Symbol:     "BTC/USDT",
		Side:       models.SideBuy,
		Type:       models.OrderTypeLimit,
		Amount:     1,
		LimitPrice: 100.5, // below mid plus the 1% slippage
	})
	require.NoError(t, err)
	assert.Equal(t, models.SliceFilled, state.Status)
	assert.InDelta(t, 100.5, state.AvgFillPrice, 1e-9)
}

func TestSimVenue_RejectsWithoutBalanceOrPrice(t *testing.T) {
	sim := NewSimVenue(SimVenueConfig{Name: "sim", InitialBalance: 50})
	sim.SetPrice("BTC/USDT", 100)

	_, err := sim.SubmitOrder(context.Background(), OrderRequest{
		ClientID: "cid-poor", Symbol: "BTC/USDT", Side: models.SideBuy,
		Type: models.OrderTypeMarket, Amount: 1,
	})
	assert.Error(t, err, "buy beyond the balance is rejected")

	_, err = sim.SubmitOrder(context.Background(), OrderRequest{
		ClientID: "cid-nosym", Symbol: "DOGE/USDT", Side: models.SideBuy,
		Type: models.OrderTypeMarket, Amount: 1,
	})
	assert.Error(t, err, "unknown symbol has no mark price")
}

func TestSimVenue_SyntheticBook(t *testing.T) {
	sim := NewSimVenue(DefaultSimVenueConfig())
	sim.SetPrice("BTC/USDT", 100)

	book, err := sim.Book(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Len(t, book.Bids, 10)
	assert.Len(t, book.Asks, 10)
	assert.InDelta(t, 100, book.MidPrice(), 1e-9)
	assert.Greater(t, book.Asks[0].Price, book.Bids[0].Price)
	assert.Greater(t, book.Bids[0].Amount, book.Bids[9].Amount, "quantity decays with depth")
}
