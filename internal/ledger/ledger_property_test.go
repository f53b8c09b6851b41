package ledger

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

// The trailing stop only ever moves in the position's favor, whatever
// price path the market takes.
func TestTrailingStopProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	newLedger := func() *Ledger {
		return New(testLedgerConfig(), portfolio.NewState(100000), nil, zerolog.Nop(), true)
	}

	properties.Property("long trailing stop never loosens", prop.ForAll(
		func(prices []float64) bool {
			l := newLedger()
			pos := models.Position{
				Symbol:        "BTC/USDT",
				Side:          models.SideBuy,
				EntryPrice:    100,
				OriginalSize:  1,
				RemainingSize: 1,
			}
			var last float64
			for _, price := range prices {
				pos.MarkToMarket(price)
				l.updateTrailingStop(&pos)
				if pos.TrailingStop < last {
					return false
				}
				last = pos.TrailingStop
			}
			return true
		},
		gen.SliceOfN(50, gen.Float64Range(50, 200)),
	))

	properties.Property("short trailing stop never loosens", prop.ForAll(
		func(prices []float64) bool {
			l := newLedger()
			pos := models.Position{
				Symbol:        "BTC/USDT",
				Side:          models.SideSell,
				EntryPrice:    100,
				OriginalSize:  1,
				RemainingSize: 1,
			}
			last := 0.0
			for _, price := range prices {
				pos.MarkToMarket(price)
				l.updateTrailingStop(&pos)
				if last > 0 && pos.TrailingStop > last {
					return false
				}
				last = pos.TrailingStop
			}
			return true
		},
		gen.SliceOfN(50, gen.Float64Range(50, 200)),
	))

	properties.Property("closed sizes never exceed the opened size", prop.ForAll(
		func(prices []float64, amount float64) bool {
			cfg := testLedgerConfig()
			state := portfolio.NewState(1e9)
			sink := &recordingSink{}
			l := New(cfg, state, sink, zerolog.Nop(), true)

			if _, err := l.OpenFromFill(buyFill("BTC/USDT", 100, amount)); err != nil {
				return false
			}
			for _, price := range prices {
				l.MarkPrice("BTC/USDT", price)
				if _, ok := state.Position("BTC/USDT"); !ok {
					break
				}
			}
			var total float64
			for _, tr := range sink.trades {
				total += tr.Size
			}
			return total <= amount+1e-9
		},
		gen.SliceOfN(30, gen.Float64Range(90, 110)),
		gen.Float64Range(0.1, 10),
	))

	properties.TestingRun(t)
}
