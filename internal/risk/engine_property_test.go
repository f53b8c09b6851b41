package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

// Whatever the inputs, an approved size never leaves the configured
// bounds and a rejection always carries at least one reason.
func TestEvaluateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	engine := NewEngine(testRiskConfig())

	properties.Property("size fraction stays within [0, max]", prop.ForAll(
		func(confidence, riskReward, equity, peak, vol float64) bool {
			decision := engine.Evaluate(Input{
				Signal: models.Signal{
					Symbol:     "BTC/USDT",
					Action:     models.ActionBuy,
					Confidence: confidence,
					RiskReward: riskReward,
					Source:     "ensemble",
				},
				Portfolio:         portfolio.Snapshot{Equity: equity, PeakEquity: peak, Cash: equity},
				CurrentVolatility: vol,
			})
			return decision.SizeFraction >= 0 && decision.SizeFraction <= engine.cfg.MaxPositionFraction
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 10),
		gen.Float64Range(1, 1e7),
		gen.Float64Range(1, 1e7),
		gen.Float64Range(0, 2),
	))

	properties.Property("rejections always carry a reason", prop.ForAll(
		func(confidence, riskReward float64) bool {
			decision := engine.Evaluate(Input{
				Signal: models.Signal{
					Symbol:     "BTC/USDT",
					Action:     models.ActionBuy,
					Confidence: confidence,
					RiskReward: riskReward,
					Source:     "ensemble",
				},
				Portfolio: portfolio.Snapshot{Equity: 100000, PeakEquity: 100000, Cash: 100000},
			})
			if decision.Approved {
				return decision.SizeFraction > 0
			}
			return len(decision.Reasons) > 0
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 10),
	))

	properties.Property("kelly size never exceeds the scaled cap", prop.ForAll(
		func(p, b float64) bool {
			f := engine.kellySize(p, b)
			return f >= 0 && f <= engine.cfg.MaxPositionFraction*engine.cfg.KellyFraction
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
