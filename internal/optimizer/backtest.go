package optimizer

import (
	"math"

	"autotrader/internal/models"
	"autotrader/internal/strategy"
)

// backtestWindow is the number of leading candles reserved as indicator
// warmup before the replay starts trading.
const backtestWindow = 50

// BacktestEval returns an EvalFunc that replays the given candle history
// through the strategy set under candidate weights. The replay is a
// deliberately simple long/flat/short walk: it enters on a weighted BUY or
// SELL consensus, exits on the opposite consensus, and marks equity on
// every bar. It exists to rank weight sets against each other, not to
// predict live performance.
func BacktestEval(evaluators []strategy.Evaluator, history map[string][]models.Candle) EvalFunc {
	return func(weights map[string]float64) Score {
		var allReturns []float64
		var wins, losses int
		for symbol, candles := range history {
			rets, w, l := replaySymbol(evaluators, weights, symbol, candles)
			allReturns = append(allReturns, rets...)
			wins += w
			losses += l
		}
		return scoreReturns(allReturns, wins, losses)
	}
}

func replaySymbol(evaluators []strategy.Evaluator, weights map[string]float64, symbol string, candles []models.Candle) (returns []float64, wins, losses int) {
	if len(candles) <= backtestWindow {
		return nil, 0, 0
	}
	var (
		position   float64 // +1 long, -1 short, 0 flat
		entryPrice float64
	)
	for i := backtestWindow; i < len(candles); i++ {
		series := strategy.Series{Symbol: symbol, Candles: candles[:i+1]}
		score := consensus(evaluators, weights, series)
		price := candles[i].Close

		var want float64
		switch {
		case score > strategy.BuyThreshold:
			want = 1
		case score < strategy.SellThreshold:
			want = -1
		default:
			want = position // hold keeps the book as-is
		}

		if want != position {
			if position != 0 && entryPrice > 0 {
				r := (price - entryPrice) / entryPrice * position
				returns = append(returns, r)
				if r > 0 {
					wins++
				} else {
					losses++
				}
			}
			position = want
			entryPrice = price
		}
	}
	return returns, wins, losses
}

// consensus is the same weighted vote the live ensemble computes, without
// oracle refinement or gating.
func consensus(evaluators []strategy.Evaluator, weights map[string]float64, s strategy.Series) float64 {
	var weighted, totalWeight float64
	for _, ev := range evaluators {
		w, ok := weights[ev.Name()]
		if !ok {
			w = 1.0
		}
		vote := ev.Evaluate(s)
		weighted += vote.Confidence * w * vote.Action.Sign()
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func scoreReturns(returns []float64, wins, losses int) Score {
	var score Score
	trades := wins + losses
	if trades > 0 {
		score.WinRate = float64(wins) / float64(trades)
	}
	if len(returns) > 1 {
		m := meanOf(returns)
		sd := stdevOf(returns, m)
		if sd > 0 {
			score.Sharpe = m / sd * math.Sqrt(float64(len(returns)))
		}
	}
	score.MaxDrawdown = drawdownOf(returns)
	return score
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdevOf(xs []float64, m float64) float64 {
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// drawdownOf walks the compounded equity of the return sequence.
func drawdownOf(returns []float64) float64 {
	equity, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
