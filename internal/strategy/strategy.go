// Package strategy provides the strategy evaluators and the signal
// ensemble that combines them into one directional recommendation.
package strategy

import (
	"math"

	"autotrader/internal/models"
)

// Series is the per-symbol market view handed to every evaluator.
type Series struct {
	Symbol  string
	Candles []models.Candle
	Book    *models.OrderBook
	Tape    []models.TapeEntry
}

// Closes returns the close price series.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// LastClose returns the most recent close price, or 0 when empty.
func (s Series) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Vote is the uniform result returned by every evaluator.
type Vote struct {
	Action     models.Action
	Confidence float64 // [0, 1]
}

// Evaluator is one independent strategy. The set of implementations is
// closed; each returns a uniform vote for static dispatch and easy unit
// testing.
type Evaluator interface {
	Name() string
	Evaluate(s Series) Vote
}

// QualityScorer rates current market quality in [0, 1]. Implementations
// must be deterministic for a given input; the production scorer derives
// the score from spread and depth, the test double returns a constant.
type QualityScorer interface {
	Score(s Series) float64
}

// BookQualityScorer scores market quality from top-of-book spread and
// depth. Tight spread and deep book approach 1; empty book scores 0.
type BookQualityScorer struct {
	// MaxSpread is the relative spread that maps to a zero spread score.
	MaxSpread float64
	// FullDepth is the top-5 depth that maps to a full depth score.
	FullDepth float64
}

// NewBookQualityScorer returns a scorer with usable defaults.
func NewBookQualityScorer() *BookQualityScorer {
	return &BookQualityScorer{MaxSpread: 0.01, FullDepth: 100}
}

// Score implements QualityScorer.
func (q *BookQualityScorer) Score(s Series) float64 {
	if s.Book == nil || s.Book.MidPrice() == 0 {
		return 0
	}
	spreadScore := 1 - s.Book.Spread()/q.MaxSpread
	if spreadScore < 0 {
		spreadScore = 0
	}
	depthScore := s.Book.Depth(5) / q.FullDepth
	if depthScore > 1 {
		depthScore = 1
	}
	return (spreadScore + depthScore) / 2
}

// StaticQualityScorer always returns a fixed score. Test double.
type StaticQualityScorer struct {
	Value float64
}

// Score implements QualityScorer.
func (q StaticQualityScorer) Score(Series) float64 { return q.Value }

// sma returns the simple moving average of the last period values, or 0
// when there is not enough data.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// stdev returns the sample standard deviation of the last period values.
func stdev(values []float64, period int) float64 {
	if period <= 1 || len(values) < period {
		return 0
	}
	window := values[len(values)-period:]
	mean := sma(values, period)
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(period-1))
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
