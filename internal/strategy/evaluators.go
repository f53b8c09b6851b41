package strategy

import (
	"math"

	"autotrader/internal/models"
)

// Momentum signals on fast/slow moving-average crossovers, with
// confidence scaled by the gap between the averages in basis points.
type Momentum struct {
	FastPeriod int
	SlowPeriod int
}

// NewMomentum returns a momentum evaluator with conventional periods.
func NewMomentum() *Momentum {
	return &Momentum{FastPeriod: 10, SlowPeriod: 30}
}

// Name implements Evaluator.
func (m *Momentum) Name() string { return "momentum" }

// Evaluate implements Evaluator.
func (m *Momentum) Evaluate(s Series) Vote {
	closes := s.Closes()
	if len(closes) < m.SlowPeriod+1 {
		return Vote{Action: models.ActionHold}
	}

	fastNow := sma(closes, m.FastPeriod)
	slowNow := sma(closes, m.SlowPeriod)
	prev := closes[:len(closes)-1]
	fastPrev := sma(prev, m.FastPeriod)
	slowPrev := sma(prev, m.SlowPeriod)
	closeNow := closes[len(closes)-1]
	if closeNow == 0 {
		return Vote{Action: models.ActionHold}
	}

	strengthBps := math.Abs(fastNow-slowNow) / closeNow * 1e4
	confidence := clamp01(strengthBps / 50)

	switch {
	case fastPrev < slowPrev && fastNow > slowNow:
		return Vote{Action: models.ActionBuy, Confidence: confidence}
	case fastPrev > slowPrev && fastNow < slowNow:
		return Vote{Action: models.ActionSell, Confidence: confidence}
	}
	return Vote{Action: models.ActionHold}
}

// MeanReversion signals when price stretches beyond a z-score band around
// its moving average, expecting a snap back.
type MeanReversion struct {
	Period int
	EntryZ float64
}

// NewMeanReversion returns a mean-reversion evaluator with a 20-bar window.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{Period: 20, EntryZ: 2.0}
}

// Name implements Evaluator.
func (m *MeanReversion) Name() string { return "mean_reversion" }

// Evaluate implements Evaluator.
func (m *MeanReversion) Evaluate(s Series) Vote {
	closes := s.Closes()
	if len(closes) < m.Period {
		return Vote{Action: models.ActionHold}
	}

	mean := sma(closes, m.Period)
	sd := stdev(closes, m.Period)
	if sd == 0 {
		return Vote{Action: models.ActionHold}
	}

	z := (closes[len(closes)-1] - mean) / sd
	confidence := clamp01((math.Abs(z) - m.EntryZ) / m.EntryZ)

	switch {
	case z > m.EntryZ:
		return Vote{Action: models.ActionSell, Confidence: confidence}
	case z < -m.EntryZ:
		return Vote{Action: models.ActionBuy, Confidence: confidence}
	}
	return Vote{Action: models.ActionHold}
}

// TrendFollow signals in the direction of a sustained slope of the
// moving average over its lookback.
type TrendFollow struct {
	Period   int
	MinSlope float64 // minimum per-bar relative slope to count as a trend
}

// NewTrendFollow returns a trend-following evaluator with a 50-bar window.
func NewTrendFollow() *TrendFollow {
	return &TrendFollow{Period: 50, MinSlope: 0.0005}
}

// Name implements Evaluator.
func (t *TrendFollow) Name() string { return "trend_follow" }

// Evaluate implements Evaluator.
func (t *TrendFollow) Evaluate(s Series) Vote {
	closes := s.Closes()
	if len(closes) < t.Period+10 {
		return Vote{Action: models.ActionHold}
	}

	now := sma(closes, t.Period)
	then := sma(closes[:len(closes)-10], t.Period)
	if then == 0 {
		return Vote{Action: models.ActionHold}
	}

	slope := (now - then) / then / 10
	confidence := clamp01(math.Abs(slope) / (t.MinSlope * 4))

	switch {
	case slope > t.MinSlope:
		return Vote{Action: models.ActionBuy, Confidence: confidence}
	case slope < -t.MinSlope:
		return Vote{Action: models.ActionSell, Confidence: confidence}
	}
	return Vote{Action: models.ActionHold}
}

// Arbitrage signals on the premium between last traded price and the
// order book midpoint, fading the dislocation.
type Arbitrage struct {
	MinPremiumBps float64
}

// NewArbitrage returns an arbitrage evaluator with a 10 bps entry premium.
func NewArbitrage() *Arbitrage {
	return &Arbitrage{MinPremiumBps: 10}
}

// Name implements Evaluator.
func (a *Arbitrage) Name() string { return "arbitrage" }

// Evaluate implements Evaluator.
func (a *Arbitrage) Evaluate(s Series) Vote {
	last := s.LastClose()
	if s.Book == nil || last == 0 {
		return Vote{Action: models.ActionHold}
	}
	mid := s.Book.MidPrice()
	if mid == 0 {
		return Vote{Action: models.ActionHold}
	}

	premiumBps := (last - mid) / mid * 1e4
	confidence := clamp01(math.Abs(premiumBps) / (a.MinPremiumBps * 4))

	switch {
	case premiumBps > a.MinPremiumBps:
		return Vote{Action: models.ActionSell, Confidence: confidence}
	case premiumBps < -a.MinPremiumBps:
		return Vote{Action: models.ActionBuy, Confidence: confidence}
	}
	return Vote{Action: models.ActionHold}
}

// MarketMaking leans against order book imbalance when the spread is wide
// enough to pay for the round trip.
type MarketMaking struct {
	MinSpread    float64 // minimum relative spread worth quoting into
	MinImbalance float64 // bid/ask depth imbalance threshold
}

// NewMarketMaking returns a market-making evaluator.
func NewMarketMaking() *MarketMaking {
	return &MarketMaking{MinSpread: 0.001, MinImbalance: 0.25}
}

// Name implements Evaluator.
func (m *MarketMaking) Name() string { return "market_making" }

// Evaluate implements Evaluator.
func (m *MarketMaking) Evaluate(s Series) Vote {
	if s.Book == nil || s.Book.MidPrice() == 0 {
		return Vote{Action: models.ActionHold}
	}
	if s.Book.Spread() < m.MinSpread {
		return Vote{Action: models.ActionHold}
	}

	var bidDepth, askDepth float64
	for i, lvl := range s.Book.Bids {
		if i >= 5 {
			break
		}
		bidDepth += lvl.Amount
	}
	for i, lvl := range s.Book.Asks {
		if i >= 5 {
			break
		}
		askDepth += lvl.Amount
	}
	total := bidDepth + askDepth
	if total == 0 {
		return Vote{Action: models.ActionHold}
	}

	imbalance := (bidDepth - askDepth) / total
	confidence := clamp01(math.Abs(imbalance))

	switch {
	case imbalance > m.MinImbalance:
		return Vote{Action: models.ActionBuy, Confidence: confidence}
	case imbalance < -m.MinImbalance:
		return Vote{Action: models.ActionSell, Confidence: confidence}
	}
	return Vote{Action: models.ActionHold}
}

// DefaultEvaluators returns the closed set of strategy evaluators.
func DefaultEvaluators() []Evaluator {
	return []Evaluator{
		NewMomentum(),
		NewMeanReversion(),
		NewTrendFollow(),
		NewArbitrage(),
		NewMarketMaking(),
	}
}
