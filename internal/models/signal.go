package models

import (
	"time"
)

// Signal is the directional recommendation produced once per scan cycle.
// It is ephemeral: produced, risk-checked, and discarded.
type Signal struct {
	Symbol     string
	Action     Action
	Confidence float64 // [0, 1]
	RiskReward float64 // suggested reward-to-risk ratio
	StopLoss   float64 // optional price hint, 0 when absent
	TakeProfit float64 // optional price hint, 0 when absent
	SizeHint   float64 // suggested size fraction of equity, 0 when absent
	EdgeBps    float64 // expected edge in basis points, 0 when unknown
	Source     string  // producing strategy or "ensemble"
	Reasoning  string
	Timestamp  time.Time
}

// IsActionable reports whether the signal calls for a trade.
func (s *Signal) IsActionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}

// OrderSide maps the signal action to an order side.
// Only valid for actionable signals.
func (s *Signal) OrderSide() Side {
	if s.Action == ActionSell {
		return SideSell
	}
	return SideBuy
}

// RiskMetrics is the computed risk snapshot attached to a decision.
type RiskMetrics struct {
	VaR              float64 // value at risk for the proposed notional
	CorrelationScore float64 // highest correlation proxy against open positions
	Volatility       float64 // current annualized volatility estimate
	Drawdown         float64 // current portfolio drawdown fraction
}

// RiskDecision is the outcome of risk-checking a signal. Ephemeral.
type RiskDecision struct {
	Approved     bool
	SizeFraction float64  // approved position size as a fraction of equity
	Notional     float64  // SizeFraction * equity at decision time
	Reasons      []string // ordered rejection/adjustment reasons
	Metrics      RiskMetrics
	Timestamp    time.Time
}

// Reject marks the decision rejected, recording the reason.
// Reasons accumulate in check order.
func (d *RiskDecision) Reject(reason string) {
	d.Approved = false
	d.Reasons = append(d.Reasons, reason)
}
