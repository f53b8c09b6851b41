package models

import (
	"time"
)

// PerformanceSnapshot is one point of the append-only equity time series
// owned by the performance evaluator.
type PerformanceSnapshot struct {
	Timestamp time.Time
	Equity    float64
	Return    float64 // period return relative to the previous snapshot
	Drawdown  float64 // fraction below the running peak
}

// PerformanceReport holds the risk-adjusted metrics recomputed over the
// full trade and equity history.
type PerformanceReport struct {
	TotalReturn  float64
	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64
	MaxDrawdown  float64
	WinRate      float64
	ProfitFactor float64
	Expectancy   float64
	VaR95        float64
	CVaR95       float64
	TradeCount   int
	GeneratedAt  time.Time
}
