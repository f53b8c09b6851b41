package models

import (
	"time"
)

// TakeProfitLevel is one rung of the staged partial take-profit ladder.
type TakeProfitLevel struct {
	Price         float64
	CloseFraction float64 // fraction of the original size to close
	Fired         bool
}

// Position is an open exposure owned by the position ledger. At most one
// open position exists per symbol; no other component mutates it.
type Position struct {
	Symbol        string
	Side          Side
	EntryPrice    float64
	OriginalSize  float64 // base quantity at open
	RemainingSize float64 // monotone non-increasing except explicit pyramiding
	StopLoss      float64
	TrailingStop  float64 // 0 until armed; only ever tightens
	TakeProfits   []TakeProfitLevel
	CurrentPrice  float64
	UnrealizedPnL float64
	PnLPercent    float64
	RealizedPnL   float64 // accumulated over partial closes
	OpenedAt      time.Time
}

// Notional returns the current market value of the remaining size.
func (p *Position) Notional() float64 {
	return p.CurrentPrice * p.RemainingSize
}

// InitialRisk returns the per-unit distance between entry and initial stop.
func (p *Position) InitialRisk() float64 {
	if p.Side == SideBuy {
		return p.EntryPrice - p.StopLoss
	}
	return p.StopLoss - p.EntryPrice
}

// MarkToMarket updates price-derived fields for the latest price.
func (p *Position) MarkToMarket(price float64) {
	p.CurrentPrice = price
	direction := 1.0
	if p.Side == SideSell {
		direction = -1.0
	}
	p.UnrealizedPnL = (price - p.EntryPrice) * direction * p.RemainingSize
	if p.EntryPrice > 0 {
		p.PnLPercent = (price - p.EntryPrice) / p.EntryPrice * 100 * direction
	}
}

// ClosedTrade is the immutable record of a closed (or partially closed)
// position, appended to trade history.
type ClosedTrade struct {
	ID          string
	Symbol      string
	Side        Side
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	RealizedPnL float64
	PnLPercent  float64
	Reason      CloseReason
	OpenedAt    time.Time
	ClosedAt    time.Time
	Duration    time.Duration
	Simulated   bool
}

// CloseReason describes why a position (or part of it) was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "stop loss"
	CloseReasonTrailingStop CloseReason = "trailing stop"
	CloseReasonTakeProfit   CloseReason = "take profit"
	CloseReasonForced       CloseReason = "forced"
	CloseReasonManual       CloseReason = "manual"
)
