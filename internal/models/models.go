// Package models provides domain models for the trading control loop.
package models

import (
	"time"
)

// Action represents the directional recommendation of a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Sign returns the numeric direction of the action: +1 for BUY, -1 for SELL, 0 for HOLD.
func (a Action) Sign() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	default:
		return 0
	}
}

// Side represents the side of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for buys and -1 for sells, used to orient price moves.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP"
)

// TimeInForce represents order validity.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFImmediate      TimeInForce = "IOC"
	TIFDay            TimeInForce = "DAY"
)

// Candle represents OHLCV data for a single timeframe bucket.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook holds the top-N levels of a venue's book for one symbol.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel // descending by price
	Asks      []BookLevel // ascending by price
	Timestamp time.Time
}

// MidPrice returns the bid/ask midpoint, or 0 when either side is empty.
func (b *OrderBook) MidPrice() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// Spread returns the relative top-of-book spread, or 0 when the book is empty.
func (b *OrderBook) Spread() float64 {
	mid := b.MidPrice()
	if mid == 0 {
		return 0
	}
	return (b.Asks[0].Price - b.Bids[0].Price) / mid
}

// Depth returns the total quantity across the top n levels of both sides.
func (b *OrderBook) Depth(n int) float64 {
	var total float64
	for i, lvl := range b.Bids {
		if i >= n {
			break
		}
		total += lvl.Amount
	}
	for i, lvl := range b.Asks {
		if i >= n {
			break
		}
		total += lvl.Amount
	}
	return total
}

// TapeEntry represents one entry of the recent trade tape.
type TapeEntry struct {
	Symbol    string
	Price     float64
	Amount    float64
	Side      Side
	Timestamp time.Time
}
