package models

import (
	"time"
)

// IntentStatus tracks the lifecycle of an order intent.
type IntentStatus string

const (
	IntentCreated         IntentStatus = "CREATED"
	IntentPartiallyFilled IntentStatus = "PARTIALLY_FILLED"
	IntentFilled          IntentStatus = "FILLED"
	IntentRejected        IntentStatus = "REJECTED"
	IntentCancelled       IntentStatus = "CANCELLED"
)

// OrderIntent is an approved instruction to acquire or dispose of exposure.
// The router may split it into slices; fills aggregate back onto the intent.
type OrderIntent struct {
	ID         string
	Symbol     string
	Side       Side
	Notional   float64 // target value in quote currency
	PriceBound float64 // worst acceptable slice limit, 0 for unbounded
	StopLoss   float64 // protective stop level, 0 when absent
	TakeProfit float64 // protective target level, 0 when absent
	Status     IntentStatus
	CreatedAt  time.Time
}

// SliceStatus tracks the lifecycle of a child slice.
type SliceStatus string

const (
	SlicePending   SliceStatus = "PENDING"
	SliceSubmitted SliceStatus = "SUBMITTED"
	SliceFilled    SliceStatus = "FILLED"
	SliceFailed    SliceStatus = "FAILED"
	SliceCancelled SliceStatus = "CANCELLED"
)

// OrderSlice is one child order of a split parent intent. Each slice owns
// its own fill state, retry count, and idempotent client ID.
type OrderSlice struct {
	ClientID     string // idempotency key, stable across retries
	IntentID     string
	Symbol       string
	Side         Side
	Amount       float64 // base quantity
	LimitPrice   float64
	Status       SliceStatus
	FilledAmount float64
	FillPrice    float64
	Retries      int
	VenueOrderID string
	SubmittedAt  time.Time
}

// ExecutionResult aggregates slice outcomes for one intent.
type ExecutionResult struct {
	Intent       *OrderIntent
	Venue        string
	Slices       []OrderSlice
	FilledAmount float64
	AvgFillPrice float64 // volume-weighted across filled slices
	Simulated    bool
	CompletedAt  time.Time
}

// FillRatio returns the filled fraction of the requested amount.
func (r *ExecutionResult) FillRatio() float64 {
	var requested float64
	for _, s := range r.Slices {
		requested += s.Amount
	}
	if requested == 0 {
		return 0
	}
	return r.FilledAmount / requested
}
