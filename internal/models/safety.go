package models

import (
	"time"
)

// BreakerState is the circuit breaker state. CLOSED permits trading; OPEN
// blocks all new order intents until the cool-down expires and a health
// re-check passes.
type BreakerState string

const (
	BreakerClosed BreakerState = "CLOSED"
	BreakerOpen   BreakerState = "OPEN"
)

// TripSeverity grades a breaker trip; it scales cool-down duration and
// decides whether open positions are force-closed.
type TripSeverity string

const (
	SeverityWarning  TripSeverity = "warning"
	SeverityCritical TripSeverity = "critical"
	SeverityFatal    TripSeverity = "fatal"
)

// CircuitBreakerState is the externally visible breaker snapshot, owned
// exclusively by the safety monitor.
type CircuitBreakerState struct {
	State          BreakerState
	TripReason     string
	TripSeverity   TripSeverity
	TrippedAt      time.Time
	CooldownExpiry time.Time
}

// AlertSeverity grades an alert for the alert sink.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is a structured message produced on threshold breaches and
// circuit breaker trips.
type Alert struct {
	Severity  AlertSeverity
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
}

// AdvisoryAction is a non-tripping recommendation emitted on secondary
// warning conditions, consumed by risk sizing and order routing.
type AdvisoryAction string

const (
	AdvisoryReduceSize        AdvisoryAction = "reduce_size"
	AdvisoryPreferLimitOrders AdvisoryAction = "prefer_limit_orders"
)
