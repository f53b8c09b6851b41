// Package safety watches portfolio health and trips a circuit breaker
// when hard limits are breached. While the breaker is OPEN no new order
// intents are allowed; it re-closes only after the cooldown expires and a
// health re-check passes.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

// AlertSink receives structured alerts on trips and warnings.
type AlertSink interface {
	Send(alert models.Alert)
}

// Monitor owns the circuit breaker state. All transitions go through it.
type Monitor struct {
	mu              sync.Mutex
	cfg             config.SafetyConfig
	state           models.CircuitBreakerState
	venueFailures   int // consecutive
	advisories      map[models.AdvisoryAction]bool
	forceCloseAsked bool
	lastHeartbeat   time.Time
	sink            AlertSink
	logger          zerolog.Logger
}

// NewMonitor creates a safety monitor with the breaker CLOSED.
func NewMonitor(cfg config.SafetyConfig, sink AlertSink, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:        cfg,
		state:      models.CircuitBreakerState{State: models.BreakerClosed},
		advisories: make(map[models.AdvisoryAction]bool),
		sink:       sink,
		logger:     logging.WithComponent(logger, "safety"),
	}
}

// Allow reports whether new order submissions are permitted. It satisfies
// the router's gate interface.
func (m *Monitor) Allow() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.State == models.BreakerOpen {
		return errors.Wrapf(errors.ErrBreakerOpen, "tripped: %s", m.state.TripReason)
	}
	return nil
}

// State returns the current breaker snapshot.
func (m *Monitor) State() models.CircuitBreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Advisories returns the currently active advisory actions.
func (m *Monitor) Advisories() map[models.AdvisoryAction]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.AdvisoryAction]bool, len(m.advisories))
	for k, v := range m.advisories {
		out[k] = v
	}
	return out
}

// ConsumeForceClose reports whether a critical trip requested a forced
// close of open positions, and clears the request.
func (m *Monitor) ConsumeForceClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	asked := m.forceCloseAsked
	m.forceCloseAsked = false
	return asked
}

// RecordVenueFailure counts one venue/API failure. The breaker trips once
// the consecutive count exceeds the threshold.
func (m *Monitor) RecordVenueFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venueFailures++
	if m.cfg.FailureThreshold > 0 && m.venueFailures > m.cfg.FailureThreshold {
		m.trip(fmt.Sprintf("%d consecutive venue failures: %v", m.venueFailures, err),
			models.SeverityCritical)
	}
}

// RecordVenueSuccess resets the consecutive failure counter.
func (m *Monitor) RecordVenueSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venueFailures = 0
}

// Heartbeat records liveness of the main loops. Check treats a stalled
// heartbeat as a warning.
func (m *Monitor) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHeartbeat = time.Now()
}

// CheckInput carries the observations evaluated each safety cycle.
type CheckInput struct {
	Snapshot          portfolio.Snapshot
	CurrentVolatility float64
	RecentSlippage    float64 // average realized slippage fraction
}

// Check runs one safety cycle: attempt recovery when OPEN, otherwise
// evaluate trip and warning conditions.
func (m *Monitor) Check(in CheckInput) models.CircuitBreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.State == models.BreakerOpen {
		m.tryRecover(in)
		return m.state
	}

	dd := in.Snapshot.Drawdown()
	if dd > m.cfg.MaxDrawdown {
		m.trip(fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", dd*100, m.cfg.MaxDrawdown*100),
			models.SeverityCritical)
		return m.state
	}
	if in.Snapshot.Equity > 0 {
		dailyLoss := -in.Snapshot.DailyPnL / in.Snapshot.Equity
		if dailyLoss > m.cfg.DailyLossLimit {
			m.trip(fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%",
				dailyLoss*100, m.cfg.DailyLossLimit*100), models.SeverityCritical)
			return m.state
		}
	}

	m.updateAdvisories(in)
	return m.state
}

// TripManual opens the breaker on an externally detected condition, e.g. a
// persisted hard-constraint breach.
func (m *Monitor) TripManual(reason string, severity models.TripSeverity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trip(reason, severity)
}

// trip transitions CLOSED→OPEN. Callers hold the lock.
func (m *Monitor) trip(reason string, severity models.TripSeverity) {
	if m.state.State == models.BreakerOpen {
		return
	}
	cooldown := m.cfg.Cooldown
	if severity == models.SeverityCritical || severity == models.SeverityFatal {
		cooldown = m.cfg.CriticalCooldown
	}
	now := time.Now()
	m.state = models.CircuitBreakerState{
		State:          models.BreakerOpen,
		TripReason:     reason,
		TripSeverity:   severity,
		TrippedAt:      now,
		CooldownExpiry: now.Add(cooldown),
	}
	if m.cfg.ForceCloseOnCritical && severity != models.SeverityWarning {
		m.forceCloseAsked = true
	}

	logging.LogTrip(m.logger, reason, string(severity), cooldown)
	m.emit(models.Alert{
		Severity: models.AlertCritical,
		Message:  "circuit breaker tripped: " + reason,
		Details: map[string]interface{}{
			"severity":        string(severity),
			"cooldown_expiry": m.state.CooldownExpiry,
		},
		Timestamp: now,
	})
}

// tryRecover transitions OPEN→CLOSED once the cooldown has expired and the
// health re-check passes. Callers hold the lock.
func (m *Monitor) tryRecover(in CheckInput) {
	if time.Now().Before(m.state.CooldownExpiry) {
		return
	}
	if !m.healthy(in) {
		// Condition persists: restart the cooldown rather than flap.
		m.state.CooldownExpiry = time.Now().Add(m.cfg.Cooldown)
		m.logger.Warn().Str("reason", m.state.TripReason).Msg("health re-check failed, cooldown extended")
		return
	}
	m.state = models.CircuitBreakerState{State: models.BreakerClosed}
	m.venueFailures = 0
	m.logger.Info().Msg("circuit breaker closed")
	m.emit(models.Alert{
		Severity:  models.AlertInfo,
		Message:   "circuit breaker closed, trading resumed",
		Timestamp: time.Now(),
	})
}

// healthy re-checks the trip conditions against current observations.
func (m *Monitor) healthy(in CheckInput) bool {
	if in.Snapshot.Drawdown() > m.cfg.MaxDrawdown {
		return false
	}
	if in.Snapshot.Equity > 0 && -in.Snapshot.DailyPnL/in.Snapshot.Equity > m.cfg.DailyLossLimit {
		return false
	}
	return m.venueFailures <= m.cfg.FailureThreshold
}

// updateAdvisories sets or clears the non-tripping warning advisories.
// Callers hold the lock.
func (m *Monitor) updateAdvisories(in CheckInput) {
	setAdvisory := func(action models.AdvisoryAction, active bool, msg string) {
		was := m.advisories[action]
		m.advisories[action] = active
		if active && !was {
			m.emit(models.Alert{
				Severity:  models.AlertWarning,
				Message:   msg,
				Details:   map[string]interface{}{"advisory": string(action)},
				Timestamp: time.Now(),
			})
		}
	}
	setAdvisory(models.AdvisoryReduceSize,
		m.cfg.VolatilityWarning > 0 && in.CurrentVolatility > m.cfg.VolatilityWarning,
		fmt.Sprintf("volatility %.2f above warning threshold", in.CurrentVolatility))
	setAdvisory(models.AdvisoryPreferLimitOrders,
		m.cfg.SlippageWarning > 0 && in.RecentSlippage > m.cfg.SlippageWarning,
		fmt.Sprintf("slippage %.4f above warning threshold", in.RecentSlippage))

	if !m.lastHeartbeat.IsZero() && time.Since(m.lastHeartbeat) > 5*time.Minute {
		m.emit(models.Alert{
			Severity:  models.AlertWarning,
			Message:   "heartbeat stale",
			Details:   map[string]interface{}{"last": m.lastHeartbeat},
			Timestamp: time.Now(),
		})
	}
}

func (m *Monitor) emit(alert models.Alert) {
	if m.sink != nil {
		m.sink.Send(alert)
	}
}
