package safety

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/config"
	"autotrader/internal/errors"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

type recordingAlertSink struct {
	alerts []models.Alert
}

func (s *recordingAlertSink) Send(a models.Alert) {
	s.alerts = append(s.alerts, a)
}

func testSafetyConfig() config.SafetyConfig {
	return config.SafetyConfig{
		MaxDrawdown:          0.10,
		DailyLossLimit:       0.05,
		FailureThreshold:     5,
		Cooldown:             time.Minute,
		CriticalCooldown:     5 * time.Minute,
		ForceCloseOnCritical: true,
		VolatilityWarning:    0.50,
		SlippageWarning:      0.002,
	}
}

func healthyInput(equity float64) CheckInput {
	return CheckInput{Snapshot: portfolio.Snapshot{Equity: equity, PeakEquity: equity}}
}

func TestCheck_DrawdownBoundary(t *testing.T) {
	tests := []struct {
		name   string
		equity float64
		peak   float64
		trips  bool
	}{
		{"just under the limit stays closed", 90100, 100000, false},
		{"at the limit stays closed", 90000, 100000, false},
		{"past the limit trips", 89900, 100000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(testSafetyConfig(), nil, zerolog.Nop())
			state := m.Check(CheckInput{Snapshot: portfolio.Snapshot{Equity: tt.equity, PeakEquity: tt.peak}})
			if tt.trips {
				assert.Equal(t, models.BreakerOpen, state.State)
				assert.Equal(t, models.SeverityCritical, state.TripSeverity)
			} else {
				assert.Equal(t, models.BreakerClosed, state.State)
			}
		})
	}
}

func TestCheck_DailyLossTrips(t *testing.T) {
	sink := &recordingAlertSink{}
	m := NewMonitor(testSafetyConfig(), sink, zerolog.Nop())

	state := m.Check(CheckInput{
		Snapshot: portfolio.Snapshot{Equity: 100000, PeakEquity: 100000, DailyPnL: -5100},
	})
	require.Equal(t, models.BreakerOpen, state.State)
	assert.True(t, m.ConsumeForceClose(), "critical trips request a forced close")
	assert.False(t, m.ConsumeForceClose(), "the request is consumed once")

	require.NotEmpty(t, sink.alerts)
	assert.Equal(t, models.AlertCritical, sink.alerts[0].Severity)
}

func TestAllow(t *testing.T) {
	m := NewMonitor(testSafetyConfig(), nil, zerolog.Nop())
	assert.NoError(t, m.Allow())

	m.TripManual("maintenance", models.SeverityWarning)
	err := m.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBreakerOpen))
}

func TestTrip_CooldownBySeverity(t *testing.T) {
	m := NewMonitor(testSafetyConfig(), nil, zerolog.Nop())
	m.TripManual("warning condition", models.SeverityWarning)
	warn := m.State()
	assert.True(t, warn.CooldownExpiry.Before(time.Now().Add(2*time.Minute)))
	assert.False(t, m.ConsumeForceClose(), "warning trips never force-close")

	m2 := NewMonitor(testSafetyConfig(), nil, zerolog.Nop())
	m2.TripManual("critical condition", models.SeverityCritical)
	crit := m2.State()
	assert.True(t, crit.CooldownExpiry.After(time.Now().Add(4*time.Minute)),
		"critical trips use the longer cooldown")
}

func TestCheck_RecoveryAfterCooldown(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.Cooldown = 10 * time.Millisecond
	m := NewMonitor(cfg, nil, zerolog.Nop())

	m.TripManual("transient", models.SeverityWarning)
	require.Equal(t, models.BreakerOpen, m.Check(healthyInput(100000)).State,
		"no recovery before the cooldown expires")

	time.Sleep(20 * time.Millisecond)
	state := m.Check(healthyInput(100000))
	assert.Equal(t, models.BreakerClosed, state.State)
	assert.NoError(t, m.Allow())
}

func TestCheck_RecoveryExtendsCooldownWhileUnhealthy(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.Cooldown = 10 * time.Millisecond
	m := NewMonitor(cfg, nil, zerolog.Nop())

	m.TripManual("drawdown", models.SeverityWarning)
	time.Sleep(20 * time.Millisecond)

	// Drawdown still past the limit: the breaker must stay open.
	unhealthy := CheckInput{Snapshot: portfolio.Snapshot{Equity: 85000, PeakEquity: 100000}}
	state := m.Check(unhealthy)
	assert.Equal(t, models.BreakerOpen, state.State)

	time.Sleep(20 * time.Millisecond)
	state = m.Check(healthyInput(100000))
	assert.Equal(t, models.BreakerClosed, state.State)
}

func TestRecordVenueFailures(t *testing.T) {
	m := NewMonitor(testSafetyConfig(), nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		m.RecordVenueFailure(errors.ErrVenueTimeout)
	}
	assert.NoError(t, m.Allow(), "at the threshold the breaker stays closed")

	m.RecordVenueSuccess()
	for i := 0; i < 5; i++ {
		m.RecordVenueFailure(errors.ErrVenueTimeout)
	}
	assert.NoError(t, m.Allow(), "a success resets the consecutive count")

	m.RecordVenueFailure(errors.ErrVenueTimeout)
	assert.Error(t, m.Allow(), "the sixth consecutive failure exceeds the threshold")
}

func TestAdvisories(t *testing.T) {
	sink := &recordingAlertSink{}
	m := NewMonitor(testSafetyConfig(), sink, zerolog.Nop())

	in := healthyInput(100000)
	in.CurrentVolatility = 0.60
	m.Check(in)
	assert.True(t, m.Advisories()[models.AdvisoryReduceSize])
	require.Len(t, sink.alerts, 1, "the advisory alert fires on the transition only")

	m.Check(in)
	assert.Len(t, sink.alerts, 1)

	in.CurrentVolatility = 0.20
	in.RecentSlippage = 0.003
	m.Check(in)
	advisories := m.Advisories()
	assert.False(t, advisories[models.AdvisoryReduceSize], "calm volatility clears the advisory")
	assert.True(t, advisories[models.AdvisoryPreferLimitOrders])
}
