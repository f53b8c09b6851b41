// Package perf computes risk-adjusted performance metrics over the trade
// and equity history and decides when the strategy weights are due for
// re-optimization.
package perf

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/logging"
	"autotrader/internal/models"
)

const (
	// minSharpeObservations guards the Sharpe and Sortino ratios against
	// meaningless small samples.
	minSharpeObservations = 30
	// annualizationFactor assumes daily observations.
	annualizationFactor = 252.0
	// maxProfitFactor caps the ratio when the history has no losing trades.
	maxProfitFactor = 100.0
)

// SnapshotSink receives equity snapshots, e.g. the SQLite store.
type SnapshotSink interface {
	SaveSnapshot(s models.PerformanceSnapshot) error
}

// Evaluator owns the append-only equity snapshot series and recomputes the
// full metric set on demand.
type Evaluator struct {
	mu        sync.Mutex
	cfg       config.OptimizerConfig
	snapshots []models.PerformanceSnapshot
	peak      float64
	sink      SnapshotSink
	logger    zerolog.Logger
}

// NewEvaluator creates a performance evaluator. sink may be nil.
func NewEvaluator(cfg config.OptimizerConfig, sink SnapshotSink, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		sink:   sink,
		logger: logging.WithComponent(logger, "perf"),
	}
}

// RecordSnapshot appends one equity observation. The period return is
// relative to the previous snapshot; drawdown is against the running peak.
func (e *Evaluator) RecordSnapshot(equity float64) models.PerformanceSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := models.PerformanceSnapshot{Timestamp: time.Now(), Equity: equity}
	if n := len(e.snapshots); n > 0 && e.snapshots[n-1].Equity > 0 {
		snap.Return = equity/e.snapshots[n-1].Equity - 1
	}
	if equity > e.peak {
		e.peak = equity
	}
	if e.peak > 0 {
		snap.Drawdown = (e.peak - equity) / e.peak
	}
	e.snapshots = append(e.snapshots, snap)

	if e.sink != nil {
		if err := e.sink.SaveSnapshot(snap); err != nil {
			e.logger.Error().Err(err).Msg("snapshot not persisted")
		}
	}
	return snap
}

// Snapshots returns a copy of the equity series.
func (e *Evaluator) Snapshots() []models.PerformanceSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.PerformanceSnapshot, len(e.snapshots))
	copy(out, e.snapshots)
	return out
}

// Report recomputes every metric over the given trade history and the
// recorded equity series.
func (e *Evaluator) Report(trades []models.ClosedTrade) models.PerformanceReport {
	e.mu.Lock()
	snapshots := make([]models.PerformanceSnapshot, len(e.snapshots))
	copy(snapshots, e.snapshots)
	e.mu.Unlock()

	returns := make([]float64, 0, len(snapshots))
	for i, s := range snapshots {
		if i == 0 {
			continue
		}
		returns = append(returns, s.Return)
	}

	report := models.PerformanceReport{
		TradeCount:  len(trades),
		GeneratedAt: time.Now(),
	}
	if n := len(snapshots); n > 1 && snapshots[0].Equity > 0 {
		report.TotalReturn = snapshots[n-1].Equity/snapshots[0].Equity - 1
	}
	report.MaxDrawdown = maxDrawdown(snapshots)
	report.SharpeRatio = sharpe(returns)
	report.SortinoRatio = sortino(returns)
	if report.MaxDrawdown > 0 {
		report.CalmarRatio = annualized(returns) / report.MaxDrawdown
	}
	report.WinRate, report.ProfitFactor, report.Expectancy = tradeStats(trades)
	report.VaR95, report.CVaR95 = historicalVaR(returns, 0.95)
	return report
}

// ShouldReoptimize reports whether the optimizer is due: on the scheduled
// trade-count period, or early when performance degrades past the Sharpe,
// drawdown, or win-rate thresholds.
func (e *Evaluator) ShouldReoptimize(report models.PerformanceReport) bool {
	if report.TradeCount == 0 {
		return false
	}
	if e.cfg.OptimizationPeriod > 0 && report.TradeCount%e.cfg.OptimizationPeriod == 0 {
		return true
	}
	if report.SharpeRatio < 0.7*e.cfg.TargetSharpe {
		return true
	}
	if report.MaxDrawdown > 0.08 {
		return true
	}
	return report.WinRate < 0.4
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// sharpe returns the annualized Sharpe ratio, or 0 below the minimum
// observation count.
func sharpe(returns []float64) float64 {
	if len(returns) < minSharpeObservations {
		return 0
	}
	sd := stdev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(annualizationFactor)
}

// sortino is sharpe with only downside deviation in the denominator.
func sortino(returns []float64) float64 {
	if len(returns) < minSharpeObservations {
		return 0
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	sd := stdev(downside)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(annualizationFactor)
}

func annualized(returns []float64) float64 {
	return mean(returns) * annualizationFactor
}

func maxDrawdown(snapshots []models.PerformanceSnapshot) float64 {
	var peak, maxDD float64
	for _, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak > 0 {
			dd := (peak - s.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// tradeStats computes win rate, profit factor, and expectancy per trade.
func tradeStats(trades []models.ClosedTrade) (winRate, profitFactor, expectancy float64) {
	if len(trades) == 0 {
		return 0, 0, 0
	}
	var wins int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.RealizedPnL > 0 {
			wins++
			grossProfit += t.RealizedPnL
		} else {
			grossLoss += -t.RealizedPnL
		}
	}
	winRate = float64(wins) / float64(len(trades))
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
		if profitFactor > maxProfitFactor {
			profitFactor = maxProfitFactor
		}
	} else if grossProfit > 0 {
		profitFactor = maxProfitFactor
	}
	expectancy = (grossProfit - grossLoss) / float64(len(trades))
	return winRate, profitFactor, expectancy
}

// historicalVaR returns the historical value at risk and the conditional
// tail mean at the given confidence, both as positive loss fractions. The
// VaR is the return at index floor((1-confidence)*N) of the ascending sort;
// the CVaR averages the tail at or below it.
func historicalVaR(returns []float64, confidence float64) (valueAtRisk, conditional float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	cutoff := sorted[idx]
	if cutoff < 0 {
		valueAtRisk = -cutoff
	}
	// Returns tying the cutoff belong to the tail even when the sort
	// placed them past idx.
	for idx+1 < len(sorted) && sorted[idx+1] == cutoff {
		idx++
	}

	var tailSum float64
	var tailN int
	for _, r := range sorted[:idx+1] {
		tailSum += r
		tailN++
	}
	if tailN > 0 && tailSum < 0 {
		conditional = -tailSum / float64(tailN)
	}
	return valueAtRisk, conditional
}
