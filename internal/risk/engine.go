// Package risk provides the pure risk engine: signal plus portfolio state
// in, approved size or enumerated rejection out. No I/O.
package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"autotrader/internal/config"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
)

// Correlation proxy tiers. Exact symbol is fully correlated; unrelated
// symbols keep a floor above zero.
const (
	corrExactSymbol    = 1.0
	corrSameAssetClass = 0.8
	corrSameSector     = 0.6
	corrUnrelated      = 0.3
)

// varFallback is the heuristic loss fraction used when fewer than
// varMinSamples historical returns exist.
const (
	varFallback   = 0.02
	varMinSamples = 20
)

// drawdownProtectionStart is the drawdown above which sizing derates.
const drawdownProtectionStart = 0.05

// Input carries everything the engine needs for one evaluation.
type Input struct {
	Signal    models.Signal
	Portfolio portfolio.Snapshot
	Returns   []float64 // historical period returns, unsorted

	// Venue context for the liquidity and edge checks.
	VenueLiquidity float64 // bookable notional at the top levels
	TakerFee       float64 // relative, e.g. 0.001
	Spread         float64 // relative top-of-book spread

	CurrentVolatility  float64 // annualized
	ReduceSizeAdvisory bool    // safety monitor warning in effect
}

// Engine is the pure position sizing calculator.
type Engine struct {
	cfg config.RiskConfig

	// assetClasses and sectors back the correlation proxy. Symbols
	// missing from both maps fall back to quote-currency matching.
	assetClasses map[string]string
	sectors      map[string]string
}

// NewEngine creates a risk engine with the given configuration.
func NewEngine(cfg config.RiskConfig) *Engine {
	return &Engine{
		cfg:          cfg,
		assetClasses: make(map[string]string),
		sectors:      make(map[string]string),
	}
}

// SetClassification installs asset-class and sector mappings used by the
// correlation proxy.
func (e *Engine) SetClassification(assetClasses, sectors map[string]string) {
	if assetClasses != nil {
		e.assetClasses = assetClasses
	}
	if sectors != nil {
		e.sectors = sectors
	}
}

// Evaluate sizes the signal against the portfolio. The decision is
// unapproved when any hard constraint fails or the final size rounds to
// zero; all violated constraints are enumerated in order.
func (e *Engine) Evaluate(in Input) models.RiskDecision {
	decision := models.RiskDecision{Timestamp: time.Now()}
	sig := in.Signal
	snap := in.Portfolio

	if !sig.IsActionable() {
		decision.Reject("signal is not actionable")
		return decision
	}
	if sig.Confidence < e.cfg.MinConfidence {
		decision.Reject(fmt.Sprintf("confidence %.3f below minimum %.3f", sig.Confidence, e.cfg.MinConfidence))
		return decision
	}
	if snap.Equity <= 0 {
		decision.Reject("no equity available")
		return decision
	}

	// Step 1: fractional Kelly sizing.
	size := e.kellySize(sig.Confidence, sig.RiskReward)

	// Step 2: VaR estimate for the proposed notional.
	decision.Metrics.VaR = e.valueAtRisk(in.Returns, size*snap.Equity)
	decision.Metrics.Drawdown = snap.Drawdown()
	decision.Metrics.Volatility = in.CurrentVolatility

	// Step 3: hard constraints. All violations are enumerated.
	approved := true
	dd := snap.Drawdown()
	if dd > 0.8*e.cfg.MaxDrawdown {
		decision.Reject(fmt.Sprintf("drawdown %.2f%% beyond 80%% of limit %.2f%%", dd*100, e.cfg.MaxDrawdown*100))
		approved = false
	}
	if snap.DailyPnL < -e.cfg.DailyLossLimit*snap.Equity {
		decision.Reject(fmt.Sprintf("daily loss %.2f beyond limit %.2f", -snap.DailyPnL, e.cfg.DailyLossLimit*snap.Equity))
		approved = false
	}
	if len(snap.OpenPositions) >= e.cfg.MaxOpenPositions {
		decision.Reject(fmt.Sprintf("open position count at maximum %d", e.cfg.MaxOpenPositions))
		approved = false
	}
	if snap.TotalExposure()+size > 1.0 {
		decision.Reject(fmt.Sprintf("total exposure %.2f%% + new size %.2f%% exceeds 100%%", snap.TotalExposure()*100, size*100))
		approved = false
	}
	if in.VenueLiquidity > 0 && size*snap.Equity > in.VenueLiquidity {
		decision.Reject(fmt.Sprintf("insufficient venue liquidity %.2f for notional %.2f", in.VenueLiquidity, size*snap.Equity))
		approved = false
	}
	if e.cfg.EdgeGateEnabled && sig.EdgeBps > 0 {
		costBps := in.TakerFee*1e4 + in.Spread*1e4 + e.cfg.EdgeSafetyBps
		if sig.EdgeBps <= costBps {
			decision.Reject(fmt.Sprintf("edge %.1f bps below costs %.1f bps", sig.EdgeBps, costBps))
			approved = false
		}
	}

	// Step 4: correlation adjustment.
	decision.Metrics.CorrelationScore = e.maxCorrelation(sig.Symbol, snap.OpenPositions)
	if decision.Metrics.CorrelationScore > e.cfg.CorrelationThreshold {
		size *= 0.5
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("size halved: correlation %.2f above threshold %.2f", decision.Metrics.CorrelationScore, e.cfg.CorrelationThreshold))
	}

	// Step 5: volatility adjustment.
	if in.CurrentVolatility > 0 {
		size *= math.Min(1, e.cfg.TargetVolatility/in.CurrentVolatility)
	}

	// Step 6: drawdown protection.
	if dd > drawdownProtectionStart {
		size *= math.Max(0.3, 1-dd/e.cfg.MaxDrawdown)
	}

	if in.ReduceSizeAdvisory {
		size *= 0.5
		decision.Reasons = append(decision.Reasons, "size halved: reduce-size advisory in effect")
	}

	// The ensemble's size hint is a ceiling, never a floor.
	if sig.SizeHint > 0 && size > sig.SizeHint {
		size = sig.SizeHint
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("size capped at ensemble hint %.4f", sig.SizeHint))
	}

	size = round(size, e.cfg.SizePrecision)
	if size > e.cfg.MaxPositionFraction {
		size = e.cfg.MaxPositionFraction
	}

	if size <= 0 {
		if approved {
			decision.Reject("final size rounds to zero")
		}
		approved = false
	}

	decision.Approved = approved
	if approved {
		decision.SizeFraction = size
		decision.Notional = size * snap.Equity
	}
	return decision
}

// kellySize computes the fractional Kelly size: f = (p*b - (1-p)) / b,
// clamped to [0, maxPositionFraction] and scaled by the safety fraction.
func (e *Engine) kellySize(p, b float64) float64 {
	if b <= 0 {
		return 0
	}
	f := (p*b - (1 - p)) / b
	if f < 0 {
		f = 0
	}
	if f > e.cfg.MaxPositionFraction {
		f = e.cfg.MaxPositionFraction
	}
	return f * e.cfg.KellyFraction
}

// valueAtRisk estimates VaR for the notional from the historical return
// series at the configured confidence level. Fewer than varMinSamples
// observations fall back to a fixed heuristic.
func (e *Engine) valueAtRisk(returns []float64, notional float64) float64 {
	if len(returns) < varMinSamples {
		return varFallback * notional
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - e.cfg.VaRConfidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return math.Abs(sorted[idx]) * notional
}

// maxCorrelation returns the highest correlation proxy between the new
// symbol and any open position.
func (e *Engine) maxCorrelation(symbol string, open []models.Position) float64 {
	var max float64
	for _, p := range open {
		if c := e.correlationProxy(symbol, p.Symbol); c > max {
			max = c
		}
	}
	return max
}

// correlationProxy tiers two symbols: exact match, same asset class,
// same sector, otherwise a residual floor.
func (e *Engine) correlationProxy(a, b string) float64 {
	if a == b {
		return corrExactSymbol
	}
	if ca, cb := e.assetClass(a), e.assetClass(b); ca != "" && ca == cb {
		return corrSameAssetClass
	}
	if sa, sb := e.sectors[a], e.sectors[b]; sa != "" && sa == sb {
		return corrSameSector
	}
	return corrUnrelated
}

// assetClass resolves a symbol's asset class, falling back to the quote
// currency of a BASE/QUOTE pair.
func (e *Engine) assetClass(symbol string) string {
	if c, ok := e.assetClasses[symbol]; ok {
		return c
	}
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		return symbol[i+1:]
	}
	return ""
}

func round(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}
