package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/models"
	"autotrader/internal/oracle"
)

// EnsembleConfig holds signal combination and validation thresholds.
type EnsembleConfig struct {
	MinConfidence       float64
	MinRiskReward       float64
	MinMarketQuality    float64
	DefaultSizeFraction float64
	DefaultRiskReward   float64
	OracleTimeout       time.Duration
}

// BuyThreshold and SellThreshold bound the normalized ensemble score.
const (
	BuyThreshold  = 0.2
	SellThreshold = -0.2
)

// Ensemble combines the independent strategy evaluators into one signal
// and optionally refines it through the advisory oracle. Strategy weights
// are the sole channel through which the optimizer affects live decisions;
// updates are atomic with respect to concurrent evaluation.
type Ensemble struct {
	evaluators []Evaluator
	advisor    oracle.Advisor // nil disables refinement
	quality    QualityScorer
	cfg        EnsembleConfig
	logger     zerolog.Logger

	mu      sync.RWMutex
	weights map[string]float64
}

// NewEnsemble creates an ensemble over the given evaluators with uniform
// initial weights.
func NewEnsemble(evaluators []Evaluator, advisor oracle.Advisor, quality QualityScorer, cfg EnsembleConfig, logger zerolog.Logger) *Ensemble {
	if cfg.DefaultRiskReward == 0 {
		cfg.DefaultRiskReward = 2.5
	}
	weights := make(map[string]float64, len(evaluators))
	for _, ev := range evaluators {
		weights[ev.Name()] = 1.0
	}
	return &Ensemble{
		evaluators: evaluators,
		advisor:    advisor,
		quality:    quality,
		cfg:        cfg,
		logger:     logger,
		weights:    weights,
	}
}

// Weights returns a copy of the current strategy weights.
func (e *Ensemble) Weights() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

// SetWeights replaces the strategy weights. Unknown names are ignored;
// missing names keep their current weight.
func (e *Ensemble) SetWeights(weights map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, w := range weights {
		if _, ok := e.weights[name]; ok && w >= 0 {
			e.weights[name] = w
		}
	}
}

// Evaluate runs every evaluator, combines the votes, optionally refines
// through the oracle, and validates the result. Validation failures yield
// a HOLD signal with zero confidence, never an error.
func (e *Ensemble) Evaluate(ctx context.Context, s Series) models.Signal {
	votes := make(map[string]Vote, len(e.evaluators))
	for _, ev := range e.evaluators {
		votes[ev.Name()] = ev.Evaluate(s)
	}

	signal := e.combine(s, votes)

	if e.advisor != nil && signal.IsActionable() {
		signal = e.refine(ctx, s, votes, signal)
	}

	return e.validate(s, signal)
}

// combine folds the weighted votes into one ensemble signal.
func (e *Ensemble) combine(s Series, votes map[string]Vote) models.Signal {
	e.mu.RLock()
	var weighted, totalWeight float64
	for name, vote := range votes {
		w := e.weights[name]
		weighted += vote.Confidence * w * vote.Action.Sign()
		totalWeight += w
	}
	e.mu.RUnlock()

	var score float64
	if totalWeight > 0 {
		score = weighted / totalWeight
	}

	action := models.ActionHold
	switch {
	case score > BuyThreshold:
		action = models.ActionBuy
	case score < SellThreshold:
		action = models.ActionSell
	}

	confidence := score
	if confidence < 0 {
		confidence = -confidence
	}

	return models.Signal{
		Symbol:     s.Symbol,
		Action:     action,
		Confidence: confidence,
		RiskReward: e.cfg.DefaultRiskReward,
		SizeHint:   e.cfg.DefaultSizeFraction,
		Source:     "ensemble",
		Timestamp:  time.Now(),
	}
}

// refine asks the advisory oracle to confirm or adjust the ensemble
// signal. On unavailability, timeout, or invalid output the ensemble
// signal is used verbatim with the default size. When the oracle agrees
// on direction, its confidence, size, and protective levels are adopted;
// on disagreement the advisory levels are discarded entirely.
func (e *Ensemble) refine(ctx context.Context, s Series, votes map[string]Vote, signal models.Signal) models.Signal {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	req := oracle.Request{
		MarketSummary: fmt.Sprintf("%s last=%.4f bars=%d", s.Symbol, s.LastClose(), len(s.Candles)),
		EnsembleSignal: oracle.EnsembleSummary{
			Symbol:     signal.Symbol,
			Action:     string(signal.Action),
			Confidence: signal.Confidence,
			Price:      s.LastClose(),
		},
	}
	e.mu.RLock()
	for name, vote := range votes {
		req.StrategySignals = append(req.StrategySignals, oracle.StrategySignal{
			Name:       name,
			Action:     string(vote.Action),
			Confidence: vote.Confidence,
			Weight:     e.weights[name],
		})
	}
	e.mu.RUnlock()

	advice, err := e.advisor.Advise(ctx, req)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", s.Symbol).Msg("Oracle unavailable, using ensemble signal")
		return signal
	}
	if err := advice.Validate(); err != nil {
		e.logger.Warn().Err(err).Str("symbol", s.Symbol).Msg("Oracle advice failed validation, using ensemble signal")
		return signal
	}

	if models.Action(advice.Action) != signal.Action {
		e.logger.Debug().
			Str("symbol", s.Symbol).
			Str("ensemble", string(signal.Action)).
			Str("oracle", advice.Action).
			Msg("Oracle disagrees with ensemble, discarding advisory levels")
		return signal
	}

	signal.Confidence = advice.Confidence
	signal.Reasoning = advice.Reasoning
	signal.Source = "ensemble+oracle"
	if advice.Size > 0 {
		signal.SizeHint = advice.Size
	}
	if advice.StopLoss > 0 {
		signal.StopLoss = advice.StopLoss
	}
	if advice.TakeProfit > 0 {
		signal.TakeProfit = advice.TakeProfit
	}
	if advice.RiskReward > 0 {
		signal.RiskReward = advice.RiskReward
	}
	return signal
}

// validate applies the confidence, risk-reward, and market-quality gates.
// A failing signal is coerced to HOLD with zero confidence.
func (e *Ensemble) validate(s Series, signal models.Signal) models.Signal {
	hold := func(reason string) models.Signal {
		e.logger.Debug().Str("symbol", s.Symbol).Str("reason", reason).Msg("Signal rejected")
		return models.Signal{
			Symbol:    s.Symbol,
			Action:    models.ActionHold,
			Source:    signal.Source,
			Reasoning: reason,
			Timestamp: signal.Timestamp,
		}
	}

	if !signal.IsActionable() {
		return signal
	}
	if signal.Confidence < e.cfg.MinConfidence {
		return hold(fmt.Sprintf("confidence %.3f below minimum %.3f", signal.Confidence, e.cfg.MinConfidence))
	}
	if signal.RiskReward < e.cfg.MinRiskReward {
		return hold(fmt.Sprintf("risk-reward %.2f below minimum %.2f", signal.RiskReward, e.cfg.MinRiskReward))
	}
	if e.quality != nil {
		if q := e.quality.Score(s); q < e.cfg.MinMarketQuality {
			return hold(fmt.Sprintf("market quality %.2f below minimum %.2f", q, e.cfg.MinMarketQuality))
		}
	}
	return signal
}
