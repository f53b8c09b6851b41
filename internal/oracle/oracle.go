// Package oracle provides the optional advisory oracle that refines or
// vetoes the ensemble signal. The oracle is strictly advisory: any
// failure, timeout, or invalid response falls back to the ensemble signal.
package oracle

import (
	"context"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// StrategySignal is one evaluator's vote as presented to the oracle.
type StrategySignal struct {
	Name       string  `json:"name"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`
}

// Request is the advisory request payload.
type Request struct {
	MarketSummary   string           `json:"marketSummary"`
	StrategySignals []StrategySignal `json:"strategySignals"`
	EnsembleSignal  EnsembleSummary  `json:"ensembleSignal"`
}

// EnsembleSummary describes the combined signal being refined.
type EnsembleSummary struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Price      float64 `json:"price"`
}

// Advice is the schema-validated oracle response.
type Advice struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"` // fraction of equity
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	RiskReward float64 `json:"riskReward"`
	Reasoning  string  `json:"reasoning"`
}

// Advisor is the advisory oracle contract. Implementations must respect
// the context deadline; the caller treats any error as "use the ensemble
// signal verbatim".
type Advisor interface {
	Advise(ctx context.Context, req Request) (*Advice, error)
}

// Validate checks the response schema: a known action, confidence and
// size in range, and coherent protective levels.
func (a *Advice) Validate() error {
	switch models.Action(a.Action) {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return errors.NewValidationError("action", a.Action, "unknown action")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return errors.NewValidationError("confidence", a.Confidence, "outside [0, 1]")
	}
	if a.Size < 0 || a.Size > 1 {
		return errors.NewValidationError("size", a.Size, "outside [0, 1]")
	}
	if a.RiskReward < 0 {
		return errors.NewValidationError("riskReward", a.RiskReward, "negative")
	}
	if a.StopLoss < 0 || a.TakeProfit < 0 {
		return errors.NewValidationError("levels", a.StopLoss, "negative protective level")
	}
	return nil
}

// StaticAdvisor returns a fixed advice. Deterministic test double.
type StaticAdvisor struct {
	Advice *Advice
	Err    error
	Delay  time.Duration
}

// Advise implements Advisor.
func (s *StaticAdvisor) Advise(ctx context.Context, _ Request) (*Advice, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, errors.NewOracleError("advise", ctx.Err())
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Advice, nil
}
