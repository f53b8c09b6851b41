package optimizer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/config"
)

type fakeSink struct {
	weights map[string]float64
	sets    int
}

func (s *fakeSink) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

func (s *fakeSink) SetWeights(w map[string]float64) {
	s.weights = w
	s.sets++
}

func testOptimizerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		PopulationSize:     20,
		Generations:        10,
		MutationRate:       0.15,
		OptimizationPeriod: 20,
		TargetSharpe:       1.5,
		Seed:               42,
	}
}

// sumEval rewards weight mass: the search should push genes upward.
func sumEval(weights map[string]float64) Score {
	var sum float64
	for _, v := range weights {
		sum += v
	}
	return Score{Sharpe: sum}
}

func TestScoreFitness(t *testing.T) {
	s := Score{Sharpe: 2.0, WinRate: 0.6, MaxDrawdown: 0.1}
	assert.InDelta(t, 0.5*2.0+0.3*0.6+0.2*0.9, s.Fitness(), 1e-12)
}

func TestRun_ImprovesOnSeedWeights(t *testing.T) {
	sink := &fakeSink{weights: map[string]float64{"trend": 0.5, "meanrev": 0.5, "breakout": 0.5}}
	opt := New(testOptimizerConfig(), sumEval, sink, zerolog.Nop())

	result, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, result.Generations)
	assert.Equal(t, 1, sink.sets)
	seedFitness := sumEval(map[string]float64{"trend": 0.5, "meanrev": 0.5, "breakout": 0.5}).Fitness()
	assert.GreaterOrEqual(t, result.BestFitness, seedFitness,
		"elitism keeps the seed candidate so the result cannot be worse")
	for name, v := range result.Best {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestRun_SeededReproducibility(t *testing.T) {
	run := func() *Result {
		sink := &fakeSink{weights: map[string]float64{"trend": 0.4, "meanrev": 0.6}}
		opt := New(testOptimizerConfig(), sumEval, sink, zerolog.Nop())
		result, err := opt.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	assert.Equal(t, a.BestFitness, b.BestFitness)
	assert.Equal(t, a.Best, b.Best)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &fakeSink{weights: map[string]float64{"trend": 0.5}}
	opt := New(testOptimizerConfig(), sumEval, sink, zerolog.Nop())

	_, err := opt.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.sets, "a cancelled run must not publish weights")
}

func TestRunBackground(t *testing.T) {
	sink := &fakeSink{weights: map[string]float64{"trend": 0.5}}
	opt := New(testOptimizerConfig(), sumEval, sink, zerolog.Nop())

	result := <-opt.RunBackground(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 1, sink.sets)
}

func TestMutateStaysInBounds(t *testing.T) {
	sink := &fakeSink{weights: map[string]float64{"g": 0.95}}
	cfg := testOptimizerConfig()
	cfg.MutationRate = 1.0
	cfg.Generations = 50
	opt := New(cfg, sumEval, sink, zerolog.Nop())

	result, err := opt.Run(context.Background())
	require.NoError(t, err)
	for _, v := range result.Best {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
