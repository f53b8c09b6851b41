package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
)

// Elitism makes the search monotone: no seed, weight set, or mutation
// rate can produce a result worse than the starting candidate.
func TestOptimizerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("result never regresses below the seed candidate", prop.ForAll(
		func(seed int64, w1, w2, w3, mutationRate float64) bool {
			base := map[string]float64{"trend": w1, "meanrev": w2, "breakout": w3}
			sink := &fakeSink{weights: base}
			cfg := testOptimizerConfig()
			cfg.Seed = seed
			cfg.MutationRate = mutationRate
			cfg.Generations = 5

			result, err := New(cfg, sumEval, sink, zerolog.Nop()).Run(context.Background())
			if err != nil {
				return false
			}
			return result.BestFitness >= sumEval(base).Fitness()
		},
		gen.Int64Range(1, 1<<40),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("published genes stay within bounds", prop.ForAll(
		func(seed int64, w float64) bool {
			sink := &fakeSink{weights: map[string]float64{"trend": w}}
			cfg := testOptimizerConfig()
			cfg.Seed = seed
			cfg.Generations = 3

			result, err := New(cfg, sumEval, sink, zerolog.Nop()).Run(context.Background())
			if err != nil {
				return false
			}
			for _, v := range result.Best {
				if v < 0 || v > 1 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<40),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
