// Package optimizer searches the strategy weight space with a small
// genetic algorithm and feeds the winning weights back to the signal
// ensemble. It runs as a cancellable background task; the ensemble's
// atomic setter is the only write path for live parameters.
package optimizer

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/logging"
)

// Fitness weight components. The fitness of a candidate is
// w1*sharpe + w2*winRate + w3*(1-maxDrawdown).
const (
	fitnessSharpeWeight   = 0.5
	fitnessWinRateWeight  = 0.3
	fitnessDrawdownWeight = 0.2
)

// Mutation perturbs a gene by a uniform factor in [minMutation, maxMutation]
// in either direction, then clamps to the gene bounds.
const (
	minMutation = 0.10
	maxMutation = 0.20
	geneMin     = 0.0
	geneMax     = 1.0
)

// Score is the simulated outcome of one candidate weight set.
type Score struct {
	Sharpe      float64
	WinRate     float64
	MaxDrawdown float64
}

// Fitness collapses a score into a single scalar.
func (s Score) Fitness() float64 {
	return fitnessSharpeWeight*s.Sharpe +
		fitnessWinRateWeight*s.WinRate +
		fitnessDrawdownWeight*(1-s.MaxDrawdown)
}

// EvalFunc scores one candidate weight set, normally by replaying recent
// history through the strategy set with those weights.
type EvalFunc func(weights map[string]float64) Score

// WeightSink receives the winning weights, normally the signal ensemble.
type WeightSink interface {
	Weights() map[string]float64
	SetWeights(map[string]float64)
}

// Result summarizes one completed optimization run.
type Result struct {
	Best        map[string]float64
	BestFitness float64
	Generations int
	Elapsed     time.Duration
}

// Optimizer runs the genetic search.
type Optimizer struct {
	cfg    config.OptimizerConfig
	eval   EvalFunc
	sink   WeightSink
	logger zerolog.Logger
}

// New creates an optimizer writing into sink.
func New(cfg config.OptimizerConfig, eval EvalFunc, sink WeightSink, logger zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg:    cfg,
		eval:   eval,
		sink:   sink,
		logger: logging.WithComponent(logger, "optimizer"),
	}
}

type candidate struct {
	genes   map[string]float64
	fitness float64
}

// Run executes the full genetic search and, unless cancelled, writes the
// best weights back to the sink. The best fitness recorded never decreases
// across generations: the elite survives unchanged.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	seed := o.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := o.sink.Weights()
	pop := o.seedPopulation(rng, base)
	o.evaluate(pop)

	best := clone(pop[0].genes)
	bestFitness := pop[0].fitness

	gens := 0
	for gen := 0; gen < o.cfg.Generations; gen++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		pop = o.nextGeneration(rng, pop, best)
		o.evaluate(pop)
		gens++
		if pop[0].fitness > bestFitness {
			bestFitness = pop[0].fitness
			best = clone(pop[0].genes)
		}
		o.logger.Debug().
			Int("generation", gen+1).
			Float64("best_fitness", bestFitness).
			Msg("generation complete")
	}

	o.sink.SetWeights(best)
	result := &Result{
		Best:        best,
		BestFitness: bestFitness,
		Generations: gens,
		Elapsed:     time.Since(start),
	}
	o.logger.Info().
		Float64("fitness", bestFitness).
		Dur("elapsed", result.Elapsed).
		Msg("optimization complete")
	return result, nil
}

// RunBackground launches Run on its own goroutine and reports the outcome
// through the returned channel.
func (o *Optimizer) RunBackground(ctx context.Context) <-chan *Result {
	out := make(chan *Result, 1)
	go func() {
		defer close(out)
		result, err := o.Run(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("optimization aborted")
			return
		}
		out <- result
	}()
	return out
}

// seedPopulation builds the initial population: the current weights plus
// mutated variants.
func (o *Optimizer) seedPopulation(rng *rand.Rand, base map[string]float64) []candidate {
	size := o.cfg.PopulationSize
	if size < 2 {
		size = 2
	}
	pop := make([]candidate, size)
	pop[0] = candidate{genes: clone(base)}
	for i := 1; i < size; i++ {
		genes := clone(base)
		for name := range genes {
			genes[name] = mutate(rng, genes[name])
		}
		pop[i] = candidate{genes: genes}
	}
	return pop
}

// evaluate scores every candidate and sorts descending by fitness.
func (o *Optimizer) evaluate(pop []candidate) {
	for i := range pop {
		pop[i].fitness = o.eval(pop[i].genes).Fitness()
	}
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].fitness > pop[j].fitness
	})
}

// nextGeneration breeds the top half. The all-time elite is reinserted
// unchanged so the recorded best cannot regress.
func (o *Optimizer) nextGeneration(rng *rand.Rand, pop []candidate, elite map[string]float64) []candidate {
	parents := pop[:len(pop)/2]
	next := make([]candidate, 0, len(pop))
	next = append(next, candidate{genes: clone(elite)})
	for len(next) < len(pop) {
		a := parents[rng.Intn(len(parents))]
		b := parents[rng.Intn(len(parents))]
		child := crossover(rng, a.genes, b.genes)
		for name := range child {
			if rng.Float64() < o.cfg.MutationRate {
				child[name] = mutate(rng, child[name])
			}
		}
		next = append(next, candidate{genes: child})
	}
	return next
}

// crossover mixes two parents gene by gene: half the time the numeric
// average, otherwise a coin-flip pick.
func crossover(rng *rand.Rand, a, b map[string]float64) map[string]float64 {
	child := make(map[string]float64, len(a))
	for name, av := range a {
		bv, ok := b[name]
		if !ok {
			bv = av
		}
		switch {
		case rng.Float64() < 0.5:
			child[name] = (av + bv) / 2
		case rng.Float64() < 0.5:
			child[name] = av
		default:
			child[name] = bv
		}
	}
	return child
}

func mutate(rng *rand.Rand, v float64) float64 {
	factor := minMutation + rng.Float64()*(maxMutation-minMutation)
	if rng.Float64() < 0.5 {
		factor = -factor
	}
	v *= 1 + factor
	if v < geneMin {
		v = geneMin
	}
	if v > geneMax {
		v = geneMax
	}
	return v
}

func clone(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
