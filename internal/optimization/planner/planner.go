// Package planner selects and runs solvers by name and records each solve.
package planner

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/construction"
	"github.com/copyleftdev/tourney/internal/optimization/genetic"
	"github.com/copyleftdev/tourney/internal/optimization/localsearch"
)

// Solver names.
const (
	ArbitraryInsertion           = "tsp-ai"
	RandomizedArbitraryInsertion = "tsp-rai"
	ThreeOpt                     = "tsp-3opt"
	Genetic                      = "tsp-ga"
)

// GeneticOptions mirrors the tunables of the genetic solver.
type GeneticOptions struct {
	PopulationSize      int     `json:"population_size" yaml:"population_size"`
	StagnationLimit     int     `json:"stagnation_limit" yaml:"stagnation_limit"`
	ElitismPercentage   int     `json:"elitism_pct" yaml:"elitism_pct"`
	CrossoverPercentage int     `json:"crossover_pct" yaml:"crossover_pct"`
	MutationPercentage  int     `json:"mutation_pct" yaml:"mutation_pct"`
	MaxGenerations      int     `json:"max_generations" yaml:"max_generations"`
	MutationThreshold   float64 `json:"mutation_threshold" yaml:"mutation_threshold"`
}

// ThreeOptOptions mirrors the tunables of the 3-opt solver.
type ThreeOptOptions struct {
	NearestNeighbours bool `json:"restrict_to_nearest_neighbours" yaml:"restrict_to_nearest_neighbours"`
	DontLookBits      bool `json:"use_dont_look_bits" yaml:"use_dont_look_bits"`
}

// RandomizedOptions mirrors the tunables of the randomized solver.
type RandomizedOptions struct {
	Divisor   int `json:"divisor" yaml:"divisor"`
	MaxTrials int `json:"max_trials" yaml:"max_trials"`
}

// Options selects a solver and its configuration.
type Options struct {
	Solver     string            `json:"solver" yaml:"solver"`
	Seed       int64             `json:"seed" yaml:"seed"`
	Improve    bool              `json:"improve" yaml:"improve"`
	Initial    []int             `json:"initial,omitempty" yaml:"-"`
	Genetic    GeneticOptions    `json:"genetic" yaml:"genetic"`
	ThreeOpt   ThreeOptOptions   `json:"three_opt" yaml:"three_opt"`
	Randomized RandomizedOptions `json:"randomized" yaml:"randomized"`
}

// DefaultOptions returns the options used when a caller sets nothing.
func DefaultOptions() Options {
	g := genetic.DefaultConfig()
	return Options{
		Solver:  ThreeOpt,
		Improve: true,
		Genetic: GeneticOptions{
			PopulationSize:      g.PopulationSize,
			StagnationLimit:     g.StagnationLimit,
			ElitismPercentage:   g.ElitismPercentage,
			CrossoverPercentage: g.CrossoverPercentage,
			MutationPercentage:  g.MutationPercentage,
			MaxGenerations:      g.MaxGenerations,
			MutationThreshold:   genetic.DefaultMutationThreshold,
		},
		ThreeOpt: ThreeOptOptions{
			NearestNeighbours: true,
			DontLookBits:      true,
		},
		Randomized: RandomizedOptions{
			Divisor: construction.DefaultDivisor,
		},
	}
}

// Recorder observes finished solves. metrics.SolveRecorder implements it.
type Recorder interface {
	ObserveSolve(solver, status string, duration time.Duration, weight float64)
	ObserveImprovement(solver string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSolve(string, string, time.Duration, float64) {}
func (nopRecorder) ObserveImprovement(string)                           {}

// Planner builds solvers from options and runs them.
type Planner struct {
	logger   *zap.Logger
	recorder Recorder
}

// New creates a planner. Nil arguments select no-op implementations.
func New(logger *zap.Logger, recorder Recorder) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Planner{logger: logger, recorder: recorder}
}

// Names returns the registered solver names in sorted order.
func Names() []string {
	names := []string{ArbitraryInsertion, RandomizedArbitraryInsertion, ThreeOpt, Genetic}
	sort.Strings(names)
	return names
}

// NewSolver builds the solver named by opts.Solver. rng may be nil, in which
// case the solver seeds its own source from opts.Seed.
func (pl *Planner) NewSolver(opts Options, rng optimization.Random) (optimization.Solver, error) {
	base := construction.Config{
		Initial:    opts.Initial,
		Improve:    opts.Improve,
		RandomSeed: opts.Seed,
		Random:     rng,
		Logger:     pl.logger,
	}

	switch opts.Solver {
	case ArbitraryInsertion:
		return construction.NewArbitraryInsertion(base), nil
	case RandomizedArbitraryInsertion:
		return construction.NewRandomizedArbitraryInsertion(construction.RandomizedConfig{
			Config:    base,
			Divisor:   opts.Randomized.Divisor,
			MaxTrials: opts.Randomized.MaxTrials,
		}), nil
	case "", ThreeOpt:
		base.Improve = false
		return localsearch.NewThreeOpt(localsearch.Config{
			Construction:      base,
			NearestNeighbours: opts.ThreeOpt.NearestNeighbours,
			DontLookBits:      opts.ThreeOpt.DontLookBits,
		}), nil
	case Genetic:
		g := opts.Genetic
		threshold := g.MutationThreshold
		if threshold <= 0 {
			threshold = genetic.DefaultMutationThreshold
		}
		solver, err := genetic.NewSolver(genetic.Config{
			PopulationSize:      g.PopulationSize,
			StagnationLimit:     g.StagnationLimit,
			ElitismPercentage:   g.ElitismPercentage,
			CrossoverPercentage: g.CrossoverPercentage,
			MutationPercentage:  g.MutationPercentage,
			MaxGenerations:      g.MaxGenerations,
			Initial:             opts.Initial,
			RandomSeed:          opts.Seed,
			Random:              rng,
			Logger:              pl.logger,
			Mutator:             genetic.BestDetailedPlacement{Threshold: threshold},
		})
		if err != nil {
			return nil, err
		}
		return solver, nil
	default:
		return nil, optimization.NewErrorf(optimization.KindInvalidProblem, "unknown solver %q", opts.Solver).
			WithComponent("planner").WithOperation("new-solver")
	}
}

// Run solves problem with solver, logging and recording the outcome.
func (pl *Planner) Run(ctx context.Context, solver optimization.Solver, problem *optimization.Problem) (*optimization.Result, error) {
	start := time.Now()
	logger := pl.logger.With(zap.String("solver", solver.Name()), zap.Int("stops", problem.Size()))
	logger.Debug("solve started")

	res, err := solver.Solve(ctx, problem)
	elapsed := time.Since(start)
	if err != nil {
		pl.recorder.ObserveSolve(solver.Name(), "failed", elapsed, 0)
		logger.Warn("solve failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}

	status := "completed"
	if res.Stopped {
		status = "stopped"
	}
	pl.recorder.ObserveSolve(solver.Name(), status, elapsed, res.Weight)
	logger.Info("solve finished",
		zap.String("status", status),
		zap.Float64("weight", res.Weight),
		zap.Int("iterations", res.Iterations),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

// Improvement returns a callback that counts intermediate results for the
// named solver and then calls next, if any.
func (pl *Planner) Improvement(name string, next optimization.IntermediateResultFunc) optimization.IntermediateResultFunc {
	return func(order []int, weight float64) {
		pl.recorder.ObserveImprovement(name)
		if next != nil {
			next(order, weight)
		}
	}
}
