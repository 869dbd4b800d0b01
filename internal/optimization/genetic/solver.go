// Package genetic implements a genetic algorithm over stop permutations.
//
// Each generation keeps the elite, breeds children by sequential
// constructive crossover of tournament-selected parents, mutates selected
// individuals by best placement and fills any remaining slots with freshly
// generated individuals. The run ends after StagnationLimit generations
// without a strictly better individual or after MaxGenerations.
package genetic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/construction"
)

const epsilon = 1e-9

// Config contains configuration for the genetic solver.
type Config struct {
	PopulationSize      int
	StagnationLimit     int
	ElitismPercentage   int
	CrossoverPercentage int
	MutationPercentage  int

	// MaxGenerations is the hard generation cap.
	MaxGenerations int

	// Initial is an optional order seeding the first individual.
	Initial []int

	// RandomSeed seeds the random source when Random is nil.
	RandomSeed int64

	// Random overrides the random source.
	Random optimization.Random

	// Logger receives progress output. Defaults to a no-op logger.
	Logger *zap.Logger

	// Operator overrides. Nil selects the defaults: best placement
	// generation, pairwise tournament, sequential constructive crossover
	// and best detailed placement mutation.
	Generator Generator
	Selector  Selector
	Crossover Crossover
	Mutator   Mutator
}

// DefaultConfig returns the default genetic configuration.
func DefaultConfig() Config {
	return Config{
		PopulationSize:      100,
		StagnationLimit:     50,
		ElitismPercentage:   10,
		CrossoverPercentage: 60,
		MutationPercentage:  30,
		MaxGenerations:      1000,
	}
}

// Solver is the genetic algorithm solver.
type Solver struct {
	optimization.Control

	config Config
	rng    optimization.Random
	logger *zap.Logger

	generator Generator
	selector  Selector
	crossover Crossover
	mutator   Mutator
}

// NewSolver validates config and creates a genetic solver. Zero sizes and
// limits take their defaults.
func NewSolver(config Config) (*Solver, error) {
	def := DefaultConfig()
	if config.PopulationSize < 1 {
		config.PopulationSize = def.PopulationSize
	}
	if config.StagnationLimit < 1 {
		config.StagnationLimit = def.StagnationLimit
	}
	if config.MaxGenerations < 1 {
		config.MaxGenerations = def.MaxGenerations
	}
	if config.ElitismPercentage < 0 || config.CrossoverPercentage < 0 || config.MutationPercentage < 0 {
		return nil, optimization.NewError(optimization.KindInvalidProblem, "percentages must not be negative").
			WithComponent("genetic").WithOperation("new")
	}
	if sum := config.ElitismPercentage + config.CrossoverPercentage + config.MutationPercentage; sum > 100 {
		return nil, optimization.NewErrorf(optimization.KindInvalidProblem, "percentages sum to %d, more than 100", sum).
			WithComponent("genetic").WithOperation("new")
	}

	rng := config.Random
	if rng == nil {
		rng = optimization.NewRandom(config.RandomSeed)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Solver{
		config:    config,
		rng:       rng,
		logger:    logger.Named("genetic"),
		generator: config.Generator,
		selector:  config.Selector,
		crossover: config.Crossover,
		mutator:   config.Mutator,
	}
	if s.generator == nil {
		s.generator = NewBestPlacementGenerator(rng)
	}
	if s.selector == nil {
		s.selector = TournamentSelector{Size: 2}
	}
	if s.crossover == nil {
		s.crossover = SequentialConstructiveCrossover{}
	}
	if s.mutator == nil {
		s.mutator = BestDetailedPlacement{Threshold: DefaultMutationThreshold}
	}
	return s, nil
}

// Name implements optimization.Solver.
func (s *Solver) Name() string { return "tsp-ga" }

// Solve implements optimization.Solver.
func (s *Solver) Solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	ctx, done := s.Begin(ctx)
	defer done()
	return optimization.SolveAnchored(ctx, p, s.solve)
}

func (s *Solver) solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	if len(p.Along()) == 0 {
		order := Tour(p, nil)
		return &optimization.Result{Order: order, Weight: p.TourWeight(order), IsRound: p.IsRound()}, nil
	}

	pop, err := s.initialPopulation(ctx, p)
	if err != nil {
		return nil, err
	}
	pop.Sort(p)
	best := pop.Best()
	s.ReportIntermediate(p, Tour(p, best.Genome), best.Fitness(p))

	stagnation, generation := 0, 0
	for generation < s.config.MaxGenerations && stagnation < s.config.StagnationLimit {
		if s.Stopped(ctx) {
			break
		}
		generation++
		pop = s.nextGeneration(ctx, p, pop)

		if candidate := pop.Best(); candidate.Fitness(p) < best.Fitness(p)-epsilon {
			best = candidate
			stagnation = 0
			s.logger.Debug("new best individual",
				zap.Int("generation", generation),
				zap.Float64("fitness", best.Fitness(p)))
			s.ReportIntermediate(p, Tour(p, best.Genome), best.Fitness(p))
			s.ReportProgress(fmt.Sprintf("new best %.3f", best.Fitness(p)), generation, s.config.MaxGenerations)
		} else {
			stagnation++
		}
		s.ReportProgress(fmt.Sprintf("generation %d", generation), generation, s.config.MaxGenerations)
	}

	order := Tour(p, best.Genome)
	weight := p.TourWeight(order)
	s.logger.Info("genetic search finished",
		zap.Int("generations", generation),
		zap.Int("stagnation", stagnation),
		zap.Float64("weight", weight))
	s.ReportIntermediate(p, order, weight)
	return &optimization.Result{
		Order:      order,
		Weight:     weight,
		IsRound:    p.IsRound(),
		Iterations: generation,
		Stopped:    s.Stopped(ctx),
	}, nil
}

func (s *Solver) initialPopulation(ctx context.Context, p *optimization.Problem) (Population, error) {
	pop := make(Population, 0, s.config.PopulationSize)
	if len(s.config.Initial) > 0 {
		builder := construction.NewArbitraryInsertion(construction.Config{Random: s.rng})
		r, _, err := builder.Build(ctx, p, p.Lift(s.config.Initial))
		if err != nil {
			return nil, err
		}
		pop = append(pop, NewIndividual(GenomeOf(p, r.Order())))
	}
	for len(pop) < s.config.PopulationSize {
		ind, err := s.generator.Generate(ctx, p)
		if err != nil {
			return nil, err
		}
		pop = append(pop, ind)
		if s.Stopped(ctx) {
			break
		}
	}
	for _, ind := range pop {
		ind.Fitness(p)
	}
	s.ReportProgress("population initialized", 0, s.config.MaxGenerations)
	return pop, nil
}

// nextGeneration breeds a population of the same size as pop. Candidates
// that fail or are not permutations of the movable stops are replaced by
// their parent.
func (s *Solver) nextGeneration(ctx context.Context, p *optimization.Problem, pop Population) Population {
	size := len(pop)
	elite := size * s.config.ElitismPercentage / 100
	crossed := size * s.config.CrossoverPercentage / 100
	mutated := size * s.config.MutationPercentage / 100

	next := make(Population, 0, size)
	next = append(next, pop[:elite]...)

	for i := 0; i < crossed; i++ {
		a := s.selector.Select(p, pop, s.rng)
		b := s.selector.Select(p, pop, s.rng)
		child, err := s.crossover.Cross(p, a, b, s.rng)
		next = append(next, s.accept(p, child, err, a))
	}
	for i := 0; i < mutated; i++ {
		parent := s.selector.Select(p, pop, s.rng)
		child, err := s.mutator.Mutate(p, parent, s.rng)
		next = append(next, s.accept(p, child, err, parent))
	}
	for len(next) < size {
		fallback := s.selector.Select(p, pop, s.rng)
		if s.Stopped(ctx) {
			next = append(next, fallback)
			continue
		}
		fresh, err := s.generator.Generate(ctx, p)
		next = append(next, s.accept(p, fresh, err, fallback))
	}

	next.Sort(p)
	return next
}

func (s *Solver) accept(p *optimization.Problem, candidate *Individual, err error, fallback *Individual) *Individual {
	if err != nil || candidate == nil || !ValidGenome(p, candidate.Genome) {
		if err != nil {
			s.logger.Debug("candidate rejected", zap.Error(err))
		}
		return fallback
	}
	return candidate
}
