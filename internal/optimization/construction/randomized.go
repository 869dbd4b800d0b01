package construction

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/insertion"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

// DefaultDivisor bounds cut segments to half of the movable stops.
const DefaultDivisor = 2

// RandomizedConfig contains configuration for the randomized arbitrary
// insertion solver.
type RandomizedConfig struct {
	Config

	// Divisor bounds the length of a cut segment to movable/Divisor stops.
	Divisor int

	// MaxTrials caps the number of cut-and-reinsert trials. Zero means the
	// square of the route size.
	MaxTrials int
}

// RandomizedArbitraryInsertion repeatedly cuts a random segment out of the
// best route, reinserts its stops in random order and keeps the result when
// it is strictly lighter.
type RandomizedArbitraryInsertion struct {
	optimization.Control

	config  RandomizedConfig
	builder *ArbitraryInsertion
	rng     optimization.Random
	logger  *zap.Logger
}

// NewRandomizedArbitraryInsertion creates a new randomized solver.
func NewRandomizedArbitraryInsertion(config RandomizedConfig) *RandomizedArbitraryInsertion {
	if config.Divisor < 1 {
		config.Divisor = DefaultDivisor
	}
	builder := NewArbitraryInsertion(config.Config)
	return &RandomizedArbitraryInsertion{
		config:  config,
		builder: builder,
		rng:     builder.rng,
		logger:  builder.logger.Named("randomized"),
	}
}

// Name implements optimization.Solver.
func (s *RandomizedArbitraryInsertion) Name() string { return "tsp-rai" }

// Solve implements optimization.Solver.
func (s *RandomizedArbitraryInsertion) Solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	ctx, done := s.Begin(ctx)
	defer done()
	return optimization.SolveAnchored(ctx, p, s.solve)
}

func (s *RandomizedArbitraryInsertion) solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	r, weight, err := s.builder.Build(ctx, p, p.Lift(s.config.Initial))
	if err != nil {
		return nil, err
	}
	r, weight, trials := s.Run(ctx, p, r, weight)

	order := r.Order()
	weight = p.TourWeight(order)
	s.ReportIntermediate(p, order, weight)
	return &optimization.Result{
		Order:      order,
		Weight:     weight,
		IsRound:    p.IsRound(),
		Iterations: trials,
		Stopped:    s.Stopped(ctx),
	}, nil
}

// Run improves r by cut-and-reinsert trials and returns the best route, its
// weight and the number of trials made. r itself is never modified: every
// trial works on a copy, so a rejected trial has no effect.
func (s *RandomizedArbitraryInsertion) Run(ctx context.Context, p *optimization.Problem, r *route.Route, weight float64) (*route.Route, float64, int) {
	movable := r.Len() - 1
	if r.Last() != optimization.NoStop && !r.IsRound() {
		movable--
	}
	if movable < 2 {
		return r, weight, 0
	}

	maxTrials := s.config.MaxTrials
	if maxTrials <= 0 {
		maxTrials = r.Len() * r.Len()
	}
	maxLength := movable / s.config.Divisor
	if maxLength < 1 {
		maxLength = 1
	}

	best, bestWeight := r, weight
	trial := 0
	for ; trial < maxTrials; trial++ {
		if s.Stopped(ctx) {
			break
		}
		i := s.rng.Intn(movable)
		j := i + 1 + s.rng.Intn(maxLength)
		if j > movable {
			j = movable
		}
		length := j - i
		if length <= 0 {
			continue
		}

		candidate, w, ok := s.trial(p, best, bestWeight, 1+i, length)
		if !ok || w >= bestWeight-epsilon {
			continue
		}
		best, bestWeight = candidate, w
		s.logger.Debug("trial improved route",
			zap.Int("trial", trial),
			zap.Int("cut_start", 1+i),
			zap.Int("cut_length", length),
			zap.Float64("weight", w))
		s.ReportIntermediate(p, best.Order(), bestWeight)
	}
	return best, bestWeight, trial
}

// trial cuts length stops at start out of a copy of r and reinserts them one
// at a time in random order.
func (s *RandomizedArbitraryInsertion) trial(p *optimization.Problem, r *route.Route, weight float64, start, length int) (*route.Route, float64, bool) {
	candidate := r.Clone()
	cut, w, err := candidate.CutAndRemove(p, weight, start, length)
	if err != nil {
		return nil, 0, false
	}
	for _, stop := range optimization.Shuffled(s.rng, cut) {
		res, err := insertion.Place(p, candidate, stop)
		if err != nil {
			return nil, 0, false
		}
		w += res.Increase
	}
	return candidate, w, true
}
