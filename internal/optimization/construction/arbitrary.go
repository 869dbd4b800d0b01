// Package construction builds tours by cheapest insertion and improves them
// by relocating stops, either one at a time or by randomly cutting and
// reinserting whole segments.
package construction

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/insertion"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

// epsilon is the smallest weight decrease accepted as an improvement.
const epsilon = 1e-9

// Config contains configuration shared by the construction solvers.
type Config struct {
	// Order fixes the sequence in which stops are inserted. Stops missing
	// from it are inserted afterwards in random order.
	Order []int

	// Initial is an optional starting route to complete and improve instead
	// of constructing from scratch. When the problem fixes a first stop it
	// must start with it. Order and Initial index the stops of the problem
	// passed to Solve.
	Initial []int

	// Improve runs the single stop relocation improver after construction.
	Improve bool

	// RandomSeed seeds the random source when Random is nil.
	RandomSeed int64

	// Random overrides the random source.
	Random optimization.Random

	// Logger receives debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// ArbitraryInsertion builds a route by inserting stops one by one at their
// cheapest position.
type ArbitraryInsertion struct {
	optimization.Control

	config Config
	rng    optimization.Random
	logger *zap.Logger
}

// NewArbitraryInsertion creates a new arbitrary insertion solver.
func NewArbitraryInsertion(config Config) *ArbitraryInsertion {
	rng := config.Random
	if rng == nil {
		rng = optimization.NewRandom(config.RandomSeed)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArbitraryInsertion{
		config: config,
		rng:    rng,
		logger: logger.Named("arbitrary-insertion"),
	}
}

// Name implements optimization.Solver.
func (s *ArbitraryInsertion) Name() string { return "tsp-ai" }

// Solve implements optimization.Solver.
func (s *ArbitraryInsertion) Solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	ctx, done := s.Begin(ctx)
	defer done()
	return optimization.SolveAnchored(ctx, p, s.solve)
}

func (s *ArbitraryInsertion) solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	r, weight, err := s.Build(ctx, p, p.Lift(s.config.Initial))
	if err != nil {
		return nil, err
	}
	passes := 0
	if s.config.Improve {
		weight, passes = s.Improve(ctx, p, r, weight)
	}

	order := r.Order()
	weight = p.TourWeight(order)
	s.ReportIntermediate(p, order, weight)
	s.logger.Debug("route constructed",
		zap.Int("stops", len(order)),
		zap.Float64("weight", weight),
		zap.Int("improve_passes", passes))

	return &optimization.Result{
		Order:      order,
		Weight:     weight,
		IsRound:    p.IsRound(),
		Iterations: passes,
		Stopped:    s.Stopped(ctx),
	}, nil
}

// Build completes initial (or the minimal route of p when initial is empty)
// by cheapest insertion and returns the route with its weight. Stops without
// a feasible placement are retried after the others; if a whole round places
// nothing, Build fails with optimization.ErrInfeasible. A stop request makes
// Build append the remaining stops at the end of the route so that the
// result is still complete.
func (s *ArbitraryInsertion) Build(ctx context.Context, p *optimization.Problem, initial []int) (*route.Route, float64, error) {
	var (
		r   *route.Route
		err error
	)
	if len(initial) > 0 {
		r, err = route.FromOrder(p, initial)
	} else {
		r, err = route.New(p)
	}
	if err != nil {
		return nil, 0, err
	}

	pending := s.insertionOrder(p, r)
	weight := r.Weight(p)
	for len(pending) > 0 {
		deferred := pending[:0:0]
		for i, stop := range pending {
			if s.Stopped(ctx) {
				appendRemaining(r, append(deferred, pending[i:]...))
				return r, r.Weight(p), nil
			}
			res, err := insertion.Place(p, r, stop)
			if err != nil {
				deferred = append(deferred, stop)
				continue
			}
			weight += res.Increase
		}
		if len(deferred) == len(pending) {
			return nil, 0, optimization.WrapErrorf(optimization.ErrInfeasible, "%d stops cannot be placed", len(deferred)).
				WithComponent("construction").WithOperation("build")
		}
		pending = deferred
	}
	return r, weight, nil
}

// insertionOrder lists the stops of p that r does not contain yet: first the
// configured order, then the rest shuffled.
func (s *ArbitraryInsertion) insertionOrder(p *optimization.Problem, r *route.Route) []int {
	queued := make([]bool, p.Size())
	out := make([]int, 0, p.Size())
	for _, stop := range p.LiftStops(s.config.Order) {
		if stop < 0 || stop >= p.Size() || queued[stop] || r.Contains(stop) {
			continue
		}
		queued[stop] = true
		out = append(out, stop)
	}
	rest := make([]int, 0, p.Size())
	for _, stop := range p.Along() {
		if !queued[stop] && !r.Contains(stop) {
			rest = append(rest, stop)
		}
	}
	return append(out, optimization.Shuffled(s.rng, rest)...)
}

// Improve relocates single stops to their cheapest position as long as that
// lowers the weight, and returns the new weight with the number of passes
// made. A route that is already locally optimal is left untouched.
func (s *ArbitraryInsertion) Improve(ctx context.Context, p *optimization.Problem, r *route.Route, weight float64) (float64, int) {
	passes := 0
	for improved := true; improved; {
		improved = false
		passes++
		for _, stop := range r.Order() {
			if s.Stopped(ctx) {
				return weight, passes
			}
			if stop == r.First() || stop == r.Last() {
				continue
			}
			delta, moved := relocate(p, r, stop)
			if moved {
				weight += delta
				improved = true
			}
		}
	}
	return weight, passes
}

// relocate removes stop and reinserts it at its best placement when that
// placement differs from the old one and is strictly cheaper.
func relocate(p *optimization.Problem, r *route.Route, stop int) (float64, bool) {
	before, after := r.Prev(stop), r.Next(stop)
	gain := p.Arc(before, stop) + p.Arc(stop, after) - p.Arc(before, after)
	if err := r.Remove(stop); err != nil {
		return 0, false
	}
	res := insertion.BestPlacement(p, r, stop)
	delta := res.Increase - gain
	if res.Feasible() && res.CustomerBefore != before && delta < -epsilon {
		if err := r.InsertAfter(res.CustomerBefore, stop); err == nil {
			return delta, true
		}
	}
	// restore the previous placement
	_ = r.InsertAfter(before, stop)
	return 0, false
}

// appendRemaining places stops at the end of the route, before the fixed
// last stop when there is one.
func appendRemaining(r *route.Route, stops []int) {
	for _, stop := range stops {
		tail := r.Tail()
		if r.Last() != optimization.NoStop && !r.IsRound() {
			tail = r.Prev(r.Last())
		}
		_ = r.InsertAfter(tail, stop)
	}
}
