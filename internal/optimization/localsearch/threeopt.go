// Package localsearch improves complete routes with 3-opt moves.
//
// The neighbourhood of a pivot v1 with successor v2 is every pair of links
// (v3,v4), (v5,v6) met walking forward from v2. A move replaces
//
//	v1->v2, v3->v4, v5->v6   with   v1->v4, v3->v6, v5->v2
//
// which swaps the segments [v2..v3] and [v4..v5] without reversing either,
// so it is valid for asymmetric weights. Moves are applied on first
// improvement. Don't-look bits skip pivots that recently had no improving
// move; a nearest neighbour list restricts v4 to the closest stops of v1.
package localsearch

import (
	"cmp"
	"context"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/construction"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

const (
	// DefaultNeighbours is the candidate list length per stop.
	DefaultNeighbours = 10

	epsilon = 1e-9
)

// Config contains configuration for the 3-opt solver.
type Config struct {
	// Construction configures the solver that builds the starting route,
	// including an optional Initial route to improve.
	Construction construction.Config

	// NearestNeighbours restricts v4 to the Neighbours closest stops of v1.
	NearestNeighbours bool

	// Neighbours is the candidate list length. Defaults to DefaultNeighbours.
	Neighbours int

	// DontLookBits skips pivots that had no improving move since their
	// neighbourhood last changed.
	DontLookBits bool
}

// ThreeOpt is a hill climber over 3-opt moves.
type ThreeOpt struct {
	optimization.Control

	config  Config
	builder *construction.ArbitraryInsertion
	logger  *zap.Logger

	// dontLook is indexed by stop id.
	dontLook []bool
}

// NewThreeOpt creates a new 3-opt solver.
func NewThreeOpt(config Config) *ThreeOpt {
	if config.Neighbours < 1 {
		config.Neighbours = DefaultNeighbours
	}
	logger := config.Construction.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	builder := construction.NewArbitraryInsertion(config.Construction)
	return &ThreeOpt{
		config:  config,
		builder: builder,
		logger:  logger.Named("three-opt"),
	}
}

// Name implements optimization.Solver.
func (s *ThreeOpt) Name() string { return "tsp-3opt" }

// Solve implements optimization.Solver.
func (s *ThreeOpt) Solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	ctx, done := s.Begin(ctx)
	defer done()
	return optimization.SolveAnchored(ctx, p, s.solve)
}

func (s *ThreeOpt) solve(ctx context.Context, p *optimization.Problem) (*optimization.Result, error) {
	r, weight, err := s.builder.Build(ctx, p, p.Lift(s.config.Construction.Initial))
	if err != nil {
		return nil, err
	}
	s.ReportIntermediate(p, r.Order(), weight)

	weight, passes := s.Improve(ctx, p, r, weight)

	order := r.Order()
	weight = p.TourWeight(order)
	s.ReportIntermediate(p, order, weight)
	return &optimization.Result{
		Order:      order,
		Weight:     weight,
		IsRound:    p.IsRound(),
		Iterations: passes,
		Stopped:    s.Stopped(ctx),
	}, nil
}

// Improve applies improving 3-opt moves to r in place until a full pass
// finds none, and returns the new weight with the number of passes. Routes
// with fewer than three stops are returned as they are.
func (s *ThreeOpt) Improve(ctx context.Context, p *optimization.Problem, r *route.Route, weight float64) (float64, int) {
	if r.Len() < 3 {
		return weight, 0
	}
	s.dontLook = make([]bool, r.Capacity())
	var nearest [][]int
	if s.config.NearestNeighbours {
		nearest = nearestNeighbours(p, r, s.config.Neighbours)
	}

	passes, moves := 0, 0
	for improved := true; improved; {
		improved = false
		passes++
		for _, v1 := range r.Order() {
			if s.Stopped(ctx) {
				return weight, passes
			}
			if s.config.DontLookBits && s.dontLook[v1] {
				continue
			}
			for {
				delta, ok := s.move(p, r, v1, nearest)
				if !ok {
					break
				}
				moves++
				improved = true
				if math.IsInf(delta, 0) || math.IsNaN(delta) {
					weight = r.Weight(p)
				} else {
					weight += delta
				}
			}
			s.dontLook[v1] = true
		}
		if improved {
			s.logger.Debug("3-opt pass improved route",
				zap.Int("pass", passes),
				zap.Int("moves", moves),
				zap.Float64("weight", weight))
			s.ReportIntermediate(p, r.Order(), weight)
		}
	}
	return weight, passes
}

// move applies the first improving move pivoted at v1 and returns its weight
// change.
func (s *ThreeOpt) move(p *optimization.Problem, r *route.Route, v1 int, nearest [][]int) (float64, bool) {
	v2 := r.Next(v1)
	w12 := p.Arc(v1, v2)
	for v3 := v2; ; v3 = r.Next(v3) {
		v4 := r.Next(v3)
		if v4 == v1 {
			return 0, false
		}
		if nearest != nil && !slices.Contains(nearest[v1], v4) {
			continue
		}
		w34 := p.Arc(v3, v4)
		w14 := p.Arc(v1, v4)
		for v5 := v4; v5 != v1; v5 = r.Next(v5) {
			v6 := r.Next(v5)
			weightOld := w12 + w34 + p.Arc(v5, v6)
			weightNew := w14 + p.Arc(v3, v6) + p.Arc(v5, v2)
			if weightNew < weightOld-epsilon {
				r.Exchange(v1, v3, v5)
				s.dontLook[v3] = false
				s.dontLook[v5] = false
				return weightNew - weightOld, true
			}
		}
	}
}

// nearestNeighbours lists, for every stop of r, the k stops of r with the
// lightest arc leaving it.
func nearestNeighbours(p *optimization.Problem, r *route.Route, k int) [][]int {
	stops := r.Order()
	out := make([][]int, r.Capacity())
	for _, v := range stops {
		candidates := make([]int, 0, len(stops)-1)
		for _, u := range stops {
			if u != v {
				candidates = append(candidates, u)
			}
		}
		slices.SortStableFunc(candidates, func(a, b int) int {
			return cmp.Compare(p.Arc(v, a), p.Arc(v, b))
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		out[v] = candidates
	}
	return out
}
