package planner

import (
	"context"
	"fmt"

	"github.com/copyleftdev/tourney/internal/optimization"
)

// Router is the geometric routing engine a caller turns stop orders into
// navigable paths with. The solver core never calls it.
type Router[P any] interface {
	// PairwiseWeights returns the NxN weight matrix between stops.
	PairwiseWeights(ctx context.Context, vehicle string, stops []int) ([][]float64, error)
	// ShortestPath returns the path from one stop to another.
	ShortestPath(ctx context.Context, vehicle string, from, to int) (P, error)
}

// Leg is one point-to-point part of a planned route.
type Leg[P any] struct {
	From int
	To   int
	Path P
}

// Plan is a solved stop order together with its legs.
type Plan[P any] struct {
	Result *optimization.Result
	Stops  []int
	Legs   []Leg[P]
}

// Legs lists the consecutive stop pairs of res.Order, with the return leg
// to the first stop when the tour is round.
func Legs(res *optimization.Result) [][2]int {
	if res == nil || len(res.Order) < 2 {
		return nil
	}
	legs := make([][2]int, 0, len(res.Order))
	for i := 0; i+1 < len(res.Order); i++ {
		legs = append(legs, [2]int{res.Order[i], res.Order[i+1]})
	}
	if res.IsRound {
		legs = append(legs, [2]int{res.Order[len(res.Order)-1], res.Order[0]})
	}
	return legs
}

// PlanRoute asks router for the weights between stops, solves the ordering
// with the solver named in opts and concatenates the shortest paths of each
// leg. first and last index into stops, or are optimization.NoStop.
func PlanRoute[P any](ctx context.Context, pl *Planner, router Router[P], vehicle string, stops []int, symmetric bool, first, last int, opts Options) (*Plan[P], error) {
	weights, err := router.PairwiseWeights(ctx, vehicle, stops)
	if err != nil {
		return nil, fmt.Errorf("pairwise weights: %w", err)
	}
	problem, err := optimization.NewProblem(weights, symmetric, first, last)
	if err != nil {
		return nil, err
	}
	solver, err := pl.NewSolver(opts, nil)
	if err != nil {
		return nil, err
	}
	res, err := pl.Run(ctx, solver, problem)
	if err != nil {
		return nil, err
	}

	plan := &Plan[P]{Result: res, Stops: make([]int, len(res.Order))}
	for i, idx := range res.Order {
		plan.Stops[i] = stops[idx]
	}
	for _, leg := range Legs(res) {
		from, to := stops[leg[0]], stops[leg[1]]
		path, err := router.ShortestPath(ctx, vehicle, from, to)
		if err != nil {
			return nil, fmt.Errorf("shortest path %d -> %d: %w", from, to, err)
		}
		plan.Legs = append(plan.Legs, Leg[P]{From: from, To: to, Path: path})
	}
	return plan, nil
}
