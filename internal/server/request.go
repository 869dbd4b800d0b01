package server

import (
	"fmt"

	"github.com/copyleftdev/tourney/internal/config"
	apperrors "github.com/copyleftdev/tourney/internal/errors"
	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/planner"
)

// SolveRequest is the body of POST /api/v1/solve and the params of the
// tsp.solve method. Unset tunables take the configured defaults.
type SolveRequest struct {
	Weights   [][]float64 `json:"weights"`
	Symmetric bool        `json:"symmetric"`
	First     *int        `json:"first,omitempty"`
	Last      *int        `json:"last,omitempty"`

	Solver     string                     `json:"solver,omitempty"`
	Seed       *int64                     `json:"seed,omitempty"`
	Improve    *bool                      `json:"improve,omitempty"`
	Initial    []int                      `json:"initial,omitempty"`
	Genetic    *planner.GeneticOptions    `json:"genetic,omitempty"`
	ThreeOpt   *planner.ThreeOptOptions   `json:"three_opt,omitempty"`
	Randomized *planner.RandomizedOptions `json:"randomized,omitempty"`
}

// Problem validates the request against maxStops and builds the problem.
func (req *SolveRequest) Problem(maxStops int) (*optimization.Problem, error) {
	n := len(req.Weights)
	if n == 0 {
		return nil, fmt.Errorf("%w: weights are required", apperrors.ErrBadRequest)
	}
	if maxStops > 0 && n > maxStops {
		return nil, fmt.Errorf("%w: %d stops exceed the limit of %d", apperrors.ErrBadRequest, n, maxStops)
	}
	first, last := optimization.NoStop, optimization.NoStop
	if req.First != nil {
		first = *req.First
	}
	if req.Last != nil {
		last = *req.Last
	}
	return optimization.NewProblem(req.Weights, req.Symmetric, first, last)
}

// Options overlays the request tunables on defaults.
func (req *SolveRequest) Options(defaults planner.Options) planner.Options {
	opts := defaults
	if req.Solver != "" {
		opts.Solver = req.Solver
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.Improve != nil {
		opts.Improve = *req.Improve
	}
	if len(req.Initial) > 0 {
		opts.Initial = append([]int(nil), req.Initial...)
	}
	if req.Genetic != nil {
		opts.Genetic = *req.Genetic
	}
	if req.ThreeOpt != nil {
		opts.ThreeOpt = *req.ThreeOpt
	}
	if req.Randomized != nil {
		opts.Randomized = *req.Randomized
	}
	return opts
}

// DefaultOptions converts the solver configuration into planner options.
func DefaultOptions(cfg config.Solver) planner.Options {
	opts := planner.DefaultOptions()
	if cfg.Default != "" {
		opts.Solver = cfg.Default
	}
	opts.Seed = cfg.Seed
	opts.Improve = cfg.Improve
	opts.Genetic = planner.GeneticOptions{
		PopulationSize:      cfg.Genetic.PopulationSize,
		StagnationLimit:     cfg.Genetic.StagnationLimit,
		ElitismPercentage:   cfg.Genetic.ElitismPercentage,
		CrossoverPercentage: cfg.Genetic.CrossoverPercentage,
		MutationPercentage:  cfg.Genetic.MutationPercentage,
		MaxGenerations:      cfg.Genetic.MaxGenerations,
		MutationThreshold:   cfg.Genetic.MutationThreshold,
	}
	opts.ThreeOpt = planner.ThreeOptOptions{
		NearestNeighbours: cfg.ThreeOpt.NearestNeighbours,
		DontLookBits:      cfg.ThreeOpt.DontLookBits,
	}
	opts.Randomized = planner.RandomizedOptions{
		Divisor:   cfg.Randomized.Divisor,
		MaxTrials: cfg.Randomized.MaxTrials,
	}
	return opts
}
