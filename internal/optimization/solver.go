package optimization

import (
	"context"
)

// Solver defines the interface every tour ordering algorithm implements.
type Solver interface {
	// Name returns the registry name of the solver.
	Name() string

	// Solve computes a visiting order for the problem. A stopped solve is
	// not an error: it returns the best complete order held at that moment.
	Solve(ctx context.Context, problem *Problem) (*Result, error)

	// OnIntermediateResult registers a callback for intermediate results.
	// A nil callback deregisters it.
	OnIntermediateResult(fn IntermediateResultFunc)

	// Stop gracefully stops the solve in progress.
	Stop()
}

// Result is the immutable outcome of a solve.
type Result struct {
	// Order holds every stop of the problem exactly once. When the problem
	// fixes a first stop, Order starts with it.
	Order []int
	// Weight is the total weight of Order, including the closing edge when
	// IsRound is set.
	Weight float64
	// IsRound reports whether the tour returns to Order[0].
	IsRound bool
	// Iterations counts the solver specific steps performed (trials,
	// passes or generations).
	Iterations int
	// Stopped reports whether the solve ended on a stop request.
	Stopped bool
}

// SolveFunc solves a problem that has a fixed first stop.
type SolveFunc func(ctx context.Context, problem *Problem) (*Result, error)

// SolveAnchored runs solve on problem when it fixes a first stop and on its
// virtual-depot transform otherwise, mapping the result back. Single stop
// problems are answered directly.
func SolveAnchored(ctx context.Context, problem *Problem, solve SolveFunc) (*Result, error) {
	if problem == nil {
		return nil, NewError(KindInvalidProblem, "problem is nil").WithOperation("solve")
	}
	if problem.Size() == 1 {
		return &Result{
			Order:   []int{0},
			Weight:  0,
			IsRound: problem.IsRound(),
		}, nil
	}
	if problem.HasFirst() {
		return solve(ctx, problem)
	}

	anchored, err := problem.AddVirtualDepot()
	if err != nil {
		return nil, err
	}
	res, err := solve(ctx, anchored)
	if err != nil {
		return nil, err
	}
	order := anchored.Restore(res.Order)
	return &Result{
		Order:      order,
		Weight:     problem.PathWeight(order, false),
		IsRound:    false,
		Iterations: res.Iterations,
		Stopped:    res.Stopped,
	}, nil
}

// ValidOrder reports whether order is a permutation of 0..size-1.
func ValidOrder(order []int, size int) bool {
	if len(order) != size {
		return false
	}
	seen := make([]bool, size)
	for _, s := range order {
		if s < 0 || s >= size || seen[s] {
			return false
		}
		seen[s] = true
	}
	return true
}
