// Package insertion finds the cheapest place to insert a stop into a route.
package insertion

import (
	"iter"
	"math"

	"github.com/copyleftdev/tourney/internal/optimization"
)

// Edger is the read-only view of a route the helper scans.
type Edger interface {
	Contains(stop int) bool
	Edges() iter.Seq2[int, int]
}

// Result describes the cheapest insertion of Customer: it replaces the link
// CustomerBefore -> CustomerAfter and raises the route weight by Increase.
// CustomerBefore and CustomerAfter are NoStop when no feasible link exists.
type Result struct {
	Customer       int
	CustomerBefore int
	CustomerAfter  int
	Increase       float64
}

// Feasible reports whether the result names a link to insert into.
func (r Result) Feasible() bool {
	return r.CustomerBefore != optimization.NoStop
}

// BestPlacement scans every link of route and returns the one whose
// replacement by before -> stop -> after increases the weight least. Ties go
// to the first link found walking from the first stop. The route is not
// modified.
func BestPlacement(p *optimization.Problem, route Edger, stop int) Result {
	best := Result{
		Customer:       stop,
		CustomerBefore: optimization.NoStop,
		CustomerAfter:  optimization.NoStop,
		Increase:       math.Inf(1),
	}
	if route.Contains(stop) {
		return best
	}
	for before, after := range route.Edges() {
		increase := p.Arc(before, stop) + p.Arc(stop, after) - p.Arc(before, after)
		if math.IsNaN(increase) || math.IsInf(increase, 0) {
			continue
		}
		if increase < best.Increase {
			best.CustomerBefore = before
			best.CustomerAfter = after
			best.Increase = increase
		}
	}
	if !best.Feasible() {
		best.Increase = math.Inf(1)
	}
	return best
}

// Inserter is a route that accepts insertions.
type Inserter interface {
	Edger
	InsertAfter(before, stop int) error
}

// Place inserts stop at its best placement and returns the placement. An
// infeasible placement leaves the route unchanged and is reported with
// optimization.ErrInfeasible.
func Place(p *optimization.Problem, route Inserter, stop int) (Result, error) {
	res := BestPlacement(p, route, stop)
	if !res.Feasible() {
		return res, optimization.NewErrorf(optimization.KindInfeasible, "stop %d has no feasible placement", stop).
			WithComponent("insertion").WithOperation("place")
	}
	if err := route.InsertAfter(res.CustomerBefore, stop); err != nil {
		return res, err
	}
	return res, nil
}
