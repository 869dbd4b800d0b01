package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NoStop marks an absent stop index: an unset endpoint, a missing neighbour
// or an infeasible insertion point.
const NoStop = -1

// Problem is an immutable weighted-distance matrix between stops together
// with the boundary constraints of the tour.
//
// Every solver works on one cyclic view of the tour anchored at First. Arc
// makes that view exact for open paths: the closing arc back to First is free
// and, when Last is fixed, only Last may close the cycle.
type Problem struct {
	weights   *mat.Dense
	size      int
	symmetric bool
	first     int
	last      int
	depot     bool
}

// NewProblem validates weights and builds a Problem. first and last are stop
// indices or NoStop. first == last denotes a round trip; both NoStop denotes
// free endpoints.
func NewProblem(weights [][]float64, symmetric bool, first, last int) (*Problem, error) {
	n := len(weights)
	if n == 0 {
		return nil, invalidProblem("new", "weight matrix is empty")
	}
	data := make([]float64, 0, n*n)
	for i, row := range weights {
		if len(row) != n {
			return nil, invalidProblem("new", "weight matrix is not square: row %d has %d columns, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	return newProblem(mat.NewDense(n, n, data), symmetric, first, last)
}

// NewProblemFromMatrix builds a Problem from any gonum matrix. The values are
// copied, so later changes to m do not affect the problem.
func NewProblemFromMatrix(m mat.Matrix, symmetric bool, first, last int) (*Problem, error) {
	if m == nil {
		return nil, invalidProblem("new", "weight matrix is nil")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, invalidProblem("new", "weight matrix is empty")
	}
	if r != c {
		return nil, invalidProblem("new", "weight matrix is not square: %dx%d", r, c)
	}
	return newProblem(mat.DenseCopyOf(m), symmetric, first, last)
}

func newProblem(w *mat.Dense, symmetric bool, first, last int) (*Problem, error) {
	n, _ := w.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := w.At(i, j)
			if math.IsNaN(v) || v < 0 {
				return nil, invalidProblem("new", "weight (%d,%d)=%v is not a non-negative number", i, j, v)
			}
		}
	}
	if first != NoStop && (first < 0 || first >= n) {
		return nil, invalidProblem("new", "first stop %d out of range [0,%d)", first, n)
	}
	if last != NoStop && (last < 0 || last >= n) {
		return nil, invalidProblem("new", "last stop %d out of range [0,%d)", last, n)
	}
	return &Problem{
		weights:   w,
		size:      n,
		symmetric: symmetric,
		first:     first,
		last:      last,
	}, nil
}

// Size returns the number of stops.
func (p *Problem) Size() int { return p.size }

// Symmetric reports whether weight(i,j) may be assumed equal to weight(j,i).
func (p *Problem) Symmetric() bool { return p.symmetric }

// First returns the fixed first stop or NoStop.
func (p *Problem) First() int { return p.first }

// Last returns the fixed last stop or NoStop.
func (p *Problem) Last() int { return p.last }

// HasFirst reports whether the first stop is fixed.
func (p *Problem) HasFirst() bool { return p.first != NoStop }

// HasLast reports whether the last stop is fixed.
func (p *Problem) HasLast() bool { return p.last != NoStop }

// IsRound reports whether the tour returns to its first stop.
func (p *Problem) IsRound() bool { return p.first != NoStop && p.first == p.last }

// IsVirtual reports whether the problem was produced by AddVirtualDepot.
func (p *Problem) IsVirtual() bool { return p.depot }

// Weight returns the raw matrix entry for travelling from one stop to another.
func (p *Problem) Weight(from, to int) float64 {
	return p.weights.At(from, to)
}

// Arc returns the weight of the directed arc from -> to in the cyclic view of
// the tour. Self arcs weigh 0. For open paths the arc closing the cycle back to
// First weighs 0 and every other arc touching that closure is +Inf.
func (p *Problem) Arc(from, to int) float64 {
	if from == to {
		return 0
	}
	if p.first != NoStop && p.first != p.last {
		if to == p.first {
			if p.last == NoStop || from == p.last {
				return 0
			}
			return math.Inf(1)
		}
		if from == p.last {
			return math.Inf(1)
		}
	}
	return p.weights.At(from, to)
}

// Along returns the stops that are neither the fixed first nor the fixed last
// stop, in index order.
func (p *Problem) Along() []int {
	along := make([]int, 0, p.size)
	for i := 0; i < p.size; i++ {
		if i == p.first || i == p.last {
			continue
		}
		along = append(along, i)
	}
	return along
}

// TourWeight sums Arc over the cyclic order, including the closing arc from
// the final stop back to order[0]. For an order anchored at First this equals
// the path weight of an open route and the cycle weight of a round trip.
func (p *Problem) TourWeight(order []int) float64 {
	if len(order) < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += p.Arc(order[i], order[i+1])
	}
	return total + p.Arc(order[len(order)-1], order[0])
}

// PathWeight sums raw weights along order and adds the closing edge when
// round is set.
func (p *Problem) PathWeight(order []int, round bool) float64 {
	if len(order) < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += p.weights.At(order[i], order[i+1])
	}
	if round {
		total += p.weights.At(order[len(order)-1], order[0])
	}
	return total
}

// AddVirtualDepot returns a new problem with an extra stop 0 that costs
// nothing to reach or leave. Original stops are shifted by one. The depot
// becomes the fixed first stop; it is also the last stop unless the original
// problem fixes one.
func (p *Problem) AddVirtualDepot() (*Problem, error) {
	if p.HasFirst() {
		return nil, invalidProblem("add-virtual-depot", "first stop %d is already fixed", p.first)
	}
	n := p.size + 1
	w := mat.NewDense(n, n, nil)
	w.Slice(1, n, 1, n).(*mat.Dense).Copy(p.weights)

	last := 0
	if p.HasLast() {
		last = p.last + 1
	}
	return &Problem{
		weights:   w,
		size:      n,
		symmetric: p.symmetric,
		first:     0,
		last:      last,
		depot:     true,
	}, nil
}

// Restore maps an order over this problem back to the problem it was derived
// from: the virtual depot is dropped and the remaining indices decremented.
// For problems without a virtual depot it returns a copy of order.
func (p *Problem) Restore(order []int) []int {
	if !p.depot {
		return append([]int(nil), order...)
	}
	out := make([]int, 0, len(order))
	for _, s := range order {
		if s == 0 {
			continue
		}
		out = append(out, s-1)
	}
	return out
}

// Lift maps an order over the problem this one was derived from onto this
// problem, undoing Restore: the virtual depot goes first, every index is
// incremented and a fixed last stop is moved to the end. Empty orders yield
// nil. For problems without a virtual depot it returns a copy of order.
func (p *Problem) Lift(order []int) []int {
	if len(order) == 0 {
		return nil
	}
	if !p.depot {
		return append([]int(nil), order...)
	}
	out := make([]int, 0, len(order)+1)
	out = append(out, 0)
	last := false
	for _, s := range order {
		if p.last != 0 && s+1 == p.last {
			last = true
			continue
		}
		out = append(out, s+1)
	}
	if last {
		out = append(out, p.last)
	}
	return out
}

// LiftStops shifts stop indices of the originating problem onto this one
// without adding the depot. It returns a copy of stops for problems without
// a virtual depot.
func (p *Problem) LiftStops(stops []int) []int {
	if len(stops) == 0 {
		return nil
	}
	out := make([]int, len(stops))
	for i, s := range stops {
		out[i] = s
		if p.depot {
			out[i] = s + 1
		}
	}
	return out
}
