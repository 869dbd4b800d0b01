// Package route implements the mutable tour representation shared by all
// solvers.
//
// A Route is a doubly linked cycle stored in two arrays indexed by stop id,
// so neighbour lookup, insertion and removal are O(1). The cycle is always
// anchored at the first stop. Open paths are the same cycle read from First
// to Tail; the closing link Tail -> First only carries weight for round trips
// (see optimization.Problem.Arc).
package route

import (
	"iter"

	"github.com/copyleftdev/tourney/internal/optimization"
)

const none = optimization.NoStop

// Route is an ordered tour over a subset of the stops of a problem. Every
// stop appears at most once. A Route must not be mutated concurrently.
type Route struct {
	first     int
	last      int
	round     bool
	symmetric bool

	next  []int
	prev  []int
	count int
}

// New returns the minimal route of p: the fixed first stop and, when it is
// distinct, the fixed last stop.
func New(p *optimization.Problem) (*Route, error) {
	if p == nil {
		return nil, routeError("new", "problem is nil")
	}
	if !p.HasFirst() {
		return nil, optimization.NewError(optimization.KindInvalidProblem, "route needs a fixed first stop").
			WithComponent("route").WithOperation("new")
	}
	r := &Route{
		first:     p.First(),
		last:      p.Last(),
		round:     p.IsRound(),
		symmetric: p.Symmetric(),
		next:      make([]int, p.Size()),
		prev:      make([]int, p.Size()),
	}
	for i := range r.next {
		r.next[i] = none
		r.prev[i] = none
	}
	r.next[r.first] = r.first
	r.prev[r.first] = r.first
	r.count = 1
	if r.last != none && r.last != r.first {
		r.link(r.first, r.last)
		r.link(r.last, r.first)
		r.count = 2
	}
	return r, nil
}

// FromOrder builds a route visiting order. order must start with the fixed
// first stop, end with the fixed last stop when it is distinct, and must not
// repeat a stop. It may leave stops out.
func FromOrder(p *optimization.Problem, order []int) (*Route, error) {
	r, err := New(p)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 || order[0] != r.first {
		return nil, routeError("from-order", "order must start with first stop %d", r.first)
	}
	hasLast := r.last != none && r.last != r.first
	if hasLast && order[len(order)-1] != r.last {
		return nil, routeError("from-order", "order must end with last stop %d", r.last)
	}
	end := len(order)
	if hasLast {
		end--
	}
	before := r.first
	for _, s := range order[1:end] {
		if err := r.InsertAfter(before, s); err != nil {
			return nil, err
		}
		before = s
	}
	return r, nil
}

// Capacity returns the number of stops of the underlying problem.
func (r *Route) Capacity() int { return len(r.next) }

// Len returns the number of stops currently in the route.
func (r *Route) Len() int { return r.count }

// First returns the anchor stop.
func (r *Route) First() int { return r.first }

// Last returns the fixed last stop or optimization.NoStop.
func (r *Route) Last() int { return r.last }

// Tail returns the final stop of the route before it closes back to First.
func (r *Route) Tail() int { return r.prev[r.first] }

// IsRound reports whether the route is a closed cycle.
func (r *Route) IsRound() bool { return r.round }

// Symmetric reports whether the route was built for a symmetric problem.
func (r *Route) Symmetric() bool { return r.symmetric }

// Contains reports whether stop is part of the route.
func (r *Route) Contains(stop int) bool {
	return stop >= 0 && stop < len(r.next) && r.next[stop] != none
}

// Next returns the successor of stop on the cycle, wrapping from Tail to
// First, or NoStop when stop is absent.
func (r *Route) Next(stop int) int {
	if !r.Contains(stop) {
		return none
	}
	return r.next[stop]
}

// Prev returns the predecessor of stop on the cycle, or NoStop when stop is
// absent.
func (r *Route) Prev(stop int) int {
	if !r.Contains(stop) {
		return none
	}
	return r.prev[stop]
}

// Neighbours returns the stops adjacent to stop. Open routes have no link
// between Tail and First, so their end stops have a single neighbour.
func (r *Route) Neighbours(stop int) []int {
	if !r.Contains(stop) || r.count < 2 {
		return nil
	}
	out := make([]int, 0, 2)
	p, n := r.prev[stop], r.next[stop]
	if r.round || stop != r.first {
		out = append(out, p)
	}
	if (r.round || n != r.first) && (len(out) == 0 || out[0] != n) {
		out = append(out, n)
	}
	return out
}

// Stops yields the stops in route order starting at First.
func (r *Route) Stops() iter.Seq[int] {
	return func(yield func(int) bool) {
		s := r.first
		for i := 0; i < r.count; i++ {
			if !yield(s) {
				return
			}
			s = r.next[s]
		}
	}
}

// Edges yields every link of the cycle, (Tail, First) included. An open
// route's closing link is where an appended stop goes.
func (r *Route) Edges() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		s := r.first
		for i := 0; i < r.count; i++ {
			if !yield(s, r.next[s]) {
				return
			}
			s = r.next[s]
		}
	}
}

// Between yields the stops strictly between a and b walking forward. Round
// routes wrap past Tail; open routes stop at Tail. The sequence is empty when
// either stop is absent and can be ranged over any number of times.
func (r *Route) Between(a, b int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if !r.Contains(a) || !r.Contains(b) {
			return
		}
		if !r.round && a == r.Tail() {
			return
		}
		for s := r.next[a]; s != b; s = r.next[s] {
			if !r.round && s == r.first {
				return
			}
			if !yield(s) {
				return
			}
			if !r.round && s == r.Tail() {
				return
			}
		}
	}
}

// Order returns the stops in route order starting at First.
func (r *Route) Order() []int {
	out := make([]int, 0, r.count)
	for s := range r.Stops() {
		out = append(out, s)
	}
	return out
}

// Clone returns an independent copy of the route.
func (r *Route) Clone() *Route {
	c := *r
	c.next = append([]int(nil), r.next...)
	c.prev = append([]int(nil), r.prev...)
	return &c
}

// Weight returns the total weight of the route under p.
func (r *Route) Weight(p *optimization.Problem) float64 {
	return p.TourWeight(r.Order())
}

// InsertAfter places stop directly after before. It fails when stop is
// already present, before is absent, or before is the fixed last stop of an
// open route.
func (r *Route) InsertAfter(before, stop int) error {
	if stop < 0 || stop >= len(r.next) {
		return routeError("insert-after", "stop %d out of range", stop)
	}
	if r.Contains(stop) {
		return routeError("insert-after", "stop %d already present", stop)
	}
	if !r.Contains(before) {
		return routeError("insert-after", "stop %d is not in the route", before)
	}
	if !r.round && before == r.last {
		return routeError("insert-after", "cannot insert after fixed last stop %d", before)
	}
	after := r.next[before]
	r.link(before, stop)
	r.link(stop, after)
	r.count++
	return nil
}

// Remove takes stop out of the route and links its neighbours. The fixed
// first and last stops cannot be removed.
func (r *Route) Remove(stop int) error {
	if !r.Contains(stop) {
		return routeError("remove", "stop %d is not in the route", stop)
	}
	if stop == r.first || stop == r.last {
		return routeError("remove", "cannot remove fixed endpoint %d", stop)
	}
	r.unlink(stop)
	return nil
}

// CutAndRemove removes length consecutive stops starting at route position
// start (First is position 0), links the two boundary stops and returns the
// removed stops in route order together with the updated weight. weight must
// be the current weight of the route. On error the route is unchanged.
func (r *Route) CutAndRemove(p *optimization.Problem, weight float64, start, length int) ([]int, float64, error) {
	if length <= 0 {
		return nil, weight, routeError("cut-and-remove", "length %d must be positive", length)
	}
	end := r.count
	if r.last != none && r.last != r.first {
		end--
	}
	if start < 1 || start+length > end {
		return nil, weight, routeError("cut-and-remove", "segment [%d,%d) outside movable range [1,%d)", start, start+length, end)
	}

	before := r.first
	for i := 1; i < start; i++ {
		before = r.next[before]
	}
	cut := make([]int, 0, length)
	s := r.next[before]
	removed := p.Arc(before, s)
	for i := 0; i < length; i++ {
		cut = append(cut, s)
		removed += p.Arc(s, r.next[s])
		s = r.next[s]
	}
	after := s

	for _, c := range cut {
		r.next[c] = none
		r.prev[c] = none
	}
	r.link(before, after)
	r.count -= length

	return cut, weight - removed + p.Arc(before, after), nil
}

// Exchange swaps the segment [Next(v1)..v3] with the segment
// [Next(v3)..v5]. The links v1->v2, v3->v4 and v5->v6 become v1->v4,
// v5->v2 and v3->v6, keeping both segments in their original direction.
// The caller guarantees v3 and v5 follow v1 in that order.
func (r *Route) Exchange(v1, v3, v5 int) {
	v2 := r.next[v1]
	v4 := r.next[v3]
	v6 := r.next[v5]
	r.link(v1, v4)
	r.link(v5, v2)
	r.link(v3, v6)
}

func (r *Route) link(a, b int) {
	r.next[a] = b
	r.prev[b] = a
}

func (r *Route) unlink(stop int) {
	p, n := r.prev[stop], r.next[stop]
	r.link(p, n)
	r.next[stop] = none
	r.prev[stop] = none
	r.count--
}

func routeError(op, format string, args ...interface{}) error {
	return optimization.NewErrorf(optimization.KindInvalidRouteOperation, format, args...).
		WithComponent("route").WithOperation(op)
}
