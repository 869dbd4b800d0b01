package route_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/insertion"
	"github.com/copyleftdev/tourney/internal/optimization/optimizationtest"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

func TestCutThenReinsertKeepsEveryStop(t *testing.T) {
	weights := optimizationtest.RandomWeights(optimization.NewRandom(11), 7, 1, 50, false)
	problems := []struct {
		name  string
		p     *optimization.Problem
		order []int
	}{
		{"round", optimizationtest.MustProblem(t, weights, false, 0, 0), []int{0, 1, 2, 3, 4, 5, 6}},
		{"open", optimizationtest.MustProblem(t, weights, false, 0, optimization.NoStop), []int{0, 6, 5, 4, 3, 2, 1}},
		{"fixed last", optimizationtest.MustProblem(t, weights, false, 2, 5), []int{2, 0, 6, 1, 3, 4, 5}},
	}

	for _, pc := range problems {
		movableEnd := len(pc.order)
		if pc.p.HasLast() && !pc.p.IsRound() {
			movableEnd--
		}
		for start := 1; start < movableEnd; start++ {
			for length := 1; start+length <= movableEnd; length++ {
				t.Run(fmt.Sprintf("%s/start=%d/length=%d", pc.name, start, length), func(t *testing.T) {
					r, err := route.FromOrder(pc.p, pc.order)
					require.NoError(t, err)

					cut, weight, err := r.CutAndRemove(pc.p, r.Weight(pc.p), start, length)
					require.NoError(t, err)
					require.Len(t, cut, length)
					assert.Equal(t, len(pc.order)-length, r.Len())

					for _, stop := range cut {
						res, err := insertion.Place(pc.p, r, stop)
						require.NoError(t, err)
						weight += res.Increase
					}

					order := r.Order()
					optimizationtest.AssertPermutation(t, order, pc.p.Size())
					assert.Equal(t, pc.p.First(), order[0])
					if pc.p.HasLast() && !pc.p.IsRound() {
						assert.Equal(t, pc.p.Last(), order[len(order)-1])
					}
					assert.InDelta(t, pc.p.TourWeight(order), weight, 1e-9)
				})
			}
		}
	}
}
