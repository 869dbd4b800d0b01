// Package optimizationtest holds fixtures and assertions shared by the
// solver tests.
package optimizationtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/tourney/internal/optimization"
)

// ScenarioWeights is a symmetric four stop instance whose optimal round trip
// from stop 0 is 0 -> 1 -> 3 -> 2 -> 0 with weight 80.
var ScenarioWeights = [][]float64{
	{0, 10, 15, 20},
	{10, 0, 35, 25},
	{15, 35, 0, 30},
	{20, 25, 30, 0},
}

// ScenarioOptimum is the optimal round trip weight of ScenarioWeights.
const ScenarioOptimum = 80.0

// Scenario returns the four stop round trip anchored at stop 0.
func Scenario(t testing.TB) *optimization.Problem {
	t.Helper()
	return MustProblem(t, ScenarioWeights, true, 0, 0)
}

// MustProblem builds a problem or fails the test.
func MustProblem(t testing.TB, weights [][]float64, symmetric bool, first, last int) *optimization.Problem {
	t.Helper()
	p, err := optimization.NewProblem(weights, symmetric, first, last)
	require.NoError(t, err)
	return p
}

// RandomWeights generates an n x n weight matrix with entries in [min, max)
// and a zero diagonal. Symmetric matrices mirror the upper triangle.
func RandomWeights(rng optimization.Random, n int, min, max float64, symmetric bool) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || (symmetric && j < i) {
				continue
			}
			w[i][j] = min + rng.Float64()*(max-min)
			if symmetric {
				w[j][i] = w[i][j]
			}
		}
	}
	return w
}

// EuclideanWeights returns the distance matrix of random points in the unit
// square, the usual metric benchmark instance.
func EuclideanWeights(rng optimization.Random, n int) *mat.Dense {
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range xs {
		xs[i], ys[i] = rng.Float64(), rng.Float64()
	}
	w := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w.Set(i, j, math.Hypot(xs[i]-xs[j], ys[i]-ys[j]))
		}
	}
	return w
}

// AssertPermutation checks that order visits every stop of 0..size-1 once.
func AssertPermutation(t testing.TB, order []int, size int) {
	t.Helper()
	require.Truef(t, optimization.ValidOrder(order, size), "order %v is not a permutation of %d stops", order, size)
}

// AssertResult checks that res is a permutation respecting the fixed
// endpoints of p and that its weight matches the order.
func AssertResult(t testing.TB, p *optimization.Problem, res *optimization.Result, tol float64) {
	t.Helper()
	require.NotNil(t, res)
	AssertPermutation(t, res.Order, p.Size())
	if p.HasFirst() {
		require.Equal(t, p.First(), res.Order[0], "order must start at the fixed first stop")
	}
	if p.HasLast() && !p.IsRound() {
		require.Equal(t, p.Last(), res.Order[len(res.Order)-1], "order must end at the fixed last stop")
	}
	require.Equal(t, p.IsRound(), res.IsRound)
	require.InDelta(t, p.PathWeight(res.Order, res.IsRound), res.Weight, tol)
}
