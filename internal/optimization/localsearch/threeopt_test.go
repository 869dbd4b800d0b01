package localsearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/construction"
	"github.com/copyleftdev/tourney/internal/optimization/optimizationtest"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

func TestThreeOptScenarioConverges(t *testing.T) {
	p := optimizationtest.Scenario(t)
	configs := []struct {
		name      string
		nearest   bool
		dontLook  bool
		neighbors int
	}{
		{name: "plain"},
		{name: "dont look bits", dontLook: true},
		{name: "nearest neighbours", nearest: true, neighbors: 3},
		{name: "both", nearest: true, dontLook: true},
	}
	for _, c := range configs {
		t.Run(c.name, func(t *testing.T) {
			for seed := int64(1); seed <= 10; seed++ {
				s := NewThreeOpt(Config{
					Construction:      construction.Config{RandomSeed: seed},
					NearestNeighbours: c.nearest,
					Neighbours:        c.neighbors,
					DontLookBits:      c.dontLook,
				})
				res, err := s.Solve(context.Background(), p)
				require.NoError(t, err)
				optimizationtest.AssertResult(t, p, res, 1e-9)
				assert.Equal(t, optimizationtest.ScenarioOptimum, res.Weight, "seed %d", seed)
			}
		})
	}
}

func TestThreeOptFromInitialRoute(t *testing.T) {
	p := optimizationtest.Scenario(t)
	for _, initial := range [][]int{{0, 1, 2, 3}, {0, 2, 1, 3}, {0, 3, 2, 1}} {
		s := NewThreeOpt(Config{Construction: construction.Config{Initial: initial}})
		res, err := s.Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, optimizationtest.ScenarioOptimum, res.Weight, "initial %v", initial)
	}
}

func TestThreeOptImproveMove(t *testing.T) {
	p := optimizationtest.Scenario(t)
	r, err := route.FromOrder(p, []int{0, 2, 1, 3})
	require.NoError(t, err)
	s := NewThreeOpt(Config{})

	w, passes := s.Improve(context.Background(), p, r, r.Weight(p))
	assert.Equal(t, 80.0, w)
	assert.Equal(t, 80.0, r.Weight(p))
	assert.GreaterOrEqual(t, passes, 2)
}

func TestThreeOptTooShort(t *testing.T) {
	p := optimizationtest.MustProblem(t, [][]float64{{0, 3}, {4, 0}}, false, 0, 0)
	res, err := NewThreeOpt(Config{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Order)
	assert.Equal(t, 7.0, res.Weight)
	assert.Zero(t, res.Iterations)
}

func TestThreeOptNeverWorsens(t *testing.T) {
	rng := optimization.NewRandom(41)
	p := optimizationtest.MustProblem(t, optimizationtest.RandomWeights(rng, 25, 1, 100, false), false, 0, 0)
	builder := construction.NewArbitraryInsertion(construction.Config{Random: rng})
	r, w, err := builder.Build(context.Background(), p, nil)
	require.NoError(t, err)

	s := NewThreeOpt(Config{DontLookBits: true, NearestNeighbours: true})
	improved, _ := s.Improve(context.Background(), p, r, w)
	assert.LessOrEqual(t, improved, w)
	assert.InDelta(t, r.Weight(p), improved, 1e-6)
	optimizationtest.AssertPermutation(t, r.Order(), p.Size())
}

func TestThreeOptOpenPathKeepsEndpoints(t *testing.T) {
	rng := optimization.NewRandom(43)
	weights := optimizationtest.RandomWeights(rng, 12, 1, 100, true)

	for _, tc := range []struct {
		name        string
		first, last int
	}{
		{name: "fixed first and last", first: 3, last: 7},
		{name: "fixed first", first: 5, last: optimization.NoStop},
		{name: "fixed last", first: optimization.NoStop, last: 2},
		{name: "free", first: optimization.NoStop, last: optimization.NoStop},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := optimizationtest.MustProblem(t, weights, true, tc.first, tc.last)
			res, err := NewThreeOpt(Config{
				Construction: construction.Config{RandomSeed: 8},
				DontLookBits: true,
			}).Solve(context.Background(), p)
			require.NoError(t, err)
			optimizationtest.AssertResult(t, p, res, 1e-6)
			if tc.last != optimization.NoStop {
				assert.Equal(t, tc.last, res.Order[len(res.Order)-1])
			}
		})
	}
}

func TestThreeOptSeedIsReproducible(t *testing.T) {
	rng := optimization.NewRandom(47)
	p, err := optimization.NewProblemFromMatrix(optimizationtest.EuclideanWeights(rng, 30), true, 0, 0)
	require.NoError(t, err)

	solve := func() *optimization.Result {
		res, err := NewThreeOpt(Config{
			Construction:      construction.Config{RandomSeed: 12},
			NearestNeighbours: true,
			DontLookBits:      true,
		}).Solve(context.Background(), p)
		require.NoError(t, err)
		return res
	}
	a, b := solve(), solve()
	assert.Equal(t, a.Order, b.Order)
	assert.Equal(t, a.Weight, b.Weight)
}

func TestThreeOptStopped(t *testing.T) {
	rng := optimization.NewRandom(53)
	p, err := optimization.NewProblemFromMatrix(optimizationtest.EuclideanWeights(rng, 40), true, 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewThreeOpt(Config{}).Solve(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	optimizationtest.AssertResult(t, p, res, 1e-6)
}

func TestNearestNeighbours(t *testing.T) {
	p := optimizationtest.Scenario(t)
	r, err := route.FromOrder(p, []int{0, 1, 2, 3})
	require.NoError(t, err)

	nn := nearestNeighbours(p, r, 2)
	assert.Equal(t, []int{1, 2}, nn[0])
	assert.Equal(t, []int{0, 3}, nn[1])
	assert.Equal(t, []int{0, 3}, nn[2])
	assert.Equal(t, []int{0, 1}, nn[3])
}

func BenchmarkThreeOpt(b *testing.B) {
	rng := optimization.NewRandom(59)
	p, err := optimization.NewProblemFromMatrix(optimizationtest.EuclideanWeights(rng, 100), true, 0, 0)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := NewThreeOpt(Config{
			Construction:      construction.Config{RandomSeed: int64(i + 1)},
			NearestNeighbours: true,
			DontLookBits:      true,
		})
		if _, err := s.Solve(context.Background(), p); err != nil {
			b.Fatal(err)
		}
	}
}
