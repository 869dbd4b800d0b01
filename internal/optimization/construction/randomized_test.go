package construction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/optimizationtest"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

func TestRandomizedRunNeverWorsens(t *testing.T) {
	rng := optimization.NewRandom(23)
	p := optimizationtest.MustProblem(t, optimizationtest.RandomWeights(rng, 15, 1, 50, true), true, 0, 0)
	s := NewRandomizedArbitraryInsertion(RandomizedConfig{
		Config:    Config{Random: rng},
		MaxTrials: 200,
	})

	r, w, err := s.builder.Build(context.Background(), p, nil)
	require.NoError(t, err)
	before := r.Order()

	var last = w
	s.OnIntermediateResult(func(_ []int, weight float64) {
		assert.Less(t, weight, last)
		last = weight
	})
	best, bestWeight, trials := s.Run(context.Background(), p, r, w)
	assert.LessOrEqual(t, bestWeight, w)
	assert.Equal(t, 200, trials)
	assert.InDelta(t, best.Weight(p), bestWeight, 1e-6)
	optimizationtest.AssertPermutation(t, best.Order(), p.Size())

	// The input route is untouched
	assert.Equal(t, before, r.Order())
}

func TestRandomizedScenario(t *testing.T) {
	p := optimizationtest.Scenario(t)
	res, err := NewRandomizedArbitraryInsertion(RandomizedConfig{Config: Config{RandomSeed: 4}}).Solve(context.Background(), p)
	require.NoError(t, err)
	optimizationtest.AssertResult(t, p, res, 1e-9)
	assert.LessOrEqual(t, res.Weight, 90.0)
	assert.Equal(t, 16, res.Iterations)
}

func TestRandomizedTooFewMovableStops(t *testing.T) {
	p := optimizationtest.MustProblem(t, optimizationtest.ScenarioWeights, true, 0, 3)
	s := NewRandomizedArbitraryInsertion(RandomizedConfig{Config: Config{RandomSeed: 1}})
	r, err := route.FromOrder(p, []int{0, 1, 3})
	require.NoError(t, err)
	_, _, trials := s.Run(context.Background(), p, r, r.Weight(p))
	assert.Zero(t, trials)
}

func TestRandomizedSeedIsReproducible(t *testing.T) {
	rng := optimization.NewRandom(31)
	p := optimizationtest.MustProblem(t, optimizationtest.RandomWeights(rng, 20, 1, 100, false), false, optimization.NoStop, optimization.NoStop)

	solve := func() *optimization.Result {
		res, err := NewRandomizedArbitraryInsertion(RandomizedConfig{
			Config:    Config{RandomSeed: 99},
			Divisor:   3,
			MaxTrials: 100,
		}).Solve(context.Background(), p)
		require.NoError(t, err)
		return res
	}
	a, b := solve(), solve()
	assert.Equal(t, a.Order, b.Order)
	assert.Equal(t, a.Weight, b.Weight)
	optimizationtest.AssertResult(t, p, a, 1e-6)
}
