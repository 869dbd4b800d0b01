package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var square = [][]float64{
	{0, 10, 15, 20},
	{10, 0, 35, 25},
	{15, 35, 0, 30},
	{20, 25, 30, 0},
}

func TestNewProblemValidation(t *testing.T) {
	tests := []struct {
		name    string
		weights [][]float64
		first   int
		last    int
		wantErr bool
	}{
		{name: "valid round trip", weights: square, first: 0, last: 0},
		{name: "free endpoints", weights: square, first: NoStop, last: NoStop},
		{name: "open path", weights: square, first: 1, last: 3},
		{name: "single stop", weights: [][]float64{{0}}, first: NoStop, last: NoStop},
		{name: "empty", weights: nil, first: NoStop, last: NoStop, wantErr: true},
		{name: "not square", weights: [][]float64{{0, 1}, {1}}, first: NoStop, last: NoStop, wantErr: true},
		{name: "negative weight", weights: [][]float64{{0, -1}, {1, 0}}, first: NoStop, last: NoStop, wantErr: true},
		{name: "NaN weight", weights: [][]float64{{0, math.NaN()}, {1, 0}}, first: NoStop, last: NoStop, wantErr: true},
		{name: "first out of range", weights: square, first: 4, last: NoStop, wantErr: true},
		{name: "last out of range", weights: square, first: 0, last: -2, wantErr: true},
		{name: "infinite weight allowed", weights: [][]float64{{0, math.Inf(1)}, {1, 0}}, first: 0, last: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProblem(tt.weights, true, tt.first, tt.last)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidProblem))
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.weights), p.Size())
		})
	}
}

func TestNewProblemFromMatrixCopies(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0, 1, 2, 0})
	p, err := NewProblemFromMatrix(m, false, NoStop, NoStop)
	require.NoError(t, err)

	m.Set(0, 1, 99)
	assert.Equal(t, 1.0, p.Weight(0, 1))

	_, err = NewProblemFromMatrix(mat.NewDense(2, 3, nil), false, NoStop, NoStop)
	assert.Error(t, err)
}

func TestArc(t *testing.T) {
	t.Run("round trip uses raw weights", func(t *testing.T) {
		p, err := NewProblem(square, true, 0, 0)
		require.NoError(t, err)
		assert.True(t, p.IsRound())
		assert.Equal(t, 10.0, p.Arc(1, 0))
		assert.Equal(t, 0.0, p.Arc(2, 2))
	})

	t.Run("open path without last closes for free", func(t *testing.T) {
		p, err := NewProblem(square, true, 0, NoStop)
		require.NoError(t, err)
		assert.Equal(t, 0.0, p.Arc(3, 0))
		assert.Equal(t, 25.0, p.Arc(3, 1))
	})

	t.Run("open path with last", func(t *testing.T) {
		p, err := NewProblem(square, true, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, 0.0, p.Arc(3, 0))
		assert.True(t, math.IsInf(p.Arc(2, 0), 1))
		assert.True(t, math.IsInf(p.Arc(3, 1), 1))
		assert.Equal(t, 30.0, p.Arc(2, 3))
	})
}

func TestAlong(t *testing.T) {
	p, err := NewProblem(square, true, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, p.Along())

	p, err = NewProblem(square, true, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, p.Along())
}

func TestTourAndPathWeight(t *testing.T) {
	round, err := NewProblem(square, true, 0, 0)
	require.NoError(t, err)
	order := []int{0, 1, 3, 2}
	assert.Equal(t, 80.0, round.TourWeight(order))
	assert.Equal(t, 80.0, round.PathWeight(order, true))
	assert.Equal(t, 65.0, round.PathWeight(order, false))

	open, err := NewProblem(square, true, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 65.0, open.TourWeight(order))
	assert.True(t, math.IsInf(open.TourWeight([]int{0, 2, 1, 3}), 1))

	assert.Equal(t, 0.0, round.TourWeight([]int{0}))
}

func TestVirtualDepot(t *testing.T) {
	p, err := NewProblem(square, true, NoStop, NoStop)
	require.NoError(t, err)

	d, err := p.AddVirtualDepot()
	require.NoError(t, err)
	assert.True(t, d.IsVirtual())
	assert.Equal(t, 5, d.Size())
	assert.Equal(t, 0, d.First())
	assert.Equal(t, 0, d.Last())
	for i := 0; i < d.Size(); i++ {
		assert.Equal(t, 0.0, d.Weight(0, i))
		assert.Equal(t, 0.0, d.Weight(i, 0))
	}
	assert.Equal(t, 35.0, d.Weight(2, 3))

	assert.Equal(t, []int{2, 0, 3}, d.Restore([]int{0, 3, 1, 4}))

	// A fixed last survives the shift
	withLast, err := NewProblem(square, true, NoStop, 2)
	require.NoError(t, err)
	d, err = withLast.AddVirtualDepot()
	require.NoError(t, err)
	assert.Equal(t, 3, d.Last())
	assert.False(t, d.IsRound())

	anchored, err := NewProblem(square, true, 0, NoStop)
	require.NoError(t, err)
	_, err = anchored.AddVirtualDepot()
	assert.ErrorIs(t, err, ErrInvalidProblem)

	// Restore on a plain problem copies
	order := []int{0, 1}
	out := anchored.Restore(order)
	out[0] = 9
	assert.Equal(t, 0, order[0])
}

func TestLiftUndoesRestore(t *testing.T) {
	free, err := NewProblem(square, true, NoStop, NoStop)
	require.NoError(t, err)
	d, err := free.AddVirtualDepot()
	require.NoError(t, err)

	for _, order := range [][]int{{2, 0, 1, 3}, {1, 3, 0, 2}, {0, 3, 1, 2}, {3}} {
		lifted := d.Lift(order)
		assert.Equal(t, 0, lifted[0])
		assert.Equal(t, order, d.Restore(lifted))
	}
	assert.Equal(t, []int{0, 3, 1, 2, 4}, d.Lift([]int{2, 0, 1, 3}))
	assert.Nil(t, d.Lift(nil))
	assert.Equal(t, []int{3, 1}, d.LiftStops([]int{2, 0}))

	// A fixed last stop moves to the end
	lastOnly, err := NewProblem(square, true, NoStop, 1)
	require.NoError(t, err)
	d, err = lastOnly.AddVirtualDepot()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 2}, d.Lift([]int{1, 0, 2}))
	assert.Equal(t, []int{0, 4, 2}, d.Lift([]int{3, 1}))

	anchored, err := NewProblem(square, true, 0, NoStop)
	require.NoError(t, err)
	order := []int{0, 3, 1}
	out := anchored.Lift(order)
	assert.Equal(t, order, out)
	out[0] = 9
	assert.Equal(t, 0, order[0])
	assert.Equal(t, []int{2, 0}, anchored.LiftStops([]int{2, 0}))
}
