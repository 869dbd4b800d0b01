package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/tourney/internal/errors"
	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/optimizationtest"
	"github.com/copyleftdev/tourney/internal/optimization/planner"
)

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m := NewManager(cfg, planner.New(nil, nil), NewBroker(), testLogger(t))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func scenarioOptions(solver string) planner.Options {
	opts := planner.DefaultOptions()
	opts.Solver = solver
	opts.Seed = 7
	return opts
}

func TestManagerRunsJob(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Workers: 1})
	m.Start()
	m.Start()

	v, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, v.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err = m.Wait(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, optimizationtest.ScenarioOptimum, *v.Result.Weight)
	assert.NotNil(t, v.StartedAt)

	_, err = m.Wait(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestManagerSeededJobsReproduce(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Workers: 2})
	m.Start()

	weights := optimizationtest.RandomWeights(optimization.NewRandom(3), 12, 1, 100, true)
	problem := optimizationtest.MustProblem(t, weights, true, 0, 0)
	opts := scenarioOptions(planner.RandomizedArbitraryInsertion)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var orders [][]int
	for i := 0; i < 2; i++ {
		v, err := m.Submit(problem, opts)
		require.NoError(t, err)
		v, err = m.Wait(ctx, v.ID)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, v.Status)
		orders = append(orders, v.Result.Order)
	}
	assert.Equal(t, orders[0], orders[1])
}

func TestManagerCancelPending(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Workers: 1})

	v, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
	require.NoError(t, err)
	_, events, err := m.Subscribe(v.ID)
	require.NoError(t, err)

	v, err = m.Cancel(v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, v.Status)
	assert.Nil(t, v.Result)

	evt := <-events
	assert.Equal(t, EventDone, evt.Type)
	m.Unsubscribe(v.ID, events)

	_, err = m.Cancel(v.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	_, err = m.Cancel("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// The worker skips the cancelled job
	m.Start()
	time.Sleep(20 * time.Millisecond)
	got, err := m.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestManagerCancelRunning(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Workers: 1})
	m.Start()

	weights := optimizationtest.RandomWeights(optimization.NewRandom(5), 60, 1, 100, true)
	problem := optimizationtest.MustProblem(t, weights, true, 0, 0)
	opts := scenarioOptions(planner.Genetic)
	opts.Genetic.PopulationSize = 30
	opts.Genetic.StagnationLimit = 1 << 30
	opts.Genetic.MaxGenerations = 1 << 30

	v, err := m.Submit(problem, opts)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := m.Get(v.ID)
		return err == nil && got.Status == StatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	_, err = m.Cancel(v.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err = m.Wait(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, v.Status)
	require.NotNil(t, v.Result)
	assert.True(t, v.Result.Stopped)
	assert.Len(t, v.Result.Order, 60)
}

func TestManagerLimits(t *testing.T) {
	t.Run("max jobs", func(t *testing.T) {
		m := newTestManager(t, ManagerConfig{Workers: 1, MaxJobs: 1})
		_, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
		require.NoError(t, err)
		_, err = m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	})

	t.Run("queue full", func(t *testing.T) {
		m := newTestManager(t, ManagerConfig{Workers: 1, QueueSize: 1})
		_, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
		require.NoError(t, err)
		_, err = m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	})

	t.Run("bad options", func(t *testing.T) {
		m := newTestManager(t, ManagerConfig{Workers: 1})
		opts := scenarioOptions(planner.Genetic)
		opts.Genetic.ElitismPercentage = 90
		_, err := m.Submit(optimizationtest.Scenario(t), opts)
		assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	})
}

func TestManagerRetention(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Workers: 1, Retention: time.Minute})
	m.Start()

	v, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ArbitraryInsertion))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = m.Wait(ctx, v.ID)
	require.NoError(t, err)

	m.mu.Lock()
	m.pruneLocked(time.Now())
	assert.Contains(t, m.jobs, v.ID)
	m.pruneLocked(time.Now().Add(2 * time.Minute))
	assert.NotContains(t, m.jobs, v.ID)
	m.mu.Unlock()
}

func TestManagerClose(t *testing.T) {
	m := NewManager(ManagerConfig{Workers: 1}, planner.New(nil, nil), NewBroker(), testLogger(t))

	v, err := m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	got, err := m.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = m.Submit(optimizationtest.Scenario(t), scenarioOptions(planner.ThreeOpt))
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
