package planner

import (
	"context"
	"fmt"
	"testing"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/optimizationtest"
)

func benchProblem(b *testing.B, n int, first, last int) *optimization.Problem {
	b.Helper()
	weights := optimizationtest.RandomWeights(optimization.NewRandom(42), n, 1, 1000, true)
	return optimizationtest.MustProblem(b, weights, true, first, last)
}

func benchOptions(solver string) Options {
	opts := DefaultOptions()
	opts.Solver = solver
	opts.Seed = 42
	opts.Genetic.PopulationSize = 30
	opts.Genetic.StagnationLimit = 10
	return opts
}

// BenchmarkSolverScaling measures how each solver scales with the number of
// stops.
func BenchmarkSolverScaling(b *testing.B) {
	pl := New(nil, nil)
	for _, name := range Names() {
		for _, n := range []int{10, 50, 100} {
			b.Run(fmt.Sprintf("%s/stops=%d", name, n), func(b *testing.B) {
				p := benchProblem(b, n, 0, 0)
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					solver, err := pl.NewSolver(benchOptions(name), nil)
					if err != nil {
						b.Fatalf("Failed to build solver: %v", err)
					}
					if _, err := pl.Run(context.Background(), solver, p); err != nil {
						b.Fatalf("Solve failed: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkBoundaryModes compares round trips, open paths and free endpoints.
func BenchmarkBoundaryModes(b *testing.B) {
	pl := New(nil, nil)
	modes := []struct {
		name        string
		first, last int
	}{
		{"Round", 0, 0},
		{"FixedEnds", 0, 49},
		{"FreeFirst", optimization.NoStop, 49},
		{"Free", optimization.NoStop, optimization.NoStop},
	}
	for _, m := range modes {
		b.Run(m.name, func(b *testing.B) {
			p := benchProblem(b, 50, m.first, m.last)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				solver, _ := pl.NewSolver(benchOptions(ThreeOpt), nil)
				if _, err := pl.Run(context.Background(), solver, p); err != nil {
					b.Fatalf("Solve failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkConcurrentSolves runs independent solves in parallel.
func BenchmarkConcurrentSolves(b *testing.B) {
	pl := New(nil, nil)
	p := benchProblem(b, 50, 0, 0)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			solver, _ := pl.NewSolver(benchOptions(RandomizedArbitraryInsertion), nil)
			if _, err := pl.Run(context.Background(), solver, p); err != nil {
				b.Errorf("Solve failed: %v", err)
				return
			}
		}
	})
}
