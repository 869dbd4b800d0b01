package genetic

import (
	"context"

	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/construction"
	"github.com/copyleftdev/tourney/internal/optimization/insertion"
	"github.com/copyleftdev/tourney/internal/optimization/route"
)

// Generator creates fresh individuals.
type Generator interface {
	Generate(ctx context.Context, p *optimization.Problem) (*Individual, error)
}

// Selector picks a parent from a population.
type Selector interface {
	Select(p *optimization.Problem, pop Population, rng optimization.Random) *Individual
}

// Crossover combines two parents into a child.
type Crossover interface {
	Cross(p *optimization.Problem, a, b *Individual, rng optimization.Random) (*Individual, error)
}

// Mutator derives a new individual from an existing one.
type Mutator interface {
	Mutate(p *optimization.Problem, ind *Individual, rng optimization.Random) (*Individual, error)
}

// BestPlacementGenerator builds individuals by cheapest insertion of the
// stops in random order.
type BestPlacementGenerator struct {
	builder *construction.ArbitraryInsertion
}

// NewBestPlacementGenerator creates a generator drawing its insertion orders
// from rng.
func NewBestPlacementGenerator(rng optimization.Random) *BestPlacementGenerator {
	return &BestPlacementGenerator{
		builder: construction.NewArbitraryInsertion(construction.Config{Random: rng}),
	}
}

// Generate implements Generator.
func (g *BestPlacementGenerator) Generate(ctx context.Context, p *optimization.Problem) (*Individual, error) {
	r, _, err := g.builder.Build(ctx, p, nil)
	if err != nil {
		return nil, err
	}
	return NewIndividual(GenomeOf(p, r.Order())), nil
}

// TournamentSelector samples Size individuals uniformly and keeps the
// fittest.
type TournamentSelector struct {
	Size int
}

// Select implements Selector.
func (ts TournamentSelector) Select(p *optimization.Problem, pop Population, rng optimization.Random) *Individual {
	size := ts.Size
	if size < 1 {
		size = 2
	}
	winner := pop[rng.Intn(len(pop))]
	for i := 1; i < size; i++ {
		candidate := pop[rng.Intn(len(pop))]
		if candidate.Fitness(p) < winner.Fitness(p) {
			winner = candidate
		}
	}
	return winner
}

// SequentialConstructiveCrossover builds the child stop by stop. From the
// current stop it looks at the next unvisited stop following it in each
// parent and moves to whichever is reached more cheaply. When a parent has
// no unvisited stop left after the current one, the first unvisited stop in
// index order stands in.
type SequentialConstructiveCrossover struct{}

// Cross implements Crossover.
func (SequentialConstructiveCrossover) Cross(p *optimization.Problem, a, b *Individual, _ optimization.Random) (*Individual, error) {
	n := len(a.Genome)
	if len(b.Genome) != n {
		return nil, optimization.NewErrorf(optimization.KindInvalidRouteOperation, "parent genomes differ in length: %d and %d", n, len(b.Genome)).
			WithComponent("genetic").WithOperation("crossover")
	}
	along := p.Along()
	visited := make([]bool, p.Size())
	posA := positions(p.Size(), a.Genome)
	posB := positions(p.Size(), b.Genome)

	child := make([]int, 0, n)
	current := p.First()
	for len(child) < n {
		ca := legitimate(a.Genome, posA, current, visited, along)
		cb := legitimate(b.Genome, posB, current, visited, along)
		next := ca
		if cb != optimization.NoStop && (ca == optimization.NoStop || p.Arc(current, cb) < p.Arc(current, ca)) {
			next = cb
		}
		if next == optimization.NoStop {
			break
		}
		visited[next] = true
		child = append(child, next)
		current = next
	}
	return NewIndividual(child), nil
}

// legitimate returns the first unvisited stop after current in genome,
// falling back to the first unvisited stop of along.
func legitimate(genome, pos []int, current int, visited []bool, along []int) int {
	start := 0
	if current >= 0 && current < len(pos) && pos[current] >= 0 {
		start = pos[current] + 1
	}
	for _, s := range genome[start:] {
		if !visited[s] {
			return s
		}
	}
	for _, s := range along {
		if !visited[s] {
			return s
		}
	}
	return optimization.NoStop
}

func positions(size int, genome []int) []int {
	pos := make([]int, size)
	for i := range pos {
		pos[i] = -1
	}
	for i, s := range genome {
		if s >= 0 && s < size {
			pos[s] = i
		}
	}
	return pos
}

// DefaultMutationThreshold is the probability of the segment variant of
// BestDetailedPlacement.
const DefaultMutationThreshold = 0.5

// BestDetailedPlacement mutates by best placement. With probability
// Threshold it cuts a random contiguous range out of the tour and reinserts
// those stops one by one; otherwise it removes and reinserts every stop in
// turn.
type BestDetailedPlacement struct {
	Threshold float64
}

// Mutate implements Mutator.
func (m BestDetailedPlacement) Mutate(p *optimization.Problem, ind *Individual, rng optimization.Random) (*Individual, error) {
	if len(ind.Genome) < 2 {
		return NewIndividual(append([]int(nil), ind.Genome...)), nil
	}
	r, err := route.FromOrder(p, Tour(p, ind.Genome))
	if err != nil {
		return nil, err
	}
	if rng.Float64() < m.Threshold {
		err = placeRange(p, r, ind, rng)
	} else {
		err = placeEach(p, r, ind.Genome)
	}
	if err != nil {
		return nil, err
	}
	return NewIndividual(GenomeOf(p, r.Order())), nil
}

func placeRange(p *optimization.Problem, r *route.Route, ind *Individual, rng optimization.Random) error {
	n := len(ind.Genome)
	i := rng.Intn(n)
	length := 1 + rng.Intn(n-i)
	cut, _, err := r.CutAndRemove(p, ind.Fitness(p), 1+i, length)
	if err != nil {
		return err
	}
	for _, stop := range cut {
		if _, err := insertion.Place(p, r, stop); err != nil {
			return err
		}
	}
	return nil
}

func placeEach(p *optimization.Problem, r *route.Route, genome []int) error {
	for _, stop := range genome {
		if err := r.Remove(stop); err != nil {
			return err
		}
		if _, err := insertion.Place(p, r, stop); err != nil {
			return err
		}
	}
	return nil
}
