package genetic

import (
	"slices"

	"github.com/copyleftdev/tourney/internal/optimization"
)

// Individual is a candidate tour. Its genome lists the stops between the
// fixed first stop and the fixed last stop, which are left out because every
// individual shares them. Genomes are never modified after creation.
type Individual struct {
	Genome []int

	fitness   float64
	evaluated bool
}

// NewIndividual wraps genome in an unevaluated individual.
func NewIndividual(genome []int) *Individual {
	return &Individual{Genome: genome}
}

// Fitness returns the total weight of the individual's tour, computing it on
// first use.
func (i *Individual) Fitness(p *optimization.Problem) float64 {
	if !i.evaluated {
		i.Recompute(p)
	}
	return i.fitness
}

// Recompute evaluates the fitness again and caches it.
func (i *Individual) Recompute(p *optimization.Problem) float64 {
	i.fitness = Evaluate(p, i.Genome)
	i.evaluated = true
	return i.fitness
}

// Evaluate returns the weight of the tour first -> genome -> last:
//
//	w[first][g0] + sum w[gi][gi+1] + w[gk][last]
//
// with the closing arc of round trips included. Open paths close for free.
func Evaluate(p *optimization.Problem, genome []int) float64 {
	return p.TourWeight(Tour(p, genome))
}

// Tour expands a genome to the full anchored order of p.
func Tour(p *optimization.Problem, genome []int) []int {
	out := make([]int, 0, len(genome)+2)
	out = append(out, p.First())
	out = append(out, genome...)
	if p.HasLast() && !p.IsRound() {
		out = append(out, p.Last())
	}
	return out
}

// GenomeOf strips the fixed endpoints from an anchored order.
func GenomeOf(p *optimization.Problem, order []int) []int {
	out := make([]int, 0, len(order))
	for _, s := range order {
		if s == p.First() || s == p.Last() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ValidGenome reports whether genome is a permutation of the stops of p
// other than the fixed endpoints.
func ValidGenome(p *optimization.Problem, genome []int) bool {
	along := p.Along()
	if len(genome) != len(along) {
		return false
	}
	seen := make([]bool, p.Size())
	for _, s := range genome {
		if s < 0 || s >= p.Size() || s == p.First() || s == p.Last() || seen[s] {
			return false
		}
		seen[s] = true
	}
	return true
}

// Population is a collection of individuals, fittest first after Sort.
type Population []*Individual

// Sort orders the population by ascending weight. Equal weights keep their
// relative order.
func (pop Population) Sort(p *optimization.Problem) {
	slices.SortStableFunc(pop, func(a, b *Individual) int {
		fa, fb := a.Fitness(p), b.Fitness(p)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	})
}

// Best returns the first individual, which is the fittest once sorted.
func (pop Population) Best() *Individual {
	if len(pop) == 0 {
		return nil
	}
	return pop[0]
}
