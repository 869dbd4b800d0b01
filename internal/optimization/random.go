package optimization

import (
	"math/rand"
	"time"
)

// Random is the source of every stochastic choice a solver makes: shuffles,
// cut points and tournament picks. *rand.Rand satisfies it. A Random must not
// be shared between concurrent solves.
type Random interface {
	Intn(n int) int
	Int63() int64
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRandom returns a seeded random source. A zero seed selects a time-based
// seed.
func NewRandom(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// DeriveRandom creates an independent stream from base and a stream id. base
// is advanced once so repeated derivations with the same id still differ.
func DeriveRandom(base Random, stream uint64) *rand.Rand {
	var parent int64 = 1
	if base != nil {
		parent = base.Int63()
	}
	return rand.New(rand.NewSource(mixSeed(parent, stream)))
}

// mixSeed is a SplitMix64 finalizer over parent and stream.
func mixSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// Shuffled returns a shuffled copy of stops.
func Shuffled(rng Random, stops []int) []int {
	out := append([]int(nil), stops...)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
