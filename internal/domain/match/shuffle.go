package match

import (
	"fmt"

	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Shuffle is a named ordering policy. It returns a permutation of [0, n):
// element i of the output is element perm[i] of the input.
type Shuffle func(n int, sc ShuffleContext) []int

const (
	ShuffleNone       = "none"
	ShuffleRandom     = "random"
	ShuffleRoundRobin = "roundRobin"
)

var shuffles = map[string]Shuffle{
	ShuffleNone:       shuffleNone,
	ShuffleRandom:     shuffleRandom,
	ShuffleRoundRobin: shuffleRoundRobin,
}

// LookupShuffle returns the policy registered under name.
func LookupShuffle(name string) (Shuffle, error) {
	s, ok := shuffles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShuffle, name)
	}
	return s, nil
}

// Apply returns a reordered copy of list.
func Apply[T any](s Shuffle, list []T, sc ShuffleContext) []T {
	perm := s(len(list), sc)
	out := make([]T, len(perm))
	for i, j := range perm {
		out[i] = list[j]
	}
	return out
}

func shuffleNone(n int, _ ShuffleContext) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

// The child stream is drawn even for empty lists so the parent advances the
// same way regardless of roster shape.
func shuffleRandom(n int, sc ShuffleContext) []int {
	return random.New(sc.Random.DeriveChild()).Perm(n)
}

func shuffleRoundRobin(n int, sc ShuffleContext) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = (i + sc.Index) % n
	}
	return perm
}
