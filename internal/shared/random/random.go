// Package random implements the seeded random streams that make tournaments
// reproducible.
//
// A Seed is an opaque string. New hashes it into the state of a PCG
// generator, so any string (user supplied or derived) is a valid seed.
// DeriveChild draws a new seed from the parent stream; replaying the same
// root seed with the same sequence of calls reproduces every child seed and
// therefore the whole tournament.
//
// Random is not safe for concurrent use. Derivation order is part of the
// reproducibility contract, so callers own the ordering.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// Seed is an opaque, printable random seed.
type Seed string

const (
	seedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	seedLength   = 20
)

// Random is a deterministic pseudo-random stream.
type Random struct {
	seed Seed
	rng  *mrand.Rand
}

// New creates a stream from seed.
func New(seed Seed) *Random {
	sum := blake2b.Sum256([]byte(seed))
	pcg := mrand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	)
	return &Random{seed: seed, rng: mrand.New(pcg)}
}

// MakeSeed returns a fresh seed from the operating system's entropy source.
// It is the only non-deterministic entry point of the package.
func MakeSeed() Seed {
	buf := make([]byte, seedLength)
	limit := big.NewInt(int64(len(seedAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic("random: entropy source failed: " + err.Error())
		}
		buf[i] = seedAlphabet[n.Int64()]
	}
	return Seed(buf)
}

// Seed returns the seed the stream was created from.
func (r *Random) Seed() Seed {
	return r.seed
}

// Next returns the next value in [0, 1).
func (r *Random) Next() float64 {
	return r.rng.Float64()
}

// Uint32 returns the next 32 bits of the stream.
func (r *Random) Uint32() uint32 {
	return r.rng.Uint32()
}

// IntN returns a value in [0, n). It panics if n <= 0.
func (r *Random) IntN(n int) int {
	return r.rng.IntN(n)
}

// DeriveChild draws a new seed from the stream. The parent advances, so two
// consecutive derivations return different seeds.
func (r *Random) DeriveChild() Seed {
	buf := make([]byte, seedLength)
	for i := range buf {
		buf[i] = seedAlphabet[r.rng.IntN(len(seedAlphabet))]
	}
	return Seed(buf)
}

// Perm returns a random permutation of [0, n).
func (r *Random) Perm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := r.rng.IntN(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// Shuffle returns a shuffled copy of list; list itself is not modified.
func Shuffle[T any](r *Random, list []T) []T {
	out := make([]T, len(list))
	for i, j := range r.Perm(len(list)) {
		out[i] = list[j]
	}
	return out
}
