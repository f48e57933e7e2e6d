package random

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameSeedSameStream(t *testing.T) {
	a := New("Seed-1")
	b := New("Seed-1")

	for i := 0; i < 50; i++ {
		require.Equal(t, a.Next(), b.Next(), "value %d", i)
	}
	assert.Equal(t, a.DeriveChild(), b.DeriveChild())
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New("alpha")
	b := New("beta")

	same := 0
	for i := 0; i < 20; i++ {
		if a.Uint32() == b.Uint32() {
			same++
		}
	}
	assert.Less(t, same, 2)
}

func TestDeriveChildAdvancesParent(t *testing.T) {
	r := New("root")

	first := r.DeriveChild()
	second := r.DeriveChild()

	assert.NotEqual(t, first, second)
	assert.Len(t, string(first), seedLength)
}

func TestDerivationOrderIsPartOfTheContract(t *testing.T) {
	a := New("root")
	childA := a.DeriveChild()
	_ = a.Next()
	afterA := a.DeriveChild()

	b := New("root")
	childB := b.DeriveChild()
	afterB := b.DeriveChild()

	assert.Equal(t, childA, childB)
	assert.NotEqual(t, afterA, afterB, "an extra draw in between must change later seeds")
}

func TestNextRange(t *testing.T) {
	r := New("range")
	for i := 0; i < 1000; i++ {
		v := r.Next()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestShuffleDoesNotMutate(t *testing.T) {
	input := []string{"a", "b", "c", "d", "e", "f"}
	original := append([]string(nil), input...)

	out := Shuffle(New("shuffle"), input)

	assert.Equal(t, original, input)
	sorted := append([]string(nil), out...)
	sort.Strings(sorted)
	assert.Equal(t, original, sorted, "shuffle must be a permutation")
}

func TestShuffleIsDeterministic(t *testing.T) {
	input := []int{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, Shuffle(New("x"), input), Shuffle(New("x"), input))
}

func TestMakeSeed(t *testing.T) {
	a := MakeSeed()
	b := MakeSeed()

	assert.Len(t, string(a), seedLength)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, New(a).Seed())
}
