package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyDeterministic(t *testing.T) {
	a := NewKey(7)
	b := NewKey(7)
	for c := uint64(0); c < 100; c++ {
		assert.Equal(t, a.Uint64(c), b.Uint64(c))
	}
	assert.NotEqual(t, NewKey(7).Uint64(0), NewKey(8).Uint64(0))
}

func TestSplitIndependent(t *testing.T) {
	k := NewKey(1)
	left, right := k.Split()
	assert.NotEqual(t, left, right)
	assert.NotEqual(t, k, left)

	l2, r2 := k.Split()
	assert.Equal(t, left, l2)
	assert.Equal(t, right, r2)
}

func TestFoldDistinct(t *testing.T) {
	k := NewKey(3)
	seen := map[Key]bool{}
	for i := uint64(0); i < 64; i++ {
		child := k.Fold(i)
		assert.False(t, seen[child], "fold %d collides", i)
		seen[child] = true
	}
}

func TestBernoulliRate(t *testing.T) {
	k := NewKey(11)
	const n = 20000
	for _, p := range []float64{0.1, 0.5, 0.9} {
		hits := 0
		for c := uint64(0); c < n; c++ {
			if k.Bernoulli(p, c) {
				hits++
			}
		}
		assert.InDelta(t, p, float64(hits)/n, 0.02, "p=%v", p)
	}

	assert.False(t, k.Bernoulli(0, 5))
	assert.True(t, k.Bernoulli(1, 5))
}

func TestFloat64Range(t *testing.T) {
	k := NewKey(5)
	for c := uint64(0); c < 1000; c++ {
		f := k.Float64(c)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}
