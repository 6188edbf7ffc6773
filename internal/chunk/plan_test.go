package chunk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name      string
		seqLen    int
		chunkSize int
		wantErr   bool
	}{
		{"exact", 8, 4, false},
		{"full length", 8, 8, false},
		{"single", 8, 1, false},
		{"indivisible", 8, 3, true},
		{"chunk larger than seq", 4, 8, true},
		{"zero chunk", 8, 0, true},
		{"negative chunk", 8, -2, true},
		{"empty seq", 0, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.seqLen, tt.chunkSize)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfig), "want ErrConfig, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.seqLen/tt.chunkSize, p.NumChunks())
		})
	}
}

func TestPlanRanges(t *testing.T) {
	p, err := NewPlan(12, 4)
	require.NoError(t, err)

	want := []Range{{0, 4}, {4, 8}, {8, 12}}
	if diff := cmp.Diff(want, p.Ranges()); diff != "" {
		t.Errorf("Ranges() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, p.Range(2).Len())
}

func TestPairsOrder(t *testing.T) {
	q, _ := NewPlan(4, 2)
	k, _ := NewPlan(6, 2)

	want := []Pair{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 1}, {1, 2},
	}
	if diff := cmp.Diff(want, Pairs(q, k)); diff != "" {
		t.Errorf("Pairs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCausalSkipEqualChunks(t *testing.T) {
	q, _ := NewPlan(16, 4)
	k, _ := NewPlan(16, 4)
	c := Causal{Query: q, Key: k}

	for qi := 0; qi < 4; qi++ {
		for ki := 0; ki < 4; ki++ {
			assert.Equal(t, ki > qi, c.Skip(qi, ki), "pair (%d, %d)", qi, ki)
		}
	}
}

func TestCausalSkipUnequalChunks(t *testing.T) {
	// Query block 0 covers [0,4); key block 1 covers [2,4) and must be kept.
	q, _ := NewPlan(8, 4)
	k, _ := NewPlan(8, 2)
	c := Causal{Query: q, Key: k}

	assert.False(t, c.Skip(0, 0))
	assert.False(t, c.Skip(0, 1))
	assert.True(t, c.Skip(0, 2))
	assert.True(t, c.Skip(0, 3))
	assert.False(t, c.Skip(1, 3))

	// Query block 1 covers [2,4) with small query chunks; key block 0 covers [0,4).
	q2, _ := NewPlan(8, 2)
	k2, _ := NewPlan(8, 4)
	c2 := Causal{Query: q2, Key: k2}
	assert.False(t, c2.Skip(0, 0))
	assert.True(t, c2.Skip(1, 1))
	assert.False(t, c2.Skip(2, 1))
}

func TestEveryQueryBlockKeepsKeyBlockZero(t *testing.T) {
	for _, sizes := range [][2]int{{1, 1}, {2, 4}, {4, 2}, {8, 8}, {1, 8}} {
		q, _ := NewPlan(8, sizes[0])
		k, _ := NewPlan(8, sizes[1])
		c := Causal{Query: q, Key: k}
		for qi := 0; qi < q.NumChunks(); qi++ {
			assert.False(t, c.Skip(qi, 0), "sizes %v query block %d", sizes, qi)
		}
	}
}

func TestActive(t *testing.T) {
	q, _ := NewPlan(6, 2)
	k, _ := NewPlan(6, 2)

	causal := Active(q, k, NewSkipPolicy(true, q, k))
	want := []Pair{{0, 0}, {1, 0}, {1, 1}, {2, 0}, {2, 1}, {2, 2}}
	if diff := cmp.Diff(want, causal); diff != "" {
		t.Errorf("Active(causal) mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Active(q, k, NewSkipPolicy(false, q, k)), 9)
}
