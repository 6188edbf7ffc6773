package loss

import (
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/tensor"
)

func fixture(n, vocab int, seed uint64) (*tensor.Tensor, []int32) {
	logits := tensor.Randn(tensor.Shape{n, vocab}, tensor.Float32, seed)
	targets := make([]int32, n)
	for i := range targets {
		targets[i] = int32((i*7 + int(seed)) % vocab)
	}
	return logits, targets
}

func TestUniformLogits(t *testing.T) {
	logits := tensor.Zeros(tensor.Shape{4, 4}, tensor.Float32)
	targets := []int32{0, 0, 0, 0}

	res, err := Aggregator{ChunkSize: 2}.Compute(logits, targets, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), res.Loss, 1e-12)
	assert.InDelta(t, 1.0, res.Accuracy, 1e-12, "argmax of a uniform row is index 0")
}

func TestFullBlockMatchesReference(t *testing.T) {
	logits, targets := fixture(12, 5, 1)
	valid := []float32{1, 1, 0, 1, 0, 1, 1, 1, 0, 0, 1, 1}

	want, err := Reference(logits, targets, valid)
	require.NoError(t, err)
	got, err := Aggregator{ChunkSize: 12}.Compute(logits, targets, valid)
	require.NoError(t, err)
	assert.InDelta(t, want.Loss, got.Loss, 1e-12)
	assert.InDelta(t, want.Accuracy, got.Accuracy, 1e-12)
	assert.Greater(t, got.Loss, 0.0)
}

func TestBlocksAreAveraged(t *testing.T) {
	logits, targets := fixture(12, 5, 2)
	valid := []float32{1, 0, 0, 1, 1, 1, 1, 0, 1, 0, 1, 1}

	for _, chunkSize := range []int{1, 2, 3, 4, 6} {
		t.Run(fmt.Sprintf("chunk=%d", chunkSize), func(t *testing.T) {
			var wantLoss, wantAcc float64
			blocks := 12 / chunkSize
			for b := 0; b < blocks; b++ {
				part, err := logits.Slice(0, b*chunkSize, (b+1)*chunkSize)
				require.NoError(t, err)
				r, err := Reference(part, targets[b*chunkSize:(b+1)*chunkSize], valid[b*chunkSize:(b+1)*chunkSize])
				require.NoError(t, err)
				wantLoss += r.Loss
				wantAcc += r.Accuracy
			}

			got, err := Aggregator{ChunkSize: chunkSize}.Compute(logits, targets, valid)
			require.NoError(t, err)
			assert.InDelta(t, wantLoss/float64(blocks), got.Loss, 1e-12)
			assert.InDelta(t, wantAcc/float64(blocks), got.Accuracy, 1e-12)
		})
	}
}

func TestAllValidChunkInvariance(t *testing.T) {
	logits, targets := fixture(16, 7, 3)
	want, err := Reference(logits, targets, nil)
	require.NoError(t, err)

	for _, chunkSize := range []int{1, 2, 4, 8, 16} {
		got, err := Aggregator{ChunkSize: chunkSize}.Compute(logits, targets, nil)
		require.NoError(t, err)
		assert.InDelta(t, want.Loss, got.Loss, 1e-9, "chunk %d", chunkSize)
		assert.InDelta(t, want.Accuracy, got.Accuracy, 1e-9, "chunk %d", chunkSize)
	}
}

func TestFullyInvalidBlockStillCounts(t *testing.T) {
	logits, targets := fixture(8, 5, 4)
	valid := []float32{1, 1, 1, 1, 0, 0, 0, 0}

	first, err := Reference(mustSlice(t, logits, 0, 4), targets[:4], nil)
	require.NoError(t, err)

	got, err := Aggregator{ChunkSize: 4}.Compute(logits, targets, valid)
	require.NoError(t, err)
	assert.InDelta(t, first.Loss/2, got.Loss, 1e-12)
	assert.InDelta(t, first.Accuracy/2, got.Accuracy, 1e-12)

	// The full-batch reference excludes nothing either, but has one block.
	full, err := Reference(logits, targets, valid)
	require.NoError(t, err)
	assert.InDelta(t, first.Loss, full.Loss, 1e-12)
}

func TestAllInvalid(t *testing.T) {
	logits, targets := fixture(4, 3, 5)
	res, err := Aggregator{ChunkSize: 2}.Compute(logits, targets, make([]float32, 4))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(res.Loss))
	assert.InDelta(t, 0, res.Loss, 1e-12)
	assert.InDelta(t, 0, res.Accuracy, 1e-12)
}

func TestFractionalValidityGates(t *testing.T) {
	logits, err := tensor.FromSlice([]float32{2, 0, 0, 0, 1, 0}, tensor.Shape{2, 3}, tensor.Float32)
	require.NoError(t, err)
	targets := []int32{0, 2}
	valid := []float32{0.5, 1}

	// Both rows enter the numerator in full; the weights only form the count.
	lp0 := 2 - math.Log(math.Exp(2)+2)
	lp1 := -math.Log(math.E + 2)
	wantLoss := -(lp0 + lp1) / 1.5

	got, err := Aggregator{ChunkSize: 2}.Compute(logits, targets, valid)
	require.NoError(t, err)
	assert.InDelta(t, wantLoss, got.Loss, 1e-6)
	assert.InDelta(t, 1/1.5, got.Accuracy, 1e-12)

	ref, err := Reference(logits, targets, valid)
	require.NoError(t, err)
	assert.InDelta(t, got.Loss, ref.Loss, 1e-12)
	assert.InDelta(t, got.Accuracy, ref.Accuracy, 1e-12)
}

func TestNegativeValidityIsExcluded(t *testing.T) {
	logits, targets := fixture(3, 4, 9)

	zero, err := Aggregator{ChunkSize: 3}.Compute(logits, targets, []float32{0, 1, 1})
	require.NoError(t, err)
	neg, err := Aggregator{ChunkSize: 3}.Compute(logits, targets, []float32{-0.5, 1, 1})
	require.NoError(t, err)

	// Same numerator, count 1.5 instead of 2.
	assert.Greater(t, neg.Loss, 0.0)
	assert.InDelta(t, zero.Loss*2/1.5, neg.Loss, 1e-9)
	assert.InDelta(t, zero.Accuracy*2/1.5, neg.Accuracy, 1e-12)
}

func TestRank3Logits(t *testing.T) {
	logits, targets := fixture(8, 5, 6)
	batched, err := logits.Reshape(tensor.Shape{2, 4, 5})
	require.NoError(t, err)

	a, err := Aggregator{ChunkSize: 4}.Compute(logits, targets, nil)
	require.NoError(t, err)
	b, err := Aggregator{ChunkSize: 4}.Compute(batched, targets, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAccumulatorFold(t *testing.T) {
	var acc Accumulator
	assert.Equal(t, Result{}, acc.Result())

	next := acc.Fold(Contribution{LogProb: -2, Accuracy: 0.5})
	assert.Equal(t, Accumulator{}, acc, "Fold must not modify its receiver")
	next = next.Fold(Contribution{LogProb: -1, Accuracy: 1})
	assert.Equal(t, Result{Loss: 1.5, Accuracy: 0.75}, next.Result())
}

func TestReplayStrategy(t *testing.T) {
	logits, targets := fixture(8, 5, 7)
	a, err := Aggregator{ChunkSize: 2}.Compute(logits, targets, nil)
	require.NoError(t, err)
	b, err := Aggregator{ChunkSize: 2, Policy: remat.EverythingSaveable, Strategy: remat.Replay{Times: 2}}.Compute(logits, targets, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeErrors(t *testing.T) {
	logits, targets := fixture(6, 4, 8)

	tests := []struct {
		name    string
		logits  *tensor.Tensor
		targets []int32
		valid   []float32
		chunk   int
	}{
		{"chunk does not divide", logits, targets, nil, 4},
		{"zero chunk", logits, targets, nil, 0},
		{"target too large", logits, []int32{0, 1, 2, 4, 0, 0}, nil, 2},
		{"negative target", logits, []int32{0, 1, -1, 0, 0, 0}, nil, 2},
		{"target count", logits, targets[:5], nil, 2},
		{"valid count", logits, targets, []float32{1, 1}, 2},
		{"rank 1 logits", tensor.Zeros(tensor.Shape{6}, tensor.Float32), targets, nil, 2},
		{"nil logits", nil, targets, nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregator{ChunkSize: tt.chunk}.Compute(tt.logits, tt.targets, tt.valid)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}
}

func mustSlice(t *testing.T, x *tensor.Tensor, start, end int) *tensor.Tensor {
	t.Helper()
	s, err := x.Slice(0, start, end)
	require.NoError(t, err)
	return s
}
