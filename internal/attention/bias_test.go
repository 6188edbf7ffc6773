package attention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

func testBuilder(t *testing.T, bias *tensor.Tensor, cfg Config, seq int) *BiasBuilder {
	t.Helper()
	q, k, v := randQKV(2, seq, seq, 2, 4, tensor.Float32, 7)
	d, err := cfg.validate(q, k, v, bias)
	require.NoError(t, err)
	return newBiasBuilder(bias, d, cfg, tensor.Float32)
}

func TestBiasTileCausal(t *testing.T) {
	b := testBuilder(t, nil, testConfig(4, 2, true), 8)
	neg := tensor.Float32.MinValue()

	tile := b.Tile(1, 2) // queries 4..7, keys 4..5
	require.Equal(t, tensor.Shape{2, 2, 4, 2}, tile.Shape())
	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			want := float32(0)
			if 4+j > 4+i {
				want = neg
			}
			assert.Equal(t, want, tile.At(1, 1, i, j), "q=%d k=%d", 4+i, 4+j)
		}
	}
}

func TestBiasTileBroadcast(t *testing.T) {
	bias := tensor.Randn(tensor.Shape{1, 2, 1, 8}, tensor.Float32, 17)
	b := testBuilder(t, bias, testConfig(4, 4, false), 8)

	tile := b.Tile(1, 1)
	for bi := 0; bi < 2; bi++ {
		for h := 0; h < 2; h++ {
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					assert.Equal(t, bias.At(0, h, 0, 4+j), tile.At(bi, h, i, j))
				}
			}
		}
	}
}

func TestBiasTileDropoutIndependentOfLayout(t *testing.T) {
	cfg := testConfig(4, 4, true)
	cfg.Deterministic = false
	cfg.DropProbability = 0.4
	cfg.Key = rng.NewKey(11)

	blocked := testBuilder(t, nil, cfg, 8)
	cfg.QueryChunkSize, cfg.KeyChunkSize = 8, 8
	whole := testBuilder(t, nil, cfg, 8).Tile(0, 0)

	var dropped int
	for qi := 0; qi < 2; qi++ {
		for ki := 0; ki < 2; ki++ {
			tile := blocked.Tile(qi, ki)
			for bi := 0; bi < 2; bi++ {
				for h := 0; h < 2; h++ {
					for i := 0; i < 4; i++ {
						for j := 0; j < 4; j++ {
							got := tile.At(bi, h, i, j)
							require.Equal(t, whole.At(bi, h, 4*qi+i, 4*ki+j), got)
							if 4*ki+j <= 4*qi+i && got != 0 {
								dropped++
							}
						}
					}
				}
			}
		}
	}
	assert.Positive(t, dropped, "some visible positions should be dropped")
}

func TestBiasTileDeterministicHasNoDropout(t *testing.T) {
	cfg := testConfig(8, 8, false)
	cfg.DropProbability = 0.9
	cfg.Key = rng.NewKey(3)

	tile := testBuilder(t, nil, cfg, 8).Tile(0, 0)
	for _, x := range tile.Data() {
		assert.Zero(t, x)
	}
}
