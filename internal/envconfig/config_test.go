package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/blockwise/internal/remat"
)

func TestChunkSizes(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect uint
	}{
		"empty":    {"", 512},
		"set":      {"128", 128},
		"quoted":   {"\"256\"", 256},
		"invalid":  {"abc", 512},
		"negative": {"-1", 512},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BLOCKWISE_QUERY_CHUNK", tt.value)
			assert.Equal(t, tt.expect, QueryChunk())
		})
	}

	t.Setenv("BLOCKWISE_KEY_CHUNK", "")
	assert.Equal(t, uint(1024), KeyChunk())
	t.Setenv("BLOCKWISE_LOSS_CHUNK", " 64 ")
	assert.Equal(t, uint(64), LossChunk())
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"false": false,
		"0":     false,
		"1":     true,
		"true":  true,
		"yes":   true,
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("BLOCKWISE_DEBUG", value)
			assert.Equal(t, expect, Debug())
		})
	}
}

func TestPolicy(t *testing.T) {
	t.Setenv("BLOCKWISE_POLICY", "")
	assert.Equal(t, remat.NothingSaveable, Policy())

	t.Setenv("BLOCKWISE_POLICY", "checkpoint_dots")
	assert.Equal(t, remat.DotsSaveable, Policy())

	t.Setenv("BLOCKWISE_POLICY", "bogus")
	assert.Equal(t, remat.NothingSaveable, Policy())
}

func TestParallel(t *testing.T) {
	t.Setenv("BLOCKWISE_NUM_WORKERS", "1")
	cfg := Parallel()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.NumWorkers)

	t.Setenv("BLOCKWISE_NUM_WORKERS", "6")
	cfg = Parallel()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 6, cfg.NumWorkers)
}

func TestValues(t *testing.T) {
	t.Setenv("BLOCKWISE_KEY_CHUNK", "32")
	vals := Values()
	assert.Len(t, vals, 6)
	assert.Equal(t, "32", vals["BLOCKWISE_KEY_CHUNK"])
}
