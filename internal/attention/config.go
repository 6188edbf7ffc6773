// Package attention implements blockwise (memory-bounded) softmax attention.
//
// Queries and keys/values are cut into fixed-size blocks. Each query block
// folds over the key blocks in ascending order while carrying only a running
// numerator, denominator and maximum, so the largest transient score tile is
// (query chunk × key chunk) per batch element and head instead of
// (query length × key length).
package attention

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/blockwise/internal/chunk"
	"github.com/born-ml/blockwise/internal/parallel"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

// ErrConfig is returned (wrapped) for every configuration or shape error.
var ErrConfig = chunk.ErrConfig

// Config configures Blockwise.
//
// Score and value products run through gonum's float32 GEMM, so there is no
// separate matmul precision setting. Float32Logits selects the working type.
type Config struct {
	QueryChunkSize int // Query positions per block; must divide the query length.
	KeyChunkSize   int // Key positions per block; must divide the key length.
	Causal         bool

	// DropProbability > 0 enables attention dropout unless Deterministic is
	// set. The mask is drawn from a substream split off Key.
	DropProbability float64
	Deterministic   bool
	Key             rng.Key

	// Float32Logits computes scores and the running accumulators in float32
	// even when the inputs are stored in a 16-bit type.
	Float32Logits bool

	// Policy is passed through to Strategy untouched.
	Policy   remat.Policy
	Strategy remat.Strategy

	// Parallel controls fan-out across query blocks.
	Parallel parallel.Config
}

// DefaultConfig returns a config with 512-wide query and 1024-wide key blocks.
func DefaultConfig() Config {
	return Config{
		QueryChunkSize: 512,
		KeyChunkSize:   1024,
		Deterministic:  true,
		Policy:         remat.NothingSaveable,
		Strategy:       remat.Direct{},
		Parallel:       parallel.DefaultConfig(),
	}
}

// dims holds the validated problem geometry.
type dims struct {
	batch   int
	qLen    int
	kvLen   int
	heads   int
	headDim int
	query   chunk.Plan
	key     chunk.Plan
}

// scale is the 1/sqrt(headDim) query pre-scale.
func (d dims) scale() float32 {
	return float32(1 / math.Sqrt(float64(d.headDim)))
}

// validate checks every precondition before any block loop runs.
func (c Config) validate(q, k, v, bias *tensor.Tensor) (dims, error) {
	if q == nil || k == nil || v == nil {
		return dims{}, errors.Wrap(ErrConfig, "query, key and value are required")
	}
	for i, t := range []*tensor.Tensor{q, k, v} {
		if t.Rank() != 4 {
			name := [...]string{"query", "key", "value"}[i]
			return dims{}, errors.Wrapf(ErrConfig, "%s must be rank 4 (batch, seq, heads, head_dim), got shape %v", name, t.Shape())
		}
	}
	if !k.Shape().Equal(v.Shape()) {
		return dims{}, errors.Wrapf(ErrConfig, "key shape %v and value shape %v differ", k.Shape(), v.Shape())
	}
	if k.DType() != q.DType() || v.DType() != q.DType() {
		return dims{}, errors.Wrapf(ErrConfig, "query/key/value dtypes differ: %s/%s/%s", q.DType(), k.DType(), v.DType())
	}

	qs, ks := q.Shape(), k.Shape()
	if qs[0] != ks[0] || qs[2] != ks[2] || qs[3] != ks[3] {
		return dims{}, errors.Wrapf(ErrConfig, "query shape %v incompatible with key shape %v", qs, ks)
	}
	d := dims{batch: qs[0], qLen: qs[1], kvLen: ks[1], heads: qs[2], headDim: qs[3]}

	var err error
	if d.query, err = chunk.NewPlan(d.qLen, c.QueryChunkSize); err != nil {
		return dims{}, errors.WithMessage(err, "query")
	}
	if d.key, err = chunk.NewPlan(d.kvLen, c.KeyChunkSize); err != nil {
		return dims{}, errors.WithMessage(err, "key")
	}

	if bias != nil {
		target := tensor.Shape{d.batch, d.heads, d.qLen, d.kvLen}
		if err := bias.Shape().BroadcastsTo(target); err != nil {
			return dims{}, errors.Wrapf(ErrConfig, "bias shape %v does not broadcast to %v: %v", bias.Shape(), target, err)
		}
	}
	if c.DropProbability < 0 || c.DropProbability >= 1 {
		return dims{}, errors.Wrapf(ErrConfig, "drop probability must be in [0, 1), got %v", c.DropProbability)
	}
	return d, nil
}

// workingType is the precision scores and accumulators are kept in.
func (c Config) workingType(storage tensor.DataType) tensor.DataType {
	if c.Float32Logits {
		return tensor.Float32
	}
	return storage
}

// dropout reports whether a dropout mask is applied.
func (c Config) dropout() bool {
	return !c.Deterministic && c.DropProbability > 0
}
