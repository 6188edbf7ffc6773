package attention

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/chunk"
	"github.com/born-ml/blockwise/internal/parallel"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/tensor"
)

// Blockwise computes softmax(q·kᵀ/√d + bias + masks) · v without ever
// holding more than one (queryChunk × keyChunk) score tile per batch element
// and head.
//
// Parameters:
//   - q: Query tensor [batch, qLen, heads, headDim]
//   - k, v: Key and value tensors [batch, kvLen, heads, headDim]
//   - bias: Optional additive bias [1|batch, 1|heads, 1|qLen, 1|kvLen], or nil
//   - cfg: Chunk sizes, masking, dropout and recompute settings
//
// Returns a tensor with the shape and storage type of q. Every configuration
// error is reported before any accumulator is created and wraps ErrConfig.
//
// Example:
//
//	cfg := attention.DefaultConfig()
//	cfg.QueryChunkSize, cfg.KeyChunkSize = 4, 4
//	cfg.Causal = true
//	out, err := attention.Blockwise(q, k, v, nil, cfg)
func Blockwise(q, k, v, bias *tensor.Tensor, cfg Config) (*tensor.Tensor, error) {
	d, err := cfg.validate(q, k, v, bias)
	if err != nil {
		return nil, err
	}

	storage := q.DType()
	working := cfg.workingType(storage)

	// Scale once, outside the block loop, in storage precision.
	query := q.Scale(d.scale())
	if working != storage {
		query = query.AsType(working)
		k = k.AsType(working)
		v = v.AsType(working)
	}

	keys, err := splitBlocks(k, d.key)
	if err != nil {
		return nil, err
	}
	values, err := splitBlocks(v, d.key)
	if err != nil {
		return nil, err
	}

	skip := chunk.NewSkipPolicy(cfg.Causal, d.query, d.key)
	builder := newBiasBuilder(bias, d, cfg, working)

	if klog.V(2).Enabled() {
		active := len(chunk.Active(d.query, d.key, skip))
		tileBytes := uint64(d.batch*d.heads*d.query.ChunkSize*d.key.ChunkSize) * uint64(tensor.Float32.Size())
		klog.Infof("blockwise attention: %d query blocks × %d key blocks, %d active pairs, score tile %s, policy %s",
			d.query.NumChunks(), d.key.NumChunks(), active, humanize.IBytes(tileBytes), cfg.Policy)
	}

	outputs := make([]*tensor.Tensor, d.query.NumChunks())
	errs := make([]error, d.query.NumChunks())
	parallel.For(d.query.NumChunks(), func(qi int) {
		r := d.query.Range(qi)
		qBlock, err := query.Slice(1, r.Start, r.End)
		if err != nil {
			errs[qi] = err
			return
		}
		outputs[qi] = queryBlockAttention(qi, qBlock, keys, values, builder, skip, d, cfg, working).Output(storage)
	}, cfg.Parallel)

	for _, err := range errs {
		if err != nil {
			return nil, errors.Wrap(err, "slicing query block")
		}
	}
	return tensor.Concat(1, outputs...)
}

// queryBlockAttention folds every key block into a fresh carry for query
// block qi, strictly in ascending key order.
func queryBlockAttention(
	qi int,
	qBlock *tensor.Tensor,
	keys, values []*tensor.Tensor,
	builder *BiasBuilder,
	skip chunk.SkipPolicy,
	d dims,
	cfg Config,
	working tensor.DataType,
) Carry {
	carry := NewCarry(d.batch, d.query.ChunkSize, d.heads, d.headDim, working)
	for ki := range keys {
		if skip.Skip(qi, ki) {
			continue
		}
		prev := carry
		carry = remat.Apply(cfg.Strategy, cfg.Policy, func() Carry {
			return summarize(prev, qBlock, keys[ki], values[ki], builder, qi, ki)
		})
	}
	return carry
}

// summarize is one chunk step: a pure function of the carry, the three
// blocks and the block indices.
func summarize(carry Carry, qBlock, kBlock, vBlock *tensor.Tensor, builder *BiasBuilder, qi, ki int) Carry {
	return carry.Fold(qBlock, kBlock, vBlock, builder.Tile(qi, ki))
}

// splitBlocks cuts t along the sequence axis according to p.
func splitBlocks(t *tensor.Tensor, p chunk.Plan) ([]*tensor.Tensor, error) {
	blocks := make([]*tensor.Tensor, p.NumChunks())
	for i, r := range p.Ranges() {
		b, err := t.Slice(1, r.Start, r.End)
		if err != nil {
			return nil, err
		}
		blocks[i] = b
	}
	return blocks, nil
}
