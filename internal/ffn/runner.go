// Package ffn applies position-wise transforms to long sequences one
// sequence block at a time.
package ffn

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/chunk"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

// ErrConfig is returned (wrapped) for chunking and shape errors.
var ErrConfig = chunk.ErrConfig

// Transform is a stateless, position-wise function of a
// (batch, chunk, features) block.
//
// Apply must not mix information across positions: the runner relies on
// that to produce the same result for every chunk size.
type Transform interface {
	Apply(block *tensor.Tensor, key rng.Key, deterministic bool) (*tensor.Tensor, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(block *tensor.Tensor, key rng.Key, deterministic bool) (*tensor.Tensor, error)

// Apply calls f.
func (f TransformFunc) Apply(block *tensor.Tensor, key rng.Key, deterministic bool) (*tensor.Tensor, error) {
	return f(block, key, deterministic)
}

// Runner splits a sequence into blocks and applies a Transform to each.
type Runner struct {
	ChunkSize     int
	Deterministic bool
	Policy        remat.Policy
	Strategy      remat.Strategy
	MaxWorkers    int // 0 means no limit
}

type blockResult struct {
	out *tensor.Tensor
	err error
}

// Run applies t to every ChunkSize-long block of x along axis 1 and
// concatenates the results in block order. Block i receives key.Fold(i).
//
// Blocks run concurrently. The first transform error cancels the rest and
// is returned wrapped with the failing block index.
func (r Runner) Run(ctx context.Context, t Transform, x *tensor.Tensor, key rng.Key) (*tensor.Tensor, error) {
	if x == nil || x.Rank() < 2 {
		return nil, errors.Wrap(ErrConfig, "transform input must have a sequence axis at position 1")
	}
	plan, err := chunk.NewPlan(x.Shape()[1], r.ChunkSize)
	if err != nil {
		return nil, errors.WithMessage(err, "transform")
	}
	klog.V(2).Infof("chunked transform: %d blocks of %d positions, policy %s", plan.NumChunks(), plan.ChunkSize, r.Policy)

	outputs := make([]*tensor.Tensor, plan.NumChunks())
	g, ctx := errgroup.WithContext(ctx)
	if r.MaxWorkers > 0 {
		g.SetLimit(r.MaxWorkers)
	}
	for i, rg := range plan.Ranges() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, err := x.Slice(1, rg.Start, rg.End)
			if err != nil {
				return errors.Wrapf(err, "slicing block %d", i)
			}
			res := remat.Apply(r.Strategy, r.Policy, func() blockResult {
				out, err := t.Apply(block, key.Fold(uint64(i)), r.Deterministic)
				return blockResult{out: out, err: err}
			})
			if res.err != nil {
				return errors.Wrapf(res.err, "transform block %d", i)
			}
			if res.out == nil || res.out.Rank() < 2 || res.out.Shape()[1] != rg.Len() {
				return errors.Errorf("transform block %d: output must keep %d positions on axis 1", i, rg.Len())
			}
			outputs[i] = res.out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tensor.Concat(1, outputs...)
}
