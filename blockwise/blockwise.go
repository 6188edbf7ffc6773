// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package blockwise

import (
	"context"

	"github.com/born-ml/blockwise/internal/attention"
	"github.com/born-ml/blockwise/internal/ffn"
	"github.com/born-ml/blockwise/internal/loss"
	"github.com/born-ml/blockwise/internal/parallel"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

// ErrConfig is wrapped by every configuration and shape error.
var ErrConfig = attention.ErrConfig

// Config configures Attention.
type Config = attention.Config

// DefaultConfig returns 512-wide query blocks, 1024-wide key blocks, no
// dropout and fan-out over all CPUs.
func DefaultConfig() Config {
	return attention.DefaultConfig()
}

// Attention computes softmax(q·kᵀ/√d + bias + masks)·v block by block.
//
// Shapes:
//   - q: [batch, qLen, heads, headDim]
//   - k, v: [batch, kvLen, heads, headDim]
//   - bias: nil or broadcastable to [batch, heads, qLen, kvLen]
//   - output: same shape and storage type as q
func Attention(q, k, v, bias *tensor.Tensor, cfg Config) (*tensor.Tensor, error) {
	return attention.Blockwise(q, k, v, bias, cfg)
}

// ReferenceAttention computes the same result with the full score matrix.
func ReferenceAttention(q, k, v, bias *tensor.Tensor, cfg Config) (*tensor.Tensor, error) {
	return attention.Reference(q, k, v, bias, cfg)
}

// Key is an immutable handle on a random substream.
type Key = rng.Key

// NewKey derives a root key from a seed.
func NewKey(seed uint64) Key {
	return rng.NewKey(seed)
}

// Policy is an opaque recompute-policy token.
type Policy = remat.Policy

// Recompute policies.
const (
	EverythingSaveable  = remat.EverythingSaveable
	NothingSaveable     = remat.NothingSaveable
	DotsSaveable        = remat.DotsSaveable
	DotsWithNoBatchDims = remat.DotsWithNoBatchDims
)

// Strategy evaluates pure chunk steps, possibly more than once.
type Strategy = remat.Strategy

// ParallelConfig controls fan-out across query blocks.
type ParallelConfig = parallel.Config

// Transform is a stateless position-wise function of a block.
type Transform = ffn.Transform

// Runner applies a Transform block by block.
type Runner = ffn.Runner

// MLP is a position-wise feed-forward Transform.
type MLP = ffn.MLP

// NewMLP creates an MLP with Xavier-initialized weights.
func NewMLP(features, hidden int, dtype tensor.DataType, seed uint64) *MLP {
	return ffn.NewMLP(features, hidden, dtype, seed)
}

// RunTransform is shorthand for Runner.Run.
func RunTransform(ctx context.Context, r Runner, t Transform, x *tensor.Tensor, key Key) (*tensor.Tensor, error) {
	return r.Run(ctx, t, x, key)
}

// LossAggregator computes masked cross-entropy block by block.
type LossAggregator = loss.Aggregator

// LossResult is the aggregated loss and accuracy.
type LossResult = loss.Result

// ReferenceLoss computes full-batch masked cross-entropy and accuracy.
func ReferenceLoss(logits *tensor.Tensor, targets []int32, valid []float32) (LossResult, error) {
	return loss.Reference(logits, targets, valid)
}
