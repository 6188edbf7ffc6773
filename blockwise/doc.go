// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blockwise computes attention, position-wise transforms and
// cross-entropy over long sequences in fixed-size blocks, so peak memory
// follows the block sizes instead of the sequence length.
//
// # Overview
//
// This package contains:
//   - Attention: softmax attention with an online-softmax carry per query block
//   - Runner: applies a position-wise Transform (e.g. an MLP) block by block
//   - LossAggregator: masked cross-entropy and accuracy block by block
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/blockwise/blockwise"
//	    "github.com/born-ml/blockwise/tensor"
//	)
//
//	func main() {
//	    q := tensor.Randn(tensor.Shape{1, 4096, 8, 64}, tensor.Float32, 1)
//	    k := tensor.Randn(tensor.Shape{1, 4096, 8, 64}, tensor.Float32, 2)
//	    v := tensor.Randn(tensor.Shape{1, 4096, 8, 64}, tensor.Float32, 3)
//
//	    cfg := blockwise.DefaultConfig()
//	    cfg.Causal = true
//	    out, err := blockwise.Attention(q, k, v, nil, cfg)
//	}
//
// # Determinism
//
// Key blocks are folded strictly in order, and query blocks never share
// state, so results do not depend on the worker count. The dropout mask is
// a function of the random key and the global (batch, head, query, key)
// coordinate only, so it does not depend on block sizes either.
package blockwise
