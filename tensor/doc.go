// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensors consumed and produced by the
// blockwise kernels.
//
// # Storage Types
//
//   - Float32: IEEE single precision
//   - Float16: IEEE half precision (github.com/x448/float16)
//   - BFloat16: brain floating point, truncating (github.com/d4l3k/go-bfloat16)
//
// Values are always held as float32 and rounded to the storage type on
// every write, so arithmetic on a Float16 tensor observes Float16 rounding.
//
// # Basic Usage
//
//	q := tensor.Randn(tensor.Shape{1, 1024, 8, 64}, tensor.BFloat16, 1)
//	fmt.Println(q.Shape(), q.DType()) // [1 1024 8 64] bfloat16
package tensor
