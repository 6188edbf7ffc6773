// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/blockwise/internal/tensor"
)

// Tensor is a dense row-major tensor whose values are stored as float32 and
// kept representable in its DataType.
type Tensor = tensor.Tensor

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// DataType is the storage type of a tensor.
type DataType = tensor.DataType

// Storage types.
const (
	Float32  DataType = tensor.Float32
	Float16  DataType = tensor.Float16
	BFloat16 DataType = tensor.BFloat16
)

// ParseDataType parses "float32", "float16"/"f16" or "bfloat16"/"bf16".
func ParseDataType(name string) (DataType, error) {
	return tensor.ParseDataType(name)
}

// New creates a zero tensor, validating the shape.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.New(shape, dtype)
}

// FromSlice creates a tensor from data, rounding every value to dtype.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.Float32)
func FromSlice(data []float32, shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.FromSlice(data, shape, dtype)
}

// Zeros creates a tensor filled with zeros. Panics on an invalid shape.
func Zeros(shape Shape, dtype DataType) *Tensor {
	return tensor.Zeros(shape, dtype)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32, dtype DataType) *Tensor {
	return tensor.Full(shape, value, dtype)
}

// Randn creates a tensor with N(0, 1) values; the same seed gives the same tensor.
func Randn(shape Shape, dtype DataType, seed uint64) *Tensor {
	return tensor.Randn(shape, dtype, seed)
}

// Concat joins tensors along axis.
func Concat(axis int, parts ...*Tensor) (*Tensor, error) {
	return tensor.Concat(axis, parts...)
}

// MaxAbsDiff returns the largest absolute element difference of two
// same-shaped tensors.
func MaxAbsDiff(a, b *Tensor) (float64, error) {
	return tensor.MaxAbsDiff(a, b)
}
