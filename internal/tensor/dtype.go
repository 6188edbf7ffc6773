// Package tensor provides the dense tensor type used by the blockwise kernels.
package tensor

import (
	"fmt"
	"math"
	"strings"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DataType is the storage precision of a tensor.
//
// Elements are always held as float32 in memory, but every value written into a
// tensor is first rounded to its storage precision, so a Float16 tensor only
// ever contains values representable in IEEE half precision.
type DataType int

// Supported storage types.
const (
	Float32 DataType = iota
	Float16
	BFloat16
)

// Size returns the byte size of one element in storage precision.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16, BFloat16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	default:
		return "unknown"
	}
}

// ParseDataType maps a name such as "float16" or "bf16" to its DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float32", "f32", "fp32", "":
		return Float32, nil
	case "float16", "f16", "fp16", "half":
		return Float16, nil
	case "bfloat16", "bf16":
		return BFloat16, nil
	default:
		return Float32, fmt.Errorf("unsupported data type %q", name)
	}
}

// Round rounds x to the nearest value representable in dt.
func (dt DataType) Round(x float32) float32 {
	switch dt {
	case Float16:
		return float16.Fromfloat32(x).Float32()
	case BFloat16:
		return bfloat16.ToFloat32(bfloat16.FromFloat32(x))
	default:
		return x
	}
}

// RoundSlice rounds every element of xs in place.
func (dt DataType) RoundSlice(xs []float32) {
	if dt == Float32 {
		return
	}
	for i, x := range xs {
		xs[i] = dt.Round(x)
	}
}

// MinValue returns the most negative finite value of dt.
//
// Additive masks use this value instead of -Inf so that a fully masked row
// still has a finite maximum.
func (dt DataType) MinValue() float32 {
	switch dt {
	case Float16:
		return -65504
	case BFloat16:
		// Largest finite bfloat16: 0x7f7f.
		return -bfloat16.ToFloat32(bfloat16.BF16(0x7f7f))
	default:
		return -math.MaxFloat32
	}
}
