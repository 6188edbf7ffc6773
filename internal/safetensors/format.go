// Package safetensors reads and writes tensors in the SafeTensors format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Floating tensors are stored as F32, F16 or BF16 according to their
// storage type. Integer id sequences (loss targets) are stored as I32.
package safetensors

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/born-ml/blockwise/internal/tensor"
)

// DType is a SafeTensors element type.
type DType string

// Supported element types.
const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	I32  DType = "I32"
	I64  DType = "I64"
)

// maxHeaderSize bounds the JSON header a reader will accept.
const maxHeaderSize = 100 * 1024 * 1024

// Common errors.
var (
	ErrHeaderTooLarge   = errors.New("header exceeds maximum size")
	ErrNotFound         = errors.New("tensor not found")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrOutOfBounds      = errors.New("tensor extends beyond data section")
)

// Info describes one tensor in the header.
type Info struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data section
}

// Size returns the byte length of the tensor data.
func (i Info) Size() int64 { return i.DataOffsets[1] - i.DataOffsets[0] }

// header is the decoded JSON header.
type header struct {
	Metadata map[string]string
	Tensors  map[string]Info
}

// UnmarshalJSON separates __metadata__ from the tensor entries.
func (h *header) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.Tensors = make(map[string]Info, len(raw))
	for name, value := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return errors.Wrap(err, "metadata")
			}
			continue
		}
		var info Info
		if err := json.Unmarshal(value, &info); err != nil {
			return errors.Wrapf(err, "tensor %s", name)
		}
		h.Tensors[name] = info
	}
	return nil
}

func elementSize(d DType) (int, error) {
	switch d {
	case F32, I32:
		return 4, nil
	case F16, BF16:
		return 2, nil
	case I64:
		return 8, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedDType, "%q", d)
	}
}

func fromDataType(dt tensor.DataType) DType {
	switch dt {
	case tensor.Float16:
		return F16
	case tensor.BFloat16:
		return BF16
	default:
		return F32
	}
}

func toDataType(d DType) (tensor.DataType, error) {
	switch d {
	case F32:
		return tensor.Float32, nil
	case F16:
		return tensor.Float16, nil
	case BF16:
		return tensor.BFloat16, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedDType, "%q is not a floating type", d)
	}
}
