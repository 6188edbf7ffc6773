package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, row-major, CPU-resident tensor.
//
// Data is kept as float32 and rounded to DType on every write through the
// constructors and Set. Kernels that write through Data directly are expected
// to round with DType().RoundSlice before handing the tensor out.
//
// Example:
//
//	q := tensor.Zeros(tensor.Shape{1, 8, 1, 2}, tensor.Float32)
//	q.Set(0.5, 0, 3, 0, 1)
type Tensor struct {
	shape   Shape
	strides []int
	dtype   DataType
	data    []float32
}

// New creates a zero-filled tensor with the given shape and storage type.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		dtype:   dtype,
		data:    make([]float32, shape.NumElements()),
	}, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied and every element rounded to dtype.
func FromSlice(data []float32, shape Shape, dtype DataType) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape, dtype)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	dtype.RoundSlice(t.data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's storage type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying row-major buffer (no copy).
func (t *Tensor) Data() []float32 {
	return t.data
}

// Offset returns the flat offset of the element at idx.
func (t *Tensor) Offset(idx ...int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d (size %d)", v, i, t.shape[i]))
		}
		off += v * t.strides[i]
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.Offset(idx...)]
}

// Set stores v (rounded to the storage type) at idx.
func (t *Tensor) Set(v float32, idx ...int) {
	t.data[t.Offset(idx...)] = t.dtype.Round(v)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		dtype:   t.dtype,
		data:    data,
	}
}

// AsType returns a copy converted to dtype.
func (t *Tensor) AsType(dtype DataType) *Tensor {
	out := t.Clone()
	out.dtype = dtype
	dtype.RoundSlice(out.data)
	return out
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("cannot reshape %v into %v", t.shape, shape)
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		dtype:   t.dtype,
		data:    t.data,
	}, nil
}

// Scale returns t * s rounded to the storage type.
func (t *Tensor) Scale(s float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	out.dtype.RoundSlice(out.data)
	return out
}

// MaxAbsDiff returns the largest absolute element-wise difference between two
// tensors of the same shape. NaNs propagate.
func MaxAbsDiff(a, b *Tensor) (float64, error) {
	if !a.shape.Equal(b.shape) {
		return 0, fmt.Errorf("shape mismatch: %v vs %v", a.shape, b.shape)
	}
	var worst float64
	for i := range a.data {
		d := math.Abs(float64(a.data[i]) - float64(b.data[i]))
		if math.IsNaN(d) {
			return d, nil
		}
		worst = max(worst, d)
	}
	return worst, nil
}

// String returns a short description, not the contents.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s%v)", t.dtype, []int(t.shape))
}
