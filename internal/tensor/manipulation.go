package tensor

import "fmt"

// Slice copies the half-open range [start, end) of axis into a new tensor.
//
// Example:
//
//	x := tensor.Zeros(Shape{2, 8, 4}, Float32)
//	y, _ := x.Slice(1, 4, 8) // Shape: [2, 4, 4]
func (t *Tensor) Slice(axis, start, end int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, fmt.Errorf("slice: axis %d out of range for rank %d", axis, len(t.shape))
	}
	if start < 0 || end > t.shape[axis] || start >= end {
		return nil, fmt.Errorf("slice: range [%d, %d) invalid for axis %d of size %d", start, end, axis, t.shape[axis])
	}

	shape := t.shape.Clone()
	shape[axis] = end - start
	out := Zeros(shape, t.dtype)

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= t.shape[i]
	}
	inner := t.strides[axis]
	srcRow := t.shape[axis] * inner
	dstRow := shape[axis] * inner

	for o := 0; o < outer; o++ {
		src := t.data[o*srcRow+start*inner : o*srcRow+end*inner]
		copy(out.data[o*dstRow:(o+1)*dstRow], src)
	}
	return out, nil
}

// Concat joins tensors along axis. All other axes and the storage type must match.
//
// Example:
//
//	a := tensor.Zeros(Shape{2, 3}, Float32)
//	b := tensor.Zeros(Shape{2, 5}, Float32)
//	c, _ := tensor.Concat(1, a, b) // Shape: [2, 8]
func Concat(axis int, parts ...*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: at least one tensor required")
	}
	first := parts[0]
	if axis < 0 || axis >= len(first.shape) {
		return nil, fmt.Errorf("concat: axis %d out of range for rank %d", axis, len(first.shape))
	}

	shape := first.shape.Clone()
	shape[axis] = 0
	for i, p := range parts {
		if len(p.shape) != len(first.shape) || p.dtype != first.dtype {
			return nil, fmt.Errorf("concat: part %d is %s, want rank %d %s", i, p, len(first.shape), first.dtype)
		}
		for d := range p.shape {
			if d != axis && p.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("concat: part %d shape %v incompatible with %v on axis %d", i, p.shape, first.shape, d)
			}
		}
		shape[axis] += p.shape[axis]
	}

	out := Zeros(shape, first.dtype)
	outer := 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	dstRow := shape[axis] * out.strides[axis]

	for o := 0; o < outer; o++ {
		pos := o * dstRow
		for _, p := range parts {
			n := p.shape[axis] * p.strides[axis]
			copy(out.data[pos:pos+n], p.data[o*n:(o+1)*n])
			pos += n
		}
	}
	return out, nil
}
