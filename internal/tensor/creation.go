package tensor

import (
	"math"
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
// Panics on an invalid shape, mirroring the other convenience constructors.
func Zeros(shape Shape, dtype DataType) *Tensor {
	t, err := New(shape, dtype)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with value (rounded to dtype).
func Full(shape Shape, value float32, dtype DataType) *Tensor {
	t := Zeros(shape, dtype)
	v := dtype.Round(value)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
//
// The generator is seeded explicitly so that fixtures are reproducible:
// the same (shape, seed) always yields the same tensor.
func Randn(shape Shape, dtype DataType, seed uint64) *Tensor {
	t := Zeros(shape, dtype)
	r := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))

	// Box-Muller transform, two samples per draw.
	for i := 0; i < len(t.data); i += 2 {
		u1 := r.Float64()
		u2 := r.Float64()
		for u1 == 0 {
			u1 = r.Float64()
		}
		radius := math.Sqrt(-2 * math.Log(u1))
		t.data[i] = float32(radius * math.Cos(2*math.Pi*u2))
		if i+1 < len(t.data) {
			t.data[i+1] = float32(radius * math.Sin(2*math.Pi*u2))
		}
	}
	dtype.RoundSlice(t.data)
	return t
}

// Uniform creates a tensor with values drawn uniformly from [-bound, bound].
func Uniform(shape Shape, bound float64, dtype DataType, seed uint64) *Tensor {
	t := Zeros(shape, dtype)
	r := rand.New(rand.NewPCG(seed, 0x6a09e667f3bcc909))
	for i := range t.data {
		t.data[i] = float32((r.Float64()*2 - 1) * bound)
	}
	dtype.RoundSlice(t.data)
	return t
}

// Xavier creates a [fanIn, fanOut] weight with Glorot uniform initialization.
func Xavier(fanIn, fanOut int, dtype DataType, seed uint64) *Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return Uniform(Shape{fanIn, fanOut}, bound, dtype, seed)
}
