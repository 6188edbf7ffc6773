package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Float16, 2},
		{BFloat16, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.dtype.Size(), "%s.Size()", tt.dtype)
	}
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in      string
		want    DataType
		wantErr bool
	}{
		{"float32", Float32, false},
		{"", Float32, false},
		{"FP16", Float16, false},
		{"bf16", BFloat16, false},
		{"int8", Float32, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDataType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataTypeRound(t *testing.T) {
	third := float32(1.0 / 3.0)

	assert.Equal(t, third, Float32.Round(third))
	assert.InDelta(t, 0.333251953125, Float16.Round(third), 1e-12)
	assert.InDelta(t, 0.33203125, BFloat16.Round(third), 1e-12)

	// Rounding is idempotent.
	for _, dt := range []DataType{Float32, Float16, BFloat16} {
		once := dt.Round(third)
		assert.Equal(t, once, dt.Round(once), "%s", dt)
	}
}

func TestDataTypeMinValue(t *testing.T) {
	assert.Equal(t, float32(-math.MaxFloat32), Float32.MinValue())
	assert.Equal(t, float32(-65504), Float16.MinValue())

	bf := BFloat16.MinValue()
	assert.False(t, math.IsInf(float64(bf), 0))
	assert.Less(t, bf, float32(-3.3e38))
	assert.Equal(t, bf, BFloat16.Round(bf), "MinValue must be representable")
}

func TestFromSliceRoundsToStorage(t *testing.T) {
	x, err := FromSlice([]float32{1.0 / 3.0, 2}, Shape{2}, Float16)
	require.NoError(t, err)
	assert.InDelta(t, 0.333251953125, x.Data()[0], 1e-12)
	assert.Equal(t, float32(2), x.Data()[1])

	_, err = FromSlice([]float32{1, 2, 3}, Shape{2, 2}, Float32)
	require.Error(t, err)
}

func TestShapeBroadcastsTo(t *testing.T) {
	target := Shape{2, 4, 8, 8}
	require.NoError(t, Shape{1, 1, 8, 8}.BroadcastsTo(target))
	require.NoError(t, Shape{2, 4, 8, 8}.BroadcastsTo(target))
	require.NoError(t, Shape{1, 4, 1, 8}.BroadcastsTo(target))
	require.Error(t, Shape{3, 1, 8, 8}.BroadcastsTo(target))
	require.Error(t, Shape{1, 8, 8}.BroadcastsTo(target))
}

func TestAtSetOffset(t *testing.T) {
	x := Zeros(Shape{2, 3, 4}, Float32)
	x.Set(7, 1, 2, 3)
	assert.Equal(t, float32(7), x.At(1, 2, 3))
	assert.Equal(t, 23, x.Offset(1, 2, 3))
	assert.Panics(t, func() { x.At(2, 0, 0) })
}

func TestSliceAndConcat(t *testing.T) {
	data := make([]float32, 2*6*3)
	for i := range data {
		data[i] = float32(i)
	}
	x, err := FromSlice(data, Shape{2, 6, 3}, Float32)
	require.NoError(t, err)

	var parts []*Tensor
	for start := 0; start < 6; start += 2 {
		p, err := x.Slice(1, start, start+2)
		require.NoError(t, err)
		assert.Equal(t, Shape{2, 2, 3}, p.Shape())
		assert.Equal(t, x.At(1, start+1, 2), p.At(1, 1, 2))
		parts = append(parts, p)
	}

	joined, err := Concat(1, parts...)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), joined.Shape())
	assert.Equal(t, x.Data(), joined.Data())

	_, err = x.Slice(1, 4, 7)
	require.Error(t, err)
	_, err = Concat(0, x, Zeros(Shape{2, 5, 3}, Float32))
	require.Error(t, err)
}

func TestRandnDeterministic(t *testing.T) {
	a := Randn(Shape{3, 5}, Float32, 42)
	b := Randn(Shape{3, 5}, Float32, 42)
	c := Randn(Shape{3, 5}, Float32, 43)
	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())
}

func TestMatMul(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}

	c := make([]float32, 4)
	MatMul(View(a, 0, 2, 2, 2), View(b, 0, 2, 2, 2), false, 1, 0, View(c, 0, 2, 2, 2))
	assert.Equal(t, []float32{19, 22, 43, 50}, c)

	MatMul(View(a, 0, 2, 2, 2), View(b, 0, 2, 2, 2), true, 1, 0, View(c, 0, 2, 2, 2))
	assert.Equal(t, []float32{17, 23, 39, 53}, c)
}

func TestViewStrided(t *testing.T) {
	// (seq=2, heads=2, dim=2): view of head 1.
	data := []float32{
		0, 1, 10, 11,
		2, 3, 12, 13,
	}
	v := View(data, 2, 2, 2, 4)
	assert.Equal(t, 2, v.Rows)
	assert.Equal(t, float32(10), v.Data[0])
	assert.Equal(t, float32(13), v.Data[v.Stride+1])
}
