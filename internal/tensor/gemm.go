package tensor

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matrix is a strided row-major 2-D view into a float32 buffer.
type Matrix = blas32.General

// View returns a rows×cols matrix over data starting at offset, with stride
// elements between consecutive rows. No data is copied.
//
// A (batch, seq, heads, dim) tensor exposes the (seq × dim) matrix of one
// batch element and head as View(data, b*seq*heads*dim+h*dim, seq, dim, heads*dim).
func View(data []float32, offset, rows, cols, stride int) Matrix {
	return Matrix{
		Rows:   rows,
		Cols:   cols,
		Stride: stride,
		Data:   data[offset : offset+(rows-1)*stride+cols],
	}
}

// MatMul computes c = alpha * a · b + beta * c, or a · bᵀ when transB is set.
func MatMul(a, b Matrix, transB bool, alpha, beta float32, c Matrix) {
	tB := blas.NoTrans
	if transB {
		tB = blas.Trans
	}
	blas32.Gemm(blas.NoTrans, tB, alpha, a, b, beta, c)
}
