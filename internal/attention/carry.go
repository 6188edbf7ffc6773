package attention

import (
	"fmt"
	"math"

	"github.com/born-ml/blockwise/internal/tensor"
)

// Carry is the online-softmax state of one query block.
//
// Fold never modifies a Carry; it returns the next one. A Carry belongs to a
// single query block and is dropped once Output has been taken.
//
// Algorithm, per row, when folding in a key block with scores s and values v:
//
//	m'  = max(m, max(s))           (detached)
//	c   = exp(m - m')
//	num = num * c + exp(s - m') · v
//	den = den * c + Σ exp(s - m')
//
// and the block output is num / den.
type Carry struct {
	Numerator   *tensor.Tensor // (batch, queryChunk, heads, headDim)
	Denominator *tensor.Tensor // (batch, queryChunk, heads, 1)
	MaxSoFar    *tensor.Tensor // (batch, queryChunk, heads, 1)
}

// NewCarry returns the initial state (0, 0, -Inf) in the working type.
func NewCarry(batch, queryChunk, heads, headDim int, dtype tensor.DataType) Carry {
	return Carry{
		Numerator:   tensor.Zeros(tensor.Shape{batch, queryChunk, heads, headDim}, dtype),
		Denominator: tensor.Zeros(tensor.Shape{batch, queryChunk, heads, 1}, dtype),
		MaxSoFar:    tensor.Full(tensor.Shape{batch, queryChunk, heads, 1}, float32(math.Inf(-1)), dtype),
	}
}

// Fold folds one key/value block into the carry and returns the new carry.
//
// query is the pre-scaled query block (batch, queryChunk, heads, headDim),
// key and value are (batch, keyChunk, heads, headDim) and bias is the
// (batch, heads, queryChunk, keyChunk) tile from BiasBuilder. Fold reads only
// its arguments, so it can be recomputed at will.
func (c Carry) Fold(query, key, value, bias *tensor.Tensor) Carry {
	ns := c.Numerator.Shape()
	batch, qc, heads, headDim := ns[0], ns[1], ns[2], ns[3]
	kc := key.Shape()[1]
	if !query.Shape().Equal(ns) || !key.Shape().Equal(value.Shape()) ||
		!bias.Shape().Equal(tensor.Shape{batch, heads, qc, kc}) {
		panic(fmt.Sprintf("attention.Carry.Fold: inconsistent block shapes q=%v k=%v v=%v bias=%v carry=%v",
			query.Shape(), key.Shape(), value.Shape(), bias.Shape(), ns))
	}

	dtype := c.Numerator.DType()
	next := Carry{
		Numerator:   tensor.Zeros(ns, dtype),
		Denominator: tensor.Zeros(c.Denominator.Shape(), dtype),
		MaxSoFar:    tensor.Zeros(c.MaxSoFar.Shape(), dtype),
	}

	rowStride := heads * headDim
	scores := make([]float32, qc*kc)
	qd, kd, vd, bd := query.Data(), key.Data(), value.Data(), bias.Data()
	prevNum, prevDen, prevMax := c.Numerator.Data(), c.Denominator.Data(), c.MaxSoFar.Data()
	num, den, mx := next.Numerator.Data(), next.Denominator.Data(), next.MaxSoFar.Data()

	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			qOff := b*qc*rowStride + h*headDim
			kOff := b*kc*rowStride + h*headDim
			scoreView := tensor.View(scores, 0, qc, kc, kc)

			// raw = q · kᵀ
			tensor.MatMul(
				tensor.View(qd, qOff, qc, headDim, rowStride),
				tensor.View(kd, kOff, kc, headDim, rowStride),
				true, 1, 0, scoreView,
			)

			tile := bd[(b*heads+h)*qc*kc : (b*heads+h+1)*qc*kc]
			for i := 0; i < qc; i++ {
				row := scores[i*kc : (i+1)*kc]
				stat := (b*qc+i)*heads + h // index into (batch, qc, heads, 1)

				rowMax := float32(math.Inf(-1))
				for j := range row {
					row[j] = dtype.Round(dtype.Round(row[j]) + tile[i*kc+j])
					rowMax = max(rowMax, row[j])
				}
				newMax := stopGradient(max(prevMax[stat], rowMax))

				var rowSum float32
				for j := range row {
					row[j] = dtype.Round(float32(math.Exp(float64(row[j] - newMax))))
					rowSum += row[j]
				}
				correction := dtype.Round(float32(math.Exp(float64(prevMax[stat] - newMax))))

				mx[stat] = newMax
				den[stat] = dtype.Round(prevDen[stat]*correction + rowSum)

				numRow := qOff + i*rowStride
				for d := 0; d < headDim; d++ {
					num[numRow+d] = prevNum[numRow+d] * correction
				}
			}

			// num += exp(s - m') · v
			tensor.MatMul(
				scoreView,
				tensor.View(vd, kOff, kc, headDim, rowStride),
				false, 1, 1,
				tensor.View(num, qOff, qc, headDim, rowStride),
			)
		}
	}
	dtype.RoundSlice(num)
	return next
}

// Output returns numerator / denominator cast to dtype.
//
// A row whose denominator is zero (every key masked with no causal
// diagonal to fall back on) yields NaN or Inf; keeping at least one key
// visible per row is the caller's responsibility.
func (c Carry) Output(dtype tensor.DataType) *tensor.Tensor {
	out := tensor.Zeros(c.Numerator.Shape(), dtype)
	ns := c.Numerator.Shape()
	headDim := ns[3]
	num, den, data := c.Numerator.Data(), c.Denominator.Data(), out.Data()
	for stat, d := range den {
		row := stat * headDim
		for j := 0; j < headDim; j++ {
			data[row+j] = num[row+j] / d
		}
	}
	dtype.RoundSlice(data)
	return out
}

// stopGradient marks the running maximum as a constant of the computation:
// its local partial derivative is zero. The maximum only stabilizes exp();
// every use of it cancels between numerator and denominator.
func stopGradient(x float32) float32 {
	return x
}
