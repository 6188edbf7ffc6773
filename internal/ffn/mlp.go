package ffn

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

// MLP is a position-wise feed-forward network.
//
// Architecture:
//
//	MLP(x) = Dropout(GELU(x·W1 + B1))·W2 + B2
//
// Where:
//   - W1: [features → hidden] (expansion)
//   - GELU: tanh approximation
//   - W2: [hidden → features] (projection back)
//
// Weights are shared by every block. Dropout is inverted (kept units are
// scaled by 1/(1-p)) and draws from the block key, so it only runs when the
// caller is not deterministic.
type MLP struct {
	W1 *tensor.Tensor // [features, hidden]
	B1 *tensor.Tensor // [hidden]
	W2 *tensor.Tensor // [hidden, features]
	B2 *tensor.Tensor // [features]

	DropProbability float64
}

// NewMLP creates an MLP with Xavier-initialized weights and zero biases.
//
// Example:
//
//	mlp := ffn.NewMLP(768, 3072, tensor.Float32, 42)  // GPT-2 small
func NewMLP(features, hidden int, dtype tensor.DataType, seed uint64) *MLP {
	return &MLP{
		W1: tensor.Xavier(features, hidden, dtype, seed),
		B1: tensor.Zeros(tensor.Shape{hidden}, dtype),
		W2: tensor.Xavier(hidden, features, dtype, seed+1),
		B2: tensor.Zeros(tensor.Shape{features}, dtype),
	}
}

// Features returns the input and output width.
func (m *MLP) Features() int { return m.W1.Shape()[0] }

// Hidden returns the expansion width.
func (m *MLP) Hidden() int { return m.W1.Shape()[1] }

// Apply runs the network on a (batch, chunk, features) block.
func (m *MLP) Apply(block *tensor.Tensor, key rng.Key, deterministic bool) (*tensor.Tensor, error) {
	features, hidden := m.Features(), m.Hidden()
	s := block.Shape()
	if block.Rank() != 3 || s[2] != features {
		return nil, errors.Wrapf(ErrConfig, "mlp expects [batch, chunk, %d], got %v", features, s)
	}
	if m.DropProbability < 0 || m.DropProbability >= 1 {
		return nil, errors.Wrapf(ErrConfig, "drop probability must be in [0, 1), got %v", m.DropProbability)
	}

	rows := s[0] * s[1]
	h := make([]float32, rows*hidden)
	// h = x · W1
	tensor.MatMul(
		tensor.View(block.Data(), 0, rows, features, features),
		tensor.View(m.W1.Data(), 0, features, hidden, hidden),
		false, 1, 0,
		tensor.View(h, 0, rows, hidden, hidden),
	)

	b1 := m.B1.Data()
	drop := !deterministic && m.DropProbability > 0
	keep := float32(1 / (1 - m.DropProbability))
	for r := 0; r < rows; r++ {
		row := h[r*hidden : (r+1)*hidden]
		for j := range row {
			v := gelu(row[j] + b1[j])
			if drop {
				if key.Bernoulli(m.DropProbability, uint64(r*hidden+j)) {
					v = 0
				} else {
					v *= keep
				}
			}
			row[j] = v
		}
	}

	out := tensor.Zeros(s, block.DType())
	od := out.Data()
	b2 := m.B2.Data()
	for r := 0; r < rows; r++ {
		copy(od[r*features:(r+1)*features], b2)
	}
	// out = h · W2 + B2
	tensor.MatMul(
		tensor.View(h, 0, rows, hidden, hidden),
		tensor.View(m.W2.Data(), 0, hidden, features, features),
		false, 1, 1,
		tensor.View(od, 0, rows, features, features),
	)
	block.DType().RoundSlice(od)
	return out, nil
}

// gelu uses the tanh approximation:
// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3))).
func gelu(x float32) float32 {
	const c = 0.044715
	sqrt2pi := math.Sqrt(2.0 / math.Pi)
	v := float64(x)
	return float32(0.5 * v * (1 + math.Tanh(sqrt2pi*(v+c*v*v*v))))
}
