package attention

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/blockwise/internal/tensor"
)

// Reference computes the same attention as Blockwise by materializing the
// full (qLen × kvLen) score matrix for each batch element and head, in
// float64. Chunk sizes in cfg are ignored; masks, bias and dropout are
// applied exactly as Blockwise applies them.
//
// Intended for verification and for inputs small enough that the quadratic
// score matrix is affordable.
func Reference(q, k, v, bias *tensor.Tensor, cfg Config) (*tensor.Tensor, error) {
	if q == nil || k == nil || q.Rank() < 2 || k.Rank() < 2 {
		return nil, errors.Wrap(ErrConfig, "query and key must be rank 4")
	}
	full := cfg
	full.QueryChunkSize = q.Shape()[1]
	full.KeyChunkSize = k.Shape()[1]
	d, err := full.validate(q, k, v, bias)
	if err != nil {
		return nil, err
	}

	query := q.Scale(d.scale())
	tile := newBiasBuilder(bias, d, full, tensor.Float32).Tile(0, 0).Data()

	out := tensor.Zeros(q.Shape(), q.DType())
	qd, kd, vd, od := query.Data(), k.Data(), v.Data(), out.Data()
	rowStride := d.heads * d.headDim
	scores := make([]float64, d.kvLen)
	acc := make([]float64, d.headDim)

	for b := 0; b < d.batch; b++ {
		for h := 0; h < d.heads; h++ {
			for i := 0; i < d.qLen; i++ {
				qRow := qd[b*d.qLen*rowStride+i*rowStride+h*d.headDim:]
				rowMax := math.Inf(-1)
				for j := 0; j < d.kvLen; j++ {
					kRow := kd[b*d.kvLen*rowStride+j*rowStride+h*d.headDim:]
					var s float64
					for x := 0; x < d.headDim; x++ {
						s += float64(qRow[x]) * float64(kRow[x])
					}
					s += float64(tile[((b*d.heads+h)*d.qLen+i)*d.kvLen+j])
					scores[j] = s
					rowMax = math.Max(rowMax, s)
				}

				var sum float64
				clear(acc)
				for j := 0; j < d.kvLen; j++ {
					w := math.Exp(scores[j] - rowMax)
					sum += w
					vRow := vd[b*d.kvLen*rowStride+j*rowStride+h*d.headDim:]
					for x := 0; x < d.headDim; x++ {
						acc[x] += w * float64(vRow[x])
					}
				}

				oRow := od[b*d.qLen*rowStride+i*rowStride+h*d.headDim:]
				for x := 0; x < d.headDim; x++ {
					oRow[x] = float32(acc[x] / sum)
				}
			}
		}
	}
	q.DType().RoundSlice(od)
	return out, nil
}
