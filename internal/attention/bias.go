package attention

import (
	"github.com/born-ml/blockwise/internal/chunk"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/tensor"
)

// BiasBuilder produces the additive log-space tile for one block pair.
//
// A tile folds three sources into one tensor that is added to the raw scores:
// the caller's bias, the causal mask, and the dropout mask. Masked positions
// receive the most negative finite value of the working type, so exp() of
// them underflows to zero once the row maximum is subtracted.
type BiasBuilder struct {
	bias    *tensor.Tensor // nil when the caller supplied none
	batch   int
	heads   int
	qLen    int
	kvLen   int
	query   chunk.Plan
	key     chunk.Plan
	causal  bool
	dropout bool
	pdrop   float64
	dropKey rng.Key
	dtype   tensor.DataType
}

// newBiasBuilder builds a tile source for validated geometry d.
func newBiasBuilder(bias *tensor.Tensor, d dims, cfg Config, dtype tensor.DataType) *BiasBuilder {
	b := &BiasBuilder{
		bias:    bias,
		batch:   d.batch,
		heads:   d.heads,
		qLen:    d.qLen,
		kvLen:   d.kvLen,
		query:   d.query,
		key:     d.key,
		causal:  cfg.Causal,
		dropout: cfg.dropout(),
		pdrop:   cfg.DropProbability,
		dtype:   dtype,
	}
	if b.dropout {
		b.dropKey, _ = cfg.Key.Split()
	}
	return b
}

// Tile returns the (batch, heads, queryChunk, keyChunk) bias tile for the
// given block pair, rounded to the working type.
func (b *BiasBuilder) Tile(queryBlock, keyBlock int) *tensor.Tensor {
	qr := b.query.Range(queryBlock)
	kr := b.key.Range(keyBlock)
	qc, kc := qr.Len(), kr.Len()

	tile := tensor.Zeros(tensor.Shape{b.batch, b.heads, qc, kc}, b.dtype)
	data := tile.Data()
	negMin := b.dtype.MinValue()

	for bi := 0; bi < b.batch; bi++ {
		for h := 0; h < b.heads; h++ {
			base := (bi*b.heads + h) * qc * kc
			for i := 0; i < qc; i++ {
				qPos := qr.Start + i
				row := data[base+i*kc : base+(i+1)*kc]
				for j := range row {
					kPos := kr.Start + j
					var v float32
					if b.bias != nil {
						v = b.biasAt(bi, h, qPos, kPos)
					}
					if b.causal && kPos > qPos {
						v += negMin
					}
					if b.dropout && b.dropped(bi, h, qPos, kPos) {
						v += negMin
					}
					row[j] = v
				}
			}
		}
	}
	b.dtype.RoundSlice(data)
	return tile
}

// biasAt reads the caller's bias at a global coordinate. Size-1 axes
// broadcast; positions outside the stored extent contribute zero.
func (b *BiasBuilder) biasAt(bi, h, q, k int) float32 {
	s := b.bias.Shape()
	idx := [4]int{bi, h, q, k}
	for axis := range idx {
		if s[axis] == 1 {
			idx[axis] = 0
		} else if idx[axis] >= s[axis] {
			return 0
		}
	}
	return b.bias.At(idx[0], idx[1], idx[2], idx[3])
}

// dropped reports whether the dropout mask is set at a global coordinate.
// The bit depends only on the coordinate, never on the block layout.
func (b *BiasBuilder) dropped(bi, h, q, k int) bool {
	counter := uint64(((bi*b.heads+h)*b.qLen+q)*b.kvLen + k)
	return b.dropKey.Bernoulli(b.pdrop, counter)
}
