// Package chunk splits sequence axes into equal blocks and decides which
// query/key block pairs a causal reduction may skip.
package chunk

import (
	"github.com/pkg/errors"
)

// ErrConfig marks a configuration error: a bad chunk size, an indivisible
// sequence length, or a shape that cannot be processed. It is always raised
// before any accumulator state exists.
var ErrConfig = errors.New("blockwise configuration error")

// Range is a half-open [Start, End) range of sequence positions.
type Range struct {
	Start int
	End   int
}

// Len returns End - Start.
func (r Range) Len() int {
	return r.End - r.Start
}

// Plan describes how one sequence axis is cut into equal chunks.
type Plan struct {
	SeqLen    int
	ChunkSize int
}

// NewPlan validates that seqLen is an exact multiple of chunkSize.
//
// Example:
//
//	p, err := chunk.NewPlan(8, 4) // two chunks: [0,4) and [4,8)
//	_, err = chunk.NewPlan(8, 3)  // errors.Is(err, chunk.ErrConfig)
func NewPlan(seqLen, chunkSize int) (Plan, error) {
	switch {
	case chunkSize <= 0:
		return Plan{}, errors.Wrapf(ErrConfig, "chunk size must be positive, got %d", chunkSize)
	case seqLen <= 0:
		return Plan{}, errors.Wrapf(ErrConfig, "sequence length must be positive, got %d", seqLen)
	case seqLen%chunkSize != 0:
		return Plan{}, errors.Wrapf(ErrConfig, "sequence length %d is not divisible by chunk size %d", seqLen, chunkSize)
	}
	return Plan{SeqLen: seqLen, ChunkSize: chunkSize}, nil
}

// NumChunks returns the number of chunks.
func (p Plan) NumChunks() int {
	if p.ChunkSize == 0 {
		return 0
	}
	return p.SeqLen / p.ChunkSize
}

// Range returns the positions covered by chunk i.
func (p Plan) Range(i int) Range {
	return Range{Start: i * p.ChunkSize, End: (i + 1) * p.ChunkSize}
}

// Ranges returns every chunk range in ascending order.
func (p Plan) Ranges() []Range {
	out := make([]Range, p.NumChunks())
	for i := range out {
		out[i] = p.Range(i)
	}
	return out
}

// Pair identifies one (query block, key block) step of a blockwise reduction.
type Pair struct {
	Query int
	Key   int
}

// Pairs enumerates every block pair: for each query block in ascending order,
// every key block in ascending order.
func Pairs(q, k Plan) []Pair {
	out := make([]Pair, 0, q.NumChunks()*k.NumChunks())
	for qi := 0; qi < q.NumChunks(); qi++ {
		for ki := 0; ki < k.NumChunks(); ki++ {
			out = append(out, Pair{Query: qi, Key: ki})
		}
	}
	return out
}
