// Package tokenizer turns text into token id sequences and next-token
// targets for the loss aggregator.
package tokenizer

import "github.com/pkg/errors"

// Tokenizer is the subset of a text tokenizer the loss path needs.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// EosToken returns the end-of-sequence token ID, or -1.
	EosToken() int32
}

// Targets returns next-token targets for a length-n window over ids:
// targets[i] = ids[i+1]. Positions past the end of ids hold pad and are
// marked invalid (0) in valid; the rest are 1.
func Targets(ids []int32, n int, pad int32) (targets []int32, valid []float32, err error) {
	if n < 0 {
		return nil, nil, errors.Errorf("negative window length %d", n)
	}
	targets = make([]int32, n)
	valid = make([]float32, n)
	for i := range targets {
		if i+1 < len(ids) {
			targets[i] = ids[i+1]
			valid[i] = 1
		} else {
			targets[i] = pad
		}
	}
	return targets, valid, nil
}
