// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns text into next-token targets for the blockwise
// loss.
//
// Example usage:
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, _ := tok.Encode("Hello, world!")
//	targets, valid, _ := tokenizer.Targets(ids, len(ids)-1, 0)
package tokenizer

import (
	"github.com/born-ml/blockwise/internal/tokenizer"
)

// Tokenizer encodes and decodes text.
type Tokenizer = tokenizer.Tokenizer

// TikToken is an OpenAI BPE tokenizer.
type TikToken = tokenizer.TikToken

// NewTikToken loads a tiktoken encoding such as "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}

// Targets returns next-token targets and a validity mask for an n-row window.
func Targets(ids []int32, n int, pad int32) ([]int32, []float32, error) {
	return tokenizer.Targets(ids, n, pad)
}
