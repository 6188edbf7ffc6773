package tokenizer

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingCL100kBase is the encoding used by GPT-4 and GPT-3.5-turbo.
	EncodingCL100kBase = "cl100k_base"
	// EncodingP50kBase is the encoding used by GPT-3.
	EncodingP50kBase = "p50k_base"
	// EncodingR50kBase is the encoding used by older GPT-3 models.
	EncodingR50kBase = "r50k_base"
)

// TikToken wraps pkoukk/tiktoken-go.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads the named encoding. The BPE ranks are fetched on first
// use and cached by tiktoken-go (see TIKTOKEN_CACHE_DIR).
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "loading tiktoken encoding %q", encodingName)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}
	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ints := make([]int, len(tokens))
	for i, tok := range tokens {
		ints[i] = int(tok)
	}
	return t.encoding.Decode(ints), nil
}

// VocabSize returns the vocabulary size including special tokens, which is
// the logits width a model over this encoding produces.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case EncodingCL100kBase:
		return 100277
	case EncodingP50kBase:
		return 50281
	default:
		return 50257
	}
}

// EosToken returns the <|endoftext|> id.
func (t *TikToken) EosToken() int32 {
	if t.name == EncodingCL100kBase {
		return 100257
	}
	return 50256
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
