package chunk

// SkipPolicy decides whether a block pair contributes nothing and can be
// passed over without touching the accumulator.
type SkipPolicy interface {
	Skip(queryBlock, keyBlock int) bool
}

// Dense never skips.
type Dense struct{}

// Skip always returns false.
func (Dense) Skip(int, int) bool { return false }

// Causal skips pairs whose keys all lie strictly after every query of the
// query block. With equal chunk sizes this is exactly keyBlock > queryBlock.
//
// Key block 0 always contains position 0, which no query precedes, so every
// query block processes at least one pair and its denominator is never
// structurally zero.
type Causal struct {
	Query Plan
	Key   Plan
}

// Skip reports whether the first key of keyBlock comes after the last query
// of queryBlock.
func (c Causal) Skip(queryBlock, keyBlock int) bool {
	lastQuery := c.Query.Range(queryBlock).End - 1
	firstKey := c.Key.Range(keyBlock).Start
	return firstKey > lastQuery
}

// NewSkipPolicy returns Causal when causal is set and Dense otherwise.
func NewSkipPolicy(causal bool, q, k Plan) SkipPolicy {
	if causal {
		return Causal{Query: q, Key: k}
	}
	return Dense{}
}

// Active returns the pairs a reduction actually evaluates under policy, in
// canonical order.
func Active(q, k Plan, policy SkipPolicy) []Pair {
	all := Pairs(q, k)
	out := all[:0]
	for _, p := range all {
		if !policy.Skip(p.Query, p.Key) {
			out = append(out, p)
		}
	}
	return out
}
