// Package rng implements the consumption side of a splittable, counter-based
// random-bit stream.
//
// A Key never changes. Split and Fold derive independent child keys, and
// Uint64 maps a counter to 64 random bits, so a consumer can produce the bit
// for any coordinate on demand without generating the ones before it.
package rng

// Key identifies one random substream.
type Key struct {
	hi, lo uint64
}

// NewKey derives a root key from a seed.
func NewKey(seed uint64) Key {
	return Key{hi: mix(seed ^ 0x243f6a8885a308d3), lo: mix(seed + 0x13198a2e03707344)}
}

// Split returns two keys independent of k and of each other.
// k itself should not be used to draw bits afterwards.
func (k Key) Split() (Key, Key) {
	return k.Fold(0), k.Fold(1)
}

// Fold derives the child key for data, e.g. a block index.
func (k Key) Fold(data uint64) Key {
	return Key{
		hi: mix(k.hi ^ mix(data+0xa4093822299f31d0)),
		lo: mix(k.lo + mix(data^0x082efa98ec4e6c89)),
	}
}

// Uint64 returns the random bits at counter.
func (k Key) Uint64(counter uint64) uint64 {
	return mix(k.hi ^ mix(k.lo+counter*0x9e3779b97f4a7c15))
}

// Float64 returns a uniform value in [0, 1) for counter.
func (k Key) Float64(counter uint64) float64 {
	return float64(k.Uint64(counter)>>11) / (1 << 53)
}

// Bernoulli reports whether the event at counter fires with probability p.
func (k Key) Bernoulli(p float64, counter uint64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	return k.Float64(counter) < p
}

// mix is the SplitMix64 finalizer.
func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
