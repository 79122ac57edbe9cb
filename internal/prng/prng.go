// Package prng provides the reproducible random streams used by the synthetic
// badge dataset. The same key always yields the same stream.
package prng

import "math"

// Seed hashes key into a 32-bit seed (xmur3 mix).
func Seed(key string) uint32 {
	h := uint32(1779033703) ^ uint32(len(key))
	for i := 0; i < len(key); i++ {
		h = (h ^ uint32(key[i])) * 3432918353
		h = h<<13 | h>>19
	}
	h = (h ^ h>>16) * 2246822507
	h = (h ^ h>>13) * 3266489909
	h ^= h >> 16
	return h
}

// Stream mulberry32 generator. Not safe for concurrent use; create one per
// person or purpose.
type Stream struct {
	state uint32
}

// New creates a stream for seed.
func New(seed uint32) *Stream {
	return &Stream{state: seed}
}

// ForKey is New(Seed(key)).
func ForKey(key string) *Stream {
	return New(Seed(key))
}

// Generator returns the stream as a closure producing floats in [0,1).
func Generator(seed uint32) func() float64 {
	s := New(seed)
	return s.Float64
}

// Uint32 advances the stream.
func (s *Stream) Uint32() uint32 {
	s.state += 0x6D2B79F5
	t := s.state
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	return t ^ t>>14
}

// Float64 returns a float in [0,1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint32()) / 4294967296
}

// Intn returns an int in [0,n). n <= 0 yields 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Floor(s.Float64() * float64(n)))
}

// IntRange returns an int in [min,max], both inclusive.
func (s *Stream) IntRange(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + s.Intn(max-min+1)
}

// Chance reports true with probability p.
func (s *Stream) Chance(p float64) bool {
	return s.Float64() < p
}

// Jitter returns a value uniformly in [-spread, spread).
func (s *Stream) Jitter(spread float64) float64 {
	return (s.Float64()*2 - 1) * spread
}
