// Package detrand provides a counter-based deterministic random source. All
// randomness in the simulator (tick jitter, slippage draws) derives from one
// seed and an explicit key tuple, so replays with the same seed are
// bit-identical regardless of call order.
package detrand

import (
	"hash/fnv"
	"math"
)

// Source derives values from a seed and caller-supplied keys via splitmix64.
type Source struct {
	seed uint64
}

// New builds a source for the given seed.
func New(seed uint64) *Source {
	return &Source{seed: seed}
}

// Seed returns the configured seed.
func (s *Source) Seed() uint64 { return s.seed }

// Uniform returns a value in [0, 1) determined by the seed and keys.
func (s *Source) Uniform(keys ...uint64) float64 {
	state := s.seed
	for _, key := range keys {
		state = splitmix64(state ^ splitmix64(key))
	}
	// 53 bits of mantissa.
	return float64(splitmix64(state)>>11) / float64(1<<53)
}

// UniformIn returns a value in [lo, hi) determined by the seed and keys.
func (s *Source) UniformIn(lo, hi float64, keys ...uint64) float64 {
	return lo + (hi-lo)*s.Uniform(keys...)
}

// Norm returns a standard normal draw determined by the seed and keys, via
// the Box-Muller transform on two derived uniforms.
func (s *Source) Norm(keys ...uint64) float64 {
	u1 := s.Uniform(append(keys, 0x9e3779b97f4a7c15)...)
	u2 := s.Uniform(append(keys, 0xbf58476d1ce4e5b9)...)
	if u1 < 1e-300 {
		u1 = 1e-300
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Hash maps a string (symbol, tag) onto a stable key.
func Hash(value string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(value))
	return h.Sum64()
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
