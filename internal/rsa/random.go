package rsa

import "math/rand"

// RandomSource supplies uniformly distributed values in [0, 1). *rand.Rand
// satisfies it; tests substitute a scripted sequence.
type RandomSource interface {
	Float64() float64
}

// NewSeededSource returns a deterministic source for the given seed. The
// result is not safe for concurrent use.
func NewSeededSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

// uniform draws from [lo, hi).
func uniform(rng RandomSource, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// intn draws an index in [0, n).
func intn(rng RandomSource, n int) int {
	i := int(rng.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
