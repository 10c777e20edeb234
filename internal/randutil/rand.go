package randutil

import rand "math/rand/v2"

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by rand/v2
// so that all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// SeedFrom derives a per-stream seed from a base seed and a stream name.
// Each session draws its generator from its own stream so pellet placement
// and bot tie-breaks replay identically under a fixed base seed.
func SeedFrom(seed int64, stream string) int64 {
	acc := uint64(seed) ^ goldenRatio64
	for i := 0; i < len(stream); i++ {
		acc = mix(acc ^ uint64(stream[i]))
	}
	return int64(acc)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
