/*package rng contains the random number generation used to drive particle
histories. Every history owns its own Generator, seeded from the history's
identity alone, so results never depend on which thread or process ran it.
*/
package rng

import (
	"math"
)

var (
	xorshiftMaxUint = float64(math.MaxUint32)
)

// Generator is an xorshift random number generator. It is not thread safe:
// each particle history gets its own Generator.
type Generator struct {
	w, x, y, z uint32
}

// New creates a Generator from a 64-bit seed. The seed is expanded through
// splitmix64 so that adjacent stream seeds don't start the generator in
// nearly identical states, and so a zero seed can't produce the all-zero
// state xorshift gets stuck in.
func New(seed uint64) *Generator {
	a := splitmix64(seed)
	b := splitmix64(seed ^ 0xda942042e4dd58b5)
	return &Generator{uint32(a), uint32(a >> 32), uint32(b), uint32(b>>32) | 1}
}

// splitmix64 is the standard splitmix64 finalizer.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Uniform generates a single random number in the range [0, 1).
func (gen *Generator) Uniform() float64 {
	t := gen.x ^ (gen.x << 11)
	gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
	gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
	res := float64(math.MaxUint32-gen.w) / xorshiftMaxUint
	if res == 1.0 {
		return gen.Uniform()
	}
	return res
}

// UniformSequence generates one random number in the range [0, 1) for each
// element of target and writes them to that array.
func (gen *Generator) UniformSequence(target []float64) {
	for i := 0; i < len(target); i++ {
		t := gen.x ^ (gen.x << 11)
		gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
		gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
		target[i] = float64(math.MaxUint32-gen.w) / xorshiftMaxUint
		if target[i] == 1.0 {
			i--
		}
	}
}

// State returns the generator's internal state so it can be checkpointed.
func (gen *Generator) State() [4]uint32 {
	return [4]uint32{gen.w, gen.x, gen.y, gen.z}
}

// SetState restores a state previously returned by State.
func (gen *Generator) SetState(s [4]uint32) {
	gen.w, gen.x, gen.y, gen.z = s[0], s[1], s[2], s[3]
}

// StreamSeed maps a (generation, particle) pair to the seed of that history's
// random stream. totalGensCompleted counts the generations finished before
// this run session started (nonzero only on restart), overallGen is the
// 1-based generation index within the session, nParticles is the global
// particle count per generation, and particleID is the particle's global id
// in [0, nParticles). The mapping is a bijection over the (generation,
// particle) space, so the stream a history gets never depends on how work
// was split across threads or processes.
func StreamSeed(totalGensCompleted, overallGen, nParticles, particleID int64) uint64 {
	return uint64((totalGensCompleted+overallGen-1)*nParticles + particleID)
}
