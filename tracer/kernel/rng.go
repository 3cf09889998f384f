package kernel

// Rand is a counter based PCG-hash generator. Streams are keyed by pixel,
// color channel and sample index so that consecutive dispatches and the
// three channels of a pixel are decorrelated.
type Rand struct {
	state uint32
}

// Create a generator for the given pixel index, channel and sample index.
func NewRand(pixel, channel, sample uint32) Rand {
	seed := pcgHash(sample)
	seed = pcgHash(seed ^ (channel * 0x9e3779b9))
	seed = pcgHash(seed ^ pixel)
	return Rand{state: seed}
}

// Uint32 returns the next pseudo-random value.
func (r *Rand) Uint32() uint32 {
	r.state = r.state*747796405 + 2891336453
	word := ((r.state >> ((r.state >> 28) + 4)) ^ r.state) * 277803737
	return (word >> 22) ^ word
}

// Float32 returns a uniform value in [0, 1).
func (r *Rand) Float32() float32 {
	return float32(r.Uint32()>>8) * (1.0 / (1 << 24))
}

func pcgHash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}
