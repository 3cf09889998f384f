package renderer

import (
	"runtime"

	"github.com/achilleasa/prism/tracer/denoise"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of indirect bounces.
	NumBounces uint32

	// Min bounces before applying russian roulette for path elimination. A
	// zero value disables russian roulette.
	MinBouncesForRR uint32

	// Number of samples. A zero value renders until interrupted.
	SamplesPerPixel uint32

	// Exposure for tonemapping.
	Exposure float32

	// Next event estimation and the firefly clamp applied to its samples
	// as a multiple of the sampled emitter's luminance.
	NEE          bool
	FireflyClamp float32

	// Caustics via stochastic progressive photon mapping.
	Caustics            bool
	PhotonsPerIteration uint32
	PhotonCapacity      uint32
	HashCells           uint32
	InitialRadius       float32
	Alpha               float32

	// Denoiser settings applied when resolving frames.
	Denoise denoise.Options

	// Number of cpu tracers. A zero value uses one tracer per CPU.
	Workers uint32
}

// DefaultOptions returns the options used when no overrides are specified.
func DefaultOptions() Options {
	return Options{
		FrameW:              512,
		FrameH:              512,
		NumBounces:          5,
		SamplesPerPixel:     64,
		Exposure:            1.0,
		NEE:                 true,
		FireflyClamp:        10,
		Caustics:            false,
		PhotonsPerIteration: 100000,
		PhotonCapacity:      1 << 20,
		HashCells:           1 << 18,
		InitialRadius:       0.05,
		Alpha:               0.7,
		Denoise:             denoise.DefaultOptions(),
		Workers:             uint32(runtime.NumCPU()),
	}
}
