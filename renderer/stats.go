package renderer

import "time"

type TracerStat struct {
	// The tracer id.
	Id string

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Photons emitted by this tracer in the last sample and the number
	// of them that reached the photon map.
	EmittedPhotons uint32
	StoredPhotons  uint32

	// Render time for assigned block
	RenderTime time.Duration
}

type FrameStats struct {
	// Individual tracer stats.
	Tracers []TracerStat

	// Accumulated samples and the photon search radius used by the
	// last sample.
	Samples uint32
	Radius  float32

	// Photons stored in the photon map during the last sample.
	StoredPhotons uint32

	// Total render time for the last sample.
	RenderTime time.Duration
}
