package tracer

import (
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

// Camera basis and lens parameters shared by the integration and gather passes.
type CameraParams struct {
	Position types.Vec3
	Right    types.Vec3
	Up       types.Vec3
	Forward  types.Vec3

	TanHalfFOV     float32
	FocalDistance  float32
	ApertureRadius float32
	ApertureBlades uint32

	// Per-channel radial offsets for lateral chromatic aberration.
	Aberration types.Vec3
}

// Derive the camera dispatch parameters from a scene camera.
func NewCameraParams(cam *scene.Camera) CameraParams {
	right, up, forward := cam.Basis()
	focal := cam.FocalDistance
	if focal <= 0 {
		focal = 1
	}
	return CameraParams{
		Position:       cam.Position,
		Right:          right,
		Up:             up,
		Forward:        forward,
		TanHalfFOV:     cam.TanHalfFOV(),
		FocalDistance:  focal,
		ApertureRadius: cam.ApertureRadius,
		ApertureBlades: cam.ApertureBlades,
		Aberration:     cam.Aberration,
	}
}

// HasAberration returns true if the channels need separate paths.
func (c *CameraParams) HasAberration() bool {
	return !c.Aberration.IsZero()
}

// Integration dispatch parameters.
type IntegrationParams struct {
	Camera CameraParams

	// Maximum path length and the bounce after which russian roulette
	// starts terminating paths. A zero MinBouncesForRR disables it.
	NumBounces      uint32
	MinBouncesForRR uint32

	// Next event estimation and its firefly clamp expressed as a multiple of
	// the sampled emitter's luminance. A zero clamp disables clamping.
	NEE          bool
	FireflyClamp float32

	// Set when the photon gather pass supplies caustic radiance. Emitter
	// hits reached through a diffuse -> specular chain are then dropped.
	Caustics bool

	// The index of the sample being accumulated. Seeds the RNG.
	Sample uint32
}

// Photon trace dispatch parameters.
type PhotonTraceParams struct {
	// Total photons emitted by this pass across all blocks. Each photon
	// carries 1/PhotonCount of the emitted power.
	PhotonCount uint32

	Radius     float32
	Seed       uint32
	NumBounces uint32

	// Layout of the data the pass reads. Must match the scene and photon
	// map uploaded to the tracer.
	HashCells         uint32
	EmitterCount      uint32
	TotalEmitterPower float32
}

// Photon gather dispatch parameters.
type PhotonGatherParams struct {
	Camera CameraParams

	Radius      float32
	PhotonCount uint32
	NumBounces  uint32
	Sample      uint32

	// Must match the cell count of the attached photon map.
	HashCells uint32
}
