package scene

import (
	"fmt"
	"math"

	"github.com/achilleasa/prism/types"
)

// The scene camera. Camera models are owned by the scene; tracers only
// consume the orthonormal basis and lens parameters derived from it.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	// Vertical field of view in degrees.
	FOV float32

	// Thin lens parameters. A zero aperture radius yields a pinhole camera.
	FocalDistance  float32
	ApertureRadius float32
	ApertureBlades uint32

	// Per-channel radial offsets for lateral chromatic aberration.
	Aberration types.Vec3
}

// Create a pinhole camera looking down -Z.
func NewCamera(fov float32) *Camera {
	return &Camera{
		Position:      types.Vec3{0, 0, 0},
		LookAt:        types.Vec3{0, 0, -1},
		Up:            types.Vec3{0, 1, 0},
		FOV:           fov,
		FocalDistance: 1,
	}
}

// Basis returns the right, up and forward unit vectors.
func (c *Camera) Basis() (right, up, forward types.Vec3) {
	forward = c.LookAt.Sub(c.Position).Normalize()
	if forward.IsZero() {
		forward = types.Vec3{0, 0, -1}
	}
	right = forward.Cross(c.Up).Normalize()
	if right.IsZero() {
		right, _ = types.OrthoBasis(forward)
	}
	up = right.Cross(forward)
	return right, up, forward
}

// TanHalfFOV returns tan(fov/2).
func (c *Camera) TanHalfFOV() float32 {
	return float32(math.Tan(float64(c.FOV) * math.Pi / 360.0))
}

func (c *Camera) String() string {
	return fmt.Sprintf(
		"camera(pos: %v, look: %v, fov: %.1f, focus: %.3f, aperture: %.3f/%d)",
		c.Position, c.LookAt, c.FOV, c.FocalDistance, c.ApertureRadius, c.ApertureBlades,
	)
}
