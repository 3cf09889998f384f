package kernel

import (
	"math"

	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

// Generate a camera ray through the film position (fx, fy) given in pixel
// units. The channel selects the aberration offset; lensU and lensV sample
// the aperture.
func cameraRay(cam *tracer.CameraParams, frameW, frameH uint32, fx, fy float32, channel int, lensU, lensV float32) Ray {
	aspect := float32(frameW) / float32(frameH)
	px := (2*fx/float32(frameW) - 1) * aspect * cam.TanHalfFOV
	py := (1 - 2*fy/float32(frameH)) * cam.TanHalfFOV

	// Lateral chromatic aberration scales the film position radially.
	if channel >= 0 && channel < 3 {
		scale := 1 + cam.Aberration[channel]
		px *= scale
		py *= scale
	}

	dir := cam.Forward.Add(cam.Right.Mul(px)).Add(cam.Up.Mul(py)).Normalize()
	if cam.ApertureRadius <= 0 {
		return NewRay(cam.Position, dir)
	}

	// Thin lens: all rays through a film point converge on the focal plane.
	focusPoint := cam.Position.Add(dir.Mul(cam.FocalDistance / dir.Dot(cam.Forward)))
	lx, ly := sampleAperture(cam.ApertureBlades, lensU, lensV)
	origin := cam.Position.
		Add(cam.Right.Mul(lx * cam.ApertureRadius)).
		Add(cam.Up.Mul(ly * cam.ApertureRadius))
	return NewRay(origin, focusPoint.Sub(origin).Normalize())
}

// Generate a non-jittered pinhole ray through the center of pixel (x, y).
func PinholeRay(cam *tracer.CameraParams, frameW, frameH, x, y uint32) Ray {
	pinhole := *cam
	pinhole.ApertureRadius = 0
	return cameraRay(&pinhole, frameW, frameH, float32(x)+0.5, float32(y)+0.5, -1, 0, 0)
}

// Sample a point on the unit aperture. Apertures with fewer than three
// blades are round; otherwise the aperture is a regular polygon.
func sampleAperture(blades uint32, u, v float32) (float32, float32) {
	if blades < 3 {
		r := float32(math.Sqrt(float64(u)))
		theta := 2 * math.Pi * float64(v)
		return r * float32(math.Cos(theta)), r * float32(math.Sin(theta))
	}

	// Pick one of the equal-area triangles fanning out from the center and
	// remap u to sample it.
	scaled := u * float32(blades)
	blade := uint32(scaled)
	if blade >= blades {
		blade = blades - 1
	}
	u = scaled - float32(blade)

	step := 2 * math.Pi / float64(blades)
	a0 := step * float64(blade)
	a1 := a0 + step
	c0 := types.XY(float32(math.Cos(a0)), float32(math.Sin(a0)))
	c1 := types.XY(float32(math.Cos(a1)), float32(math.Sin(a1)))

	// Uniform point in triangle (0, c0, c1).
	su := float32(math.Sqrt(float64(u)))
	b0 := su * (1 - v)
	b1 := su * v
	return b0*c0[0] + b1*c1[0], b0*c0[1] + b1*c1[1]
}
