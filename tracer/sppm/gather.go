package sppm

import (
	"math"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/tracer/kernel"
	"github.com/achilleasa/prism/types"
)

// GatherPixel estimates the caustic radiance seen through pixel (x, y). A
// pinhole ray is followed through specular vertices to its first diffuse
// hit where the photons within the search radius are weighted with a cone
// kernel.
func GatherPixel(sc *scene.Scene, pm *PhotonMap, p *tracer.PhotonGatherParams, frameW, frameH, x, y uint32) types.Vec3 {
	if p.PhotonCount == 0 || p.Radius <= 0 || pm.Len() == 0 {
		return types.Vec3{}
	}

	rng := kernel.NewRand(y*frameW+x, gatherStream, p.Sample)
	ray := kernel.PinholeRay(&p.Camera, frameW, frameH, x, y)
	point, normal, mat, throughput, ok := kernel.TraceSpecularChain(sc, ray, p.NumBounces, &rng)
	if !ok {
		return types.Vec3{}
	}

	radius := p.Radius
	var flux types.Vec3
	pm.Query(point, radius, func(ph *Photon, distSq float32) {
		// Only photons arriving on the visible side of the surface count.
		if ph.Direction.Dot(normal) >= 0 {
			return
		}
		w := 1 - float32(math.Sqrt(float64(distSq)))/radius
		flux = flux.Add(ph.Power.Mul(w))
	})
	if flux.IsZero() {
		return types.Vec3{}
	}

	// The cone kernel integrates to pi*r^2/3 over the disk.
	norm := 3 / (math.Pi * radius * radius)
	radiance := throughput.MulVec(mat.Albedo.Mul(1 / math.Pi)).MulVec(flux.Mul(norm))
	if !radiance.IsFinite() {
		return types.Vec3{}
	}
	return radiance
}
