package kernel

import (
	"math"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

const (
	// Distances and cosines below this threshold contribute nothing.
	lightEpsilon float32 = 1e-6
)

// SampleTriangle returns a uniformly distributed point on a triangle.
func SampleTriangle(v0, v1, v2 types.Vec3, u1, u2 float32) types.Vec3 {
	su := float32(math.Sqrt(float64(u1)))
	b0 := 1 - su
	b1 := u2 * su
	return v0.Mul(b0).Add(v1.Mul(b1)).Add(v2.Mul(1 - b0 - b1))
}

// Estimate direct lighting at a diffuse surface point by sampling one emitter
// proportionally to its power. n must face the side the light arrives from.
// A positive fireflyClamp bounds the contribution's luminance to
// fireflyClamp * luminance(emitter radiance).
func sampleDirect(sc *scene.Scene, point, n, albedo types.Vec3, fireflyClamp float32, rng *Rand) types.Vec3 {
	emitterIndex, pickPdf := sc.SelectEmitter(rng.Float32())
	u1, u2 := rng.Float32(), rng.Float32()
	if emitterIndex < 0 || pickPdf <= 0 {
		return types.Vec3{}
	}

	emitter := &sc.Emitters[emitterIndex]
	lightPoint := SampleTriangle(emitter.Vertex(0), emitter.Vertex(1), emitter.Vertex(2), u1, u2)

	toLight := lightPoint.Sub(point)
	distSq := toLight.LenSq()
	if distSq < lightEpsilon {
		return types.Vec3{}
	}
	dist := float32(math.Sqrt(float64(distSq)))
	wi := toLight.Mul(1 / dist)

	cosSurface := n.Dot(wi)
	cosLight := -emitter.Normal.Dot(wi)
	if cosSurface <= lightEpsilon || cosLight <= lightEpsilon {
		return types.Vec3{}
	}

	// The shadow ray distance is measured from the offset origin and stops
	// short of the light by an absolute margin so the sampled emitter never
	// occludes itself.
	shadowOrigin := point.Add(n.Mul(RayEpsilon))
	shadowVec := lightPoint.Sub(shadowOrigin)
	shadowDist := shadowVec.Len()
	if shadowTMax := shadowDist - 2*RayEpsilon; shadowTMax > tMin {
		shadowRay := NewRay(shadowOrigin, shadowVec.Mul(1/shadowDist))
		if Occluded(sc, &shadowRay, shadowTMax) {
			return types.Vec3{}
		}
	}

	// Convert the area pdf to solid angle.
	solidAnglePdf := distSq / (emitter.Area * cosLight)
	contribution := albedo.Mul(1 / math.Pi).MulVec(emitter.Emission).Mul(cosSurface / (pickPdf * solidAnglePdf))

	if fireflyClamp > 0 {
		maxLum := fireflyClamp * emitter.Emission.Luminance()
		if lum := contribution.Luminance(); lum > maxLum && lum > 0 {
			contribution = contribution.Mul(maxLum / lum)
		}
	}

	if !contribution.IsFinite() {
		return types.Vec3{}
	}
	return contribution
}
