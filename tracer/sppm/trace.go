package sppm

import (
	"math"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/tracer/kernel"
)

// RNG stream identifiers. They keep photon and gather sequences apart from
// the per-channel streams used by the integrator.
const (
	photonStream uint32 = 3
	gatherStream uint32 = 4
)

// TracePhoton emits photon index of the current batch and follows it through
// specular and transmissive vertices. Photons are stored at their first
// diffuse hit only if they went through at least one specular event; the
// integrator's direct lighting already accounts for the rest. It returns
// true if the photon was stored.
func TracePhoton(sc *scene.Scene, pm *PhotonMap, p *tracer.PhotonTraceParams, index uint32) bool {
	if p.PhotonCount == 0 || p.EmitterCount == 0 || p.TotalEmitterPower <= 0 {
		return false
	}

	rng := kernel.NewRand(index, photonStream, p.Seed)
	emitterIndex, pickPdf := sc.SelectEmitter(rng.Float32())
	u1, u2 := rng.Float32(), rng.Float32()
	if emitterIndex < 0 || pickPdf <= 0 {
		return false
	}

	emitter := &sc.Emitters[emitterIndex]
	origin := kernel.SampleTriangle(emitter.Vertex(0), emitter.Vertex(1), emitter.Vertex(2), u1, u2)
	dir := kernel.CosineSampleHemisphere(emitter.Normal, rng.Float32(), rng.Float32())

	// Area and cosine pdfs cancel to A*pi; the batch shares the emitted power.
	power := emitter.Emission.Mul(emitter.Area * math.Pi / (pickPdf * float32(p.PhotonCount)))

	ray := kernel.NewRay(origin.Add(emitter.Normal.Mul(kernel.RayEpsilon)), dir)
	specularEvents := 0
	for bounce := uint32(0); bounce <= p.NumBounces; bounce++ {
		hit, ok := kernel.Intersect(sc, &ray, kernel.Infinity)
		if !ok {
			return false
		}

		tri := &sc.Triangles[hit.Triangle]
		mat := &sc.Materials[tri.MaterialIndex]
		if mat.IsEmissive() {
			return false
		}

		point := ray.At(hit.T)
		if mat.Kind() == scene.Diffuse {
			if specularEvents == 0 {
				return false
			}
			return pm.Insert(Photon{Position: point, Power: power, Direction: ray.Dir})
		}

		ng := tri.FaceNormal()
		b := kernel.SampleBxdf(mat, ray.Dir, ng, kernel.ShadingNormal(tri, hit.U, hit.V, ng), &rng)
		power = power.MulVec(b.Weight)
		if power.MaxComponent() <= 0 || !power.IsFinite() {
			return false
		}
		specularEvents++
		ray = kernel.NewRay(point.Add(b.OffsetNormal.Mul(kernel.RayEpsilon)), b.Dir)
	}

	return false
}

// TraceRange traces photons [start, start+count) and returns the number of
// stored photons.
func TraceRange(sc *scene.Scene, pm *PhotonMap, p *tracer.PhotonTraceParams, start, count uint32) uint32 {
	var stored uint32
	for index := start; index < start+count; index++ {
		if TracePhoton(sc, pm, p, index) {
			stored++
		}
	}
	return stored
}
