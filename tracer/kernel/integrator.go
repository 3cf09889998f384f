package kernel

import (
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

// Russian roulette never keeps paths with a survival probability above this.
const maxSurvival float32 = 0.95

// The result of tracing one sample through a pixel.
type PixelSample struct {
	Radiance types.Vec3

	// World-space normal and distance of the primary hit. Depth is
	// tracer.SkyDepth when the primary ray escapes.
	Normal types.Vec3
	Depth  float32
}

// RenderPixel traces one jittered sample through pixel (x, y). When the
// camera has chromatic aberration each channel follows its own path.
func RenderPixel(sc *scene.Scene, p *tracer.IntegrationParams, frameW, frameH, x, y uint32) PixelSample {
	pixel := y*frameW + x

	if !p.Camera.HasAberration() {
		rng := NewRand(pixel, 0, p.Sample)
		return tracePixelChannel(sc, p, frameW, frameH, x, y, -1, &rng)
	}

	var out PixelSample
	for channel := 0; channel < 3; channel++ {
		rng := NewRand(pixel, uint32(channel), p.Sample)
		s := tracePixelChannel(sc, p, frameW, frameH, x, y, channel, &rng)
		out.Radiance[channel] = s.Radiance[channel]

		// The G-buffer follows the unshifted green channel.
		if channel == 1 {
			out.Normal = s.Normal
			out.Depth = s.Depth
		}
	}
	return out
}

func tracePixelChannel(sc *scene.Scene, p *tracer.IntegrationParams, frameW, frameH, x, y uint32, channel int, rng *Rand) PixelSample {
	fx := float32(x) + rng.Float32()
	fy := float32(y) + rng.Float32()
	ray := cameraRay(&p.Camera, frameW, frameH, fx, fy, channel, rng.Float32(), rng.Float32())

	s := tracePath(sc, p, ray, rng)
	if !s.Radiance.IsFinite() {
		s.Radiance = types.Vec3{}
	}
	return s
}

// Trace a path starting with ray and return its radiance and primary hit.
func tracePath(sc *scene.Scene, p *tracer.IntegrationParams, ray Ray, rng *Rand) PixelSample {
	out := PixelSample{Depth: tracer.SkyDepth}
	throughput := types.Splat3(1)

	// Set when the previous vertex was diffuse and NEE sampled the emitters.
	lastDiffuse := false

	// Set while the path continues through specular vertices after its
	// first diffuse vertex. The photon gather pass owns these emitter hits.
	diffuseVertices := 0
	specularAfterDiffuse := false

	for bounce := uint32(0); bounce <= p.NumBounces; bounce++ {
		hit, ok := Intersect(sc, &ray, Infinity)
		if !ok {
			out.Radiance = out.Radiance.Add(throughput.MulVec(sc.Background))
			break
		}

		tri := &sc.Triangles[hit.Triangle]
		mat := &sc.Materials[tri.MaterialIndex]
		point := ray.At(hit.T)
		ng := tri.FaceNormal()
		ns := ShadingNormal(tri, hit.U, hit.V, ng)

		if bounce == 0 {
			facing := ns
			if facing.Dot(ray.Dir) > 0 {
				facing = facing.Neg()
			}
			out.Normal = facing
			out.Depth = hit.T
		}

		// Emitters are one-sided and terminate the path.
		if mat.IsEmissive() {
			frontFacing := ng.Dot(ray.Dir) < 0
			suppressed := (p.NEE && lastDiffuse) ||
				(p.Caustics && diffuseVertices == 1 && specularAfterDiffuse)
			if frontFacing && !suppressed {
				out.Radiance = out.Radiance.Add(throughput.MulVec(mat.Radiance()))
			}
			break
		}

		if bounce == p.NumBounces {
			break
		}

		b := SampleBxdf(mat, ray.Dir, ng, ns, rng)
		if b.Kind == scene.Diffuse {
			if p.NEE {
				direct := sampleDirect(sc, point, b.OffsetNormal, mat.Albedo, p.FireflyClamp, rng)
				out.Radiance = out.Radiance.Add(throughput.MulVec(direct))
			}
			lastDiffuse = true
			diffuseVertices++
			specularAfterDiffuse = false
		} else {
			lastDiffuse = false
			if diffuseVertices > 0 {
				specularAfterDiffuse = true
			}
		}

		throughput = throughput.MulVec(b.Weight)
		if throughput.MaxComponent() <= 0 {
			break
		}

		if p.MinBouncesForRR > 0 && bounce+1 >= p.MinBouncesForRR {
			survival := throughput.MaxComponent()
			if survival > maxSurvival {
				survival = maxSurvival
			}
			if rng.Float32() >= survival {
				break
			}
			throughput = throughput.Mul(1 / survival)
		}

		ray = NewRay(point.Add(b.OffsetNormal.Mul(RayEpsilon)), b.Dir)
	}

	return out
}

// Interpolate the vertex normals at barycentric (u, v). Falls back to the
// face normal when the vertex normals are missing or degenerate.
func ShadingNormal(tri *scene.Triangle, u, v float32, faceNormal types.Vec3) types.Vec3 {
	n := tri.Normals[0].Vec3().Mul(1 - u - v).
		Add(tri.Normals[1].Vec3().Mul(u)).
		Add(tri.Normals[2].Vec3().Mul(v)).
		Normalize()
	if n.IsZero() || !n.IsFinite() {
		return faceNormal
	}
	return n
}

// TraceSpecularChain follows ray through specular and transmissive vertices
// up to maxBounces and reports the first diffuse hit. Used by the photon
// gather pass.
func TraceSpecularChain(sc *scene.Scene, ray Ray, maxBounces uint32, rng *Rand) (point, normal types.Vec3, mat *scene.Material, throughput types.Vec3, ok bool) {
	throughput = types.Splat3(1)
	for bounce := uint32(0); bounce <= maxBounces; bounce++ {
		hit, found := Intersect(sc, &ray, Infinity)
		if !found {
			return point, normal, nil, throughput, false
		}

		tri := &sc.Triangles[hit.Triangle]
		m := &sc.Materials[tri.MaterialIndex]
		if m.IsEmissive() {
			return point, normal, nil, throughput, false
		}

		point = ray.At(hit.T)
		ng := tri.FaceNormal()
		ns := ShadingNormal(tri, hit.U, hit.V, ng)

		if m.Kind() == scene.Diffuse {
			// Report the normal on the side the ray arrived from.
			if ng.Dot(ray.Dir) > 0 {
				ng = ng.Neg()
			}
			return point, ng, m, throughput, true
		}

		b := SampleBxdf(m, ray.Dir, ng, ns, rng)
		throughput = throughput.MulVec(b.Weight)
		ray = NewRay(point.Add(b.OffsetNormal.Mul(RayEpsilon)), b.Dir)
	}
	return point, normal, nil, throughput, false
}
