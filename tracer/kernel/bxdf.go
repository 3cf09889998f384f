package kernel

import (
	"math"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

// The outcome of sampling a material at a surface point.
type Bounce struct {
	Dir types.Vec3

	// Throughput multiplier (bsdf * cos / pdf).
	Weight types.Vec3

	// Normal used to offset the next ray origin. It points to the side the
	// new ray leaves from.
	OffsetNormal types.Vec3

	Kind scene.BxdfKind
}

// CosineSampleHemisphere returns a cosine-weighted direction around n.
func CosineSampleHemisphere(n types.Vec3, u1, u2 float32) types.Vec3 {
	r := float32(math.Sqrt(float64(u1)))
	phi := 2 * math.Pi * float64(u2)
	x := r * float32(math.Cos(phi))
	y := r * float32(math.Sin(phi))
	z := float32(math.Sqrt(math.Max(0, float64(1-u1))))

	tangent, bitangent := types.OrthoBasis(n)
	return tangent.Mul(x).Add(bitangent.Mul(y)).Add(n.Mul(z)).Normalize()
}

// Sample a uniform point inside the unit sphere.
func sampleUnitSphere(u1, u2, u3 float32) types.Vec3 {
	z := 1 - 2*u1
	r := float32(math.Sqrt(math.Max(0, float64(1-z*z))))
	phi := 2 * math.Pi * float64(u2)
	scale := float32(math.Cbrt(float64(u3)))
	return types.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), z}.Mul(scale)
}

// Schlick's approximation of the Fresnel reflectance.
func schlick(cosI, ior float32) float32 {
	r0 := (1 - ior) / (1 + ior)
	r0 *= r0
	m := 1 - cosI
	return r0 + (1-r0)*m*m*m*m*m
}

// Refract d through a surface with normal n (facing against d) using the
// relative index eta. Returns false on total internal reflection.
func refract(d, n types.Vec3, eta float32) (types.Vec3, bool) {
	cosI := -d.Dot(n)
	k := 1 - eta*eta*(1-cosI*cosI)
	if k < 0 {
		return types.Vec3{}, false
	}
	return d.Mul(eta).Add(n.Mul(eta*cosI - float32(math.Sqrt(float64(k))))).Normalize(), true
}

// Sample the material at a hit. dir is the incoming ray direction, ng the
// geometric normal and ns the interpolated shading normal, both facing
// outwards as authored.
func SampleBxdf(mat *scene.Material, dir, ng, ns types.Vec3, rng *Rand) Bounce {
	kind := mat.Kind()
	entering := ng.Dot(dir) < 0

	// Flip normals to the side of the incoming ray.
	if !entering {
		ng = ng.Neg()
		ns = ns.Neg()
	}
	if ns.Dot(ng) <= 0 {
		ns = ng
	}

	switch kind {
	case scene.Specular:
		mirror := types.Reflect(dir, ns)
		out := mirror
		if mat.Roughness > 0 {
			out = mirror.Add(sampleUnitSphere(rng.Float32(), rng.Float32(), rng.Float32()).Mul(mat.Roughness)).Normalize()
			if out.Dot(ng) <= 0 || out.IsZero() {
				out = mirror
			}
		}
		if out.Dot(ng) <= 0 {
			out = types.Reflect(dir, ng)
		}
		return Bounce{Dir: out, Weight: mat.Albedo, OffsetNormal: ng, Kind: kind}
	case scene.Transmissive:
		eta := 1.0 / mat.IOR
		if !entering {
			eta = mat.IOR
		}
		cosI := types.Clamp(-dir.Dot(ns), 0, 1)
		refracted, ok := refract(dir, ns, eta)
		if !ok || rng.Float32() < schlick(cosI, mat.IOR) {
			// Reflection is colorless; choosing it with probability F
			// cancels the Fresnel weight.
			return Bounce{Dir: types.Reflect(dir, ns), Weight: types.Splat3(1), OffsetNormal: ng, Kind: kind}
		}
		return Bounce{Dir: refracted, Weight: mat.Albedo, OffsetNormal: ng.Neg(), Kind: kind}
	}

	// Lambertian: (albedo/pi) * cos / (cos/pi) = albedo
	out := CosineSampleHemisphere(ns, rng.Float32(), rng.Float32())
	if out.Dot(ng) <= 0 {
		out = CosineSampleHemisphere(ng, rng.Float32(), rng.Float32())
	}
	return Bounce{
		Dir:          out,
		Weight:       mat.Albedo,
		OffsetNormal: ng,
		Kind:         scene.Diffuse,
	}
}
