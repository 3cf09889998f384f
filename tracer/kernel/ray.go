package kernel

import (
	"math"

	"github.com/achilleasa/prism/types"
)

const (
	// Offset applied to secondary ray origins to avoid self intersections.
	RayEpsilon float32 = 1e-4

	// Rays never report hits closer than this distance.
	tMin float32 = 1e-6

	// Möller-Trumbore determinant threshold.
	detEpsilon float32 = 1e-9
)

// Infinity is used as the maximum distance of unbounded rays.
var Infinity = float32(math.MaxFloat32)

// A ray with a cached reciprocal direction for slab tests.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	InvDir types.Vec3
}

// Create a new ray. Dir is expected to be normalized.
func NewRay(origin, dir types.Vec3) Ray {
	return Ray{
		Origin: origin,
		Dir:    dir,
		InvDir: dir.Recip(),
	}
}

// At returns the point along the ray at distance t.
func (r *Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// The closest intersection along a ray.
type Hit struct {
	T float32

	// Barycentric coordinates of the hit relative to vertices 1 and 2.
	U, V float32

	Triangle int
}
