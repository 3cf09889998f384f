package kernel

import (
	"github.com/achilleasa/prism/asset/scene"
)

const (
	// Traversal stack capacities. The BVH builder caps tree depth below
	// both values; shadow rays stop at the first hit and need less.
	PrimaryStackSize = 64
	ShadowStackSize  = 48
)

// Intersect finds the closest triangle hit by ray in (tMin, tMax).
func Intersect(sc *scene.Scene, ray *Ray, tMax float32) (Hit, bool) {
	hit := Hit{T: tMax, Triangle: -1}
	if len(sc.BvhNodeList) == 0 {
		return hit, false
	}

	var stack [PrimaryStackSize]int32
	sp := 0
	stack[sp] = 0
	sp++

	for sp > 0 {
		sp--
		node := &sc.BvhNodeList[stack[sp]]
		if _, ok := intersectBox(node, ray, hit.T); !ok {
			continue
		}

		if node.IsLeaf() {
			first, count := node.GetPrimitives()
			for index := first; index < first+count; index++ {
				t, u, v, ok := intersectTriangle(&sc.Triangles[index], ray)
				if ok && t < hit.T {
					hit = Hit{T: t, U: u, V: v, Triangle: int(index)}
				}
			}
			continue
		}

		if sp+2 > PrimaryStackSize {
			continue
		}
		stack[sp] = node.Right
		stack[sp+1] = node.Left
		sp += 2
	}

	return hit, hit.Triangle >= 0
}

// Occluded returns true if any triangle intersects ray in (tMin, tMax).
func Occluded(sc *scene.Scene, ray *Ray, tMax float32) bool {
	if len(sc.BvhNodeList) == 0 {
		return false
	}

	var stack [ShadowStackSize]int32
	sp := 0
	stack[sp] = 0
	sp++

	for sp > 0 {
		sp--
		node := &sc.BvhNodeList[stack[sp]]
		if _, ok := intersectBox(node, ray, tMax); !ok {
			continue
		}

		if node.IsLeaf() {
			first, count := node.GetPrimitives()
			for index := first; index < first+count; index++ {
				if t, _, _, ok := intersectTriangle(&sc.Triangles[index], ray); ok && t < tMax {
					return true
				}
			}
			continue
		}

		if sp+2 > ShadowStackSize {
			continue
		}
		stack[sp] = node.Right
		stack[sp+1] = node.Left
		sp += 2
	}

	return false
}

// Slab test. Returns the entry distance and whether the box is hit before tMax.
func intersectBox(node *scene.BvhNode, ray *Ray, tMax float32) (float32, bool) {
	tNear := float32(0)
	tFar := tMax
	for axis := 0; axis < 3; axis++ {
		t0 := (node.Min[axis] - ray.Origin[axis]) * ray.InvDir[axis]
		t1 := (node.Max[axis] - ray.Origin[axis]) * ray.InvDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if tNear > tFar {
			return 0, false
		}
	}
	return tNear, true
}

// Möller-Trumbore ray/triangle intersection.
func intersectTriangle(tri *scene.Triangle, ray *Ray) (t, u, v float32, ok bool) {
	v0 := tri.Vertices[0].Vec3()
	e1 := tri.Vertices[1].Vec3().Sub(v0)
	e2 := tri.Vertices[2].Vec3().Sub(v0)

	pvec := ray.Dir.Cross(e2)
	det := e1.Dot(pvec)
	if det > -detEpsilon && det < detEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	tvec := ray.Origin.Sub(v0)
	u = tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	qvec := tvec.Cross(e1)
	v = ray.Dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(qvec) * invDet
	if t <= tMin {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
