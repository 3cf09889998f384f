package input

import (
	"math"

	"github.com/achilleasa/prism/types"
	"github.com/go-gl/mathgl/mgl32"
)

// A material as described by a scene file.
type Material struct {
	Name string

	Albedo    types.Vec3
	Metallic  float32
	Roughness float32

	Emission         types.Vec3
	EmissionStrength float32

	IOR          float32
	Transmission float32

	// True if material is referenced by scene geometry.
	Used bool
}

// A triangle primitive
type Primitive struct {
	Vertices      [3]types.Vec3
	Normals       [3]types.Vec3
	UVs           [3]types.Vec2
	MaterialIndex int
}

// Get the primitive AABB.
func (prim *Primitive) BBox() [2]types.Vec3 {
	return [2]types.Vec3{
		types.MinVec3(prim.Vertices[0], types.MinVec3(prim.Vertices[1], prim.Vertices[2])),
		types.MaxVec3(prim.Vertices[0], types.MaxVec3(prim.Vertices[1], prim.Vertices[2])),
	}
}

// Get primitive centroid.
func (prim *Primitive) Center() types.Vec3 {
	return prim.Vertices[0].Add(prim.Vertices[1]).Add(prim.Vertices[2]).Mul(1.0 / 3.0)
}

// A mesh is constructed by a list of primitive.
type Mesh struct {
	Name       string
	Primitives []*Primitive

	bbox            [2]types.Vec3
	bboxNeedsUpdate bool
}

// Mark the bbox of this mesh as dirty.
func (m *Mesh) MarkBBoxDirty() {
	m.bboxNeedsUpdate = true
}

// Get mesh bounding box.
func (m *Mesh) BBox() [2]types.Vec3 {
	if m.bboxNeedsUpdate {
		m.bbox = [2]types.Vec3{
			{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
			{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		}

		for _, prim := range m.Primitives {
			primBBox := prim.BBox()
			m.bbox[0] = types.MinVec3(m.bbox[0], primBBox[0])
			m.bbox[1] = types.MaxVec3(m.bbox[1], primBBox[1])
		}

		m.bboxNeedsUpdate = false
	}

	return m.bbox
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:            name,
		Primitives:      make([]*Primitive, 0),
		bboxNeedsUpdate: true,
	}
}

// A mesh instance places a copy of a Mesh in world space. Instances are
// flattened into world-space triangles by the compiler.
type MeshInstance struct {
	MeshIndex uint32
	Transform mgl32.Mat4
}

// Camera settings.
type Camera struct {
	FOV  float32
	Eye  types.Vec3
	Look types.Vec3
	Up   types.Vec3

	// Thin lens settings. A zero aperture yields a pinhole camera.
	FocalDistance float32
	Aperture      float32
	Blades        uint32

	Aberration types.Vec3
}

// The scene contains all elements that are processed and optimized by the
// scene compiler.
type Scene struct {
	Meshes        []*Mesh
	MeshInstances []*MeshInstance
	Materials     []*Material
	Camera        *Camera

	// Radiance for rays escaping the scene.
	Background types.Vec3
}

// Create a new scene.
func NewScene() *Scene {
	return &Scene{
		Meshes:        make([]*Mesh, 0),
		MeshInstances: make([]*MeshInstance, 0),
		Materials:     make([]*Material, 0),
		Camera: &Camera{
			FOV:           45.0,
			Eye:           types.Vec3{0, 0, 0},
			Look:          types.Vec3{0, 0, -1},
			Up:            types.Vec3{0, 1, 0},
			FocalDistance: 1.0,
		},
	}
}
