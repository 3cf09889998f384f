package scene

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/achilleasa/prism/types"
	"github.com/olekukonko/tablewriter"
)

// Triangles below this area are never used as emitters.
const minEmitterArea float32 = 1e-8

// A triangle primitive. Vertex attributes are padded to Vec4 so the record
// keeps a fixed array-of-structs layout.
type Triangle struct {
	Vertices      [3]types.Vec4
	Normals       [3]types.Vec4
	UVs           [3]types.Vec2
	MaterialIndex uint32

	padding [3]uint32
}

// Get a vertex position.
func (t *Triangle) Vertex(index int) types.Vec3 {
	return t.Vertices[index].Vec3()
}

// BBox returns the triangle AABB.
func (t Triangle) BBox() [2]types.Vec3 {
	v0, v1, v2 := t.Vertices[0].Vec3(), t.Vertices[1].Vec3(), t.Vertices[2].Vec3()
	return [2]types.Vec3{
		types.MinVec3(v0, types.MinVec3(v1, v2)),
		types.MaxVec3(v0, types.MaxVec3(v1, v2)),
	}
}

// Center returns the triangle centroid.
func (t Triangle) Center() types.Vec3 {
	return t.Vertices[0].Vec3().Add(t.Vertices[1].Vec3()).Add(t.Vertices[2].Vec3()).Mul(1.0 / 3.0)
}

// Area returns the triangle area.
func (t *Triangle) Area() float32 {
	e1 := t.Vertices[1].Vec3().Sub(t.Vertices[0].Vec3())
	e2 := t.Vertices[2].Vec3().Sub(t.Vertices[0].Vec3())
	return 0.5 * e1.Cross(e2).Len()
}

// FaceNormal returns the unit geometric normal using counter-clockwise winding.
func (t *Triangle) FaceNormal() types.Vec3 {
	e1 := t.Vertices[1].Vec3().Sub(t.Vertices[0].Vec3())
	e2 := t.Vertices[2].Vec3().Sub(t.Vertices[0].Vec3())
	return e1.Cross(e2).Normalize()
}

// Bvh nodes store their AABB and four integers. Interior nodes have a zero
// LeafCount and point to their children; leaves point to a contiguous
// range of the reordered triangle list.
type BvhNode struct {
	Min      types.Vec3
	padding0 float32

	Max      types.Vec3
	padding1 float32

	Left      int32
	Right     int32
	LeafStart uint32
	LeafCount uint32
}

// Set bounding box.
func (n *BvhNode) SetBBox(bbox [2]types.Vec3) {
	n.Min = bbox[0]
	n.Max = bbox[1]
}

// Set left and right child node indices.
func (n *BvhNode) SetChildNodes(left, right uint32) {
	n.Left = int32(left)
	n.Right = int32(right)
	n.LeafStart = 0
	n.LeafCount = 0
}

// Set primitive index and count.
func (n *BvhNode) SetPrimitives(firstPrimIndex, count uint32) {
	n.Left = -1
	n.Right = -1
	n.LeafStart = firstPrimIndex
	n.LeafCount = count
}

// Get primitive index and count.
func (n *BvhNode) GetPrimitives() (firstPrimIndex, count uint32) {
	return n.LeafStart, n.LeafCount
}

// IsLeaf returns true if the node references triangles.
func (n *BvhNode) IsLeaf() bool {
	return n.LeafCount > 0
}

// The scattering behavior a material resolves to.
type BxdfKind uint8

const (
	Diffuse BxdfKind = iota
	Specular
	Transmissive
)

func (k BxdfKind) String() string {
	switch k {
	case Diffuse:
		return "diffuse"
	case Specular:
		return "specular"
	case Transmissive:
		return "transmissive"
	}
	return "unknown"
}

// A surface material.
type Material struct {
	Albedo   types.Vec3
	Metallic float32

	Emission         types.Vec3
	EmissionStrength float32

	Roughness    float32
	IOR          float32
	Transmission float32
	TextureIndex int32

	reserved [4]float32
}

// Kind resolves the material parameters to a scattering behavior.
func (m *Material) Kind() BxdfKind {
	switch {
	case m.Transmission >= 0.5:
		return Transmissive
	case m.Metallic >= 0.5:
		return Specular
	}
	return Diffuse
}

// Radiance returns the emitted radiance.
func (m *Material) Radiance() types.Vec3 {
	return m.Emission.Mul(m.EmissionStrength)
}

// IsEmissive returns true if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.EmissionStrength > 0 && m.Emission.MaxComponent() > 0
}

// An emissive triangle used for next event estimation and photon emission.
type Emitter struct {
	Vertices [3]types.Vec4

	// Emitted radiance and power (luminance * area * pi).
	Emission types.Vec3
	Power    float32

	// Face normal and the cumulative selection probability.
	Normal types.Vec3
	CDF    float32

	Area          float32
	TriangleIndex uint32

	padding [2]uint32
}

// Get an emitter vertex.
func (e *Emitter) Vertex(index int) types.Vec3 {
	return e.Vertices[index].Vec3()
}

// Scene is the compiled, flat representation that tracers consume.
type Scene struct {
	BvhNodeList []BvhNode
	Triangles   []Triangle
	Materials   []Material
	Emitters    []Emitter

	// Sum of all emitter powers.
	TotalEmitterPower float32

	// Radiance returned by rays that escape the scene.
	Background types.Vec3

	Camera *Camera
}

// Rebuild the emitter table from the emissive triangles. Must be called
// whenever the emissive triangle set changes.
func (sc *Scene) BuildEmitters() {
	sc.Emitters = sc.Emitters[:0]
	sc.TotalEmitterPower = 0

	for triIndex := range sc.Triangles {
		tri := &sc.Triangles[triIndex]
		mat := &sc.Materials[tri.MaterialIndex]
		if !mat.IsEmissive() {
			continue
		}

		area := tri.Area()
		if area < minEmitterArea {
			continue
		}

		radiance := mat.Radiance()
		power := radiance.Luminance() * area * math.Pi
		if power <= 0 {
			continue
		}

		sc.Emitters = append(sc.Emitters, Emitter{
			Vertices:      tri.Vertices,
			Emission:      radiance,
			Power:         power,
			Normal:        tri.FaceNormal(),
			Area:          area,
			TriangleIndex: uint32(triIndex),
		})
		sc.TotalEmitterPower += power
	}

	// Accumulate in float64 and pin the last entry to exactly 1.
	var total, running float64
	for index := range sc.Emitters {
		total += float64(sc.Emitters[index].Power)
	}
	for index := range sc.Emitters {
		running += float64(sc.Emitters[index].Power)
		sc.Emitters[index].CDF = float32(math.Min(running/total, 1.0))
	}
	if len(sc.Emitters) > 0 {
		sc.Emitters[len(sc.Emitters)-1].CDF = 1.0
	}
}

// SelectEmitter picks an emitter with probability proportional to its power
// using a single uniform value in [0, 1). It returns the emitter index and
// its selection probability or -1 if the scene has no emitters.
func (sc *Scene) SelectEmitter(u float32) (int, float32) {
	if len(sc.Emitters) == 0 || sc.TotalEmitterPower <= 0 {
		return -1, 0
	}

	selected := len(sc.Emitters) - 1
	for index := range sc.Emitters {
		if u < sc.Emitters[index].CDF {
			selected = index
			break
		}
	}

	return selected, sc.Emitters[selected].Power / sc.TotalEmitterPower
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Count", "Size"})
	table.Append([]string{"Triangles", fmt.Sprint(len(sc.Triangles)), fmtSize(sc.Triangles)})
	table.Append([]string{"BVH nodes", fmt.Sprint(len(sc.BvhNodeList)), fmtSize(sc.BvhNodeList)})
	table.Append([]string{"Materials", fmt.Sprint(len(sc.Materials)), fmtSize(sc.Materials)})
	table.Append([]string{"Emitters", fmt.Sprint(len(sc.Emitters)), fmtSize(sc.Emitters)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(sc.Triangles, sc.BvhNodeList, sc.Materials, sc.Emitters), " ")})

	table.Render()
	return buf.String()
}

// Sum the space used by a set of slices and format it with a byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32
	for _, item := range items {
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}
		totalBytes += float32(int(v.Type().Elem().Size()) * v.Len())
	}

	switch {
	case totalBytes < 1e3:
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	case totalBytes < 1e6:
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
