package reader

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/achilleasa/prism/asset"
	"github.com/achilleasa/prism/asset/compiler"
	"github.com/achilleasa/prism/asset/compiler/input"
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var errNoPositions = errors.New("primitive has no POSITION attribute")

// Glass-like materials without an explicit IOR use this value.
const gltfDefaultIOR float32 = 1.5

type gltfSceneReader struct {
	logger log.Logger

	doc      *gltf.Document
	rawScene *input.Scene

	// Maps glTF mesh indices to raw scene mesh indices; -1 if the mesh
	// contains no triangles.
	meshIndex []int

	cameraSet bool
}

// Create a new glTF scene reader.
func newGltfReader() *gltfSceneReader {
	return &gltfSceneReader{
		logger:   log.New("gltf scene reader"),
		rawScene: input.NewScene(),
	}
}

// Read a .gltf or .glb scene. Local files may reference external buffers
// relative to their location; streamed documents must embed all buffers.
func (r *gltfSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	var err error
	if localPath, isLocal := sceneRes.LocalPath(); isLocal {
		r.doc, err = gltf.Open(localPath)
	} else {
		r.doc = new(gltf.Document)
		err = gltf.NewDecoder(sceneRes).Decode(r.doc)
	}
	if err != nil {
		return nil, fmt.Errorf("gltf reader: could not decode %q: %v", sceneRes.Path(), err)
	}

	r.convertMaterials()
	if err = r.convertMeshes(); err != nil {
		return nil, err
	}
	r.convertNodes()

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.Compile(r.rawScene)
}

// Map metallic-roughness materials to raw scene materials. Emission uses the
// emissive factor; blended materials with partial alpha become transmissive.
func (r *gltfSceneReader) convertMaterials() {
	for index, gm := range r.doc.Materials {
		mat := &input.Material{
			Name:     gm.Name,
			Albedo:   types.Vec3{0.8, 0.8, 0.8},
			Emission: types.Vec3{float32(gm.EmissiveFactor[0]), float32(gm.EmissiveFactor[1]), float32(gm.EmissiveFactor[2])},
		}
		if mat.Name == "" {
			mat.Name = fmt.Sprintf("material_%d", index)
		}

		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			mat.Albedo = types.Vec3{float32(cf[0]), float32(cf[1]), float32(cf[2])}
			mat.Metallic = float32(pbr.MetallicFactorOrDefault())
			mat.Roughness = float32(pbr.RoughnessFactorOrDefault())

			if gm.AlphaMode == gltf.AlphaBlend && cf[3] < 1.0 {
				mat.Transmission = 1.0 - float32(cf[3])
				mat.IOR = gltfDefaultIOR
			}
		}

		r.rawScene.Materials = append(r.rawScene.Materials, mat)
	}
}

// Convert each glTF mesh into a raw mesh. Primitives that are not triangle
// lists are skipped.
func (r *gltfSceneReader) convertMeshes() error {
	r.meshIndex = make([]int, len(r.doc.Meshes))
	for mi, gm := range r.doc.Meshes {
		name := gm.Name
		if name == "" {
			name = fmt.Sprintf("mesh_%d", mi)
		}

		mesh := input.NewMesh(name)
		for pi, prim := range gm.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				r.logger.Warningf("mesh %q: skipping primitive %d with unsupported mode %v", name, pi, prim.Mode)
				continue
			}

			prims, err := r.readPrimitive(prim)
			if err != nil {
				return fmt.Errorf("gltf reader: mesh %q primitive %d: %v", name, pi, err)
			}
			mesh.Primitives = append(mesh.Primitives, prims...)
		}

		if len(mesh.Primitives) == 0 {
			r.logger.Warningf(`dropping mesh "%s" as it contains no triangles`, name)
			r.meshIndex[mi] = -1
			continue
		}

		mesh.MarkBBoxDirty()
		r.rawScene.Meshes = append(r.rawScene.Meshes, mesh)
		r.meshIndex[mi] = len(r.rawScene.Meshes) - 1
		r.logger.Infof("mesh %q: %d triangles", name, len(mesh.Primitives))
	}
	return nil
}

func (r *gltfSceneReader) readPrimitive(prim *gltf.Primitive) ([]*input.Primitive, error) {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, errNoPositions
	}
	positions, err := modeler.ReadPosition(r.doc, r.doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %v", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if normals, err = modeler.ReadNormal(r.doc, r.doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("normals: %v", err)
		}
	}

	var uvs [][2]float32
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = modeler.ReadTextureCoord(r.doc, r.doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("texture coords: %v", err)
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = modeler.ReadIndices(r.doc, r.doc.Accessors[*prim.Indices], nil); err != nil {
			return nil, fmt.Errorf("indices: %v", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	matIndex := -1
	if prim.Material != nil {
		matIndex = *prim.Material
	}

	out := make([]*input.Primitive, 0, len(indices)/3)
	for tri := 0; tri+2 < len(indices); tri += 3 {
		p := &input.Primitive{MaterialIndex: matIndex}
		for v := 0; v < 3; v++ {
			vi := int(indices[tri+v])
			if vi >= len(positions) {
				return nil, fmt.Errorf("vertex index %d out of bounds", vi)
			}
			p.Vertices[v] = types.Vec3(positions[vi])
			if vi < len(normals) {
				p.Normals[v] = types.Vec3(normals[vi])
			}
			if vi < len(uvs) {
				p.UVs[v] = types.Vec2(uvs[vi])
			}
		}

		if len(normals) == 0 {
			faceNormal := p.Vertices[1].Sub(p.Vertices[0]).Cross(p.Vertices[2].Sub(p.Vertices[0])).Normalize()
			p.Normals = [3]types.Vec3{faceNormal, faceNormal, faceNormal}
		}
		out = append(out, p)
	}

	if matIndex >= 0 && matIndex < len(r.rawScene.Materials) && len(out) > 0 {
		r.rawScene.Materials[matIndex].Used = true
	}
	return out, nil
}

// Walk the node hierarchy of the default scene emitting one mesh instance per
// mesh node. The first camera node found sets the scene camera.
func (r *gltfSceneReader) convertNodes() {
	for _, root := range r.rootNodes() {
		r.visitNode(root, mgl32.Ident4(), 0)
	}
}

func (r *gltfSceneReader) rootNodes() []int {
	if r.doc.Scene != nil && *r.doc.Scene < len(r.doc.Scenes) {
		return r.doc.Scenes[*r.doc.Scene].Nodes
	}
	if len(r.doc.Scenes) > 0 {
		return r.doc.Scenes[0].Nodes
	}

	// No scenes; collect all parentless nodes
	hasParent := make([]bool, len(r.doc.Nodes))
	for _, gn := range r.doc.Nodes {
		for _, c := range gn.Children {
			if c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	roots := make([]int, 0)
	for i := range r.doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func (r *gltfSceneReader) visitNode(nodeIndex int, parent mgl32.Mat4, depth int) {
	if nodeIndex < 0 || nodeIndex >= len(r.doc.Nodes) || depth > len(r.doc.Nodes) {
		return
	}

	gn := r.doc.Nodes[nodeIndex]
	world := parent.Mul4(nodeTransform(gn))

	if gn.Mesh != nil && *gn.Mesh < len(r.meshIndex) && r.meshIndex[*gn.Mesh] >= 0 {
		r.rawScene.MeshInstances = append(r.rawScene.MeshInstances, &input.MeshInstance{
			MeshIndex: uint32(r.meshIndex[*gn.Mesh]),
			Transform: world,
		})
	}

	if gn.Camera != nil && !r.cameraSet && *gn.Camera < len(r.doc.Cameras) {
		r.setCamera(r.doc.Cameras[*gn.Camera], world)
	}

	for _, child := range gn.Children {
		r.visitNode(child, world, depth+1)
	}
}

// glTF cameras look down their local -Z axis with +Y up.
func (r *gltfSceneReader) setCamera(gc *gltf.Camera, world mgl32.Mat4) {
	if gc.Perspective == nil {
		r.logger.Warningf("ignoring orthographic camera %q", gc.Name)
		return
	}

	cam := r.rawScene.Camera
	eye := world.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	forward := world.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
	up := world.Mul4x1(mgl32.Vec4{0, 1, 0, 0}).Vec3().Normalize()

	cam.Eye = types.Vec3(eye)
	cam.Look = types.Vec3(eye.Add(forward))
	cam.Up = types.Vec3(up)
	cam.FOV = float32(gc.Perspective.Yfov * 180.0 / math.Pi)
	r.cameraSet = true
}

// Build the local transform for a node using either its matrix or its
// translation, rotation and scale properties.
func nodeTransform(gn *gltf.Node) mgl32.Mat4 {
	var m mgl32.Mat4
	isIdentity := true
	ident := mgl32.Ident4()
	for i, v := range gn.MatrixOrDefault() {
		m[i] = float32(v)
		if m[i] != ident[i] {
			isIdentity = false
		}
	}
	if !isIdentity {
		return m
	}

	t := gn.TranslationOrDefault()
	rot := gn.RotationOrDefault()
	s := gn.ScaleOrDefault()

	q := mgl32.Quat{W: float32(rot[3]), V: mgl32.Vec3{float32(rot[0]), float32(rot[1]), float32(rot[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(q.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}
