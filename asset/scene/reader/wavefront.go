package reader

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/prism/asset"
	"github.com/achilleasa/prism/asset/compiler"
	"github.com/achilleasa/prism/asset/compiler/input"
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/types"
	"github.com/go-gl/mathgl/mgl32"
)

type wavefrontMaterial struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Specular color.
	Ks types.Vec3

	// Emissive color and scaler.
	Ke       types.Vec3
	KeScaler float32

	// Transmission filter and dissolve.
	Tf types.Vec3
	D  float32

	// Index of refraction.
	Ni float32

	// PBR extension parameters. Negative values mean unset.
	Pm float32
	Pr float32
}

func newWavefrontMaterial(name string) *wavefrontMaterial {
	return &wavefrontMaterial{
		Name: name,
		D:    1,
		Pm:   -1,
		Pr:   -1,
	}
}

// Convert the wavefront material properties into the reader-neutral
// material representation.
func (wf *wavefrontMaterial) toInput() *input.Material {
	mat := &input.Material{
		Name:             wf.Name,
		Albedo:           wf.Kd,
		Emission:         wf.Ke,
		EmissionStrength: wf.KeScaler,
		IOR:              wf.Ni,
	}

	isSpecular := wf.Ks.MaxComponent() > 0.0
	isTransmissive := wf.Tf.MaxComponent() > 0.0 || wf.D < 1.0
	switch {
	case isTransmissive || (isSpecular && wf.Ni != 0.0):
		mat.Transmission = 1.0 - wf.D
		if wf.D >= 1.0 {
			mat.Transmission = 1.0
		}
		if wf.Tf.MaxComponent() > 0.0 {
			mat.Albedo = wf.Tf
		} else if isSpecular {
			mat.Albedo = wf.Ks
		}
	case isSpecular && wf.Pm < 0:
		mat.Metallic = 1.0
		mat.Albedo = wf.Ks
	}

	if wf.Pm >= 0 {
		mat.Metallic = wf.Pm
	}
	if wf.Pr >= 0 {
		mat.Roughness = wf.Pr
	}
	return mat
}

type wavefrontSceneReader struct {
	logger log.Logger

	// The parsed scene.
	rawScene *input.Scene

	// A map of material names to parsed wavefront materials
	matNameToIndex map[string]int

	// Index of currently selected material; -1 selects the default material.
	curMaterial int

	// Parsed wavefront materials.
	materials []*wavefrontMaterial

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new text scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront scene reader"),
		rawScene:       input.NewScene(),
		matNameToIndex: make(map[string]int, 0),
		curMaterial:    -1,
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		uvList:         make([]types.Vec2, 0),
		errStack:       make([]string, 0),
	}
}

// Read scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// Parse scene
	err := r.parse(sceneRes)
	if err != nil {
		return nil, err
	}

	// If no mesh instances are defined, create instances for each defined mesh
	if len(r.rawScene.MeshInstances) == 0 {
		r.createDefaultMeshInstances()
	}

	r.rawScene.Materials = make([]*input.Material, 0, len(r.materials))
	for _, wfMat := range r.materials {
		r.rawScene.Materials = append(r.rawScene.Materials, wfMat.toInput())
	}
	r.markUsedMaterials()

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)

	return compiler.Compile(r.rawScene)
}

// Flag materials referenced by at least one primitive.
func (r *wavefrontSceneReader) markUsedMaterials() {
	for _, mesh := range r.rawScene.Meshes {
		for _, prim := range mesh.Primitives {
			if prim.MaterialIndex >= 0 && prim.MaterialIndex < len(r.rawScene.Materials) {
				r.rawScene.Materials[prim.MaterialIndex].Used = true
			}
		}
	}
}

// Generate a mesh instance with an identity transformation for each defined mesh.
func (r *wavefrontSceneReader) createDefaultMeshInstances() {
	for meshIndex := range r.rawScene.Meshes {
		r.rawScene.MeshInstances = append(r.rawScene.MeshInstances, &input.MeshInstance{
			MeshIndex: uint32(meshIndex),
			Transform: mgl32.Ident4(),
		})
	}
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n"))
	} else {
		errMsg = fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n"))
	}

	return fmt.Errorf("%s", strings.Trim(errMsg, "\n"))
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	// The main obj file may include (call) several other object files. Each
	// object file contains 1-based indices (when they are positive). By
	// tracking the current vertex/uv/normal offsets we can apply them
	// while parsing faces to select the correct coordinates.
	relVertexOffset := len(r.vertexList)
	relUvOffset := len(r.uvList)
	relNormalOffset := len(r.normalList)

	cam := r.rawScene.Camera

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for 'usemtl'; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			// Lookup material
			matName := lineTokens[1]
			matIndex, exists := r.matNameToIndex[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, matName)
			}

			// Activate material
			r.curMaterial = matIndex
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.verifyLastParsedMesh()
			r.rawScene.Meshes = append(r.rawScene.Meshes, input.NewMesh(lineTokens[1]))
		case "f":
			primList, err := r.parseFace(lineTokens, relVertexOffset, relUvOffset, relNormalOffset)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			// If no object has been defined create a default one
			if len(r.rawScene.Meshes) == 0 {
				r.rawScene.Meshes = append(r.rawScene.Meshes, input.NewMesh("default"))
			}

			// Append primitive
			meshIndex := len(r.rawScene.Meshes) - 1
			r.rawScene.Meshes[meshIndex].MarkBBoxDirty()
			r.rawScene.Meshes[meshIndex].Primitives = append(r.rawScene.Meshes[meshIndex].Primitives, primList...)
		case "camera_fov":
			cam.FOV, err = parseFloat32(lineTokens)
		case "camera_eye":
			cam.Eye, err = parseVec3(lineTokens)
		case "camera_look":
			cam.Look, err = parseVec3(lineTokens)
		case "camera_up":
			cam.Up, err = parseVec3(lineTokens)
		case "camera_focus":
			cam.FocalDistance, err = parseFloat32(lineTokens)
		case "camera_aperture":
			cam.Aperture, err = parseFloat32(lineTokens)
		case "camera_blades":
			var blades float32
			blades, err = parseFloat32(lineTokens)
			if err == nil && (blades < 0 || blades != float32(math.Floor(float64(blades)))) {
				err = fmt.Errorf(`expected a non-negative integer blade count; got %v`, blades)
			}
			cam.Blades = uint32(blades)
		case "camera_aberration":
			cam.Aberration, err = parseVec3(lineTokens)
		case "background":
			r.rawScene.Background, err = parseVec3(lineTokens)
		case "instance":
			instance, err := r.parseMeshInstance(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.rawScene.MeshInstances = append(r.rawScene.MeshInstances, instance)
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	if err = scanner.Err(); err != nil {
		return r.emitError(res.Path(), lineNum, "%s", err.Error())
	}

	r.verifyLastParsedMesh()
	return nil
}

// Drop the last parsed mesh if it contains no primitives.
func (r *wavefrontSceneReader) verifyLastParsedMesh() {
	lastMeshIndex := len(r.rawScene.Meshes) - 1
	if lastMeshIndex >= 0 && len(r.rawScene.Meshes[lastMeshIndex].Primitives) == 0 {
		r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, r.rawScene.Meshes[lastMeshIndex].Name)
		r.rawScene.Meshes = r.rawScene.Meshes[:lastMeshIndex]
	}
}

// Parse mesh instance definition. Definitions use the following format:
// instance mesh_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees around the X, Y and Z axis
// - sX, sY, sZ	      : scale
func (r *wavefrontSceneReader) parseMeshInstance(lineTokens []string) (*input.MeshInstance, error) {
	if len(lineTokens) != 11 {
		return nil, fmt.Errorf(`unsupported syntax for "instance"; expected 10 arguments: mesh_name tX tY tZ yaw pitch roll sX sY sZ; got %d`, len(lineTokens)-1)
	}

	// Find object by name
	meshName := lineTokens[1]
	meshIndex := -1
	for index, mesh := range r.rawScene.Meshes {
		if mesh.Name == meshName {
			meshIndex = index
			break
		}
	}

	if meshIndex == -1 {
		return nil, fmt.Errorf(`unknown mesh with name "%s"`, meshName)
	}

	var args [9]float32
	for index := range args {
		v, err := strconv.ParseFloat(lineTokens[index+2], 32)
		if err != nil {
			return nil, err
		}
		args[index] = float32(v)
	}

	// Generate final matrix: M = T * R * S
	transMat := mgl32.Translate3D(args[0], args[1], args[2])
	rotMat := mgl32.HomogRotate3DZ(mgl32.DegToRad(args[5])).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(args[4]))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(args[3])))
	scaleMat := mgl32.Scale3D(args[6], args[7], args[8])

	return &input.MeshInstance{
		MeshIndex: uint32(meshIndex),
		Transform: transMat.Mul4(rotMat).Mul4(scaleMat),
	}, nil
}

// Parse face definition. Each face definitions consists of 3 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list.
//
// This method only works with triangular/quad faces and will return an error if a
// face with more than 4 vertices is encountered.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset, relUvOffset, relNormalOffset int) ([]*input.Primitive, error) {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return nil, fmt.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	var vertices [4]types.Vec3
	var normals [4]types.Vec3
	var uv [4]types.Vec2
	var vOffset int
	var err error
	expIndices := 0
	hasNormals := false
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return nil, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return nil, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return nil, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg] = r.vertexList[vOffset]

		// Parse UV coords if specified
		if expIndices > 1 && vTokens[1] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[1], len(r.uvList), relUvOffset)
			if err != nil {
				return nil, fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
			uv[arg] = r.uvList[vOffset]
		}

		// Parse normal coords if specified
		if expIndices > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return nil, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			normals[arg] = r.normalList[vOffset]
			hasNormals = true
		}
	}

	// If no normals are available generate them from the vertices
	if !hasNormals {
		faceNormal := vertices[1].Sub(vertices[0]).Cross(vertices[2].Sub(vertices[0])).Normalize()
		for i := range normals {
			normals[i] = faceNormal
		}
	}

	// Assemble vertices into one or two primitives depending on whether we are parsing a triangular or a quad face
	primitives := make([]*input.Primitive, 0, 2)
	indiceList := [][3]int{{0, 1, 2}}
	if len(lineTokens) == 5 {
		indiceList = append(indiceList, [3]int{0, 2, 3})
	}

	for _, indices := range indiceList {
		prim := &input.Primitive{MaterialIndex: r.curMaterial}
		for triIndex, selectIndex := range indices {
			prim.Vertices[triIndex] = vertices[selectIndex]
			prim.Normals[triIndex] = normals[selectIndex]
			prim.UVs[triIndex] = uv[selectIndex]
		}
		primitives = append(primitives, prim)
	}

	return primitives, nil
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *wavefrontMaterial = nil
	var matName string = ""

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			// Allocate new material and add it to library
			curMaterial = newWavefrontMaterial(matName)
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
			continue
		}

		if curMaterial == nil {
			return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
		}

		switch lineTokens[0] {
		case "include":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
			}

			// Overwrite material but keep the original name
			*curMaterial = *r.materials[baseMaterialIndex]
			curMaterial.Name = matName
		case "Kd":
			curMaterial.Kd, err = parseVec3(lineTokens)
		case "Ks":
			curMaterial.Ks, err = parseVec3(lineTokens)
		case "Ke":
			curMaterial.Ke, err = parseVec3(lineTokens)
		case "Tf":
			curMaterial.Tf, err = parseVec3(lineTokens)
		case "Ni":
			curMaterial.Ni, err = parseFloat32(lineTokens)
		case "d":
			curMaterial.D, err = parseFloat32(lineTokens)
		case "Tr":
			var tr float32
			tr, err = parseFloat32(lineTokens)
			curMaterial.D = 1.0 - tr
		case "Pm":
			curMaterial.Pm, err = parseFloat32(lineTokens)
		case "Pr":
			curMaterial.Pr, err = parseFloat32(lineTokens)
		case "KeScaler":
			curMaterial.KeScaler, err = parseFloat32(lineTokens)
		case "map_Kd", "map_Ks", "map_Ke", "map_Tf", "map_bump", "bump", "map_normal":
			r.logger.Warningf(`[%s: %d] ignoring texture map "%s" for material "%s"`, res.Path(), lineNum, lineTokens[0], matName)
		}

		// Report any errors
		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
