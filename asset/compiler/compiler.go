package compiler

import (
	"errors"
	"fmt"
	"time"

	"github.com/achilleasa/prism/asset/compiler/bvh"
	"github.com/achilleasa/prism/asset/compiler/input"
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/types"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	defaultIOR float32 = 1.5
)

var (
	ErrNoGeometry = errors.New("compiler: scene contains no geometry")
)

// The material assigned to primitives that do not reference one.
var defaultMaterial = scene.Material{
	Albedo: types.Vec3{0.7, 0.7, 0.7},
	IOR:    defaultIOR,
}

type sceneCompiler struct {
	parsedScene    *input.Scene
	optimizedScene *scene.Scene
	logger         log.Logger

	// Maps parsed material indices to optimized material indices.
	matIndexMap map[int]uint32

	// Index of the fallback material or -1 if not yet allocated.
	defaultMatIndex int
}

// Compile a scene representation parsed by a scene reader into the flat
// scene format consumed by the tracers.
func Compile(parsedScene *input.Scene) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		parsedScene: parsedScene,
		optimizedScene: &scene.Scene{
			Background: parsedScene.Background,
		},
		logger:          log.New("scene compiler"),
		matIndexMap:     make(map[int]uint32),
		defaultMatIndex: -1,
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	compiler.convertMaterials()

	err := compiler.partitionGeometry()
	if err != nil {
		return nil, err
	}

	compiler.setupEmitters()
	compiler.setupCamera()

	compiler.logger.Noticef("compiled scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.optimizedScene, nil
}

// Convert the materials referenced by scene geometry.
func (sc *sceneCompiler) convertMaterials() {
	sc.optimizedScene.Materials = make([]scene.Material, 0, len(sc.parsedScene.Materials))
	for index, pm := range sc.parsedScene.Materials {
		if !pm.Used {
			sc.logger.Infof("skipping unused material %q", pm.Name)
			continue
		}

		mat := scene.Material{
			Albedo:           pm.Albedo,
			Metallic:         clamp01(pm.Metallic),
			Roughness:        clamp01(pm.Roughness),
			Emission:         pm.Emission,
			EmissionStrength: pm.EmissionStrength,
			IOR:              pm.IOR,
			Transmission:     clamp01(pm.Transmission),
			TextureIndex:     -1,
		}
		if mat.IOR <= 0 {
			mat.IOR = defaultIOR
		}
		if mat.EmissionStrength == 0 && mat.Emission.MaxComponent() > 0 {
			mat.EmissionStrength = 1
		}

		sc.optimizedScene.Materials = append(sc.optimizedScene.Materials, mat)
		sc.matIndexMap[index] = uint32(len(sc.optimizedScene.Materials) - 1)
	}
}

// Lookup the optimized material index for a parsed material index, allocating
// the default material for primitives that do not reference a valid one.
func (sc *sceneCompiler) materialIndex(parsedIndex int) uint32 {
	if matIndex, exists := sc.matIndexMap[parsedIndex]; exists {
		return matIndex
	}

	if sc.defaultMatIndex == -1 {
		sc.logger.Infof("allocating default material for primitives without a material")
		sc.optimizedScene.Materials = append(sc.optimizedScene.Materials, defaultMaterial)
		sc.defaultMatIndex = len(sc.optimizedScene.Materials) - 1
	}
	return uint32(sc.defaultMatIndex)
}

// Flatten mesh instances into world-space triangles and partition them with
// a single BVH. The BVH builder reorders the triangle list in place so that
// each leaf references a contiguous triangle range.
func (sc *sceneCompiler) partitionGeometry() error {
	start := time.Now()
	sc.logger.Notice("partitioning geometry")

	totalTriangles := 0
	for _, mi := range sc.parsedScene.MeshInstances {
		if int(mi.MeshIndex) >= len(sc.parsedScene.Meshes) {
			return fmt.Errorf("compiler: mesh instance references unknown mesh %d", mi.MeshIndex)
		}
		totalTriangles += len(sc.parsedScene.Meshes[mi.MeshIndex].Primitives)
	}
	if totalTriangles == 0 {
		return ErrNoGeometry
	}

	sc.logger.Infof("flattening %d mesh instances (%d triangles)", len(sc.parsedScene.MeshInstances), totalTriangles)
	triangles := make([]scene.Triangle, 0, totalTriangles)
	for _, mi := range sc.parsedScene.MeshInstances {
		normalMat := mgl32.Mat4Normal(mi.Transform)
		for _, prim := range sc.parsedScene.Meshes[mi.MeshIndex].Primitives {
			tri := scene.Triangle{
				UVs:           prim.UVs,
				MaterialIndex: sc.materialIndex(prim.MaterialIndex),
			}
			for i := 0; i < 3; i++ {
				tri.Vertices[i] = transformPoint(mi.Transform, prim.Vertices[i]).Vec4(0)
				tri.Normals[i] = transformNormal(normalMat, prim.Normals[i]).Vec4(0)
			}
			triangles = append(triangles, tri)
		}
	}

	sc.logger.Infof("building BVH tree (%d triangles)", len(triangles))
	nodes, stats, err := bvh.Build(triangles)
	if err != nil {
		return err
	}
	sc.optimizedScene.Triangles = triangles
	sc.optimizedScene.BvhNodeList = nodes

	sc.logger.Infof("BVH tree: %d nodes, %d leafs, max depth %d", stats.Nodes, stats.Leafs, stats.MaxDepth)
	sc.logger.Noticef("partitioned geometry in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Build the power-weighted emitter table.
func (sc *sceneCompiler) setupEmitters() {
	sc.optimizedScene.BuildEmitters()

	if len(sc.optimizedScene.Emitters) > 0 {
		sc.logger.Infof("emitted %d emissive triangles (total power %.3f)", len(sc.optimizedScene.Emitters), sc.optimizedScene.TotalEmitterPower)
	} else if sc.optimizedScene.Background.MaxComponent() <= 0 {
		sc.logger.Warning("the scene contains no emissive primitives or background radiance; output will appear black!")
	}
}

// Initialize and position the camera for the scene.
func (sc *sceneCompiler) setupCamera() {
	pc := sc.parsedScene.Camera
	if pc == nil {
		pc = input.NewScene().Camera
	}

	cam := scene.NewCamera(pc.FOV)
	cam.Position = pc.Eye
	cam.LookAt = pc.Look
	cam.Up = pc.Up
	cam.ApertureRadius = pc.Aperture
	cam.ApertureBlades = pc.Blades
	cam.Aberration = pc.Aberration
	if pc.FocalDistance > 0 {
		cam.FocalDistance = pc.FocalDistance
	} else {
		cam.FocalDistance = pc.Look.Sub(pc.Eye).Len()
	}
	sc.optimizedScene.Camera = cam
}

func transformPoint(m mgl32.Mat4, p types.Vec3) types.Vec3 {
	v := m.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	if v[3] != 0 && v[3] != 1 {
		return types.Vec3{v[0] / v[3], v[1] / v[3], v[2] / v[3]}
	}
	return types.Vec3{v[0], v[1], v[2]}
}

func transformNormal(m mgl32.Mat3, n types.Vec3) types.Vec3 {
	return types.Vec3(m.Mul3x1(mgl32.Vec3(n))).Normalize()
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
