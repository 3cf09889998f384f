package reader

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

const testMaterialLib = `
# materials
newmtl floor
Kd 0.5 0.6 0.7

newmtl light
Kd 0 0 0
Ke 1 1 1
KeScaler 5

newmtl mirror
Ks 0.9 0.9 0.9
Pr 0.1

newmtl unused
Kd 1 0 0
`

const testScene = `
mtllib materials.mtl

camera_fov 60
camera_eye 0 1 5
camera_look 0 1 0
camera_up 0 1 0
camera_aperture 0.05
camera_focus 4.5
camera_blades 6
background 0.1 0.2 0.3

v -1 -1 -2
v 1 -1 -2
v 1 1 -2
v -1 1 -2

o floor
usemtl floor
f 1 2 3

o light
usemtl light
f 1 2 3 4
`

func writeFiles(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestWavefrontReader(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"materials.mtl": testMaterialLib,
		"scene.obj":     testScene,
	})

	sc, err := ReadScene(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}

	if len(sc.Triangles) != 3 {
		t.Fatalf("expected 3 triangles; got %d", len(sc.Triangles))
	}

	// Only referenced materials are compiled.
	if len(sc.Materials) != 2 {
		t.Fatalf("expected 2 materials; got %d", len(sc.Materials))
	}

	if len(sc.Emitters) != 2 {
		t.Fatalf("expected 2 emitters; got %d", len(sc.Emitters))
	}
	for _, em := range sc.Emitters {
		if !types.ApproxEqual(em.Emission, types.Splat3(5), 1e-5) {
			t.Fatalf("expected emitter radiance (5, 5, 5); got %v", em.Emission)
		}
		if !types.ApproxEqual(em.Normal, types.Vec3{0, 0, 1}, 1e-5) {
			t.Fatalf("expected emitter normal (0, 0, 1); got %v", em.Normal)
		}
	}

	var foundFloor bool
	for _, mat := range sc.Materials {
		if mat.Albedo == (types.Vec3{0.5, 0.6, 0.7}) {
			foundFloor = true
		}
	}
	if !foundFloor {
		t.Fatal("expected floor material albedo to be preserved")
	}

	if sc.Background != (types.Vec3{0.1, 0.2, 0.3}) {
		t.Fatalf("expected background (0.1, 0.2, 0.3); got %v", sc.Background)
	}

	cam := sc.Camera
	if cam.FOV != 60 || cam.Position != (types.Vec3{0, 1, 5}) || cam.LookAt != (types.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected camera %s", cam)
	}
	if cam.ApertureRadius != 0.05 || cam.FocalDistance != 4.5 || cam.ApertureBlades != 6 {
		t.Fatalf("unexpected lens settings %s", cam)
	}
}

func TestWavefrontMeshInstances(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"scene.obj": `
v 0 0 0
v 1 0 0
v 0 1 0
o tri
f 1 2 3
instance tri 10 0 0 0 0 0 1 1 1
instance tri 0 0 -5 0 0 90 2 2 2
`,
	})

	sc, err := ReadScene(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Triangles) != 2 {
		t.Fatalf("expected 2 instanced triangles; got %d", len(sc.Triangles))
	}

	type spec struct {
		expMin types.Vec3
		expMax types.Vec3
	}
	specs := []spec{
		// translated
		{types.Vec3{10, 0, 0}, types.Vec3{11, 1, 0}},
		// scaled by 2, rotated 90 degrees around Z and translated
		{types.Vec3{-2, 0, -5}, types.Vec3{0, 2, -5}},
	}

	for specIndex, s := range specs {
		found := false
		for _, tri := range sc.Triangles {
			bbox := tri.BBox()
			if types.ApproxEqual(bbox[0], s.expMin, 1e-4) && types.ApproxEqual(bbox[1], s.expMax, 1e-4) {
				found = true
			}
		}
		if !found {
			t.Fatalf("[spec %d] no triangle with bbox [%v, %v]", specIndex, s.expMin, s.expMax)
		}
	}
}

func TestWavefrontDefaultMaterial(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"scene.obj": "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\nf -3 -2 -1\n",
	})

	sc, err := ReadScene(filepath.Join(dir, "scene.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Triangles) != 2 || len(sc.Materials) != 1 {
		t.Fatalf("expected 2 triangles sharing the default material; got %d triangles, %d materials", len(sc.Triangles), len(sc.Materials))
	}
	if sc.Triangles[0].Normals[0].Vec3() != (types.Vec3{0, 0, 1}) {
		t.Fatalf("expected generated face normal (0, 0, 1); got %v", sc.Triangles[0].Normals[0])
	}
}

func TestWavefrontErrors(t *testing.T) {
	type spec struct {
		obj    string
		expErr string
	}
	specs := []spec{
		{"usemtl missing\n", `undefined material with name "missing"`},
		{"v 0 0 0\nf 1 2 3\n", "index out of bounds"},
		{"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3 1 2\n", "expected 3 arguments for triangular face"},
		{"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2/1 3\n", "expected each face argument to contain 1 indices"},
		{"v 0 0\n", `expected 3 arguments`},
		{"v 0 0 foo\n", `invalid syntax`},
		{"instance box 0 0 0 0 0 0 1 1 1\n", `unknown mesh with name "box"`},
		{"camera_blades 1.5\n", "non-negative integer blade count"},
		{"mtllib missing.mtl\n", "missing.mtl"},
		{"call broken.obj\n", "referenced from"},
	}

	for specIndex, s := range specs {
		dir := writeFiles(t, map[string]string{
			"scene.obj":  s.obj,
			"broken.obj": "usemtl nope\n",
		})
		_, err := ReadScene(filepath.Join(dir, "scene.obj"))
		if err == nil || !strings.Contains(err.Error(), s.expErr) {
			t.Fatalf("[spec %d] expected error containing %q; got %v", specIndex, s.expErr, err)
		}
	}
}

func TestMaterialLibErrors(t *testing.T) {
	type spec struct {
		mtl    string
		expErr string
	}
	specs := []spec{
		{"Kd 1 1 1\n", `got "Kd" without a "newmtl"`},
		{"newmtl a\nnewmtl a\n", `material "a" already defined`},
		{"newmtl a\ninclude b\n", `could not include unknown material "b"`},
		{"newmtl a\nNi foo\n", "invalid syntax"},
	}

	for specIndex, s := range specs {
		dir := writeFiles(t, map[string]string{
			"scene.obj":     "mtllib materials.mtl\n",
			"materials.mtl": s.mtl,
		})
		_, err := ReadScene(filepath.Join(dir, "scene.obj"))
		if err == nil || !strings.Contains(err.Error(), s.expErr) {
			t.Fatalf("[spec %d] expected error containing %q; got %v", specIndex, s.expErr, err)
		}
	}
}

func TestWavefrontMaterialConversion(t *testing.T) {
	type spec struct {
		mat     *wavefrontMaterial
		expKind scene.BxdfKind
		expMet  float32
		expTr   float32
		expRgh  float32
	}

	withProps := func(fn func(*wavefrontMaterial)) *wavefrontMaterial {
		m := newWavefrontMaterial("test")
		fn(m)
		return m
	}

	specs := []spec{
		{withProps(func(m *wavefrontMaterial) { m.Kd = types.Vec3{1, 1, 1} }), scene.Diffuse, 0, 0, 0},
		{withProps(func(m *wavefrontMaterial) { m.Ks = types.Vec3{1, 1, 1} }), scene.Specular, 1, 0, 0},
		{withProps(func(m *wavefrontMaterial) { m.Ks = types.Vec3{1, 1, 1}; m.Ni = 1.5 }), scene.Transmissive, 0, 1, 0},
		{withProps(func(m *wavefrontMaterial) { m.D = 0.25 }), scene.Transmissive, 0, 0.75, 0},
		{withProps(func(m *wavefrontMaterial) { m.Ks = types.Vec3{1, 1, 1}; m.Pm = 0.2; m.Pr = 0.4 }), scene.Diffuse, 0.2, 0, 0.4},
	}

	for specIndex, s := range specs {
		in := s.mat.toInput()
		mat := scene.Material{Metallic: in.Metallic, Transmission: in.Transmission, Roughness: in.Roughness}
		if kind := mat.Kind(); kind != s.expKind {
			t.Fatalf("[spec %d] expected kind %s; got %s", specIndex, s.expKind, kind)
		}
		if math.Abs(float64(in.Metallic-s.expMet)) > 1e-6 || math.Abs(float64(in.Transmission-s.expTr)) > 1e-6 || math.Abs(float64(in.Roughness-s.expRgh)) > 1e-6 {
			t.Fatalf("[spec %d] expected metallic/transmission/roughness %v/%v/%v; got %v/%v/%v", specIndex, s.expMet, s.expTr, s.expRgh, in.Metallic, in.Transmission, in.Roughness)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	dir := writeFiles(t, map[string]string{"scene.fbx": ""})
	if _, err := ReadScene(filepath.Join(dir, "scene.fbx")); err == nil || !strings.Contains(err.Error(), "unsupported file format") {
		t.Fatalf("expected unsupported format error; got %v", err)
	}
}
