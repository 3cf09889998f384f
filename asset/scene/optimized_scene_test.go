package scene

import (
	"math"
	"strings"
	"testing"

	"github.com/achilleasa/prism/types"
)

func makeTriangle(v0, v1, v2 types.Vec3, matIndex uint32) Triangle {
	tri := Triangle{MaterialIndex: matIndex}
	tri.Vertices = [3]types.Vec4{v0.Vec4(0), v1.Vec4(0), v2.Vec4(0)}
	n := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize().Vec4(0)
	tri.Normals = [3]types.Vec4{n, n, n}
	return tri
}

func emitterScene() *Scene {
	sc := &Scene{
		Materials: []Material{
			{Albedo: types.Vec3{0.5, 0.5, 0.5}},
			{Emission: types.Vec3{1, 1, 1}, EmissionStrength: 1},
			{Emission: types.Vec3{1, 1, 1}, EmissionStrength: 3},
		},
	}
	sc.Triangles = []Triangle{
		makeTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{0, 1, 0}, 1),
		makeTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{0, 0, 1}, 0),
		makeTriangle(types.Vec3{0, 0, 0}, types.Vec3{2, 0, 0}, types.Vec3{0, 2, 0}, 2),
		// degenerate emissive triangle must be skipped
		makeTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{2, 0, 0}, 2),
	}
	sc.BuildEmitters()
	return sc
}

func TestEmitterTable(t *testing.T) {
	sc := emitterScene()

	if len(sc.Emitters) != 2 {
		t.Fatalf("expected 2 emitters; got %d", len(sc.Emitters))
	}

	expPower := []float32{
		0.5 * math.Pi,
		3 * 2 * math.Pi,
	}
	for index, exp := range expPower {
		if math.Abs(float64(sc.Emitters[index].Power-exp)) > 1e-4 {
			t.Fatalf("[emitter %d] expected power %f; got %f", index, exp, sc.Emitters[index].Power)
		}
	}

	for index := 1; index < len(sc.Emitters); index++ {
		if sc.Emitters[index].CDF < sc.Emitters[index-1].CDF {
			t.Fatalf("expected non-decreasing CDF; got %f after %f", sc.Emitters[index].CDF, sc.Emitters[index-1].CDF)
		}
	}

	if last := sc.Emitters[len(sc.Emitters)-1].CDF; last != 1.0 {
		t.Fatalf("expected last CDF entry to be exactly 1.0; got %v", last)
	}
}

func TestSelectEmitter(t *testing.T) {
	sc := emitterScene()

	type spec struct {
		u        float32
		expIndex int
	}
	specs := []spec{
		{0, 0},
		{0.0001, 0},
		{0.5, 1},
		{math.Nextafter32(1, 0), 1},
	}

	for index, s := range specs {
		selected, pdf := sc.SelectEmitter(s.u)
		if selected != s.expIndex {
			t.Fatalf("[spec %d] expected emitter %d; got %d", index, s.expIndex, selected)
		}
		expPdf := sc.Emitters[selected].Power / sc.TotalEmitterPower
		if pdf != expPdf {
			t.Fatalf("[spec %d] expected pdf %f; got %f", index, expPdf, pdf)
		}
	}

	empty := &Scene{}
	if selected, _ := empty.SelectEmitter(0.5); selected != -1 {
		t.Fatalf("expected -1 for a scene without emitters; got %d", selected)
	}
}

func TestMaterialKind(t *testing.T) {
	type spec struct {
		mat Material
		exp BxdfKind
	}
	specs := []spec{
		{Material{}, Diffuse},
		{Material{Metallic: 1}, Specular},
		{Material{Transmission: 1, IOR: 1.5}, Transmissive},
		{Material{Metallic: 1, Transmission: 1}, Transmissive},
	}

	for index, s := range specs {
		if kind := s.mat.Kind(); kind != s.exp {
			t.Fatalf("[spec %d] expected %s; got %s", index, s.exp, kind)
		}
	}
}

func TestSceneStats(t *testing.T) {
	sc := emitterScene()
	out := sc.Stats()
	for _, exp := range []string{"Triangles", "BVH nodes", "Emitters"} {
		if !strings.Contains(out, exp) {
			t.Fatalf("expected stats table to contain %q; got\n%s", exp, out)
		}
	}
}
