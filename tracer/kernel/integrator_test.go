package kernel

import (
	"math"
	"testing"

	"github.com/achilleasa/prism/asset/compiler/bvh"
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

func cameraLookingAt(pos, look types.Vec3) tracer.CameraParams {
	cam := scene.NewCamera(45)
	cam.Position = pos
	cam.LookAt = look
	return tracer.NewCameraParams(cam)
}

func TestRandRange(t *testing.T) {
	rng := NewRand(42, 1, 7)
	for index := 0; index < 100000; index++ {
		if v := rng.Float32(); v < 0 || v >= 1 {
			t.Fatalf("expected value in [0, 1); got %f", v)
		}
	}
}

func TestRandStreams(t *testing.T) {
	type spec struct {
		pixel, channel, sample uint32
	}
	specs := []spec{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 2, 0},
		{0, 0, 1},
	}

	first := make(map[uint32]int)
	for specIndex, s := range specs {
		a := NewRand(s.pixel, s.channel, s.sample)
		b := NewRand(s.pixel, s.channel, s.sample)
		va, vb := a.Uint32(), b.Uint32()
		if va != vb {
			t.Fatalf("[spec %d] expected identical streams for identical keys", specIndex)
		}
		if other, exists := first[va]; exists {
			t.Fatalf("[spec %d] expected stream to differ from spec %d", specIndex, other)
		}
		first[va] = specIndex
	}
}

func TestPinholeCenterRay(t *testing.T) {
	cam := cameraLookingAt(types.Vec3{1, 2, 3}, types.Vec3{1, 2, -10})
	ray := cameraRay(&cam, 64, 32, 32, 16, -1, 0, 0)
	if !types.ApproxEqual(ray.Dir, types.Vec3{0, 0, -1}, 1e-5) {
		t.Fatalf("expected center ray along the forward axis; got %v", ray.Dir)
	}
	if ray.Origin != cam.Position {
		t.Fatalf("expected ray to start at the camera; got %v", ray.Origin)
	}

	// The top-left pixel must point up and to the left.
	corner := PinholeRay(&cam, 64, 32, 0, 0)
	if corner.Dir[0] >= 0 || corner.Dir[1] <= 0 {
		t.Fatalf("expected top-left ray to point up-left; got %v", corner.Dir)
	}
}

func TestThinLensFocus(t *testing.T) {
	cam := cameraLookingAt(types.Vec3{0, 0, 0}, types.Vec3{0, 0, -1})
	cam.ApertureRadius = 0.2
	cam.FocalDistance = 4

	// Every lens sample through the same film point converges on the focal plane.
	specs := [][2]float32{{0.1, 0.2}, {0.9, 0.5}, {0.5, 0.99}}
	var focus []types.Vec3
	for _, lens := range specs {
		ray := cameraRay(&cam, 16, 16, 5, 7, -1, lens[0], lens[1])
		focus = append(focus, ray.At(cam.FocalDistance/ray.Dir.Dot(cam.Forward)))
	}
	for index := 1; index < len(focus); index++ {
		if !types.ApproxEqual(focus[0], focus[index], 1e-4) {
			t.Fatalf("[spec %d] expected lens samples to converge at %v; got %v", index, focus[0], focus[index])
		}
	}
}

func TestApertureSamplesStayInside(t *testing.T) {
	specs := []uint32{0, 3, 6}
	for specIndex, blades := range specs {
		rng := NewRand(0, 0, uint32(specIndex))
		for index := 0; index < 5000; index++ {
			x, y := sampleAperture(blades, rng.Float32(), rng.Float32())
			if r := math.Hypot(float64(x), float64(y)); r > 1+1e-5 {
				t.Fatalf("[spec %d] expected aperture sample inside the unit circle; got radius %f", specIndex, r)
			}
		}
	}
}

func singleQuadScene(t *testing.T, mat scene.Material, background types.Vec3) *scene.Scene {
	// A quad at z=-3 facing +z.
	sc := &scene.Scene{
		Materials: []scene.Material{mat},
		Triangles: []scene.Triangle{
			{Vertices: [3]types.Vec4{{-1, -1, -3, 0}, {1, -1, -3, 0}, {1, 1, -3, 0}}},
			{Vertices: [3]types.Vec4{{-1, -1, -3, 0}, {1, 1, -3, 0}, {-1, 1, -3, 0}}},
		},
		Background: background,
	}
	nodes, _, err := bvh.Build(sc.Triangles)
	if err != nil {
		t.Fatal(err)
	}
	sc.BvhNodeList = nodes
	sc.BuildEmitters()
	return sc
}

func TestRenderPixel(t *testing.T) {
	emissive := scene.Material{Emission: types.Vec3{1, 0.5, 0.25}, EmissionStrength: 2}
	background := types.Vec3{0.1, 0.2, 0.3}

	type spec struct {
		camPos    types.Vec3
		look      types.Vec3
		expRad    types.Vec3
		expDepth  float32
		expNormal types.Vec3
	}
	specs := []spec{
		// Front face of the emitter.
		{types.Vec3{0, 0, 0}, types.Vec3{0, 0, -1}, types.Vec3{2, 1, 0.5}, 3, types.Vec3{0, 0, 1}},
		// Back face: emitters are one-sided and terminate the path.
		{types.Vec3{0, 0, -6}, types.Vec3{0, 0, -3}, types.Vec3{}, 3, types.Vec3{0, 0, -1}},
		// Looking away from the quad.
		{types.Vec3{0, 0, 0}, types.Vec3{0, 0, 1}, background, tracer.SkyDepth, types.Vec3{}},
	}

	sc := singleQuadScene(t, emissive, background)
	for specIndex, s := range specs {
		params := &tracer.IntegrationParams{
			Camera:     cameraLookingAt(s.camPos, s.look),
			NumBounces: 4,
			NEE:        true,
		}
		got := RenderPixel(sc, params, 9, 9, 4, 4)
		if !types.ApproxEqual(got.Radiance, s.expRad, 1e-5) {
			t.Fatalf("[spec %d] expected radiance %v; got %v", specIndex, s.expRad, got.Radiance)
		}
		if math.Abs(float64(got.Depth-s.expDepth)) > 2e-2 {
			t.Fatalf("[spec %d] expected depth %f; got %f", specIndex, s.expDepth, got.Depth)
		}
		if !types.ApproxEqual(got.Normal, s.expNormal, 1e-5) {
			t.Fatalf("[spec %d] expected normal %v; got %v", specIndex, s.expNormal, got.Normal)
		}
	}
}

func TestEmitterHitAfterDiffuseBounceIsSuppressedWithNEE(t *testing.T) {
	sc := emitterOverReceiver(t)

	// Look straight down at the receiver from just below the emitter.
	sceneCam := scene.NewCamera(45)
	sceneCam.Position = types.Vec3{0, 0.9, 0}
	sceneCam.LookAt = types.Vec3{0, 0, 0}
	sceneCam.Up = types.Vec3{0, 0, -1}
	cam := tracer.NewCameraParams(sceneCam)

	run := func(nee bool) float32 {
		params := &tracer.IntegrationParams{Camera: cam, NumBounces: 1, NEE: nee}
		var sum float32
		const samples = 20000
		for s := uint32(0); s < samples; s++ {
			params.Sample = s
			sum += RenderPixel(sc, params, 1, 1, 0, 0).Radiance[0]
		}
		return sum / samples
	}

	// With a single bounce the only light reaching the camera is the
	// receiver's direct lighting. NEE estimates it explicitly and the BSDF
	// sampled emitter hit is dropped, so both estimators converge to the
	// same value.
	withNEE := run(true)
	withoutNEE := run(false)
	if withNEE <= 0 || withoutNEE <= 0 {
		t.Fatalf("expected non-zero direct lighting; got %f (nee) and %f (bsdf)", withNEE, withoutNEE)
	}
	if relErr := math.Abs(float64(withNEE-withoutNEE)) / float64(withoutNEE); relErr > 0.1 {
		t.Fatalf("expected NEE and BSDF estimates to agree; got %f and %f", withNEE, withoutNEE)
	}
}

func TestSampleBxdfSpecular(t *testing.T) {
	mirror := scene.Material{Albedo: types.Vec3{0.9, 0.8, 0.7}, Metallic: 1}
	up := types.Vec3{0, 1, 0}

	type spec struct {
		dir       types.Vec3
		expDir    types.Vec3
		expOffset types.Vec3
	}
	specs := []spec{
		// Front side.
		{types.Vec3{1, -1, 0}.Normalize(), types.Vec3{1, 1, 0}.Normalize(), up},
		// Back side reflects about the flipped normal.
		{types.Vec3{1, 1, 0}.Normalize(), types.Vec3{1, -1, 0}.Normalize(), up.Neg()},
		// Normal incidence.
		{types.Vec3{0, -1, 0}, up, up},
	}

	rng := NewRand(0, 0, 0)
	for specIndex, s := range specs {
		b := SampleBxdf(&mirror, s.dir, up, up, &rng)
		if b.Kind != scene.Specular {
			t.Fatalf("[spec %d] expected a specular bounce; got %v", specIndex, b.Kind)
		}
		if !types.ApproxEqual(b.Dir, s.expDir, 1e-5) {
			t.Fatalf("[spec %d] expected mirror direction %v; got %v", specIndex, s.expDir, b.Dir)
		}
		if b.Weight != mirror.Albedo {
			t.Fatalf("[spec %d] expected weight %v; got %v", specIndex, mirror.Albedo, b.Weight)
		}
		if b.OffsetNormal != s.expOffset {
			t.Fatalf("[spec %d] expected offset normal %v; got %v", specIndex, s.expOffset, b.OffsetNormal)
		}
	}
}

func TestSampleBxdfTransmissive(t *testing.T) {
	glass := scene.Material{Albedo: types.Vec3{1, 1, 1}, Transmission: 1, IOR: 1.5}
	up := types.Vec3{0, 1, 0}
	sin45 := float32(math.Sqrt(0.5))

	type spec struct {
		dir types.Vec3

		// Expected refracted direction and the fraction of samples that
		// refract. A zero fraction expects total internal reflection.
		expRefracted types.Vec3
		expFraction  float32
		expReflected types.Vec3
	}
	specs := []spec{
		// Entering glass at 45 degrees: sin(t) = sin(45) / 1.5.
		{
			dir:          types.Vec3{sin45, -sin45, 0},
			expRefracted: types.Vec3{sin45 / 1.5, -float32(math.Sqrt(1 - 0.5/2.25)), 0},
			expFraction:  1 - schlick(sin45, 1.5),
			expReflected: types.Vec3{sin45, sin45, 0},
		},
		// Leaving glass at 60 degrees from the normal exceeds the critical angle.
		{
			dir:          types.Vec3{float32(math.Sqrt(0.75)), 0.5, 0},
			expReflected: types.Vec3{float32(math.Sqrt(0.75)), -0.5, 0},
		},
	}

	const samples = 20000
	for specIndex, s := range specs {
		rng := NewRand(uint32(specIndex), 0, 0)
		entering := s.dir.Dot(up) < 0
		refracted := 0
		for index := 0; index < samples; index++ {
			b := SampleBxdf(&glass, s.dir, up, up, &rng)
			if b.Kind != scene.Transmissive {
				t.Fatalf("[spec %d] expected a transmissive bounce; got %v", specIndex, b.Kind)
			}

			// Refracted rays cross the surface.
			if (b.Dir.Dot(up) < 0) == entering {
				refracted++
				if !types.ApproxEqual(b.Dir, s.expRefracted, 1e-4) {
					t.Fatalf("[spec %d] expected refracted direction %v; got %v", specIndex, s.expRefracted, b.Dir)
				}
				if b.OffsetNormal.Dot(s.dir) <= 0 {
					t.Fatalf("[spec %d] expected refracted ray to leave from the far side; got offset normal %v", specIndex, b.OffsetNormal)
				}
				continue
			}

			if !types.ApproxEqual(b.Dir, s.expReflected, 1e-4) {
				t.Fatalf("[spec %d] expected reflected direction %v; got %v", specIndex, s.expReflected, b.Dir)
			}
			if b.Weight != types.Splat3(1) {
				t.Fatalf("[spec %d] expected unit reflection weight; got %v", specIndex, b.Weight)
			}
		}

		fraction := float32(refracted) / samples
		if s.expFraction == 0 && refracted != 0 {
			t.Fatalf("[spec %d] expected total internal reflection; got %d refracted samples", specIndex, refracted)
		}
		if math.Abs(float64(fraction-s.expFraction)) > 0.01 {
			t.Fatalf("[spec %d] expected refracted fraction %f; got %f", specIndex, s.expFraction, fraction)
		}
	}
}

// Build a scene from triangles sharing the given materials.
func buildTestScene(t *testing.T, mats []scene.Material, tris ...scene.Triangle) *scene.Scene {
	sc := &scene.Scene{Materials: mats, Triangles: tris}
	nodes, _, err := bvh.Build(sc.Triangles)
	if err != nil {
		t.Fatal(err)
	}
	sc.BvhNodeList = nodes
	sc.BuildEmitters()
	return sc
}

// A horizontal quad at height y spanning [-extent, extent]. Up-facing quads
// have a +y face normal.
func horizontalQuad(y, extent float32, upFacing bool, material uint32) []scene.Triangle {
	a := types.Vec4{-extent, y, -extent, 0}
	b := types.Vec4{extent, y, -extent, 0}
	c := types.Vec4{extent, y, extent, 0}
	d := types.Vec4{-extent, y, extent, 0}
	if upFacing {
		return []scene.Triangle{
			{Vertices: [3]types.Vec4{a, c, b}, MaterialIndex: material},
			{Vertices: [3]types.Vec4{a, d, c}, MaterialIndex: material},
		}
	}
	return []scene.Triangle{
		{Vertices: [3]types.Vec4{a, b, c}, MaterialIndex: material},
		{Vertices: [3]types.Vec4{a, c, d}, MaterialIndex: material},
	}
}

func downwardCamera(pos types.Vec3) tracer.CameraParams {
	cam := scene.NewCamera(45)
	cam.Position = pos
	cam.LookAt = pos.Sub(types.Vec3{0, 1, 0})
	cam.Up = types.Vec3{0, 0, -1}
	return tracer.NewCameraParams(cam)
}

func TestEmitterSeenThroughMirror(t *testing.T) {
	mats := []scene.Material{
		{Albedo: types.Vec3{0.5, 0.5, 0.5}, Metallic: 1},
		{Emission: types.Vec3{1, 1, 1}, EmissionStrength: 3},
	}
	// A mirror floor and a large downward facing emitter above it.
	tris := append(horizontalQuad(0, 10, true, 0), horizontalQuad(2, 10, false, 1)...)
	sc := buildTestScene(t, mats, tris...)

	specs := []tracer.IntegrationParams{
		{NumBounces: 4, NEE: true},
		{NumBounces: 4, NEE: true, Caustics: true},
		{NumBounces: 4, NEE: false},
	}

	expRad := types.Splat3(1.5)
	for specIndex, params := range specs {
		params.Camera = downwardCamera(types.Vec3{0, 1, 0})
		for sample := uint32(0); sample < 16; sample++ {
			params.Sample = sample
			got := RenderPixel(sc, &params, 3, 3, 1, 1)
			if !types.ApproxEqual(got.Radiance, expRad, 1e-4) {
				t.Fatalf("[spec %d] expected mirrored emission %v; got %v", specIndex, expRad, got.Radiance)
			}
		}
	}
}

func TestCausticPathsAreLeftToPhotonGather(t *testing.T) {
	mats := []scene.Material{
		{Albedo: types.Vec3{0.8, 0.8, 0.8}},
		{Albedo: types.Vec3{1, 1, 1}, Metallic: 1},
		{Emission: types.Vec3{1, 1, 1}, EmissionStrength: 5},
	}
	// A diffuse floor, a mirror ceiling and a small upward facing emitter.
	// Light only reaches the floor through the mirror.
	var tris []scene.Triangle
	tris = append(tris, horizontalQuad(0, 10, true, 0)...)
	tris = append(tris, horizontalQuad(3, 10, false, 1)...)
	tris = append(tris, horizontalQuad(1, 0.5, true, 2)...)
	sc := buildTestScene(t, mats, tris...)

	render := func(caustics bool) float32 {
		params := &tracer.IntegrationParams{
			Camera:     downwardCamera(types.Vec3{2, 0.5, 0}),
			NumBounces: 2,
			NEE:        true,
			Caustics:   caustics,
		}
		var sum float32
		for sample := uint32(0); sample < 20000; sample++ {
			params.Sample = sample
			sum += RenderPixel(sc, params, 1, 1, 0, 0).Radiance[0]
		}
		return sum
	}

	specs := []struct {
		caustics bool
		expLit   bool
	}{
		{false, true},
		{true, false},
	}
	for specIndex, s := range specs {
		got := render(s.caustics)
		if s.expLit && got <= 0 {
			t.Fatalf("[spec %d] expected light reflected off the mirror onto the floor", specIndex)
		}
		if !s.expLit && got != 0 {
			t.Fatalf("[spec %d] expected diffuse -> specular -> emitter paths to be dropped; got %f", specIndex, got)
		}
	}
}
