package denoise

import (
	"math/rand"
	"testing"

	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

func noisyImage(t *testing.T, w, h uint32, seed int64) ([]types.Vec3, *tracer.GBuffer) {
	gbuf, err := tracer.NewGBuffer(w, h)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(seed))
	img := make([]types.Vec3, w*h)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			img[y*w+x] = types.Vec3{rng.Float32() * 4, rng.Float32(), rng.Float32() * 2}

			// Leave a sky stripe on every 5th column.
			if x%5 == 0 {
				continue
			}
			gbuf.Set(x, y, types.Vec3{0, 0, 1}, 1+rng.Float32())
		}
	}
	return img, gbuf
}

func TestSkyPixelsPassThrough(t *testing.T) {
	specs := []PassParams{
		{StepWidth: 1, NormalSharpness: 64, DepthSigma: 0.1, ColorSigma: 0.5},
		{StepWidth: 2, NormalSharpness: 0, DepthSigma: 0, ColorSigma: 0},
		{StepWidth: 4, NormalSharpness: 1, DepthSigma: 10, ColorSigma: 100},
		{StepWidth: 8, NormalSharpness: 128, DepthSigma: 0.01, ColorSigma: 0.01},
		{StepWidth: 16, NormalSharpness: 8, DepthSigma: 1, ColorSigma: 1},
	}

	img, gbuf := noisyImage(t, 40, 24, 1)
	for specIndex, p := range specs {
		out := make([]types.Vec3, len(img))
		ApplyPass(out, img, gbuf, p)
		for index := range img {
			if gbuf.IsSky(index) && out[index] != img[index] {
				t.Fatalf("[spec %d] expected sky pixel %d to pass through unchanged; got %v, want %v", specIndex, index, out[index], img[index])
			}
		}
	}

	// The full chain must also leave sky pixels untouched.
	out, err := Apply(img, gbuf, 1, Options{Passes: MaxPasses, NormalSharpness: 32, DepthSigma: 0.2, ColorSigma: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	for index := range img {
		if gbuf.IsSky(index) && out[index] != img[index] {
			t.Fatalf("expected sky pixel %d to pass through the filter chain unchanged", index)
		}
	}
}

func TestFlatFieldIsPreserved(t *testing.T) {
	const w, h = 32, 32
	gbuf, err := tracer.NewGBuffer(w, h)
	if err != nil {
		t.Fatal(err)
	}
	color := types.Vec3{0.3, 0.6, 0.9}
	img := make([]types.Vec3, w*h)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			img[y*w+x] = color
			gbuf.Set(x, y, types.Vec3{0, 1, 0}, 5)
		}
	}

	specs := []PassParams{
		{StepWidth: 1, NormalSharpness: 64, DepthSigma: 0.1, ColorSigma: 0.5},
		{StepWidth: 4, NormalSharpness: 1, DepthSigma: 0.01, ColorSigma: 0.01},
		{StepWidth: 16, NormalSharpness: 0, DepthSigma: 0, ColorSigma: 0},
	}
	for specIndex, p := range specs {
		out := make([]types.Vec3, len(img))
		ApplyPass(out, img, gbuf, p)
		for index := range out {
			if !types.ApproxEqual(out[index], color, 1e-5) {
				t.Fatalf("[spec %d] expected flat color %v at pixel %d; got %v", specIndex, color, index, out[index])
			}
		}
	}
}

func TestSkipThreshold(t *testing.T) {
	img, gbuf := noisyImage(t, 16, 16, 2)
	opts := Options{Passes: 3, NormalSharpness: 1, ColorSigma: 10, DepthSigma: 10, SkipThreshold: 64}

	type spec struct {
		samples   uint32
		expFilter bool
	}
	specs := []spec{
		{1, true},
		{63, true},
		{64, false},
		{1000, false},
	}

	for specIndex, s := range specs {
		out, err := Apply(img, gbuf, s.samples, opts)
		if err != nil {
			t.Fatal(err)
		}

		changed := false
		for index := range img {
			if out[index] != img[index] {
				changed = true
				break
			}
		}
		if changed != s.expFilter {
			t.Fatalf("[spec %d] expected filtered=%t at %d samples", specIndex, s.expFilter, s.samples)
		}
		if &out[0] == &img[0] {
			t.Fatalf("[spec %d] expected a new output buffer", specIndex)
		}
	}
}

func TestNormalEdgesAreKept(t *testing.T) {
	const w, h = 16, 8
	gbuf, err := tracer.NewGBuffer(w, h)
	if err != nil {
		t.Fatal(err)
	}
	img := make([]types.Vec3, w*h)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			if x < w/2 {
				img[y*w+x] = types.Splat3(1)
				gbuf.Set(x, y, types.Vec3{0, 0, 1}, 2)
			} else {
				gbuf.Set(x, y, types.Vec3{1, 0, 0}, 2)
			}
		}
	}

	out, err := Apply(img, gbuf, 1, Options{Passes: 3, NormalSharpness: 16})
	if err != nil {
		t.Fatal(err)
	}
	for y := uint32(0); y < h; y++ {
		left, right := out[y*w+w/2-1], out[y*w+w/2]
		if !types.ApproxEqual(left, types.Splat3(1), 1e-6) || !right.IsZero() {
			t.Fatalf("expected the edge at row %d to be preserved; got %v | %v", y, left, right)
		}
	}
}

func TestApplySizeMismatch(t *testing.T) {
	gbuf, err := tracer.NewGBuffer(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(make([]types.Vec3, 15), gbuf, 0, DefaultOptions()); err != ErrBufferSizeMismatch {
		t.Fatalf("expected ErrBufferSizeMismatch; got %v", err)
	}
}
