package denoise

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
)

// The maximum number of filter passes. Pass i uses a step width of 2^i.
const MaxPasses = 5

// B3-spline weights of the 5 tap kernel.
var b3Weights = [5]float32{1.0 / 16.0, 1.0 / 4.0, 3.0 / 8.0, 1.0 / 4.0, 1.0 / 16.0}

var ErrBufferSizeMismatch = errors.New("denoise: image and G-buffer dimensions do not match")

// Denoiser options.
type Options struct {
	// Number of a-trous passes (0 disables the filter).
	Passes uint32

	// Exponent applied to the cosine between normals. Higher values stop
	// the filter at smaller angles.
	NormalSharpness float32

	// Falloff of the relative depth and luminance differences. A zero
	// sigma disables the corresponding edge stopping term.
	DepthSigma float32
	ColorSigma float32

	// Skip filtering once this many samples have been accumulated (0 never
	// skips).
	SkipThreshold uint32
}

// DefaultOptions returns the options used by the renderer unless overridden.
func DefaultOptions() Options {
	return Options{
		Passes:          4,
		NormalSharpness: 64,
		DepthSigma:      0.1,
		ColorSigma:      0.75,
		SkipThreshold:   1024,
	}
}

// The parameters of a single filter pass.
type PassParams struct {
	StepWidth uint32

	NormalSharpness float32
	DepthSigma      float32
	ColorSigma      float32
}

// Apply runs the configured filter chain over the resolved radiance in src
// and returns the filtered image. src is left untouched.
func Apply(src []types.Vec3, gbuf *tracer.GBuffer, samples uint32, opts Options) ([]types.Vec3, error) {
	if gbuf == nil || len(src) != int(gbuf.Width*gbuf.Height) || len(gbuf.Depth) != len(src) {
		return nil, ErrBufferSizeMismatch
	}

	cur := make([]types.Vec3, len(src))
	copy(cur, src)

	passes := opts.Passes
	if passes > MaxPasses {
		passes = MaxPasses
	}
	if passes == 0 || (opts.SkipThreshold > 0 && samples >= opts.SkipThreshold) {
		return cur, nil
	}

	tmp := make([]types.Vec3, len(src))
	for pass := uint32(0); pass < passes; pass++ {
		ApplyPass(tmp, cur, gbuf, PassParams{
			StepWidth:       1 << pass,
			NormalSharpness: opts.NormalSharpness,
			DepthSigma:      opts.DepthSigma,
			ColorSigma:      opts.ColorSigma,
		})
		cur, tmp = tmp, cur
	}
	return cur, nil
}

// ApplyPass runs one a-trous pass from src into dst. Rows are split across
// the available CPUs.
func ApplyPass(dst, src []types.Vec3, gbuf *tracer.GBuffer, p PassParams) {
	height := int(gbuf.Height)
	workers := runtime.NumCPU()
	if workers > height {
		workers = height
	}
	rowsPerWorker := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for startY := 0; startY < height; startY += rowsPerWorker {
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				for x := 0; x < int(gbuf.Width); x++ {
					index := y*int(gbuf.Width) + x
					dst[index] = filterPixel(src, gbuf, p, x, y)
				}
			}
		}(startY, endY)
	}
	wg.Wait()
}

func filterPixel(src []types.Vec3, gbuf *tracer.GBuffer, p PassParams, x, y int) types.Vec3 {
	width, height := int(gbuf.Width), int(gbuf.Height)
	center := y*width + x
	if gbuf.IsSky(center) {
		return src[center]
	}

	cColor := src[center]
	cLum := cColor.Luminance()
	cNormal := gbuf.Normals[center]
	cDepth := gbuf.Depth[center]

	step := int(p.StepWidth)
	if step < 1 {
		step = 1
	}

	var sum types.Vec3
	var weightSum float32
	for ky := -2; ky <= 2; ky++ {
		ny := y + ky*step
		if ny < 0 || ny >= height {
			continue
		}
		for kx := -2; kx <= 2; kx++ {
			nx := x + kx*step
			if nx < 0 || nx >= width {
				continue
			}

			neighbor := ny*width + nx
			if gbuf.IsSky(neighbor) {
				continue
			}

			w := b3Weights[kx+2] * b3Weights[ky+2]
			w *= normalWeight(cNormal, gbuf.Normals[neighbor], p.NormalSharpness)
			w *= falloff(relativeDiff(cDepth, gbuf.Depth[neighbor]), p.DepthSigma)
			w *= falloff(abs(cLum-src[neighbor].Luminance()), p.ColorSigma)
			if w <= 0 {
				continue
			}

			sum = sum.Add(src[neighbor].Mul(w))
			weightSum += w
		}
	}

	if weightSum <= 0 {
		return cColor
	}
	out := sum.Mul(1 / weightSum)
	if !out.IsFinite() {
		return cColor
	}
	return out
}

func normalWeight(n0, n1 types.Vec3, sharpness float32) float32 {
	if sharpness <= 0 {
		return 1
	}
	cos := n0.Dot(n1)
	if cos <= 0 {
		return 0
	}
	if cos >= 1 {
		return 1
	}
	return float32(math.Pow(float64(cos), float64(sharpness)))
}

func falloff(diff, sigma float32) float32 {
	if sigma <= 0 || diff <= 0 {
		return 1
	}
	return float32(math.Exp(-float64(diff / sigma)))
}

func relativeDiff(d0, d1 float32) float32 {
	scale := d0
	if scale < 1e-4 {
		scale = 1e-4
	}
	return abs(d0-d1) / scale
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
