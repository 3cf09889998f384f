package tracer

import (
	"errors"

	"github.com/achilleasa/prism/types"
)

// Depth value stored in the G-buffer for pixels whose primary ray escaped.
const SkyDepth float32 = -1

var ErrInvalidFrameDims = errors.New("tracer: frame dimensions must be non-zero")

// Accumulator stores per-pixel running radiance sums and the number of
// samples added since the last reset. Blocks write disjoint rows so
// concurrent Add calls from different tracers never touch the same cell.
type Accumulator struct {
	width, height uint32
	sums          []types.Vec3
	samples       uint32
}

// Allocate an accumulator for the given frame dims.
func NewAccumulator(width, height uint32) (*Accumulator, error) {
	if width == 0 || height == 0 {
		return nil, ErrInvalidFrameDims
	}
	return &Accumulator{
		width:  width,
		height: height,
		sums:   make([]types.Vec3, width*height),
	}, nil
}

// Dims returns the frame width and height.
func (a *Accumulator) Dims() (uint32, uint32) {
	return a.width, a.height
}

// Add radiance to the running sum of pixel (x, y).
func (a *Accumulator) Add(x, y uint32, radiance types.Vec3) {
	index := y*a.width + x
	a.sums[index] = a.sums[index].Add(radiance)
}

// Sum returns the running sum of pixel (x, y).
func (a *Accumulator) Sum(x, y uint32) types.Vec3 {
	return a.sums[y*a.width+x]
}

// IncrementSamples advances the sample counter. It must be called once per
// completed integration pass.
func (a *Accumulator) IncrementSamples() {
	a.samples++
}

// SampleCount returns the number of samples accumulated since the last reset.
func (a *Accumulator) SampleCount() uint32 {
	return a.samples
}

// Reset clears all sums and the sample counter.
func (a *Accumulator) Reset() {
	for index := range a.sums {
		a.sums[index] = types.Vec3{}
	}
	a.samples = 0
}

// Resolve writes the average radiance (sum / sample count) into dst which
// must hold width*height entries. A zero sample count yields a black frame.
func (a *Accumulator) Resolve(dst []types.Vec3) {
	if a.samples == 0 {
		for index := range dst {
			dst[index] = types.Vec3{}
		}
		return
	}

	scale := 1.0 / float32(a.samples)
	for index, sum := range a.sums {
		dst[index] = sum.Mul(scale)
	}
}

// GBuffer stores the world-space normal and primary hit distance of each pixel.
type GBuffer struct {
	Width   uint32
	Height  uint32
	Normals []types.Vec3
	Depth   []float32
}

// Allocate a G-buffer for the given frame dims. All pixels start as sky.
func NewGBuffer(width, height uint32) (*GBuffer, error) {
	if width == 0 || height == 0 {
		return nil, ErrInvalidFrameDims
	}
	g := &GBuffer{
		Width:   width,
		Height:  height,
		Normals: make([]types.Vec3, width*height),
		Depth:   make([]float32, width*height),
	}
	g.Reset()
	return g, nil
}

// Set the normal and depth for pixel (x, y).
func (g *GBuffer) Set(x, y uint32, normal types.Vec3, depth float32) {
	index := y*g.Width + x
	g.Normals[index] = normal
	g.Depth[index] = depth
}

// IsSky returns true if the pixel at index recorded no hit.
func (g *GBuffer) IsSky(index int) bool {
	return g.Depth[index] < 0
}

// Reset marks every pixel as sky.
func (g *GBuffer) Reset() {
	for index := range g.Depth {
		g.Normals[index] = types.Vec3{}
		g.Depth[index] = SkyDepth
	}
}

// The output buffers shared by all tracers.
type RenderTarget struct {
	FrameW uint32
	FrameH uint32

	Accumulator *Accumulator
	GBuffer     *GBuffer
}

// Allocate a render target with matching accumulator and G-buffer.
func NewRenderTarget(frameW, frameH uint32) (*RenderTarget, error) {
	accum, err := NewAccumulator(frameW, frameH)
	if err != nil {
		return nil, err
	}
	gbuf, err := NewGBuffer(frameW, frameH)
	if err != nil {
		return nil, err
	}
	return &RenderTarget{
		FrameW:      frameW,
		FrameH:      frameH,
		Accumulator: accum,
		GBuffer:     gbuf,
	}, nil
}

// Reset clears the accumulator and the G-buffer.
func (rt *RenderTarget) Reset() {
	rt.Accumulator.Reset()
	rt.GBuffer.Reset()
}
