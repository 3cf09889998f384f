package renderer

import (
	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

type Renderer interface {
	// Accumulate one sample per pixel.
	Render() error

	// Discard accumulated samples and photon mapping state.
	Reset()

	// Replace the camera. Accumulated samples are discarded.
	SetCamera(*scene.Camera)

	// Get the current camera.
	Camera() *scene.Camera

	// The number of samples accumulated since the last reset.
	SampleCount() uint32

	// Resolve the accumulated samples and run the denoiser. Pixels are
	// stored in row-major order starting at the top-left corner.
	Frame() ([]types.Vec3, error)

	// Tonemap the current frame and write it to a png file.
	SaveFrame(imgFile string) error

	// Get the options the renderer was created with.
	Options() Options

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
