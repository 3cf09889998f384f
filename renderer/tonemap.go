package renderer

import (
	"image"
	"image/color"
	"math"

	"github.com/achilleasa/prism/types"
)

const displayGamma = 2.2

// Tonemap applies exposure and the simple Reinhard operator to an HDR frame
// and returns a gamma corrected 8-bit image.
func Tonemap(frame []types.Vec3, frameW, frameH uint32, exposure float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(frameW), int(frameH)))
	if exposure <= 0 {
		exposure = 1
	}

	for y := 0; y < int(frameH); y++ {
		for x := 0; x < int(frameW); x++ {
			c := frame[y*int(frameW)+x].Mul(exposure)
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(c[0]),
				G: toByte(c[1]),
				B: toByte(c[2]),
				A: 255,
			})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case math.IsInf(float64(v), 1):
		return 255
	}
	mapped := float64(v / (1 + v))
	return uint8(math.Min(255, math.Round(255*math.Pow(mapped, 1/displayGamma))))
}
