package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GammaFactor is the exponent used when moving authored (display space)
// colors into linear space.
const GammaFactor = 2.0

var (
	Black = mgl32.Vec3{0, 0, 0}
	White = mgl32.Vec3{1, 1, 1}
)

// HexColor converts a 0xRRGGBB value into a color with channels in [0,1].
func HexColor(hex uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32((hex>>16)&0xff) / 255,
		float32((hex>>8)&0xff) / 255,
		float32(hex&0xff) / 255,
	}
}

// GammaToLinear squares each channel (GammaFactor 2).
func GammaToLinear(c mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{c[0] * c[0], c[1] * c[1], c[2] * c[2]}
}

// LinearToGamma is the inverse of GammaToLinear for non-negative channels.
func LinearToGamma(c mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		if c[i] > 0 {
			out[i] = float32(math.Sqrt(float64(c[i])))
		}
	}
	return out
}
