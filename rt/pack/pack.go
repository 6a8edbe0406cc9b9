// Package pack mirrors on the CPU the channel packing done by the g-buffer
// shaders: three 8-bit-equivalent channels folded into one float, and the
// texel layouts of the normal-depth and color targets.
//
// Packing is lossy (255 levels per channel) and must not carry HDR data.
package pack

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Unit keeps c*Unit strictly below 1 so fract() never wraps at exactly 1.0.
const Unit = 255.0 / 256.0

// Pack folds c (each channel in [0,1]) into a single scalar using a base-255
// positional layout: fract(x*u) + floor(y*u*255) + floor(z*u*255)*255.
func Pack(c mgl32.Vec3) float64 {
	x := float64(c[0]) * Unit
	y := float64(c[1]) * Unit * 255
	z := float64(c[2]) * Unit * 255
	return fract(x) + math.Floor(y) + math.Floor(z)*255
}

// Unpack is the inverse of Pack, exact to one quantization step.
func Unpack(v float64) mgl32.Vec3 {
	x := fract(v)
	zInt := math.Floor(v / 255)
	z := fract(zInt / 255)
	y := fract(math.Floor(v-zInt*255) / 255)
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

// fract matches GLSL/WGSL fract: v - floor(v).
func fract(v float64) float64 {
	return v - math.Floor(v)
}
