package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera looking along -Z when Yaw and Pitch are 0.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	Fov      float32 // vertical, degrees
	Aspect   float32
	Near     float32
	Far      float32
}

func NewCamera(fov, aspect, near, far float32) *Camera {
	return &Camera{
		Position: mgl32.Vec3{0, 2, 10},
		Fov:      fov,
		Aspect:   aspect,
		Near:     near,
		Far:      far,
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	// Y-up: yaw around Y, pitch towards +Y
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

// LookAt points the camera at target by deriving yaw and pitch.
func (c *Camera) LookAt(target mgl32.Vec3) {
	d := target.Sub(c.Position)
	if d.Len() == 0 {
		return
	}
	d = d.Normalize()
	c.Pitch = float32(math.Asin(float64(d.Y())))
	c.Yaw = float32(math.Atan2(float64(d.X()), float64(-d.Z())))
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.Forward())
	up := mgl32.Vec3{0, 1, 0}
	return mgl32.LookAtV(eye, target, up)
}

func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect == 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(mgl32.DegToRad(c.Fov), aspect, c.Near, c.Far)
}
