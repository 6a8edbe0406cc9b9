package pack

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ColorParams are the linear-space uniforms of a g-buffer color material.
type ColorParams struct {
	Diffuse          mgl32.Vec3
	Specular         mgl32.Vec3
	Emissive         mgl32.Vec3
	Shininess        float32
	WrapAround       float32
	AdditiveSpecular float32
}

// EncodeColorTexel produces the RGBA value the color pass writes for one
// fragment. vertexColor is nil unless the material uses vertex colors, in
// which case it modulates the emissive term.
//
//	x: packed diffuse
//	y: packed specular * additiveSpecular
//	z: wrapAround * shininess
//	w: packed emissive
func EncodeColorTexel(p ColorParams, vertexColor *mgl32.Vec3) [4]float32 {
	emissive := p.Emissive
	if vertexColor != nil {
		emissive = mgl32.Vec3{
			emissive[0] * vertexColor[0],
			emissive[1] * vertexColor[1],
			emissive[2] * vertexColor[2],
		}
	}
	return [4]float32{
		float32(Pack(p.Diffuse)),
		float32(Pack(p.Specular) * float64(p.AdditiveSpecular)),
		p.WrapAround * p.Shininess,
		float32(Pack(emissive)),
	}
}

// DecodeColorTexel recovers the surface attributes from a color texel. The
// sign of z carries wrapAround and the sign of y carries additiveSpecular;
// a zero specular loses its sign and decodes as additive -1.
func DecodeColorTexel(t [4]float32) ColorParams {
	p := ColorParams{
		Diffuse:          Unpack(float64(t[0])),
		Emissive:         Unpack(float64(t[3])),
		WrapAround:       1,
		AdditiveSpecular: -1,
	}

	spec := float64(t[1])
	if spec > 0 {
		p.AdditiveSpecular = 1
	} else {
		spec = -spec
	}
	p.Specular = Unpack(spec)

	p.Shininess = t[2]
	if t[2] < 0 {
		p.WrapAround = -1
		p.Shininess = -t[2]
	}
	return p
}

// EncodeNormalDepth produces the normal-depth texel: view space normal mapped
// to [0,1] in xyz, clip space z/w in w. A zero normal encodes as 0.5.
func EncodeNormalDepth(viewNormal mgl32.Vec3, clipZ, clipW float32) [4]float32 {
	n := SafeNormalize(viewNormal)
	return [4]float32{
		n[0]*0.5 + 0.5,
		n[1]*0.5 + 0.5,
		n[2]*0.5 + 0.5,
		clipZ / clipW,
	}
}

func DecodeNormalDepth(t [4]float32) (normal mgl32.Vec3, depth float32) {
	normal = mgl32.Vec3{t[0]*2 - 1, t[1]*2 - 1, t[2]*2 - 1}
	return normal, t[3]
}

// SafeNormalize is Normalize with the zero vector mapped to itself.
func SafeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}
