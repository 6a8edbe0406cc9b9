package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// VertexColorMode selects how per-vertex colors feed a material.
type VertexColorMode int

const (
	NoColors VertexColorMode = iota
	FaceColors
	VertexColors
)

// ShadingMode selects flat or smooth normal interpolation.
type ShadingMode int

const (
	SmoothShading ShadingMode = iota
	FlatShading
	NoShading
)

// Material is anything that can occupy a node's active material slot: an
// authored MaterialSpec or a derived render-ready material.
type Material interface {
	Label() string
}

// MaterialSpec is an authored surface description. It is either a single
// *SurfaceMaterial or a *CompositeMaterial holding an ordered list of specs.
type MaterialSpec interface {
	Material
	isMaterialSpec()
}

// SurfaceMaterial is a single authored material. Optional terms are nil when
// the material kind does not carry them (a basic material has no specular).
type SurfaceMaterial struct {
	Name         string
	Color        mgl32.Vec3
	Emissive     *mgl32.Vec3
	Specular     *mgl32.Vec3
	Shininess    *float32
	WrapAround   bool
	Metal        bool
	VertexColors VertexColorMode
	Shading      ShadingMode
}

func (m *SurfaceMaterial) Label() string   { return m.Name }
func (m *SurfaceMaterial) isMaterialSpec() {}

// NewBasicMaterial returns an unlit material carrying only a diffuse color.
func NewBasicMaterial(color mgl32.Vec3) *SurfaceMaterial {
	return &SurfaceMaterial{Name: "basic", Color: color}
}

// NewLambertMaterial returns a diffuse material with an emissive term.
func NewLambertMaterial(color, emissive mgl32.Vec3) *SurfaceMaterial {
	return &SurfaceMaterial{Name: "lambert", Color: color, Emissive: vec3Ptr(emissive)}
}

// NewPhongMaterial returns a material with emissive, specular and shininess.
func NewPhongMaterial(color, emissive, specular mgl32.Vec3, shininess float32) *SurfaceMaterial {
	return &SurfaceMaterial{
		Name:      "phong",
		Color:     color,
		Emissive:  vec3Ptr(emissive),
		Specular:  vec3Ptr(specular),
		Shininess: &shininess,
	}
}

// CompositeMaterial is a multi-material container. Materials are indexed by
// a mesh's per-face material index; Color is the container-level tint.
type CompositeMaterial struct {
	Name      string
	Color     mgl32.Vec3
	Materials []MaterialSpec
}

func (m *CompositeMaterial) Label() string   { return m.Name }
func (m *CompositeMaterial) isMaterialSpec() {}

func NewCompositeMaterial(materials ...MaterialSpec) *CompositeMaterial {
	return &CompositeMaterial{Name: "composite", Color: White, Materials: materials}
}

func vec3Ptr(v mgl32.Vec3) *mgl32.Vec3 {
	return &v
}
