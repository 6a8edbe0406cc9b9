// Package material derives the two g-buffer materials (normal-depth and
// color) from an authored surface description.
package material

import (
	"github.com/gekko3d/deferred/rt/core"
)

type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendNone
)

// ShaderMaterial is a render-ready material: a shared program plus its own
// uniform values.
type ShaderMaterial struct {
	Name         string
	Program      *Program
	Uniforms     UniformSet
	VertexColors core.VertexColorMode
	Shading      core.ShadingMode
	Blending     BlendMode
	DepthTest    bool
	DepthWrite   bool
}

// NewShaderMaterial retains p and fills the uniforms with the program's
// declared defaults.
func NewShaderMaterial(name string, p *Program) *ShaderMaterial {
	return &ShaderMaterial{
		Name:       name,
		Program:    p.Retain(),
		Uniforms:   NewUniformSet(p.Entry().Uniforms),
		DepthTest:  true,
		DepthWrite: true,
	}
}

func (m *ShaderMaterial) Label() string { return m.Name }

// Clone shares the program and deep-copies uniform values.
func (m *ShaderMaterial) Clone() *ShaderMaterial {
	c := *m
	c.Program = m.Program.Retain()
	c.Uniforms = m.Uniforms.Clone()
	return &c
}

// Dispose releases the program reference. The material must not be drawn
// afterwards.
func (m *ShaderMaterial) Dispose() {
	if m.Program != nil {
		m.Program.Release()
		m.Program = nil
	}
}

// MultiMaterial is an ordered list of derived materials parallel to a
// CompositeMaterial's entries.
type MultiMaterial struct {
	Name      string
	Materials []*ShaderMaterial
}

func (m *MultiMaterial) Label() string { return m.Name }

func (m *MultiMaterial) Len() int { return len(m.Materials) }

// At returns the material for a geometry group index, or nil when out of
// range.
func (m *MultiMaterial) At(i int) *ShaderMaterial {
	if i < 0 || i >= len(m.Materials) {
		return nil
	}
	return m.Materials[i]
}

func (m *MultiMaterial) Dispose() {
	for _, sm := range m.Materials {
		sm.Dispose()
	}
}

// Pair is the normal-depth and color material derived for one node. Both are
// *ShaderMaterial for a single surface or *MultiMaterial for a composite.
type Pair struct {
	NormalDepth core.Material
	Color       core.Material
}

func (p *Pair) Dispose() {
	for _, m := range []core.Material{p.NormalDepth, p.Color} {
		if d, ok := m.(interface{ Dispose() }); ok {
			d.Dispose()
		}
	}
}

// Resolve picks the material to draw a geometry group with. Single materials
// apply to every group.
func Resolve(m core.Material, group int) *ShaderMaterial {
	switch v := m.(type) {
	case *ShaderMaterial:
		return v
	case *MultiMaterial:
		return v.At(group)
	default:
		return nil
	}
}
