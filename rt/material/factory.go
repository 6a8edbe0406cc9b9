package material

import (
	"fmt"
	"sync"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/shaders"
)

// Factory derives g-buffer materials and owns the shared programs they draw
// with. It is safe for concurrent use.
type Factory struct {
	mu        sync.Mutex
	programs  map[string]*Program
	template  *ShaderMaterial
	onRelease func(*Program)
}

func NewFactory() *Factory {
	return &Factory{programs: make(map[string]*Program)}
}

// OnRelease registers fn to run when a program loses its last material and
// is dropped from the factory. GPU contexts hook ReleaseProgram here.
func (f *Factory) OnRelease(fn func(*Program)) {
	f.mu.Lock()
	f.onRelease = fn
	f.mu.Unlock()
}

// Program returns the shared program for a table entry and define set,
// creating it on first use. The program is not retained; it stays in the
// factory until a material built on it is disposed as its last reference.
func (f *Factory) Program(name string, defines map[string]bool) (*Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.program(name, defines)
}

// Material builds a material on the shared program. Lookup and retain happen
// under one lock so a concurrent release cannot drop the program in between.
func (f *Factory) Material(label, name string, defines map[string]bool) (*ShaderMaterial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.program(name, defines)
	if err != nil {
		return nil, err
	}
	return NewShaderMaterial(label, p), nil
}

func (f *Factory) program(name string, defines map[string]bool) (*Program, error) {
	key := programKey(name, defines)
	if p, ok := f.programs[key]; ok {
		return p, nil
	}
	entry, err := shaders.Lookup(name)
	if err != nil {
		return nil, err
	}
	p, err := newProgram(entry, defines)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", key, err)
	}
	p.free = f.drop
	f.programs[key] = p
	return p, nil
}

// drop forgets p unless it was retained again or replaced since its count
// reached zero.
func (f *Factory) drop(p *Program) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Refs() > 0 || f.programs[p.key] != p {
		return
	}
	delete(f.programs, p.key)
	if f.onRelease != nil {
		f.onRelease(p)
	}
}

// Programs lists every program created so far.
func (f *Factory) Programs() []*Program {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Program, 0, len(f.programs))
	for _, p := range f.programs {
		out = append(out, p)
	}
	return out
}

// mustMaterial is used for the built-in table, which is embedded and covered
// by tests.
func (f *Factory) mustMaterial(label, name string, defines map[string]bool) *ShaderMaterial {
	m, err := f.Material(label, name, defines)
	if err != nil {
		panic(err)
	}
	return m
}

// NormalDepthTemplate is the material every normal-depth material is cloned
// from. It holds a reference to its program for the factory's lifetime.
func (f *Factory) NormalDepthTemplate() *ShaderMaterial {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.normalDepthTemplate()
}

func (f *Factory) normalDepthTemplate() *ShaderMaterial {
	if f.template == nil {
		p, err := f.program(shaders.NormalDepth, nil)
		if err != nil {
			panic(err)
		}
		f.template = NewShaderMaterial(shaders.NormalDepth, p)
		f.template.Blending = BlendNone
	}
	return f.template
}

func (f *Factory) cloneTemplate() *ShaderMaterial {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.normalDepthTemplate().Clone()
}

// Derive builds the pair for a spec. Composite entries are derived in order
// into parallel multi-materials. A nil spec yields nil.
func (f *Factory) Derive(spec core.MaterialSpec) *Pair {
	switch s := spec.(type) {
	case nil:
		return nil
	case *core.CompositeMaterial:
		nd := &MultiMaterial{Name: s.Name + "/" + shaders.NormalDepth}
		color := &MultiMaterial{Name: s.Name + "/" + shaders.Color}
		for _, entry := range s.Materials {
			n, c := f.DeriveEntry(entry)
			nd.Materials = append(nd.Materials, n)
			color.Materials = append(color.Materials, c)
		}
		return &Pair{NormalDepth: nd, Color: color}
	default:
		n, c := f.DeriveEntry(spec)
		return &Pair{NormalDepth: n, Color: c}
	}
}

// DeriveEntry derives the normal-depth and color materials for one entry.
// Missing optional terms fall back to black emissive and specular, shininess
// 1. An entry that is itself a container contributes its Color as emissive
// over a black diffuse.
func (f *Factory) DeriveEntry(spec core.MaterialSpec) (normalDepth, color *ShaderMaterial) {
	var (
		diffuse   = core.Black
		emissive  = core.Black
		specular  = core.Black
		shininess = float32(1)
		wrap      = float32(1)
		additive  = float32(-1)
		vc        core.VertexColorMode
		shading   core.ShadingMode
		label     string
	)

	switch s := spec.(type) {
	case *core.SurfaceMaterial:
		label = s.Name
		diffuse = s.Color
		if s.Emissive != nil {
			emissive = *s.Emissive
		}
		if s.Specular != nil {
			specular = *s.Specular
		}
		if s.Shininess != nil {
			shininess = *s.Shininess
		}
		if s.WrapAround {
			wrap = -1
		}
		if s.Metal {
			additive = 1
		}
		vc = s.VertexColors
		shading = s.Shading
	case *core.CompositeMaterial:
		label = s.Name
		emissive = s.Color
	}

	var defines map[string]bool
	if vc != core.NoColors {
		defines = map[string]bool{shaders.DefineUseColor: true}
	}

	color = f.mustMaterial(label+"/"+shaders.Color, shaders.Color, defines)
	color.Uniforms.SetColor("diffuse", core.GammaToLinear(diffuse))
	color.Uniforms.SetColor("emissive", core.GammaToLinear(emissive))
	color.Uniforms.SetColor("specular", core.GammaToLinear(specular))
	color.Uniforms.SetFloat("shininess", shininess)
	color.Uniforms.SetFloat("wrapAround", wrap)
	color.Uniforms.SetFloat("additiveSpecular", additive)
	color.VertexColors = vc
	color.Shading = shading
	color.Blending = BlendNone

	normalDepth = f.cloneTemplate()
	normalDepth.Name = label + "/" + shaders.NormalDepth
	normalDepth.VertexColors = vc
	normalDepth.Blending = BlendNone
	return normalDepth, color
}
