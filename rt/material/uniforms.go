package material

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/deferred/rt/shaders"
)

type Uniform struct {
	Type  shaders.UniformType
	Value any
}

// UniformSet maps uniform names to typed values. Accessors return the zero
// value for missing names or mismatched types.
type UniformSet map[string]*Uniform

// NewUniformSet builds a set holding the declared defaults.
func NewUniformSet(decls []shaders.UniformDecl) UniformSet {
	set := make(UniformSet, len(decls))
	for _, d := range decls {
		set[d.Name] = &Uniform{Type: d.Type, Value: d.Default}
	}
	return set
}

// Clone deep-copies the set. Sampler values are references to targets and
// are shared.
func (s UniformSet) Clone() UniformSet {
	out := make(UniformSet, len(s))
	for name, u := range s {
		c := *u
		out[name] = &c
	}
	return out
}

func (s UniformSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s UniformSet) Color(name string) mgl32.Vec3 {
	if u, ok := s[name]; ok {
		if v, ok := u.Value.(mgl32.Vec3); ok {
			return v
		}
	}
	return mgl32.Vec3{}
}

func (s UniformSet) Float(name string) float32 {
	if u, ok := s[name]; ok {
		if v, ok := u.Value.(float32); ok {
			return v
		}
	}
	return 0
}

func (s UniformSet) Sampler(name string) any {
	if u, ok := s[name]; ok && u.Type == shaders.UniformSampler2D {
		return u.Value
	}
	return nil
}

func (s UniformSet) SetColor(name string, v mgl32.Vec3) {
	s[name] = &Uniform{Type: shaders.UniformColor, Value: v}
}

func (s UniformSet) SetFloat(name string, v float32) {
	s[name] = &Uniform{Type: shaders.UniformFloat, Value: v}
}

func (s UniformSet) SetSampler(name string, target any) {
	s[name] = &Uniform{Type: shaders.UniformSampler2D, Value: target}
}

func (u *Uniform) String() string {
	return fmt.Sprintf("%s(%v)", u.Type, u.Value)
}
