package shaders

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/gekko3d/deferred/rt/core"
)

//go:embed pack.wgsl
var PackWGSL string

//go:embed transform.wgsl
var TransformWGSL string

//go:embed normal_depth.wgsl
var NormalDepthWGSL string

//go:embed color.wgsl
var ColorWGSL string

//go:embed pass_through.wgsl
var PassThroughWGSL string

const (
	NormalDepth = "normalDepth"
	Color       = "color"
	PassThrough = "passThrough"
)

// Vertex and fragment entry points shared by every program in the table.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// DefineUseColor enables the vertex color input of the color program.
const DefineUseColor = "USE_COLOR"

var ErrUnknownShader = errors.New("shaders: unknown shader")

type UniformType int

const (
	UniformColor UniformType = iota
	UniformFloat
	UniformSampler2D
)

func (t UniformType) String() string {
	switch t {
	case UniformColor:
		return "color"
	case UniformFloat:
		return "float"
	case UniformSampler2D:
		return "sampler2D"
	default:
		return fmt.Sprintf("UniformType(%d)", int(t))
	}
}

// UniformDecl is one entry of a program's uniform schema. Default is a
// mgl32.Vec3 for colors, a float32 for floats and nil for samplers.
type UniformDecl struct {
	Name    string
	Type    UniformType
	Default any
}

type Entry struct {
	Name     string
	Source   string
	Uniforms []UniformDecl
}

var table = map[string]Entry{
	NormalDepth: {
		Name:   NormalDepth,
		Source: NormalDepthWGSL,
	},
	Color: {
		Name:   Color,
		Source: ColorWGSL,
		Uniforms: []UniformDecl{
			{Name: "diffuse", Type: UniformColor, Default: core.HexColor(0xeeeeee)},
			{Name: "specular", Type: UniformColor, Default: core.HexColor(0x111111)},
			{Name: "emissive", Type: UniformColor, Default: core.HexColor(0x000000)},
			{Name: "shininess", Type: UniformFloat, Default: float32(30)},
			{Name: "wrapAround", Type: UniformFloat, Default: float32(1)},
			{Name: "additiveSpecular", Type: UniformFloat, Default: float32(1)},
		},
	},
	PassThrough: {
		Name:   PassThrough,
		Source: PassThroughWGSL,
		Uniforms: []UniformDecl{
			{Name: "sampler", Type: UniformSampler2D},
		},
	},
}

var chunks = map[string]string{
	"pack":      PackWGSL,
	"transform": TransformWGSL,
}

// Lookup returns a copy of the named table entry.
func Lookup(name string) (Entry, error) {
	e, ok := table[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownShader, name)
	}
	e.Uniforms = append([]UniformDecl(nil), e.Uniforms...)
	return e, nil
}

func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
