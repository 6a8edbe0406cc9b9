// Package gpu is the narrow GPU surface the deferred pipeline renders
// through, with a WebGPU implementation and a headless CPU implementation.
package gpu

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
)

var (
	ErrUnknownTarget   = errors.New("gpu: unknown or released target")
	ErrIncompatible    = errors.New("gpu: incompatible targets")
	ErrNotCompiled     = errors.New("gpu: program not compiled")
	ErrInvalidTarget   = errors.New("gpu: invalid target descriptor")
	ErrMissingSampler  = errors.New("gpu: quad material has no sampler bound")
	ErrUnsupportedMesh = errors.New("gpu: mesh without positions or indices")
)

type Format int

const (
	FormatRGBA32Float Format = iota
	FormatRGB8Unorm
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type DepthFunc int

const (
	DepthNever DepthFunc = iota
	DepthLess
	DepthEqual
	DepthLessEqual
	DepthGreater
	DepthNotEqual
	DepthGreaterEqual
	DepthAlways
)

func (f DepthFunc) String() string {
	switch f {
	case DepthNever:
		return "never"
	case DepthLess:
		return "less"
	case DepthEqual:
		return "equal"
	case DepthLessEqual:
		return "lequal"
	case DepthGreater:
		return "greater"
	case DepthNotEqual:
		return "notequal"
	case DepthGreaterEqual:
		return "gequal"
	case DepthAlways:
		return "always"
	default:
		return fmt.Sprintf("DepthFunc(%d)", int(f))
	}
}

// Test reports whether a fragment at depth passes against stored.
func (f DepthFunc) Test(depth, stored float32) bool {
	switch f {
	case DepthNever:
		return false
	case DepthLess:
		return depth < stored
	case DepthEqual:
		return depth == stored
	case DepthLessEqual:
		return depth <= stored
	case DepthGreater:
		return depth > stored
	case DepthNotEqual:
		return depth != stored
	case DepthGreaterEqual:
		return depth >= stored
	default:
		return true
	}
}

// TargetDesc describes an offscreen render target. Every target carries a
// depth buffer; Stencil adds a stencil plane to it.
type TargetDesc struct {
	Label           string
	Width           int
	Height          int
	Format          Format
	MinFilter       Filter
	MagFilter       Filter
	Stencil         bool
	GenerateMipmaps bool
}

func (d TargetDesc) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %s is %dx%d", ErrInvalidTarget, d.Label, d.Width, d.Height)
	}
	return nil
}

// Target is a render target created by a Context. Its backend resources are
// private to the context that made it.
type Target struct {
	ID   uuid.UUID
	Desc TargetDesc

	depthFrom *Target
	released  bool
	handle    any
}

func newTarget(desc TargetDesc) *Target {
	return &Target{ID: uuid.New(), Desc: desc}
}

func (t *Target) Width() int  { return t.Desc.Width }
func (t *Target) Height() int { return t.Desc.Height }

// DepthSource is the target whose depth buffer t renders with: itself unless
// linked by ShareDepth.
func (t *Target) DepthSource() *Target {
	if t.depthFrom != nil {
		return t.depthFrom
	}
	return t
}

func (t *Target) SharesDepth() bool { return t.depthFrom != nil }

func (t *Target) Released() bool { return t.released }

func (t *Target) String() string {
	return fmt.Sprintf("%s(%dx%d)", t.Desc.Label, t.Desc.Width, t.Desc.Height)
}

// ScenePass draws every visible mesh under Scene with its active material.
// Depth is cleared only when the context auto-clears depth and the target
// owns its depth buffer.
type ScenePass struct {
	Label      string
	Scene      *core.Node
	Camera     *core.Camera
	Target     *Target
	Clear      bool
	ClearColor mgl32.Vec4
}

// QuadPass draws a full-screen triangle at the far plane with Material. A nil
// Target renders to the surface.
type QuadPass struct {
	Label      string
	Material   *material.ShaderMaterial
	Target     *Target
	Clear      bool
	ClearColor mgl32.Vec4
}

// Surface is the drawable the final image lands on.
type Surface interface {
	Size() (width, height int)
}

type Context interface {
	CreateTarget(desc TargetDesc) (*Target, error)
	ReleaseTarget(t *Target)
	// ShareDepth makes dst render with src's depth buffer. Both must be the
	// same size.
	ShareDepth(dst, src *Target) error

	SetDepthFunc(f DepthFunc)
	DepthFunc() DepthFunc
	SetAutoClearDepth(on bool)
	AutoClearDepth() bool

	CompileProgram(p *material.Program) error
	// ReleaseProgram frees what CompileProgram built for p.
	ReleaseProgram(p *material.Program)
	RenderScene(pass ScenePass) error
	RenderQuad(pass QuadPass) error

	SetSize(width, height int)
	Surface() Surface
}

func checkShare(dst, src *Target) error {
	if dst == nil || src == nil || dst.released || src.released {
		return ErrUnknownTarget
	}
	if dst.Desc.Width != src.Desc.Width || dst.Desc.Height != src.Desc.Height {
		return fmt.Errorf("%w: depth of %s cannot back %s", ErrIncompatible, src, dst)
	}
	return nil
}

// quadSampler returns the target bound to the quad material's sampler.
func quadSampler(m *material.ShaderMaterial) (*Target, error) {
	if m == nil {
		return nil, ErrMissingSampler
	}
	t, ok := m.Uniforms.Sampler("sampler").(*Target)
	if !ok || t == nil {
		return nil, ErrMissingSampler
	}
	if t.released {
		return nil, fmt.Errorf("%w: sampler %s", ErrUnknownTarget, t)
	}
	return t, nil
}
