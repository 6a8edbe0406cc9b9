// Package gbuffer owns the three render targets of the deferred pipeline and
// the passes that draw into them.
package gbuffer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/deferred/rt/gpu"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/shaders"
)

var ErrDepthMismatch = errors.New("gbuffer: color depth source does not match normal-depth target")

// Target labels, also used as pass labels.
const (
	NormalDepth = "normalDepth"
	Color       = "color"
	Final       = "final"
)

// NormalDepthDesc is the float target holding packed normals and clip depth.
func NormalDepthDesc(w, h int) gpu.TargetDesc {
	return gpu.TargetDesc{
		Label:     NormalDepth,
		Width:     w,
		Height:    h,
		Format:    gpu.FormatRGBA32Float,
		MinFilter: gpu.FilterNearest,
		MagFilter: gpu.FilterNearest,
		Stencil:   true,
	}
}

// ColorDesc is the float target holding packed surface attributes.
func ColorDesc(w, h int) gpu.TargetDesc {
	return gpu.TargetDesc{
		Label:     Color,
		Width:     w,
		Height:    h,
		Format:    gpu.FormatRGBA32Float,
		MinFilter: gpu.FilterNearest,
		MagFilter: gpu.FilterLinear,
		Stencil:   true,
	}
}

// FinalDesc is the display-ready 8-bit target.
func FinalDesc(w, h int) gpu.TargetDesc {
	return gpu.TargetDesc{
		Label:     Final,
		Width:     w,
		Height:    h,
		Format:    gpu.FormatRGB8Unorm,
		MinFilter: gpu.FilterNearest,
		MagFilter: gpu.FilterLinear,
	}
}

type targets struct {
	normalDepth *gpu.Target
	color       *gpu.Target
	final       *gpu.Target
}

func (t targets) each(fn func(*gpu.Target)) {
	for _, tgt := range []*gpu.Target{t.normalDepth, t.color, t.final} {
		if tgt != nil {
			fn(tgt)
		}
	}
}

// Set is the normal-depth, color and final target triple plus the passes
// that reference them. The color target always renders with the
// normal-depth target's depth buffer.
type Set struct {
	ctx gpu.Context

	width, height int
	targets       targets

	normalDepthPass gpu.ScenePass
	colorPass       gpu.ScenePass
	finalPass       gpu.QuadPass
}

// NewSet allocates the targets at w x h. quad is the composite material; its
// sampler is bound to the color target on every resize.
func NewSet(ctx gpu.Context, quad *material.ShaderMaterial, w, h int) (*Set, error) {
	if quad == nil || quad.Program.Name() != shaders.PassThrough {
		return nil, fmt.Errorf("gbuffer: final pass needs a %s material", shaders.PassThrough)
	}
	s := &Set{
		ctx:             ctx,
		normalDepthPass: gpu.ScenePass{Label: NormalDepth, Clear: true},
		colorPass:       gpu.ScenePass{Label: Color, Clear: true},
		finalPass:       gpu.QuadPass{Label: Final, Material: quad, Clear: true},
	}
	if err := s.Resize(w, h); err != nil {
		return nil, err
	}
	return s, nil
}

// Resize builds a complete new triple and swaps it in. On failure the
// partial triple is released and the current one is kept.
func (s *Set) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("gbuffer: resize to %dx%d: %w", w, h, gpu.ErrInvalidTarget)
	}
	if s.targets.normalDepth != nil && s.width == w && s.height == h {
		return nil
	}

	next, err := s.allocate(w, h)
	if err != nil {
		next.each(s.ctx.ReleaseTarget)
		return err
	}

	old := s.targets
	s.targets = next
	s.width, s.height = w, h
	s.normalDepthPass.Target = next.normalDepth
	s.colorPass.Target = next.color
	s.finalPass.Material.Uniforms.SetSampler("sampler", next.color)
	if s.finalPass.Target != nil {
		s.finalPass.Target = next.final
	}
	old.each(s.ctx.ReleaseTarget)
	return nil
}

func (s *Set) allocate(w, h int) (targets, error) {
	var (
		next targets
		err  error
	)
	if next.normalDepth, err = s.ctx.CreateTarget(NormalDepthDesc(w, h)); err != nil {
		return next, fmt.Errorf("gbuffer: %s target: %w", NormalDepth, err)
	}
	if next.color, err = s.ctx.CreateTarget(ColorDesc(w, h)); err != nil {
		return next, fmt.Errorf("gbuffer: %s target: %w", Color, err)
	}
	if next.final, err = s.ctx.CreateTarget(FinalDesc(w, h)); err != nil {
		return next, fmt.Errorf("gbuffer: %s target: %w", Final, err)
	}
	if err := s.ctx.ShareDepth(next.color, next.normalDepth); err != nil {
		return next, fmt.Errorf("%w: %w", ErrDepthMismatch, err)
	}
	return next, nil
}

// Validate checks that every target has the set's size and that the color
// target borrows the normal-depth depth buffer.
func (s *Set) Validate() error {
	if s.targets.normalDepth == nil || s.targets.color == nil || s.targets.final == nil {
		return fmt.Errorf("gbuffer: %w", gpu.ErrUnknownTarget)
	}
	var err error
	s.targets.each(func(t *gpu.Target) {
		if err == nil && (t.Width() != s.width || t.Height() != s.height) {
			err = fmt.Errorf("gbuffer: %s is not %dx%d", t, s.width, s.height)
		}
	})
	if err != nil {
		return err
	}
	src := s.targets.color.DepthSource()
	if src != s.targets.normalDepth || src.Width() != s.targets.color.Width() || src.Height() != s.targets.color.Height() {
		return ErrDepthMismatch
	}
	if sampler, _ := s.finalPass.Material.Uniforms.Sampler("sampler").(*gpu.Target); sampler != s.targets.color {
		return fmt.Errorf("gbuffer: final pass samples %v, want %s", sampler, s.targets.color)
	}
	return nil
}

// SetOffscreen routes the final pass to the final target instead of the
// surface.
func (s *Set) SetOffscreen(on bool) {
	if on {
		s.finalPass.Target = s.targets.final
		return
	}
	s.finalPass.Target = nil
}

func (s *Set) Size() (int, int) { return s.width, s.height }

func (s *Set) NormalDepth() *gpu.Target { return s.targets.normalDepth }
func (s *Set) Color() *gpu.Target       { return s.targets.color }
func (s *Set) Final() *gpu.Target       { return s.targets.final }

func (s *Set) NormalDepthPass() gpu.ScenePass { return s.normalDepthPass }
func (s *Set) ColorPass() gpu.ScenePass       { return s.colorPass }
func (s *Set) FinalPass() gpu.QuadPass        { return s.finalPass }

// SetClearColor sets the color both scene passes clear to.
func (s *Set) SetClearColor(c mgl32.Vec4) {
	s.normalDepthPass.ClearColor = c
	s.colorPass.ClearColor = c
}

// Release frees the current triple. The set is unusable afterwards.
func (s *Set) Release() {
	s.targets.each(s.ctx.ReleaseTarget)
	s.targets = targets{}
	s.finalPass.Material.Uniforms.SetSampler("sampler", nil)
}
