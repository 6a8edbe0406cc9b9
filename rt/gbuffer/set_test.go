package gbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/deferred/rt/gpu"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/shaders"
)

func quadMaterial(t *testing.T) *material.ShaderMaterial {
	t.Helper()
	p, err := material.NewFactory().Program(shaders.PassThrough, nil)
	require.NoError(t, err)
	return material.NewShaderMaterial(Final, p)
}

func TestNewSetAllocatesTriple(t *testing.T) {
	h := gpu.NewHeadless(800, 600)
	s, err := NewSet(h, quadMaterial(t), 400, 300)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	w, hgt := s.Size()
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, hgt)
	assert.Equal(t, 3, h.LiveTargets())

	assert.Equal(t, gpu.FormatRGBA32Float, s.NormalDepth().Desc.Format)
	assert.True(t, s.NormalDepth().Desc.Stencil)
	assert.Equal(t, gpu.FilterNearest, s.NormalDepth().Desc.MagFilter)
	assert.Equal(t, gpu.FilterLinear, s.Color().Desc.MagFilter)
	assert.Equal(t, gpu.FormatRGB8Unorm, s.Final().Desc.Format)
	assert.False(t, s.Final().Desc.Stencil)
	s.targets.each(func(tgt *gpu.Target) {
		assert.False(t, tgt.Desc.GenerateMipmaps, tgt.Desc.Label)
	})

	assert.Same(t, s.NormalDepth(), s.Color().DepthSource())
	assert.Same(t, s.NormalDepth(), s.NormalDepthPass().Target)
	assert.Same(t, s.Color(), s.ColorPass().Target)
	assert.Same(t, s.Color(), s.FinalPass().Material.Uniforms.Sampler("sampler"))
	assert.Nil(t, s.FinalPass().Target)
}

func TestNewSetRejectsWrongMaterial(t *testing.T) {
	p, err := material.NewFactory().Program(shaders.Color, nil)
	require.NoError(t, err)
	_, err = NewSet(gpu.NewHeadless(8, 8), material.NewShaderMaterial("bad", p), 4, 4)
	assert.Error(t, err)
}

func TestResizeRelinksEverything(t *testing.T) {
	h := gpu.NewHeadless(800, 600)
	s, err := NewSet(h, quadMaterial(t), 400, 300)
	require.NoError(t, err)
	old := s.Color()

	require.NoError(t, s.Resize(200, 150))
	require.NoError(t, s.Validate())
	assert.True(t, old.Released())
	assert.Equal(t, 3, h.LiveTargets())
	assert.Equal(t, 200, s.Color().DepthSource().Width())
	assert.Equal(t, 150, s.Color().DepthSource().Height())
	assert.Same(t, s.Color(), s.FinalPass().Material.Uniforms.Sampler("sampler"))

	same := s.Color()
	require.NoError(t, s.Resize(200, 150))
	assert.Same(t, same, s.Color(), "same size keeps the triple")

	assert.ErrorIs(t, s.Resize(0, 150), gpu.ErrInvalidTarget)
}

func TestResizeFailureKeepsCurrentTriple(t *testing.T) {
	h := gpu.NewHeadless(8, 8, gpu.WithTargetBudget(5))
	s, err := NewSet(h, quadMaterial(t), 4, 4)
	require.NoError(t, err)
	nd, color := s.NormalDepth(), s.Color()

	err = s.Resize(8, 8)
	assert.ErrorIs(t, err, gpu.ErrTargetBudget)
	assert.Equal(t, 3, h.LiveTargets(), "partial allocation is released")
	assert.Same(t, nd, s.NormalDepth())
	assert.Same(t, color, s.Color())
	assert.False(t, color.Released())
	assert.NoError(t, s.Validate())
}

func TestOffscreenFollowsResize(t *testing.T) {
	h := gpu.NewHeadless(8, 8)
	s, err := NewSet(h, quadMaterial(t), 4, 4)
	require.NoError(t, err)

	s.SetOffscreen(true)
	assert.Same(t, s.Final(), s.FinalPass().Target)
	require.NoError(t, s.Resize(6, 6))
	assert.Same(t, s.Final(), s.FinalPass().Target)
	s.SetOffscreen(false)
	assert.Nil(t, s.FinalPass().Target)
}

func TestValidateDetectsBrokenLink(t *testing.T) {
	h := gpu.NewHeadless(8, 8)
	s, err := NewSet(h, quadMaterial(t), 4, 4)
	require.NoError(t, err)

	s.FinalPass().Material.Uniforms.SetSampler("sampler", s.NormalDepth())
	assert.Error(t, s.Validate())

	s.Release()
	assert.Equal(t, 0, h.LiveTargets())
	assert.ErrorIs(t, s.Validate(), gpu.ErrUnknownTarget)
}
