package gpu

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/pack"
	"github.com/gekko3d/deferred/rt/shaders"
)

func floatDesc(label string, w, h int) TargetDesc {
	return TargetDesc{Label: label, Width: w, Height: h, Format: FormatRGBA32Float, Stencil: true}
}

// planeScene is a 4x4 plane facing a camera 5 units away, filling the middle
// of the view.
func planeScene(spec core.MaterialSpec) (*core.Node, *core.Node, *core.Camera) {
	scene := core.NewScene()
	plane := core.NewMesh("plane", core.NewPlaneGeometry(4, 4), spec)
	scene.Add(plane)
	cam := core.NewCamera(60, 1, 0.1, 100)
	cam.Position = mgl32.Vec3{0, 0, 5}
	return scene, plane, cam
}

func compileAll(t *testing.T, h *Headless, f *material.Factory) {
	t.Helper()
	for _, p := range f.Programs() {
		require.NoError(t, h.CompileProgram(p), p.Key())
	}
}

func TestCompileBuiltinPrograms(t *testing.T) {
	h := NewHeadless(8, 8)
	f := material.NewFactory()
	for _, name := range shaders.Names() {
		p, err := f.Program(name, nil)
		require.NoError(t, err)
		require.NoError(t, h.CompileProgram(p), name)
		assert.True(t, h.Compiled(p.Key()))
	}
	p, err := f.Program(shaders.Color, map[string]bool{shaders.DefineUseColor: true})
	require.NoError(t, err)
	assert.NoError(t, h.CompileProgram(p))
}

func TestReleaseProgramForgetsModule(t *testing.T) {
	h := NewHeadless(8, 8)
	f := material.NewFactory()
	f.OnRelease(h.ReleaseProgram)

	m, err := f.Material("final", shaders.PassThrough, nil)
	require.NoError(t, err)
	require.NoError(t, h.CompileProgram(m.Program))
	key := m.Program.Key()
	require.True(t, h.Compiled(key))

	m.Dispose()
	assert.False(t, h.Compiled(key))
}

func TestCreateTargetValidation(t *testing.T) {
	h := NewHeadless(8, 8, WithTargetBudget(2))

	_, err := h.CreateTarget(floatDesc("empty", 0, 10))
	assert.ErrorIs(t, err, ErrInvalidTarget)

	a, err := h.CreateTarget(floatDesc("a", 4, 4))
	require.NoError(t, err)
	_, err = h.CreateTarget(floatDesc("b", 4, 4))
	require.NoError(t, err)
	_, err = h.CreateTarget(floatDesc("c", 4, 4))
	assert.ErrorIs(t, err, ErrTargetBudget)

	h.ReleaseTarget(a)
	assert.True(t, a.Released())
	assert.Equal(t, 1, h.LiveTargets())
	_, err = h.Texel(a, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestShareDepth(t *testing.T) {
	h := NewHeadless(8, 8)
	a, _ := h.CreateTarget(floatDesc("a", 4, 4))
	b, _ := h.CreateTarget(floatDesc("b", 4, 4))
	c, _ := h.CreateTarget(floatDesc("c", 2, 4))

	assert.ErrorIs(t, h.ShareDepth(c, a), ErrIncompatible)
	require.NoError(t, h.ShareDepth(b, a))
	assert.True(t, b.SharesDepth())
	assert.Same(t, a, b.DepthSource())
	assert.Same(t, a, a.DepthSource())
}

func TestRenderSceneWritesGBufferTexels(t *testing.T) {
	f := material.NewFactory()
	spec := core.NewPhongMaterial(mgl32.Vec3{0.5, 0.5, 0.5}, core.Black, core.White, 12)
	scene, plane, cam := planeScene(spec)
	pair := f.Derive(spec)

	h := NewHeadless(16, 16)
	compileAll(t, h, f)
	nd, err := h.CreateTarget(floatDesc("nd", 16, 16))
	require.NoError(t, err)
	col, err := h.CreateTarget(floatDesc("color", 16, 16))
	require.NoError(t, err)
	require.NoError(t, h.ShareDepth(col, nd))

	plane.Active = pair.NormalDepth
	require.NoError(t, h.RenderScene(ScenePass{Label: "nd", Scene: scene, Camera: cam, Target: nd, Clear: true}))

	texel, err := h.Texel(nd, 8, 8)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, texel[0], 1e-3)
	assert.InDelta(t, 0.5, texel[1], 1e-3)
	assert.InDelta(t, 1.0, texel[2], 1e-3)
	corner, _ := h.Texel(nd, 0, 0)
	assert.Equal(t, [4]float32{}, corner, "outside the plane stays cleared")

	d, err := h.Depth(nd, 8, 8)
	require.NoError(t, err)
	assert.Less(t, d, float32(1))

	plane.Active = pair.Color
	require.NoError(t, h.RenderScene(ScenePass{Label: "color", Scene: scene, Camera: cam, Target: col, Clear: true}))

	texel, err = h.Texel(col, 8, 8)
	require.NoError(t, err)
	got := pack.DecodeColorTexel(texel)
	assert.InDelta(t, 0.25, got.Diffuse.X(), 2.0/255)
	assert.Equal(t, float32(12), got.Shininess)
	assert.Equal(t, float32(-1), got.AdditiveSpecular)

	cmds := h.Commands()
	require.Len(t, cmds, 2)
	assert.True(t, cmds[0].ClearedDepth)
	assert.False(t, cmds[1].ClearedDepth, "borrowed depth is loaded")
	assert.True(t, cmds[1].ClearedColor)
	assert.Equal(t, cmds[0].Fragments, cmds[1].Fragments, "same geometry passes lequal against its own depth")
	assert.Equal(t, []string{shaders.NormalDepth}, cmds[0].Programs)
}

func TestRenderSceneWithoutNormals(t *testing.T) {
	f := material.NewFactory()
	spec := core.NewBasicMaterial(core.White)
	scene, plane, cam := planeScene(spec)
	plane.Mesh.Normals = nil
	plane.Active = f.Derive(spec).NormalDepth

	h := NewHeadless(16, 16)
	compileAll(t, h, f)
	nd, err := h.CreateTarget(floatDesc("nd", 16, 16))
	require.NoError(t, err)
	require.NoError(t, h.RenderScene(ScenePass{Label: "nd", Scene: scene, Camera: cam, Target: nd, Clear: true}))

	texel, err := h.Texel(nd, 8, 8)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, float32(0.5), texel[i])
	}
	assert.False(t, math.IsNaN(float64(texel[3])))
}

func TestRenderSceneRequiresCompiledPrograms(t *testing.T) {
	f := material.NewFactory()
	spec := core.NewBasicMaterial(core.White)
	scene, plane, cam := planeScene(spec)
	plane.Active = f.Derive(spec).Color

	h := NewHeadless(8, 8)
	tgt, _ := h.CreateTarget(floatDesc("t", 8, 8))
	err := h.RenderScene(ScenePass{Label: "color", Scene: scene, Camera: cam, Target: tgt})
	assert.ErrorIs(t, err, ErrNotCompiled)
}

func TestRenderQuadHonorsDepthFunc(t *testing.T) {
	f := material.NewFactory()
	pt, err := f.Program(shaders.PassThrough, nil)
	require.NoError(t, err)
	quad := material.NewShaderMaterial("final", pt)

	h := NewHeadless(8, 6)
	require.NoError(t, h.CompileProgram(pt))

	err = h.RenderQuad(QuadPass{Label: "final", Material: quad})
	assert.ErrorIs(t, err, ErrMissingSampler)

	src, _ := h.CreateTarget(floatDesc("color", 4, 3))
	quad.Uniforms.SetSampler("sampler", src)

	h.SetDepthFunc(DepthLess)
	require.NoError(t, h.RenderQuad(QuadPass{Label: "final", Material: quad, Clear: true}))
	h.SetDepthFunc(DepthLessEqual)
	require.NoError(t, h.RenderQuad(QuadPass{Label: "final", Material: quad, Clear: true}))

	cmds := h.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, 0, cmds[0].Fragments, "far plane quad fails less")
	assert.Equal(t, 8*6, cmds[1].Fragments)
	assert.Same(t, src, cmds[1].Sampler)
	assert.Nil(t, cmds[1].Target)

	w, hgt := h.Surface().Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, hgt)
	img := h.HeadlessSurface().Image()
	assert.Equal(t, uint8(255), img.RGBAAt(3, 3).A)
}

func TestSetSizeResizesSurface(t *testing.T) {
	h := NewHeadless(8, 8)
	h.SetSize(20, 10)
	w, hgt := h.Surface().Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, hgt)
}

func TestDepthFuncTest(t *testing.T) {
	assert.False(t, DepthLess.Test(1, 1))
	assert.True(t, DepthLessEqual.Test(1, 1))
	assert.True(t, DepthAlways.Test(2, 1))
	assert.False(t, DepthNever.Test(0, 1))
	assert.Equal(t, "lequal", DepthLessEqual.String())
}
