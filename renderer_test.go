package deferred

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/gbuffer"
	"github.com/gekko3d/deferred/rt/gpu"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/pack"
	"github.com/gekko3d/deferred/rt/shaders"
)

func redBoxScene() (*core.Node, *core.Node, *core.Camera) {
	scene := core.NewScene()
	box := core.NewMesh("box", core.NewBoxGeometry(2, 2, 2), core.NewBasicMaterial(mgl32.Vec3{1, 0, 0}))
	scene.Add(box)
	cam := core.NewCamera(60, 800.0/600.0, 0.1, 100)
	cam.Position = mgl32.Vec3{0, 0, 6}
	return scene, box, cam
}

func halfScaleConfig() Config {
	cfg := DefaultConfig()
	cfg.Scale = 0.5
	return cfg
}

func TestRenderEndToEnd(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	w, hgt := r.GBuffer().Size()
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, hgt)
	sw, sh := r.Surface().Size()
	assert.Equal(t, 800, sw)
	assert.Equal(t, 600, sh)

	scene, box, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))

	cmds := h.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, gbuffer.NormalDepth, cmds[0].Label)
	assert.Equal(t, gbuffer.Color, cmds[1].Label)
	assert.Equal(t, gbuffer.Final, cmds[2].Label)

	assert.Equal(t, gpu.CommandScene, cmds[0].Kind)
	assert.Equal(t, gpu.CommandScene, cmds[1].Kind)
	assert.Equal(t, gpu.CommandQuad, cmds[2].Kind)
	assert.Equal(t, []string{shaders.NormalDepth}, cmds[0].Programs)
	assert.Equal(t, []string{shaders.Color}, cmds[1].Programs)

	for _, c := range cmds[:2] {
		assert.Equal(t, 400, c.Width)
		assert.Equal(t, 300, c.Height)
		assert.Positive(t, c.Fragments, c.Label)
	}
	assert.True(t, cmds[0].ClearedDepth)
	assert.False(t, cmds[1].ClearedDepth)

	require.NotNil(t, cmds[2].Sampler)
	assert.Same(t, r.GBuffer().Color(), cmds[2].Sampler)
	assert.Equal(t, 400, cmds[2].Sampler.Width())
	assert.Equal(t, 300, cmds[2].Sampler.Height())
	assert.Nil(t, cmds[2].Target)
	assert.Equal(t, 800*600, cmds[2].Fragments)

	entry, ok := r.Cache().Entry(box)
	require.True(t, ok)
	assert.Same(t, entry.Pair.Color, box.Active)
	assert.Equal(t, uint64(1), r.Frames())

	texel, err := h.Texel(r.GBuffer().Color(), 200, 150)
	require.NoError(t, err)
	got := pack.DecodeColorTexel(texel)
	assert.InDelta(t, 1.0, got.Diffuse.X(), 2.0/255)
	assert.InDelta(t, 0.0, got.Diffuse.Y(), 2.0/255)
	assert.Equal(t, float32(1), got.Shininess)
}

func TestRenderUsesLessEqualWhateverTheHostSet(t *testing.T) {
	for _, f := range []gpu.DepthFunc{gpu.DepthLess, gpu.DepthGreater, gpu.DepthNever} {
		t.Run(f.String(), func(t *testing.T) {
			h := gpu.NewHeadless(1, 1)
			r, err := NewRenderer(h, halfScaleConfig())
			require.NoError(t, err)
			defer r.Close()

			h.SetDepthFunc(f)
			scene, _, cam := redBoxScene()
			require.NoError(t, r.Render(scene, cam))

			cmds := h.Commands()
			require.Len(t, cmds, 3)
			for _, c := range cmds {
				assert.Equal(t, gpu.DepthLessEqual, c.DepthFunc, c.Label)
				assert.Positive(t, c.Fragments, c.Label)
			}
			assert.Equal(t, gpu.DepthLessEqual, h.DepthFunc())

			texel, err := h.Texel(r.GBuffer().Color(), 200, 150)
			require.NoError(t, err)
			got := pack.DecodeColorTexel(texel)
			assert.InDelta(t, 1.0, got.Diffuse.X(), 2.0/255)
		})
	}
}

func TestRenderIsRepeatable(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	scene, box, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))
	first, _ := r.Cache().Entry(box)
	require.NoError(t, r.Render(scene, cam))
	second, _ := r.Cache().Entry(box)

	assert.Same(t, first.Pair, second.Pair)
	assert.Len(t, h.Commands(), 6)
	assert.Equal(t, 2, r.Cache().Len())
}

func TestRenderOffscreen(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	cfg := halfScaleConfig()
	cfg.Offscreen = true
	r, err := NewRenderer(h, cfg)
	require.NoError(t, err)
	defer r.Close()

	scene, _, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))
	final := h.Commands()[2]
	assert.Same(t, r.GBuffer().Final(), final.Target)
	assert.Equal(t, 400, final.Width)
}

func TestRenderFailureAbortsFrame(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	_, _, cam := redBoxScene()
	assert.Error(t, r.Render(nil, cam))

	scene, _, _ := redBoxScene()
	r.GBuffer().Release()
	err = r.Render(scene, cam)
	assert.ErrorIs(t, err, gpu.ErrUnknownTarget)
	assert.Empty(t, h.Commands(), "no partial frame")
	assert.Equal(t, uint64(0), r.Frames())
}

func TestConfigurationErrors(t *testing.T) {
	h := gpu.NewHeadless(1, 1)

	bad := DefaultConfig()
	bad.Scale = 0
	_, err := NewRenderer(h, bad)
	assert.ErrorIs(t, err, ErrInvalidScale)

	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	for _, s := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, r.SetScale(s), ErrInvalidScale, fmt.Sprint(s))
	}
	assert.ErrorIs(t, r.SetScale(0.001), ErrEmptyTarget)
	assert.ErrorIs(t, r.SetSize(0, 600), ErrInvalidSize)
	assert.ErrorIs(t, r.SetSize(800, -1), ErrInvalidSize)

	cfg := r.Config()
	assert.Equal(t, 0.5, cfg.Scale)
	assert.Equal(t, 800, cfg.Width)
	w, hgt := r.GBuffer().Size()
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, hgt)
}

func TestResizeConsistency(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	check := func(w, hgt int) {
		t.Helper()
		set := r.GBuffer()
		require.NoError(t, set.Validate())
		for _, tgt := range []*gpu.Target{set.NormalDepth(), set.Color(), set.Final()} {
			assert.Equal(t, w, tgt.Width(), tgt.Desc.Label)
			assert.Equal(t, hgt, tgt.Height(), tgt.Desc.Label)
		}
		assert.Equal(t, set.NormalDepth().Width(), set.Color().DepthSource().Width())
		assert.Equal(t, set.NormalDepth().Height(), set.Color().DepthSource().Height())
		assert.Same(t, set.Color(), set.FinalPass().Material.Uniforms.Sampler("sampler"))
	}

	require.NoError(t, r.SetScale(0.25))
	check(200, 150)

	require.NoError(t, r.SetSize(1001, 501))
	check(250, 125)
	sw, sh := r.Surface().Size()
	assert.Equal(t, 1001, sw)
	assert.Equal(t, 501, sh)

	cfg := r.Config()
	cfg.Scale = 1
	require.NoError(t, r.Configure(cfg))
	check(1001, 501)
	assert.Equal(t, 3, h.LiveTargets())
}

func TestFailedResizeKeepsTargets(t *testing.T) {
	h := gpu.NewHeadless(1, 1, gpu.WithTargetBudget(5))
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()
	color := r.GBuffer().Color()

	err = r.SetScale(0.25)
	assert.ErrorIs(t, err, gpu.ErrTargetBudget)
	assert.Equal(t, 0.5, r.Config().Scale)
	assert.Same(t, color, r.GBuffer().Color())

	scene, _, cam := redBoxScene()
	assert.NoError(t, r.Render(scene, cam))
}

func TestPoolTraversalRendersLargeScenes(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 64, 48
	cfg.TraversalWorkers = 4
	r, err := NewRenderer(h, cfg)
	require.NoError(t, err)
	defer r.Close()

	scene := core.NewScene()
	geo := core.NewBoxGeometry(0.1, 0.1, 0.1)
	for i := 0; i < 300; i++ {
		n := core.NewMesh(fmt.Sprintf("box%d", i), geo, core.NewLambertMaterial(core.White, core.Black))
		n.Transform.Position = mgl32.Vec3{float32(i%20)*0.2 - 2, float32(i/20)*0.2 - 1.5, 0}
		scene.Add(n)
	}
	cam := core.NewCamera(60, 64.0/48.0, 0.1, 100)
	cam.Position = mgl32.Vec3{0, 0, 6}

	require.NoError(t, r.Render(scene, cam))
	assert.Equal(t, 301, r.Cache().Len())
	for _, n := range scene.Children() {
		_, ok := n.Active.(*material.ShaderMaterial)
		require.True(t, ok, n.Name)
	}

	require.NoError(t, r.Restore(scene))
	for _, n := range scene.Children() {
		assert.Same(t, n.Surface, n.Active)
	}
}

func TestForgetReleasesSubtree(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)
	defer r.Close()

	scene, box, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))
	scene.Remove(box)

	require.True(t, h.Compiled(shaders.Color))
	assert.Equal(t, 1, r.Forget(box))
	assert.Same(t, box.Surface, box.Active)
	assert.Equal(t, 1, r.Cache().Len())
	assert.False(t, h.Compiled(shaders.Color), "last color material is gone")

	scene.Add(box)
	require.NoError(t, r.Render(scene, cam))
	assert.True(t, h.Compiled(shaders.Color))
}

func TestCloseReleasesPrograms(t *testing.T) {
	h := gpu.NewHeadless(1, 1)
	r, err := NewRenderer(h, halfScaleConfig())
	require.NoError(t, err)

	scene, box, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))
	require.NoError(t, r.Close())

	assert.Same(t, box.Surface, box.Active)
	assert.Zero(t, r.Cache().Len())
	assert.False(t, h.Compiled(shaders.Color))
	assert.False(t, h.Compiled(shaders.PassThrough))
	assert.Zero(t, h.LiveTargets())
}

func TestWithOptions(t *testing.T) {
	f := material.NewFactory()
	h := gpu.NewHeadless(1, 1)
	logger := NewDefaultLogger("test", false)
	r, err := NewRenderer(h, halfScaleConfig(), WithFactory(f), WithLogger(logger), WithTraversal(nil))
	require.NoError(t, err)
	defer r.Close()

	scene, _, cam := redBoxScene()
	require.NoError(t, r.Render(scene, cam))
	for _, p := range f.Programs() {
		assert.True(t, h.Compiled(p.Key()), p.Key())
	}
}
