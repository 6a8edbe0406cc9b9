package state

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
)

func newScene() (*core.Node, *core.Node, *core.Node) {
	scene := core.NewScene()
	box := core.NewMesh("box", core.NewBoxGeometry(1, 1, 1), core.NewPhongMaterial(core.White, core.Black, core.White, 20))
	group := core.NewNode("group")
	scene.Add(box, group)
	return scene, box, group
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	cache := NewCache(material.NewFactory())
	_, box, _ := newScene()
	authored := box.Active

	cache.EnsureInitialized(box)
	first, ok := cache.Entry(box)
	require.True(t, ok)
	require.NotNil(t, first.Pair)

	cache.EnsureInitialized(box)
	second, _ := cache.Entry(box)
	assert.Same(t, first.Pair, second.Pair)
	assert.Same(t, first.Pair.NormalDepth, second.Pair.NormalDepth)
	assert.Same(t, first.Pair.Color, second.Pair.Color)
	assert.Equal(t, authored, second.Original)
	assert.Equal(t, 1, cache.Len())
}

func TestActivateSwapsMaterials(t *testing.T) {
	cache := NewCache(material.NewFactory())
	_, box, _ := newScene()
	authored := box.Active
	cache.EnsureInitialized(box)
	e, _ := cache.Entry(box)

	require.NoError(t, cache.ActivateNormalDepth(box))
	assert.Equal(t, e.Pair.NormalDepth, box.Active)

	require.NoError(t, cache.ActivateColor(box))
	assert.Equal(t, e.Pair.Color, box.Active)

	require.NoError(t, cache.ActivateOriginal(box))
	assert.Equal(t, authored, box.Active)
}

func TestActivateWithoutMaterialIsNoop(t *testing.T) {
	cache := NewCache(material.NewFactory())
	_, _, group := newScene()

	assert.NoError(t, cache.ActivateNormalDepth(group))
	assert.NoError(t, cache.ActivateColor(group))
	assert.Nil(t, group.Active)

	cache.EnsureInitialized(group)
	e, ok := cache.Entry(group)
	require.True(t, ok)
	assert.Nil(t, e.Pair)
	assert.NoError(t, cache.ActivateColor(group))
}

func TestActivateUninitialized(t *testing.T) {
	cache := NewCache(material.NewFactory())
	_, box, _ := newScene()

	err := cache.ActivateColor(box)
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.Contains(t, err.Error(), "box")
}

func TestMaterialAssignedAfterInitialization(t *testing.T) {
	cache := NewCache(material.NewFactory())
	_, _, group := newScene()
	cache.EnsureInitialized(group)

	group.SetMaterial(core.NewBasicMaterial(core.White))
	assert.ErrorIs(t, cache.ActivateNormalDepth(group), ErrNotInitialized)

	assert.Equal(t, 1, cache.Forget(group))
	cache.EnsureInitialized(group)
	assert.NoError(t, cache.ActivateNormalDepth(group))
}

func TestCompositeSwap(t *testing.T) {
	cache := NewCache(material.NewFactory())
	faces := make([]core.MaterialSpec, 6)
	for i := range faces {
		faces[i] = core.NewBasicMaterial(mgl32.Vec3{float32(i) / 6, 0, 0})
	}
	box := core.NewMesh("dice", core.NewBoxGeometry(1, 1, 1), core.NewCompositeMaterial(faces...))

	cache.EnsureInitialized(box)
	require.NoError(t, cache.ActivateNormalDepth(box))
	nd, ok := box.Active.(*material.MultiMaterial)
	require.True(t, ok)
	assert.Equal(t, 6, nd.Len())

	require.NoError(t, cache.ActivateColor(box))
	color, ok := box.Active.(*material.MultiMaterial)
	require.True(t, ok)
	require.Equal(t, 6, color.Len())
	for i := 0; i < 6; i++ {
		want := core.GammaToLinear(mgl32.Vec3{float32(i) / 6, 0, 0})
		assert.Equal(t, want, color.At(i).Uniforms.Color("diffuse"))
	}
}

func TestForgetRestoresAndReleases(t *testing.T) {
	factory := material.NewFactory()
	cache := NewCache(factory)
	scene, box, _ := newScene()
	authored := box.Active

	core.ForEachNode(scene, cache.EnsureInitialized)
	require.Equal(t, 3, cache.Len())
	require.NoError(t, cache.ActivateColor(box))
	e, _ := cache.Entry(box)
	program := e.Pair.Color.(*material.ShaderMaterial).Program
	refs := program.Refs()

	assert.Equal(t, 3, cache.Forget(scene))
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, authored, box.Active)
	assert.Equal(t, refs-1, program.Refs())
}

func TestClearReleasesEveryProgram(t *testing.T) {
	factory := material.NewFactory()
	var released []string
	factory.OnRelease(func(p *material.Program) { released = append(released, p.Key()) })
	cache := NewCache(factory)
	scene, box, _ := newScene()
	authored := box.Active

	core.ForEachNode(scene, cache.EnsureInitialized)
	require.NoError(t, cache.ActivateNormalDepth(box))

	assert.Equal(t, 3, cache.Clear())
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, authored, box.Active)
	assert.Equal(t, []string{"color"}, released)
}

func TestTraversers(t *testing.T) {
	scene := core.NewScene()
	for i := 0; i < 300; i++ {
		scene.Add(core.NewMesh(fmt.Sprintf("m%d", i), core.NewPlaneGeometry(1, 1), core.NewBasicMaterial(core.White)))
	}

	pool := NewPoolTraverser(4)
	defer pool.Close()

	for name, tr := range map[string]Traverser{"serial": SerialTraverser{}, "pool": pool} {
		t.Run(name, func(t *testing.T) {
			cache := NewCache(material.NewFactory())
			var visits atomic.Int32
			err := tr.Traverse(scene, func(n *core.Node) error {
				visits.Add(1)
				cache.EnsureInitialized(n)
				return cache.ActivateNormalDepth(n)
			})
			require.NoError(t, err)
			assert.Equal(t, int32(301), visits.Load())
			assert.Equal(t, 301, cache.Len())

			for _, n := range scene.Children() {
				_, ok := n.Active.(*material.ShaderMaterial)
				assert.True(t, ok, n.Name)
			}
		})
	}
}

func TestTraverserReportsError(t *testing.T) {
	scene := core.NewScene()
	for i := 0; i < 200; i++ {
		scene.Add(core.NewNode(fmt.Sprintf("n%d", i)))
	}
	boom := errors.New("boom")

	pool := NewPoolTraverser(3)
	defer pool.Close()

	for name, tr := range map[string]Traverser{"serial": SerialTraverser{}, "pool": pool} {
		t.Run(name, func(t *testing.T) {
			err := tr.Traverse(scene, func(n *core.Node) error {
				if n.Name == "n150" {
					return boom
				}
				return nil
			})
			assert.ErrorIs(t, err, boom)
		})
	}
}
