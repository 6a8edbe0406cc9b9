// Package deferred renders a scene into a normal-depth g-buffer and a packed
// surface-attribute g-buffer sharing one depth buffer, then composites the
// attribute buffer to the screen with a full-screen pass.
package deferred

import (
	"fmt"
	"io"
	"sync"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/gbuffer"
	"github.com/gekko3d/deferred/rt/gpu"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/shaders"
	"github.com/gekko3d/deferred/rt/state"
)

// Renderer runs the three-pass frame. Render, Configure, SetScale and SetSize
// are serialized, so a frame never sees a half-resized target set.
type Renderer struct {
	mu sync.Mutex

	ctx       gpu.Context
	logger    Logger
	factory   *material.Factory
	cache     *state.Cache
	traverser state.Traverser
	// pool is the traverser built from Config.TraversalWorkers, closed with
	// the renderer.
	pool *state.PoolTraverser

	cfg    Config
	quad   *material.ShaderMaterial
	set    *gbuffer.Set
	frames uint64
}

// NewRenderer validates cfg, allocates the g-buffer targets and sizes the
// context's surface to the viewport.
func NewRenderer(ctx gpu.Context, cfg Config, opts ...Option) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{
		ctx:    ctx,
		logger: NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = material.NewFactory()
	}
	r.cache = state.NewCache(r.factory)
	if r.traverser == nil {
		r.setWorkers(cfg.TraversalWorkers)
	}

	r.factory.OnRelease(ctx.ReleaseProgram)
	quad, err := r.factory.Material(gbuffer.Final, shaders.PassThrough, nil)
	if err != nil {
		return nil, err
	}
	r.quad = quad
	r.quad.Blending = material.BlendNone
	r.quad.DepthWrite = false

	w, h := cfg.ScaledSize()
	r.set, err = gbuffer.NewSet(ctx, r.quad, w, h)
	if err != nil {
		r.closeTraverser()
		return nil, fmt.Errorf("allocate g-buffer: %w", err)
	}
	r.cfg = cfg
	r.set.SetOffscreen(cfg.Offscreen)
	r.set.SetClearColor(cfg.clearColor())
	ctx.SetSize(cfg.Width, cfg.Height)
	r.logger.Infof("deferred: configured %dx%d at scale %g (%dx%d targets)", cfg.Width, cfg.Height, cfg.Scale, w, h)
	return r, nil
}

func (r *Renderer) setWorkers(n int) {
	r.closeTraverser()
	if n > 1 {
		r.pool = state.NewPoolTraverser(n)
		r.traverser = r.pool
		return
	}
	r.traverser = state.SerialTraverser{}
}

func (r *Renderer) closeTraverser() {
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
}

// Configure applies a whole new config. On error the previous config stays
// in effect.
func (r *Renderer) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.apply(cfg); err != nil {
		return err
	}
	if cfg.TraversalWorkers != r.cfg.TraversalWorkers && (r.pool != nil || isSerial(r.traverser)) {
		r.setWorkers(cfg.TraversalWorkers)
	}
	r.cfg = cfg
	r.set.SetOffscreen(cfg.Offscreen)
	r.set.SetClearColor(cfg.clearColor())
	return nil
}

func isSerial(t state.Traverser) bool {
	_, ok := t.(state.SerialTraverser)
	return ok
}

// SetScale re-derives the target size from the current viewport.
func (r *Renderer) SetScale(scale float64) error {
	if err := validateScale(scale); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg
	cfg.Scale = scale
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := r.apply(cfg); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// SetSize changes the viewport and re-applies the current scale.
func (r *Renderer) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg
	cfg.Width, cfg.Height = width, height
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := r.apply(cfg); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// apply resizes the target set first so a failed allocation leaves the
// surface untouched.
func (r *Renderer) apply(cfg Config) error {
	w, h := cfg.ScaledSize()
	if err := r.set.Resize(w, h); err != nil {
		r.logger.Errorf("deferred: resize to %dx%d failed: %v", w, h, err)
		return fmt.Errorf("resize g-buffer: %w", err)
	}
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("resize g-buffer: %w", err)
	}
	r.ctx.SetSize(cfg.Width, cfg.Height)
	r.logger.Infof("deferred: resized to %dx%d at scale %g (%dx%d targets)", cfg.Width, cfg.Height, cfg.Scale, w, h)
	return nil
}

// Render draws one frame. Any failing step aborts the frame.
func (r *Renderer) Render(scene *core.Node, camera *core.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.render(scene, camera); err != nil {
		r.logger.Errorf("deferred: frame %d: %v", r.frames, err)
		return fmt.Errorf("render frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

func (r *Renderer) render(scene *core.Node, camera *core.Camera) error {
	if scene == nil || camera == nil {
		return fmt.Errorf("render needs a scene and a camera")
	}

	normalDepth := r.set.NormalDepthPass()
	normalDepth.Scene, normalDepth.Camera = scene, camera
	color := r.set.ColorPass()
	color.Scene, color.Camera = scene, camera

	err := r.traverser.Traverse(scene, func(n *core.Node) error {
		r.cache.EnsureInitialized(n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := r.traverser.Traverse(scene, r.cache.ActivateNormalDepth); err != nil {
		return fmt.Errorf("activate %s: %w", gbuffer.NormalDepth, err)
	}
	if err := r.compilePrograms(); err != nil {
		return err
	}

	// the color pass must pass on the exact depth the normal-depth pass wrote
	r.ctx.SetDepthFunc(gpu.DepthLessEqual)
	r.ctx.SetAutoClearDepth(true)
	if err := r.ctx.RenderScene(normalDepth); err != nil {
		return err
	}
	r.logger.Debugf("deferred: %s pass into %s", gbuffer.NormalDepth, normalDepth.Target)

	if err := r.traverser.Traverse(scene, r.cache.ActivateColor); err != nil {
		return fmt.Errorf("activate %s: %w", gbuffer.Color, err)
	}
	// the color target borrows normal-depth's depth, so only its color is
	// cleared here
	r.ctx.SetAutoClearDepth(true)
	if err := r.ctx.RenderScene(color); err != nil {
		return err
	}
	r.logger.Debugf("deferred: %s pass into %s", gbuffer.Color, color.Target)

	// the composite quad sits at z=1; reset in case a pass changed it
	r.ctx.SetDepthFunc(gpu.DepthLessEqual)
	final := r.set.FinalPass()
	if err := r.ctx.RenderQuad(final); err != nil {
		return err
	}
	r.logger.Debugf("deferred: %s pass sampling %s", gbuffer.Final, r.set.Color())
	return nil
}

// compilePrograms hands every program the factory has built to the context.
// Contexts skip programs they already compiled.
func (r *Renderer) compilePrograms() error {
	for _, p := range r.factory.Programs() {
		if err := r.ctx.CompileProgram(p); err != nil {
			return err
		}
	}
	return nil
}

// Restore puts every node under scene back on the material it had before
// its first frame.
func (r *Renderer) Restore(scene *core.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.traverser.Traverse(scene, r.cache.ActivateOriginal)
}

type nodeForgetter interface {
	Forget(n *core.Node)
}

// Forget drops the deferred state of a subtree removed from the scene. It
// returns the number of entries released.
func (r *Renderer) Forget(root *core.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.ctx.(nodeForgetter); ok {
		core.ForEachNode(root, f.Forget)
	}
	return r.cache.Forget(root)
}

// Surface is the drawable the final pass lands on.
func (r *Renderer) Surface() gpu.Surface {
	return r.ctx.Surface()
}

func (r *Renderer) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// GBuffer exposes the current target set. It is replaced in place on resize.
func (r *Renderer) GBuffer() *gbuffer.Set {
	return r.set
}

func (r *Renderer) Cache() *state.Cache {
	return r.cache
}

func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close releases the targets and the traversal pool. A traverser passed in
// with WithTraversal is closed too when it is an io.Closer.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set.Release()
	r.cache.Clear()
	r.quad.Dispose()
	if r.pool != nil {
		r.closeTraverser()
		return nil
	}
	if c, ok := r.traverser.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
