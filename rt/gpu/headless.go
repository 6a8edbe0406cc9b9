package gpu

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/shaders"
)

var _ Context = (*Headless)(nil)

var ErrTargetBudget = errors.New("gpu: target budget exhausted")

// Logger is the subset of the renderer logger contexts write to.
type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

type CommandKind int

const (
	CommandScene CommandKind = iota
	CommandQuad
)

func (k CommandKind) String() string {
	if k == CommandQuad {
		return "quad"
	}
	return "scene"
}

// Command is the record of one executed pass. Target is nil for passes that
// rendered to the surface.
type Command struct {
	Kind           CommandKind
	Label          string
	Target         *Target
	Width, Height  int
	DepthFunc      DepthFunc
	AutoClearDepth bool
	ClearedColor   bool
	ClearedDepth   bool
	Sampler        *Target
	Programs       []string
	Draws          int
	Fragments      int
}

// pixels is the CPU storage behind a target or the surface.
type pixels struct {
	w, h  int
	color [][4]float32
	depth []float32
}

func newPixels(w, h int) *pixels {
	p := &pixels{w: w, h: h, color: make([][4]float32, w*h), depth: make([]float32, w*h)}
	p.clearDepth()
	return p
}

func (p *pixels) clearColor(c mgl32.Vec4) {
	for i := range p.color {
		p.color[i] = [4]float32(c)
	}
}

func (p *pixels) clearDepth() {
	for i := range p.depth {
		p.depth[i] = 1
	}
}

// HeadlessSurface is the surface of a Headless context.
type HeadlessSurface struct {
	px *pixels
}

func (s *HeadlessSurface) Size() (int, int) { return s.px.w, s.px.h }

// Image converts the surface to 8-bit RGBA, clamping each channel to [0,1].
func (s *HeadlessSurface) Image() *image.RGBA {
	return toRGBA(s.px)
}

// Headless implements Context on the CPU. Scene passes rasterize meshes and
// write the exact texels the g-buffer programs produce; quad passes composite
// with x/image scalers. Programs are validated with naga. Every pass is
// recorded for inspection.
type Headless struct {
	mu     sync.Mutex
	logger Logger

	surface        *HeadlessSurface
	depthFunc      DepthFunc
	autoClearDepth bool

	programs map[string]*ir.Module
	targets  map[uuid.UUID]*Target
	budget   int

	commands []Command
}

type HeadlessOption func(*Headless)

func WithHeadlessLogger(l Logger) HeadlessOption {
	return func(h *Headless) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTargetBudget caps the number of live targets. CreateTarget fails with
// ErrTargetBudget past the cap.
func WithTargetBudget(n int) HeadlessOption {
	return func(h *Headless) { h.budget = n }
}

func NewHeadless(width, height int, opts ...HeadlessOption) *Headless {
	h := &Headless{
		logger:         nopLogger{},
		surface:        &HeadlessSurface{px: newPixels(width, height)},
		depthFunc:      DepthLessEqual,
		autoClearDepth: true,
		programs:       make(map[string]*ir.Module),
		targets:        make(map[uuid.UUID]*Target),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Headless) CreateTarget(desc TargetDesc) (*Target, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.budget > 0 && len(h.targets) >= h.budget {
		return nil, fmt.Errorf("%w: %d live targets", ErrTargetBudget, len(h.targets))
	}
	t := newTarget(desc)
	t.handle = newPixels(desc.Width, desc.Height)
	h.targets[t.ID] = t
	h.logger.Debugf("headless: created target %s", t)
	return t, nil
}

func (h *Headless) ReleaseTarget(t *Target) {
	if t == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.targets[t.ID]; !ok {
		return
	}
	delete(h.targets, t.ID)
	t.released = true
	t.handle = nil
}

func (h *Headless) LiveTargets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.targets)
}

func (h *Headless) ShareDepth(dst, src *Target) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkShare(dst, src); err != nil {
		return err
	}
	dst.depthFrom = src
	return nil
}

func (h *Headless) SetDepthFunc(f DepthFunc) {
	h.mu.Lock()
	h.depthFunc = f
	h.mu.Unlock()
}

func (h *Headless) DepthFunc() DepthFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.depthFunc
}

func (h *Headless) SetAutoClearDepth(on bool) {
	h.mu.Lock()
	h.autoClearDepth = on
	h.mu.Unlock()
}

func (h *Headless) AutoClearDepth() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autoClearDepth
}

// CompileProgram parses, lowers and validates the program's WGSL and checks
// it exposes both entry points.
func (h *Headless) CompileProgram(p *material.Program) error {
	h.mu.Lock()
	_, done := h.programs[p.Key()]
	h.mu.Unlock()
	if done {
		return nil
	}

	ast, err := naga.Parse(p.Source())
	if err != nil {
		return fmt.Errorf("compile %s: %w", p.Key(), err)
	}
	module, err := naga.LowerWithSource(ast, p.Source())
	if err != nil {
		return fmt.Errorf("compile %s: %w", p.Key(), err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("compile %s: %w", p.Key(), err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("compile %s: %w", p.Key(), &verrs[0])
	}

	var vertex, fragment bool
	for _, ep := range module.EntryPoints {
		switch {
		case ep.Name == shaders.VertexEntry && ep.Stage == ir.StageVertex:
			vertex = true
		case ep.Name == shaders.FragmentEntry && ep.Stage == ir.StageFragment:
			fragment = true
		}
	}
	if !vertex || !fragment {
		return fmt.Errorf("compile %s: missing %s or %s entry point", p.Key(), shaders.VertexEntry, shaders.FragmentEntry)
	}

	h.mu.Lock()
	h.programs[p.Key()] = module
	h.mu.Unlock()
	h.logger.Debugf("headless: compiled %s", p.Key())
	return nil
}

func (h *Headless) ReleaseProgram(p *material.Program) {
	h.mu.Lock()
	delete(h.programs, p.Key())
	h.mu.Unlock()
	h.logger.Debugf("headless: released %s", p.Key())
}

func (h *Headless) Compiled(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.programs[key]
	return ok
}

func (h *Headless) RenderScene(pass ScenePass) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkLive(pass.Target); err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	dst := pass.Target.handle.(*pixels)
	depth := pass.Target.DepthSource().handle.(*pixels)

	cmd := Command{
		Kind:           CommandScene,
		Label:          pass.Label,
		Target:         pass.Target,
		Width:          dst.w,
		Height:         dst.h,
		DepthFunc:      h.depthFunc,
		AutoClearDepth: h.autoClearDepth,
	}
	if pass.Clear {
		dst.clearColor(pass.ClearColor)
		cmd.ClearedColor = true
	}
	if h.autoClearDepth && !pass.Target.SharesDepth() {
		depth.clearDepth()
		cmd.ClearedDepth = true
	}

	r := &rasterizer{
		color:     dst,
		depth:     depth.depth,
		depthFunc: h.depthFunc,
		compiled:  h.programs,
	}
	if err := r.drawScene(pass.Scene, pass.Camera, &cmd); err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}

	h.commands = append(h.commands, cmd)
	h.logger.Debugf("headless: %s drew %d groups, %d fragments", pass.Label, cmd.Draws, cmd.Fragments)
	return nil
}

func (h *Headless) RenderQuad(pass QuadPass) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	src, err := quadSampler(pass.Material)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	if _, ok := h.programs[pass.Material.Program.Key()]; !ok {
		return fmt.Errorf("%s: %w: %s", pass.Label, ErrNotCompiled, pass.Material.Program.Key())
	}

	dst := h.surface.px
	ownsDepth := true
	if pass.Target != nil {
		if err := h.checkLive(pass.Target); err != nil {
			return fmt.Errorf("%s: %w", pass.Label, err)
		}
		dst = pass.Target.handle.(*pixels)
		ownsDepth = !pass.Target.SharesDepth()
	}
	depth := dst
	if pass.Target != nil {
		depth = pass.Target.DepthSource().handle.(*pixels)
	}

	cmd := Command{
		Kind:           CommandQuad,
		Label:          pass.Label,
		Target:         pass.Target,
		Width:          dst.w,
		Height:         dst.h,
		DepthFunc:      h.depthFunc,
		AutoClearDepth: h.autoClearDepth,
		Sampler:        src,
		Programs:       []string{pass.Material.Program.Key()},
		Draws:          1,
	}
	if pass.Clear {
		dst.clearColor(pass.ClearColor)
		cmd.ClearedColor = true
	}
	if h.autoClearDepth && ownsDepth {
		depth.clearDepth()
		cmd.ClearedDepth = true
	}

	// the quad sits on the far plane
	const quadDepth = 1.0
	scaled := scaleTo(src.handle.(*pixels), src.Desc, dst.w, dst.h)
	for y := 0; y < dst.h; y++ {
		for x := 0; x < dst.w; x++ {
			i := y*dst.w + x
			if !h.depthFunc.Test(quadDepth, depth.depth[i]) {
				continue
			}
			c := scaled.RGBAAt(x, y)
			dst.color[i] = [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, 1}
			cmd.Fragments++
		}
	}

	h.commands = append(h.commands, cmd)
	h.logger.Debugf("headless: %s composited %s, %d fragments", pass.Label, src, cmd.Fragments)
	return nil
}

func (h *Headless) SetSize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surface.px.w == width && h.surface.px.h == height {
		return
	}
	h.surface.px = newPixels(width, height)
}

func (h *Headless) Surface() Surface {
	return h.surface
}

func (h *Headless) HeadlessSurface() *HeadlessSurface {
	return h.surface
}

// Commands returns a copy of the passes executed so far.
func (h *Headless) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command(nil), h.commands...)
}

func (h *Headless) ResetCommands() {
	h.mu.Lock()
	h.commands = nil
	h.mu.Unlock()
}

// Texel reads one texel of a target. Row 0 is the top of the image.
func (h *Headless) Texel(t *Target, x, y int) ([4]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLive(t); err != nil {
		return [4]float32{}, err
	}
	px := t.handle.(*pixels)
	if x < 0 || y < 0 || x >= px.w || y >= px.h {
		return [4]float32{}, fmt.Errorf("gpu: texel %d,%d outside %s", x, y, t)
	}
	return px.color[y*px.w+x], nil
}

// Depth reads the depth buffer t renders with.
func (h *Headless) Depth(t *Target, x, y int) (float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLive(t); err != nil {
		return 0, err
	}
	px := t.DepthSource().handle.(*pixels)
	if x < 0 || y < 0 || x >= px.w || y >= px.h {
		return 0, fmt.Errorf("gpu: depth %d,%d outside %s", x, y, t)
	}
	return px.depth[y*px.w+x], nil
}

func (h *Headless) checkLive(t *Target) error {
	if t == nil || t.released {
		return ErrUnknownTarget
	}
	if _, ok := h.targets[t.ID]; !ok {
		return ErrUnknownTarget
	}
	if t.depthFrom != nil && t.depthFrom.released {
		return fmt.Errorf("%w: depth source of %s", ErrUnknownTarget, t)
	}
	return nil
}

func toRGBA(px *pixels) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, px.w, px.h))
	for y := 0; y < px.h; y++ {
		for x := 0; x < px.w; x++ {
			c := px.color[y*px.w+x]
			img.SetRGBA(x, y, color.RGBA{unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), 255})
		}
	}
	return img
}

// scaleTo resamples src to w x h with the interpolator matching the
// target's filters.
func scaleTo(src *pixels, desc TargetDesc, w, h int) *image.RGBA {
	img := toRGBA(src)
	if src.w == w && src.h == h {
		return img
	}
	filter := desc.MagFilter
	if w < src.w || h < src.h {
		filter = desc.MinFilter
	}
	var scaler draw.Scaler = draw.NearestNeighbor
	if filter == FilterLinear {
		scaler = draw.BiLinear
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

func unorm8(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
