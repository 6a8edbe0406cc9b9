package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/shaders"
)

var _ Context = (*WGPU)(nil)

// WGPUConfig carries the objects produced by WebGPU bootstrap.
type WGPUConfig struct {
	Adapter       *wgpu.Adapter
	Device        *wgpu.Device
	Surface       *wgpu.Surface
	SurfaceConfig *wgpu.SurfaceConfiguration
	Logger        Logger
}

type wgpuTarget struct {
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	depth       *wgpu.Texture
	depthView   *wgpu.TextureView
	format      wgpu.TextureFormat
	depthFormat wgpu.TextureFormat
}

type meshBuffers struct {
	vertex *wgpu.Buffer
	index  *wgpu.Buffer
}

type pipelineKey struct {
	program    string
	color      wgpu.TextureFormat
	depth      wgpu.TextureFormat
	depthFunc  DepthFunc
	depthTest  bool
	depthWrite bool
	blend      material.BlendMode
	fullscreen bool
}

type drawKey struct {
	node  uuid.UUID
	group int
}

type bindKey struct {
	draw     drawKey
	pipeline pipelineKey
	sampler  uuid.UUID
}

// WGPU implements Context on a WebGPU device. Each pass is encoded and
// submitted on its own; quad passes to the surface present the frame.
type WGPU struct {
	mu     sync.Mutex
	logger Logger

	adapter *wgpu.Adapter
	device  *wgpu.Device
	queue   *wgpu.Queue
	surface *wgpu.Surface
	config  *wgpu.SurfaceConfiguration

	screenDepth     *wgpu.Texture
	screenDepthView *wgpu.TextureView

	depthFunc      DepthFunc
	autoClearDepth bool

	modules    map[string]*wgpu.ShaderModule
	pipelines  map[pipelineKey]*wgpu.RenderPipeline
	meshes     map[*core.Geometry]*meshBuffers
	meshUsers  geometryUsers
	transforms map[uuid.UUID]*wgpu.Buffer
	surfaces   map[drawKey]*wgpu.Buffer
	quadParams map[uuid.UUID]*wgpu.Buffer
	bindGroups map[bindKey]*wgpu.BindGroup
	targets    map[uuid.UUID]*Target
}

func NewWGPU(cfg WGPUConfig) (*WGPU, error) {
	w := &WGPU{
		logger:         cfg.Logger,
		adapter:        cfg.Adapter,
		device:         cfg.Device,
		queue:          cfg.Device.GetQueue(),
		surface:        cfg.Surface,
		config:         cfg.SurfaceConfig,
		depthFunc:      DepthLessEqual,
		autoClearDepth: true,
		modules:        make(map[string]*wgpu.ShaderModule),
		pipelines:      make(map[pipelineKey]*wgpu.RenderPipeline),
		meshes:         make(map[*core.Geometry]*meshBuffers),
		meshUsers:      make(geometryUsers),
		transforms:     make(map[uuid.UUID]*wgpu.Buffer),
		surfaces:       make(map[drawKey]*wgpu.Buffer),
		quadParams:     make(map[uuid.UUID]*wgpu.Buffer),
		bindGroups:     make(map[bindKey]*wgpu.BindGroup),
		targets:        make(map[uuid.UUID]*Target),
	}
	if w.logger == nil {
		w.logger = nopLogger{}
	}
	if err := w.createScreenDepth(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WGPU) createScreenDepth() error {
	if w.screenDepthView != nil {
		w.screenDepthView.Release()
		w.screenDepth.Release()
	}
	tex, err := w.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Screen Depth",
		Size: wgpu.Extent3D{
			Width:              w.config.Width,
			Height:             w.config.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	w.screenDepth, w.screenDepthView = tex, view
	return nil
}

func textureFormat(f Format) wgpu.TextureFormat {
	switch f {
	case FormatRGB8Unorm:
		// WebGPU has no 3 channel color format
		return wgpu.TextureFormatRGBA8Unorm
	default:
		return wgpu.TextureFormatRGBA32Float
	}
}

func compareFunction(f DepthFunc) wgpu.CompareFunction {
	switch f {
	case DepthNever:
		return wgpu.CompareFunctionNever
	case DepthLess:
		return wgpu.CompareFunctionLess
	case DepthEqual:
		return wgpu.CompareFunctionEqual
	case DepthLessEqual:
		return wgpu.CompareFunctionLessEqual
	case DepthGreater:
		return wgpu.CompareFunctionGreater
	case DepthNotEqual:
		return wgpu.CompareFunctionNotEqual
	case DepthGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	default:
		return wgpu.CompareFunctionAlways
	}
}

func (w *WGPU) CreateTarget(desc TargetDesc) (*Target, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	size := wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1}
	rt := &wgpuTarget{format: textureFormat(desc.Format), depthFormat: wgpu.TextureFormatDepth24Plus}
	if desc.Stencil {
		rt.depthFormat = wgpu.TextureFormatDepth24PlusStencil8
	}

	var err error
	rt.texture, err = w.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        rt.format,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", desc.Label, err)
	}
	rt.view, err = rt.texture.CreateView(nil)
	if err != nil {
		releaseTarget(rt)
		return nil, fmt.Errorf("create %s view: %w", desc.Label, err)
	}
	rt.depth, err = w.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label + " Depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        rt.depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		releaseTarget(rt)
		return nil, fmt.Errorf("create %s depth: %w", desc.Label, err)
	}
	rt.depthView, err = rt.depth.CreateView(nil)
	if err != nil {
		releaseTarget(rt)
		return nil, fmt.Errorf("create %s depth view: %w", desc.Label, err)
	}

	t := newTarget(desc)
	t.handle = rt
	w.targets[t.ID] = t
	w.logger.Debugf("wgpu: created target %s", t)
	return t, nil
}

func releaseTarget(rt *wgpuTarget) {
	if rt.depthView != nil {
		rt.depthView.Release()
	}
	if rt.depth != nil {
		rt.depth.Release()
	}
	if rt.view != nil {
		rt.view.Release()
	}
	if rt.texture != nil {
		rt.texture.Release()
	}
}

func (w *WGPU) ReleaseTarget(t *Target) {
	if t == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.targets[t.ID]; !ok {
		return
	}
	delete(w.targets, t.ID)
	for k, bg := range w.bindGroups {
		if k.sampler == t.ID {
			bg.Release()
			delete(w.bindGroups, k)
		}
	}
	if pb, ok := w.quadParams[t.ID]; ok {
		pb.Release()
		delete(w.quadParams, t.ID)
	}
	releaseTarget(t.handle.(*wgpuTarget))
	t.handle = nil
	t.released = true
}

func (w *WGPU) ShareDepth(dst, src *Target) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := checkShare(dst, src); err != nil {
		return err
	}
	if dst.handle.(*wgpuTarget).depthFormat != src.handle.(*wgpuTarget).depthFormat {
		return fmt.Errorf("%w: depth formats of %s and %s differ", ErrIncompatible, src, dst)
	}
	dst.depthFrom = src
	return nil
}

func (w *WGPU) SetDepthFunc(f DepthFunc) {
	w.mu.Lock()
	w.depthFunc = f
	w.mu.Unlock()
}

func (w *WGPU) DepthFunc() DepthFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.depthFunc
}

func (w *WGPU) SetAutoClearDepth(on bool) {
	w.mu.Lock()
	w.autoClearDepth = on
	w.mu.Unlock()
}

func (w *WGPU) AutoClearDepth() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.autoClearDepth
}

func (w *WGPU) CompileProgram(p *material.Program) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.modules[p.Key()]; ok {
		return nil
	}
	module, err := w.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          p.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.Source()},
	})
	if err != nil {
		return fmt.Errorf("compile %s: %w", p.Key(), err)
	}
	w.modules[p.Key()] = module
	w.logger.Debugf("wgpu: compiled %s", p.Key())
	return nil
}

// ReleaseProgram frees the module of p and every pipeline and bind group
// built on it.
func (w *WGPU) ReleaseProgram(p *material.Program) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := p.Key()
	for k, bg := range w.bindGroups {
		if k.pipeline.program == key {
			bg.Release()
			delete(w.bindGroups, k)
		}
	}
	for k, pl := range w.pipelines {
		if k.program == key {
			pl.Release()
			delete(w.pipelines, k)
		}
	}
	if m, ok := w.modules[key]; ok {
		m.Release()
		delete(w.modules, key)
	}
	w.logger.Debugf("wgpu: released %s", key)
}

func (w *WGPU) pipeline(key pipelineKey) (*wgpu.RenderPipeline, error) {
	if p, ok := w.pipelines[key]; ok {
		return p, nil
	}
	module, ok := w.modules[key.program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCompiled, key.program)
	}

	var buffers []wgpu.VertexBufferLayout
	primitive := wgpu.PrimitiveState{
		Topology:  wgpu.PrimitiveTopologyTriangleList,
		FrontFace: wgpu.FrontFaceCCW,
		CullMode:  wgpu.CullModeBack,
	}
	if key.fullscreen {
		primitive.CullMode = wgpu.CullModeNone
	} else {
		buffers = []wgpu.VertexBufferLayout{{
			ArrayStride: vertexStride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 24, ShaderLocation: 2},
			},
		}}
	}

	target := wgpu.ColorTargetState{
		Format:    key.color,
		WriteMask: wgpu.ColorWriteMaskAll,
	}
	// float targets are not blendable
	if key.blend == material.BlendNormal && key.color != wgpu.TextureFormatRGBA32Float {
		target.Blend = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	}

	compare := wgpu.CompareFunctionAlways
	if key.depthTest {
		compare = compareFunction(key.depthFunc)
	}

	p, err := w.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: key.program + " Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: shaders.VertexEntry,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: shaders.FragmentEntry,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: primitive,
		DepthStencil: &wgpu.DepthStencilState{
			Format:            key.depth,
			DepthWriteEnabled: key.depthWrite,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", key.program, err)
	}
	w.pipelines[key] = p
	return p, nil
}

// ensureBuffer creates buf on first use and writes data into it.
func (w *WGPU) ensureBuffer(label string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) error {
	if *buf == nil || (*buf).GetSize() < uint64(len(data)) {
		if *buf != nil {
			(*buf).Release()
		}
		b, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  uint64(len(data)),
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		*buf = b
	}
	w.queue.WriteBuffer(*buf, 0, data)
	return nil
}

// geometryUsers records which nodes draw each geometry, so shared mesh
// buffers outlive any single node.
type geometryUsers map[*core.Geometry]map[uuid.UUID]struct{}

func (u geometryUsers) add(g *core.Geometry, node uuid.UUID) {
	users := u[g]
	if users == nil {
		users = make(map[uuid.UUID]struct{})
		u[g] = users
	}
	users[node] = struct{}{}
}

// drop removes node and returns the geometries nothing draws any more.
func (u geometryUsers) drop(node uuid.UUID) []*core.Geometry {
	var unused []*core.Geometry
	for g, users := range u {
		if _, ok := users[node]; !ok {
			continue
		}
		delete(users, node)
		if len(users) == 0 {
			delete(u, g)
			unused = append(unused, g)
		}
	}
	return unused
}

func (w *WGPU) mesh(g *core.Geometry) (*meshBuffers, error) {
	if m, ok := w.meshes[g]; ok {
		return m, nil
	}
	if len(g.Positions) == 0 || len(g.Indices) == 0 {
		return nil, ErrUnsupportedMesh
	}
	m := &meshBuffers{}
	if err := w.ensureBuffer("Vertex Buffer", &m.vertex, vertexBytes(g.Positions, g.Normals, g.Colors), wgpu.BufferUsageVertex); err != nil {
		return nil, err
	}
	if err := w.ensureBuffer("Index Buffer", &m.index, indexBytes(g.Indices), wgpu.BufferUsageIndex); err != nil {
		m.vertex.Release()
		return nil, err
	}
	w.meshes[g] = m
	return m, nil
}

func (w *WGPU) RenderScene(pass ScenePass) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pass.Target == nil || pass.Target.released {
		return fmt.Errorf("%s: %w", pass.Label, ErrUnknownTarget)
	}
	if pass.Scene == nil || pass.Camera == nil {
		return fmt.Errorf("%s: scene pass needs a scene and a camera", pass.Label)
	}
	rt := pass.Target.handle.(*wgpuTarget)
	depth := pass.Target.DepthSource().handle.(*wgpuTarget)

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			w.colorAttachment(rt.view, pass.Clear, pass.ClearColor),
		},
		DepthStencilAttachment: w.depthAttachment(depth, !pass.Target.SharesDepth()),
	})

	view := pass.Camera.ViewMatrix()
	proj := pass.Camera.ProjectionMatrix()
	var drawErr error
	core.ForEachNode(pass.Scene, func(n *core.Node) {
		if drawErr != nil || !n.Visible || n.Mesh == nil || n.Active == nil {
			return
		}
		drawErr = w.drawNode(rp, n, view.Mul4(n.WorldMatrix()), proj, rt.format, depth.depthFormat)
	})

	if err := rp.End(); err != nil && drawErr == nil {
		drawErr = err
	}
	if drawErr != nil {
		return fmt.Errorf("%s: %w", pass.Label, drawErr)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	w.queue.Submit(cmd)
	return nil
}

func (w *WGPU) drawNode(rp *wgpu.RenderPassEncoder, n *core.Node, mv, proj mgl32.Mat4, color, depth wgpu.TextureFormat) error {
	mesh, err := w.mesh(n.Mesh)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.Name, err)
	}
	w.meshUsers.add(n.Mesh, n.ID)
	tb := w.transforms[n.ID]
	if err := w.ensureBuffer(n.Name+" Transforms", &tb, transformsBytes(mv, proj), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	w.transforms[n.ID] = tb

	for _, grp := range n.Mesh.GroupsOrAll() {
		m := material.Resolve(n.Active, grp.MaterialIndex)
		if m == nil {
			continue
		}
		key := pipelineKey{
			program:    m.Program.Key(),
			color:      color,
			depth:      depth,
			depthFunc:  w.depthFunc,
			depthTest:  m.DepthTest,
			depthWrite: m.DepthWrite,
			blend:      m.Blending,
		}
		pipeline, err := w.pipeline(key)
		if err != nil {
			return err
		}

		dk := drawKey{node: n.ID, group: grp.MaterialIndex}
		entries := []wgpu.BindGroupEntry{{Binding: 0, Buffer: tb, Size: wgpu.WholeSize}}
		if m.Program.Name() == shaders.Color {
			sb := w.surfaces[dk]
			u := m.Uniforms
			data := surfaceBytes(u.Color("diffuse"), u.Color("specular"), u.Color("emissive"),
				u.Float("shininess"), u.Float("wrapAround"), u.Float("additiveSpecular"))
			if err := w.ensureBuffer(n.Name+" Surface", &sb, data, wgpu.BufferUsageUniform); err != nil {
				return err
			}
			w.surfaces[dk] = sb
			entries = append(entries, wgpu.BindGroupEntry{Binding: 1, Buffer: sb, Size: wgpu.WholeSize})
		}

		bk := bindKey{draw: dk, pipeline: key}
		bg, ok := w.bindGroups[bk]
		if !ok {
			bg, err = w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Label:   n.Name + " Bind Group",
				Layout:  pipeline.GetBindGroupLayout(0),
				Entries: entries,
			})
			if err != nil {
				return err
			}
			w.bindGroups[bk] = bg
		}

		rp.SetPipeline(pipeline)
		rp.SetBindGroup(0, bg, nil)
		rp.SetVertexBuffer(0, mesh.vertex, 0, wgpu.WholeSize)
		rp.SetIndexBuffer(mesh.index, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		rp.DrawIndexed(uint32(grp.Count), 1, uint32(grp.Start), 0, 0)
	}
	return nil
}

func (w *WGPU) colorAttachment(view *wgpu.TextureView, clear bool, c mgl32.Vec4) wgpu.RenderPassColorAttachment {
	load := wgpu.LoadOpLoad
	if clear {
		load = wgpu.LoadOpClear
	}
	return wgpu.RenderPassColorAttachment{
		View:    view,
		LoadOp:  load,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3]),
		},
	}
}

// depthAttachment clears depth only when auto-clear is on and the buffer
// belongs to the target being drawn.
func (w *WGPU) depthAttachment(depth *wgpuTarget, owned bool) *wgpu.RenderPassDepthStencilAttachment {
	load := wgpu.LoadOpLoad
	if w.autoClearDepth && owned {
		load = wgpu.LoadOpClear
	}
	a := &wgpu.RenderPassDepthStencilAttachment{
		View:            depth.depthView,
		DepthLoadOp:     load,
		DepthStoreOp:    wgpu.StoreOpStore,
		DepthClearValue: 1.0,
	}
	if depth.depthFormat == wgpu.TextureFormatDepth24PlusStencil8 {
		a.StencilLoadOp = load
		a.StencilStoreOp = wgpu.StoreOpStore
	}
	return a
}

func (w *WGPU) RenderQuad(pass QuadPass) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	src, err := quadSampler(pass.Material)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}

	var (
		view        *wgpu.TextureView
		depth       *wgpuTarget
		format      wgpu.TextureFormat
		owned       = true
		screen      *wgpu.Texture
		presentable bool
	)
	if pass.Target != nil {
		if pass.Target.released {
			return fmt.Errorf("%s: %w", pass.Label, ErrUnknownTarget)
		}
		rt := pass.Target.handle.(*wgpuTarget)
		view, format = rt.view, rt.format
		depth = pass.Target.DepthSource().handle.(*wgpuTarget)
		owned = !pass.Target.SharesDepth()
	} else {
		screen, err = w.surface.GetCurrentTexture()
		if err != nil {
			return fmt.Errorf("%s: %w", pass.Label, err)
		}
		defer screen.Release()
		view, err = screen.CreateView(nil)
		if err != nil {
			return fmt.Errorf("%s: %w", pass.Label, err)
		}
		defer view.Release()
		format = w.config.Format
		depth = &wgpuTarget{depthView: w.screenDepthView, depthFormat: wgpu.TextureFormatDepth24Plus}
		presentable = true
	}

	key := pipelineKey{
		program:    pass.Material.Program.Key(),
		color:      format,
		depth:      depth.depthFormat,
		depthFunc:  w.depthFunc,
		depthTest:  pass.Material.DepthTest,
		depthWrite: pass.Material.DepthWrite,
		blend:      pass.Material.Blending,
		fullscreen: true,
	}
	pipeline, err := w.pipeline(key)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}

	pb := w.quadParams[src.ID]
	mag := uint32(0)
	if src.Desc.MagFilter == FilterLinear {
		mag = 1
	}
	if err := w.ensureBuffer(pass.Label+" Params", &pb, uint32ToBytesPadded(mag), wgpu.BufferUsageUniform); err != nil {
		return err
	}
	w.quadParams[src.ID] = pb

	bk := bindKey{pipeline: key, sampler: src.ID}
	bg, ok := w.bindGroups[bk]
	if !ok {
		bg, err = w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  pass.Label + " Bind Group",
			Layout: pipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: src.handle.(*wgpuTarget).view},
				{Binding: 1, Buffer: pb, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("%s: %w", pass.Label, err)
		}
		w.bindGroups[bk] = bg
	}

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments:       []wgpu.RenderPassColorAttachment{w.colorAttachment(view, pass.Clear, pass.ClearColor)},
		DepthStencilAttachment: w.depthAttachment(depth, owned),
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	if err := rp.End(); err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", pass.Label, err)
	}
	w.queue.Submit(cmd)
	if presentable {
		w.surface.Present()
	}
	return nil
}

// SetSize reconfigures the surface and its depth buffer.
func (w *WGPU) SetSize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if width <= 0 || height <= 0 {
		return
	}
	if w.config.Width == uint32(width) && w.config.Height == uint32(height) {
		return
	}
	w.config.Width = uint32(width)
	w.config.Height = uint32(height)
	w.surface.Configure(w.adapter, w.device, w.config)
	if err := w.createScreenDepth(); err != nil {
		w.logger.Debugf("wgpu: screen depth: %v", err)
	}
}

type wgpuSurface struct {
	w *WGPU
}

func (s wgpuSurface) Size() (int, int) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return int(s.w.config.Width), int(s.w.config.Height)
}

func (s wgpuSurface) Raw() *wgpu.Surface { return s.w.surface }

func (w *WGPU) Surface() Surface {
	return wgpuSurface{w: w}
}

// Forget drops the per-node buffers and bind groups of n, and the mesh
// buffers of geometry no other drawn node uses.
func (w *WGPU) Forget(n *core.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, g := range w.meshUsers.drop(n.ID) {
		if m, ok := w.meshes[g]; ok {
			m.vertex.Release()
			m.index.Release()
			delete(w.meshes, g)
		}
	}
	if b, ok := w.transforms[n.ID]; ok {
		b.Release()
		delete(w.transforms, n.ID)
	}
	for k, b := range w.surfaces {
		if k.node == n.ID {
			b.Release()
			delete(w.surfaces, k)
		}
	}
	for k, bg := range w.bindGroups {
		if k.draw.node == n.ID {
			bg.Release()
			delete(w.bindGroups, k)
		}
	}
}

// Release frees every GPU object the context created. Targets must be
// released by their owners first.
func (w *WGPU) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, bg := range w.bindGroups {
		bg.Release()
	}
	for _, b := range w.transforms {
		b.Release()
	}
	for _, b := range w.surfaces {
		b.Release()
	}
	for _, b := range w.quadParams {
		b.Release()
	}
	for _, m := range w.meshes {
		m.vertex.Release()
		m.index.Release()
	}
	for _, p := range w.pipelines {
		p.Release()
	}
	for _, m := range w.modules {
		m.Release()
	}
	for _, t := range w.targets {
		releaseTarget(t.handle.(*wgpuTarget))
		t.released = true
	}
	if w.screenDepthView != nil {
		w.screenDepthView.Release()
		w.screenDepth.Release()
	}
	w.bindGroups = map[bindKey]*wgpu.BindGroup{}
	w.pipelines = map[pipelineKey]*wgpu.RenderPipeline{}
	w.modules = map[string]*wgpu.ShaderModule{}
	w.transforms = map[uuid.UUID]*wgpu.Buffer{}
	w.surfaces = map[drawKey]*wgpu.Buffer{}
	w.quadParams = map[uuid.UUID]*wgpu.Buffer{}
	w.meshes = map[*core.Geometry]*meshBuffers{}
	w.meshUsers = geometryUsers{}
	w.targets = map[uuid.UUID]*Target{}
}
