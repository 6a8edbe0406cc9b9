// Package app boots WebGPU on a glfw window and drives a deferred Renderer
// once per frame.
package app

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/deferred"
	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/gpu"
)

// scaleStep is the factor one +/- key press changes the render scale by.
const scaleStep = 1.25

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Context  *gpu.WGPU
	Renderer *deferred.Renderer
	Profiler *Profiler
	Logger   deferred.Logger

	Scene  *core.Node
	Camera *core.Camera
	// Update is called before every frame with the elapsed seconds.
	Update func(dt float64)

	RenderConfig deferred.Config
	DebugMode    bool

	LastTime   float64
	FrameCount int
	FPS        float64
	FPSTime    float64
}

func NewApp(window *glfw.Window, cfg deferred.Config, logger deferred.Logger) *App {
	if logger == nil {
		logger = deferred.NewNopLogger()
	}
	return &App{
		Window:       window,
		RenderConfig: cfg,
		Logger:       logger,
		Profiler:     NewProfiler(),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Deferred Device",
	})
	if err != nil {
		return err
	}

	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	a.Context, err = gpu.NewWGPU(gpu.WGPUConfig{
		Adapter:       adapter,
		Device:        a.Device,
		Surface:       surface,
		SurfaceConfig: a.Config,
		Logger:        a.Logger,
	})
	if err != nil {
		return fmt.Errorf("wgpu context: %w", err)
	}

	cfg := a.RenderConfig
	cfg.Width, cfg.Height = width, height
	a.Renderer, err = deferred.NewRenderer(a.Context, cfg, deferred.WithLogger(a.Logger))
	if err != nil {
		return err
	}
	a.RenderConfig = cfg

	if a.Camera != nil && height > 0 {
		a.Camera.Aspect = float32(width) / float32(height)
	}
	a.LastTime = glfw.GetTime()
	return nil
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 || a.Renderer == nil {
		return
	}
	if err := a.Renderer.SetSize(w, h); err != nil {
		a.Logger.Errorf("resize %dx%d: %v", w, h, err)
		return
	}
	a.RenderConfig = a.Renderer.Config()
	if a.Camera != nil {
		a.Camera.Aspect = float32(w) / float32(h)
	}
}

// StepScale multiplies the render scale by scaleStep (dir > 0) or divides
// it (dir < 0). Scales that would empty the targets are refused.
func (a *App) StepScale(dir int) {
	scale := a.RenderConfig.Scale
	if dir > 0 {
		scale *= scaleStep
	} else {
		scale /= scaleStep
	}
	scale = math.Round(scale*1000) / 1000
	if err := a.Renderer.SetScale(scale); err != nil {
		a.Logger.Warnf("scale %g: %v", scale, err)
		return
	}
	a.RenderConfig = a.Renderer.Config()
	w, h := a.RenderConfig.ScaledSize()
	a.Logger.Infof("render scale %g (%dx%d)", scale, w, h)
}

// Frame advances the scene and renders it.
func (a *App) Frame() error {
	now := glfw.GetTime()
	dt := now - a.LastTime
	a.LastTime = now

	a.FrameCount++
	a.FPSTime += dt
	if a.FPSTime >= 1 {
		a.FPS = float64(a.FrameCount) / a.FPSTime
		a.FrameCount = 0
		a.FPSTime = 0
		if a.DebugMode {
			a.Logger.Debugf("%.1f fps\n%s", a.FPS, a.Profiler.Summary())
		}
	}

	a.Profiler.Begin("update")
	if a.Update != nil {
		a.Update(dt)
	}
	a.Profiler.End("update")

	a.Profiler.Begin("render")
	err := a.Renderer.Render(a.Scene, a.Camera)
	a.Profiler.End("render")
	a.Profiler.SetCount("nodes", len(core.Collect(a.Scene)))
	a.Profiler.SetCount("cached", a.Renderer.Cache().Len())
	return err
}

// Release tears down the renderer and every WebGPU object.
func (a *App) Release() {
	if a.Renderer != nil {
		if err := a.Renderer.Close(); err != nil {
			a.Logger.Warnf("close renderer: %v", err)
		}
	}
	if a.Context != nil {
		a.Context.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
