package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/deferred"
	"github.com/gekko3d/deferred/rt/app"
	"github.com/gekko3d/deferred/rt/gpu"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML render config")
	headless := flag.Bool("headless", false, "Render one frame on the CPU and write it as PNG")
	out := flag.String("out", "frame.png", "Output path for -headless")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := deferred.NewDefaultLogger("deferred", *debug)

	cfg := deferred.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = deferred.LoadConfig(*configPath)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	if *headless {
		if err := renderHeadless(cfg, *out, logger); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}
	runWindow(cfg, logger)
}

func renderHeadless(cfg deferred.Config, out string, logger deferred.Logger) error {
	ctx := gpu.NewHeadless(cfg.Width, cfg.Height, gpu.WithHeadlessLogger(logger))
	r, err := deferred.NewRenderer(ctx, cfg, deferred.WithLogger(logger))
	if err != nil {
		return err
	}
	defer r.Close()

	scene := newDemoScene(float32(cfg.Width) / float32(cfg.Height))
	if err := r.Render(scene.root, scene.camera); err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, ctx.HeadlessSurface().Image()); err != nil {
		return fmt.Errorf("encode %s: %w", out, err)
	}
	logger.Infof("wrote %s", out)
	return nil
}

func runWindow(cfg deferred.Config, logger deferred.Logger) {
	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, "Deferred G-Buffer", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	scene := newDemoScene(float32(cfg.Width) / float32(cfg.Height))

	application := app.NewApp(window, cfg, logger)
	application.DebugMode = logger.DebugEnabled()
	application.Scene = scene.root
	application.Camera = scene.camera
	application.Update = scene.update
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if action == glfw.Press || action == glfw.Repeat {
			if key == glfw.KeyEqual || key == glfw.KeyKPAdd {
				application.StepScale(1)
			}
			if key == glfw.KeyMinus || key == glfw.KeyKPSubtract {
				application.StepScale(-1)
			}
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		if err := application.Frame(); err != nil {
			logger.Errorf("%v", err)
		}
	}
}
