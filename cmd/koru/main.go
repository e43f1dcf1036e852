// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/core"
	"github.com/koru3d/lumen/gfx"
	"github.com/koru3d/lumen/gfx/vkr"
	"github.com/koru3d/lumen/scene"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	envFile = flag.String("env", "", "Environment file to load the configuration from")
	prefab  = flag.String("prefab", "", "Prefab to show")
	debug   = flag.Bool("debug", false, "Log at debug level")
)

func newWindow(cfg core.RendererConfiguration) (*sdl.Window, error) {
	return sdl.CreateWindow("Koru3D",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
}

func openSource(cfg core.AssetConfiguration) (asset.Source, func(), error) {
	dir := asset.DirSource{Root: cfg.Root}
	if cfg.Archive == "" {
		return dir, func() {}, nil
	}
	archive, err := asset.OpenArchive(cfg.Archive)
	if err != nil {
		return nil, nil, err
	}
	return asset.MultiSource{archive, dir}, func() { archive.Close() }, nil
}

func viewProjection(extent gfx.Extent2D) glm.Mat4 {
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	projection := glm.Perspective(glm.DegToRad(60), aspect, 0.1, 100)
	// Vulkan clip space has Y pointing down.
	projection[5] *= -1
	view := glm.LookAtV(glm.Vec3{0, 2, 6}, glm.Vec3{0, 0, 0}, glm.Vec3{0, 1, 0})
	return projection.Mul4(view)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), "\nThe built in shaders must be compiled first with go generate ./core (needs glslangValidator).")
	}
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	configuration, err := core.LoadConfiguration(files...)
	if err != nil {
		log.Fatal(err)
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.Fatal(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.Fatal(err)
	}
	defer sdl.VulkanUnloadLibrary()

	var sdlWindow *sdl.Window
	backend, err := vkr.New(vkr.Config{
		ProcAddr:           sdl.VulkanGetVkGetInstanceProcAddr(),
		InstanceExtensions: sdlWindow.VulkanGetInstanceExtensions(),
		DeviceExtensions:   configuration.Renderer.DeviceExtensions,
		Validation:         configuration.Renderer.Validation,
	}, log.StandardLogger())
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Release()

	source, closeSource, err := openSource(configuration.Assets)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSource()

	ctx := core.NewDeviceContext(configuration, backend, source, log.StandardLogger())
	if err := ctx.BeforeWindowCreation(); err != nil {
		log.Fatal(err)
	}

	sdlWindow, err = newWindow(configuration.Renderer)
	if err != nil {
		log.Fatal(err)
	}
	defer sdlWindow.Destroy()

	srf, err := sdlWindow.VulkanCreateSurface(backend.Instance())
	if err != nil {
		log.Fatal(err)
	}
	width, height := sdlWindow.GetSize()
	if err := ctx.AfterWindowCreation(gfx.Surface(uintptr(srf)), uint32(width), uint32(height)); err != nil {
		log.Fatal(err)
	}
	defer ctx.Destroy()

	var renderables []core.Renderable
	if *prefab != "" {
		if renderables, err = scene.Instantiate(ctx, *prefab); err != nil {
			log.WithError(err).WithField("path", *prefab).Error("Prefab not loaded")
		}
	}

	time := core.NewTime(configuration.Time)
	defer time.Stop()
	var minimized bool

EventLoop:
	for {
		select {
		case <-time.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						break EventLoop
					}
				case *sdl.QuitEvent:
					break EventLoop
				case *sdl.WindowEvent:
					switch et.Event {
					case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
						ctx.OnResize(uint32(et.Data1), uint32(et.Data2))
					case sdl.WINDOWEVENT_MINIMIZED:
						minimized = true
					case sdl.WINDOWEVENT_RESTORED:
						minimized = false
						w, h := sdlWindow.GetSize()
						ctx.OnResize(uint32(w), uint32(h))
					}
				}
			}
		case <-time.FpsTicker().C:
			if minimized {
				continue
			}
			ok, err := ctx.BeginFrame()
			if err != nil {
				log.WithError(err).Error("Frame not started")
				break EventLoop
			}
			if !ok {
				continue
			}
			ctx.Renderer().Submit(renderables...)
			if err := ctx.Renderer().Flush(viewProjection(ctx.Swapchain().Extent())); err != nil {
				log.WithError(err).Error("Frame not recorded")
			}
			if err := ctx.EndFrame(); err != nil {
				log.WithError(err).Error("Frame not presented")
				break EventLoop
			}
		}
	}
	log.WithField("fps", ctx.Timer().FPS()).Info("Event loop exited")
}
