// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// MaxSamples returns the highest sample count in a mask of supported counts.
func MaxSamples(flags gfx.SampleCount) gfx.SampleCount {
	return gfx.MaxSampleCount(flags)
}

// DeviceContext owns the device and everything created on it. It is set
// up in two steps around window creation and then drives frames with
// BeginFrame and EndFrame from one goroutine.
type DeviceContext struct {
	cfg     Configuration
	backend gfx.Backend
	source  asset.Source
	log     logrus.FieldLogger
	logger  logrus.FieldLogger

	adapters []gfx.AdapterInfo
	adapter  gfx.AdapterInfo
	device   gfx.Device

	swapchain       *SwapchainManager
	frames          *FrameSynchronizer
	layouts         *DescriptorLayoutCache
	descriptors     *DescriptorAllocator
	pipelineLayouts *PipelineLayoutCache
	shaders         *ShaderModuleCache
	textures        *TextureCache
	meshes          *MeshCache
	materials       *MaterialCache
	renderer        *Renderer

	deletion DeletionQueue
	timer    FrameTimer

	mu            sync.Mutex
	resizePending bool
	resizeExtent  gfx.Extent2D
}

// NewDeviceContext creates a context that will open a device from backend
// and load assets from source.
func NewDeviceContext(cfg Configuration, backend gfx.Backend, source asset.Source, logger logrus.FieldLogger) *DeviceContext {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DeviceContext{
		cfg:     cfg,
		backend: backend,
		source:  source,
		log:     componentLogger(logger, "context"),
		logger:  logger,
	}
}

// BeforeWindowCreation validates the configuration and lists the adapters
// of the backend.
func (c *DeviceContext) BeforeWindowCreation() error {
	if err := c.cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	adapters, err := c.backend.Adapters()
	if err != nil {
		return errors.Wrap(err, "enumerate adapters")
	}
	if len(adapters) == 0 {
		return gfx.ErrNoSuitableAdapter
	}
	c.adapters = adapters
	for _, a := range adapters {
		c.log.WithFields(logrus.Fields{
			"adapter":  a.Name,
			"discrete": a.Discrete,
		}).Debug("Adapter found")
	}
	return nil
}

// selectAdapter picks an adapter supporting multi draw indirect,
// preferring a discrete one when asked to.
func selectAdapter(adapters []gfx.AdapterInfo, preferDiscrete bool) (int, error) {
	chosen := -1
	for i, a := range adapters {
		if !a.MultiDrawIndirect {
			continue
		}
		if chosen < 0 {
			chosen = i
		}
		if preferDiscrete && a.Discrete {
			return i, nil
		}
	}
	if chosen < 0 {
		return 0, errors.Wrap(gfx.ErrNoSuitableAdapter, "no adapter supports multi draw indirect")
	}
	return chosen, nil
}

// AfterWindowCreation opens the device for surface and creates the
// swapchain, the frames in flight, the caches and the renderer.
func (c *DeviceContext) AfterWindowCreation(surface gfx.Surface, width, height uint32) error {
	if c.adapters == nil {
		return errors.Wrap(ErrNotInitialised, "BeforeWindowCreation was not called")
	}
	if surface == 0 {
		return ErrNoSurface
	}
	idx, err := selectAdapter(c.adapters, c.cfg.Renderer.PreferDiscrete)
	if err != nil {
		return err
	}
	device, err := c.backend.Open(idx, surface)
	if err != nil {
		return errors.Wrapf(err, "open adapter %s", c.adapters[idx].Name)
	}
	c.device = device
	c.adapter = device.Adapter()
	samples := MaxSamples(c.adapter.MaxSamples)
	c.log.WithFields(logrus.Fields{
		"adapter": c.adapter.Name,
		"samples": samples,
	}).Info("Device opened")

	if err := c.create(width, height, samples); err != nil {
		c.Destroy()
		return err
	}
	return nil
}

func (c *DeviceContext) create(width, height uint32, samples gfx.SampleCount) error {
	dev := c.device
	logger := c.logger

	c.swapchain = NewSwapchainManager(dev, c.cfg.Renderer.PresentMode, samples, logger)
	c.swapchain.SetWindowExtent(width, height)
	ok, err := c.swapchain.Create()
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	if !ok {
		return errors.Newf("window extent %dx%d has no area", width, height)
	}

	if c.frames, err = NewFrameSynchronizer(dev, c.swapchain, c.cfg.Renderer.FramesInFlight, logger); err != nil {
		return err
	}
	c.layouts = NewDescriptorLayoutCache(dev, logger)
	c.descriptors = NewDescriptorAllocator(dev, 0, nil, logger)
	c.pipelineLayouts = NewPipelineLayoutCache(dev, logger)
	c.shaders = NewShaderModuleCache(dev, asset.MultiSource{c.source, DefaultShaders()}, logger)
	c.textures = NewTextureCache(dev, c.source, c.frames, logger)
	c.meshes = NewMeshCache(dev, c.source, c.frames, logger)
	c.materials = NewMaterialCache(dev, MaterialCacheDeps{
		Source:          c.source,
		Layouts:         c.layouts,
		PipelineLayouts: c.pipelineLayouts,
		Shaders:         c.shaders,
		Textures:        c.textures,
		Descriptors:     c.descriptors,
		Target:          c.swapchain,
	}, logger)
	c.swapchain.OnRenderPassRebuilt(c.materials.RebuildPipelines)

	c.renderer, err = NewRenderer(dev, RendererDeps{
		Frames:    c.frames,
		Swapchain: c.swapchain,
		Layouts:   c.layouts,
		Meshes:    c.meshes,
		Materials: c.materials,
	}, c.cfg.Renderer, logger)
	return err
}

// OnResize records a new window size. The swapchain is rebuilt at the next
// frame boundary. It may be called from any goroutine.
func (c *DeviceContext) OnResize(width, height uint32) {
	c.mu.Lock()
	c.resizePending = true
	c.resizeExtent = gfx.Extent2D{Width: width, Height: height}
	c.mu.Unlock()
}

func (c *DeviceContext) applyResize() {
	c.mu.Lock()
	pending, extent := c.resizePending, c.resizeExtent
	c.resizePending = false
	c.mu.Unlock()

	if pending {
		c.log.WithField("extent", extent).Debug("Window resized")
		c.swapchain.SetWindowExtent(extent.Width, extent.Height)
		c.frames.RequestRecreate()
	}
}

// BeginFrame starts a frame. When it returns false nothing may be
// recorded and EndFrame must not be called.
func (c *DeviceContext) BeginFrame() (bool, error) {
	if c.frames == nil {
		return false, ErrNotInitialised
	}
	c.applyResize()
	ok, err := c.frames.BeginFrame()
	if ok {
		c.timer.Start()
	}
	return ok, err
}

// EndFrame submits and presents the frame begun with BeginFrame.
func (c *DeviceContext) EndFrame() error {
	if c.frames == nil {
		return ErrNotInitialised
	}
	c.applyResize()
	err := c.frames.EndFrame()
	c.timer.Stop()
	return err
}

// CurrentFrame returns the frame being recorded, or the next one to be.
func (c *DeviceContext) CurrentFrame() *Frame { return c.frames.CurrentFrame() }

// Frame returns frame i of the frames in flight.
func (c *DeviceContext) Frame(i int) *Frame { return c.frames.Frame(i) }

// Device returns the opened device.
func (c *DeviceContext) Device() gfx.Device { return c.device }

// Adapter describes the adapter the device was opened on.
func (c *DeviceContext) Adapter() gfx.AdapterInfo { return c.adapter }

// Adapters lists the adapters found by BeforeWindowCreation.
func (c *DeviceContext) Adapters() []gfx.AdapterInfo { return c.adapters }

// Configuration returns the configuration the context was created with.
func (c *DeviceContext) Configuration() Configuration { return c.cfg }

// Source returns where assets are loaded from.
func (c *DeviceContext) Source() asset.Source { return c.source }

// Swapchain returns the swapchain manager.
func (c *DeviceContext) Swapchain() *SwapchainManager { return c.swapchain }

// Frames returns the frame synchronizer.
func (c *DeviceContext) Frames() *FrameSynchronizer { return c.frames }

// Layouts returns the descriptor set layout cache.
func (c *DeviceContext) Layouts() *DescriptorLayoutCache { return c.layouts }

// Descriptors returns the allocator for long lived descriptor sets.
func (c *DeviceContext) Descriptors() *DescriptorAllocator { return c.descriptors }

// PipelineLayouts returns the pipeline layout cache.
func (c *DeviceContext) PipelineLayouts() *PipelineLayoutCache { return c.pipelineLayouts }

// Shaders returns the shader module cache.
func (c *DeviceContext) Shaders() *ShaderModuleCache { return c.shaders }

// Textures returns the texture cache.
func (c *DeviceContext) Textures() *TextureCache { return c.textures }

// Meshes returns the mesh cache.
func (c *DeviceContext) Meshes() *MeshCache { return c.meshes }

// Materials returns the material cache.
func (c *DeviceContext) Materials() *MaterialCache { return c.materials }

// Renderer returns the forward renderer.
func (c *DeviceContext) Renderer() *Renderer { return c.renderer }

// Deletions returns the queue flushed once when the context is destroyed.
func (c *DeviceContext) Deletions() *DeletionQueue { return &c.deletion }

// Timer returns the CPU frame timer.
func (c *DeviceContext) Timer() *FrameTimer { return &c.timer }

// Destroy waits for the device to go idle and destroys everything the
// context created, the device last. The backend is left to the caller.
func (c *DeviceContext) Destroy() {
	if c.device == nil {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		c.log.WithError(err).Error("Wait for idle failed")
	}
	if c.renderer != nil {
		c.renderer.Destroy()
	}
	if c.frames != nil {
		c.frames.Destroy()
	}
	if c.materials != nil {
		c.materials.DestroyAll()
	}
	if c.meshes != nil {
		c.meshes.DestroyAll()
	}
	if c.textures != nil {
		c.textures.DestroyAll()
	}
	if c.descriptors != nil {
		c.descriptors.Destroy()
	}
	if c.pipelineLayouts != nil {
		c.pipelineLayouts.Destroy()
	}
	if c.layouts != nil {
		c.layouts.Destroy()
	}
	if c.shaders != nil {
		c.shaders.Destroy()
	}
	if c.swapchain != nil {
		c.swapchain.Destroy()
	}
	c.deletion.Flush(c.device)
	c.device.Release()
	c.device = nil
	c.frames = nil
	c.log.Info("Device context destroyed")
}
