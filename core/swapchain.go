// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// RenderPassListener is told about a rebuilt render pass. It runs while
// the device is idle, so objects built against the old pass may be
// destroyed right away.
type RenderPassListener func(rp gfx.RenderPass, samples gfx.SampleCount) error

// chooseExtent uses the surface's extent unless the surface leaves it to
// the swapchain, then the window size clamped to what the surface allows.
func chooseExtent(caps gfx.SurfaceCapabilities, window gfx.Extent2D) gfx.Extent2D {
	if caps.CurrentExtent.Width != gfx.AnySize {
		return caps.CurrentExtent
	}
	return gfx.Extent2D{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi != 0 && v > hi {
		return hi
	}
	return v
}

// chooseSurfaceFormat picks an 8 bit sRGB format in the non-linear sRGB
// colour space, falling back to the first format offered.
func chooseSurfaceFormat(formats []gfx.SurfaceFormat) (gfx.SurfaceFormat, error) {
	if len(formats) == 0 {
		return gfx.SurfaceFormat{}, errors.New("surface offers no formats")
	}
	if len(formats) == 1 && formats[0].Format == gfx.FormatUndefined {
		return gfx.SurfaceFormat{Format: gfx.FormatBGRA8SRGB, ColorSpace: gfx.ColorSpaceSRGBNonlinear}, nil
	}
	for _, f := range formats {
		if (f.Format == gfx.FormatBGRA8SRGB || f.Format == gfx.FormatRGBA8SRGB) && f.ColorSpace == gfx.ColorSpaceSRGBNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode uses preferred when offered, otherwise FIFO, which
// every surface supports.
func choosePresentMode(modes []gfx.PresentMode, preferred gfx.PresentMode) gfx.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return gfx.PresentModeFIFO
}

func chooseImageCount(caps gfx.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

type renderTarget struct {
	image gfx.Image
	view  gfx.ImageView
}

// SwapchainManager owns the swapchain, its views, the depth and
// multisampled colour targets, the forward render pass and one
// framebuffer per swapchain image.
type SwapchainManager struct {
	device    gfx.Device
	log       logrus.FieldLogger
	preferred gfx.PresentMode
	samples   gfx.SampleCount

	window gfx.Extent2D

	handle     gfx.Swapchain
	images     []gfx.Image
	views      []gfx.ImageView
	extent     gfx.Extent2D
	format     gfx.SurfaceFormat
	prevFormat gfx.SurfaceFormat
	mode       gfx.PresentMode

	depth renderTarget
	color renderTarget

	renderPass   gfx.RenderPass
	passFormat   gfx.Format
	passRebuilt  bool
	framebuffers []gfx.Framebuffer

	listeners []RenderPassListener
}

// NewSwapchainManager creates a manager. Nothing is created on the device
// until Create.
func NewSwapchainManager(device gfx.Device, preferred gfx.PresentMode, samples gfx.SampleCount, logger logrus.FieldLogger) *SwapchainManager {
	if samples == 0 {
		samples = gfx.Samples1
	}
	return &SwapchainManager{
		device:    device,
		log:       componentLogger(logger, "swapchain"),
		preferred: preferred,
		samples:   samples,
	}
}

// SetWindowExtent records the window size used when the surface lets the
// swapchain choose its extent.
func (s *SwapchainManager) SetWindowExtent(width, height uint32) {
	s.window = gfx.Extent2D{Width: width, Height: height}
}

// OnRenderPassRebuilt registers fn to be called whenever the render pass
// is replaced.
func (s *SwapchainManager) OnRenderPassRebuilt(fn RenderPassListener) {
	s.listeners = append(s.listeners, fn)
}

// Create builds the swapchain and everything depending on it. It returns
// false without error when the window has no area, the swapchain is then
// suspended until a later Recreate.
func (s *SwapchainManager) Create() (bool, error) {
	if s.window.Area() == 0 {
		s.log.Debug("Window has no area, swapchain suspended")
		return false, nil
	}
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return false, errors.Wrap(err, "query surface capabilities")
	}
	extent := chooseExtent(caps, s.window)
	if extent.Area() == 0 {
		s.log.Debug("Surface has no area, swapchain suspended")
		return false, nil
	}
	formats, err := s.device.SurfaceFormats()
	if err != nil {
		return false, errors.Wrap(err, "query surface formats")
	}
	format, err := chooseSurfaceFormat(formats)
	if err != nil {
		return false, err
	}
	modes, err := s.device.PresentModes()
	if err != nil {
		return false, errors.Wrap(err, "query present modes")
	}
	mode := choosePresentMode(modes, s.preferred)

	handle, err := s.device.CreateSwapchain(gfx.SwapchainInfo{
		Format:      format,
		PresentMode: mode,
		Extent:      extent,
		ImageCount:  chooseImageCount(caps),
		Old:         s.handle,
	})
	if err != nil {
		return false, errors.Wrap(err, "create swapchain")
	}
	if gfx.Handle(s.handle).Valid() {
		s.device.DestroySwapchain(s.handle)
	}
	s.handle = handle
	s.extent = extent
	s.format = format
	s.mode = mode

	if err := s.createDependents(); err != nil {
		s.destroyDependents()
		s.device.DestroySwapchain(s.handle)
		s.handle = gfx.Swapchain{}
		return false, err
	}
	s.log.WithFields(logrus.Fields{
		"extent": extent,
		"format": format.Format,
		"mode":   mode,
		"images": len(s.images),
	}).Info("Swapchain created")
	return true, nil
}

func (s *SwapchainManager) createDependents() error {
	images, err := s.device.SwapchainImages(s.handle)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	s.images = images
	for _, img := range images {
		view, err := s.device.CreateImageView(gfx.ImageViewInfo{
			Image:     img,
			Format:    s.format.Format,
			Aspect:    gfx.AspectColor,
			MipLevels: 1,
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		s.views = append(s.views, view)
	}

	if s.depth, err = s.createTarget(gfx.FormatDepthDefault, gfx.ImageDepthStencilAttachment, gfx.AspectDepth|gfx.AspectStencil); err != nil {
		return errors.Wrap(err, "create depth target")
	}
	if s.samples != gfx.Samples1 {
		if s.color, err = s.createTarget(s.format.Format, gfx.ImageColorAttachment|gfx.ImageTransientAttachment, gfx.AspectColor); err != nil {
			return errors.Wrap(err, "create multisample target")
		}
	}

	if gfx.Handle(s.renderPass).Valid() && s.passFormat != s.format.Format {
		s.log.WithFields(logrus.Fields{
			"previous": s.passFormat,
			"format":   s.format.Format,
		}).Warn("Surface format changed, rebuilding render pass")
		s.device.DestroyRenderPass(s.renderPass)
		s.renderPass = gfx.RenderPass{}
		s.passRebuilt = true
	}
	if !gfx.Handle(s.renderPass).Valid() {
		if s.renderPass, err = s.createRenderPass(); err != nil {
			return err
		}
		s.passFormat = s.format.Format
	}

	return s.createFramebuffers()
}

func (s *SwapchainManager) createFramebuffers() error {
	for i, view := range s.views {
		attachments := []gfx.ImageView{s.depth.view, view}
		if s.samples != gfx.Samples1 {
			attachments = []gfx.ImageView{s.color.view, s.depth.view, view}
		}
		fb, err := s.device.CreateFramebuffer(gfx.FramebufferInfo{
			RenderPass:  s.renderPass,
			Attachments: attachments,
			Extent:      s.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create framebuffer for swapchain image %d", i)
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	return nil
}

func (s *SwapchainManager) createTarget(format gfx.Format, usage gfx.ImageUsage, aspect gfx.ImageAspect) (renderTarget, error) {
	img, err := s.device.CreateImage(gfx.ImageInfo{
		Extent:    gfx.Extent3D{Width: s.extent.Width, Height: s.extent.Height, Depth: 1},
		Format:    format,
		MipLevels: 1,
		Samples:   s.samples,
		Usage:     usage,
	})
	if err != nil {
		return renderTarget{}, err
	}
	view, err := s.device.CreateImageView(gfx.ImageViewInfo{Image: img, Format: format, Aspect: aspect, MipLevels: 1})
	if err != nil {
		s.device.DestroyImage(img)
		return renderTarget{}, err
	}
	return renderTarget{image: img, view: view}, nil
}

func (s *SwapchainManager) createRenderPass() (gfx.RenderPass, error) {
	rp, err := s.device.CreateRenderPass(gfx.RenderPassInfo{
		ColorFormat: s.format.Format,
		DepthFormat: gfx.FormatDepthDefault,
		Samples:     s.samples,
	})
	if err != nil {
		return gfx.RenderPass{}, errors.Wrap(err, "create render pass")
	}
	return rp, nil
}

// destroyDependents destroys framebuffers, targets and views, keeping the
// render pass and the swapchain itself.
func (s *SwapchainManager) destroyDependents() {
	for _, fb := range s.framebuffers {
		s.device.DestroyFramebuffer(fb)
	}
	s.framebuffers = nil
	for _, t := range []renderTarget{s.color, s.depth} {
		if gfx.Handle(t.view).Valid() {
			s.device.DestroyImageView(t.view)
		}
		if gfx.Handle(t.image).Valid() {
			s.device.DestroyImage(t.image)
		}
	}
	s.color, s.depth = renderTarget{}, renderTarget{}
	for _, v := range s.views {
		s.device.DestroyImageView(v)
	}
	s.views = nil
	s.images = nil
}

// Recreate waits for the device to go idle and rebuilds the swapchain for
// the current surface. When the new surface format differs from the one
// the render pass was built for, the pass is replaced before any
// framebuffer is created and listeners are notified.
func (s *SwapchainManager) Recreate() (bool, error) {
	if err := s.device.WaitIdle(); err != nil {
		return false, errors.Wrap(err, "wait for device idle")
	}
	s.destroyDependents()
	s.prevFormat = s.format

	ok, err := s.Create()
	if err != nil || !ok {
		if gfx.Handle(s.handle).Valid() {
			s.device.DestroySwapchain(s.handle)
			s.handle = gfx.Swapchain{}
		}
		return false, err
	}
	if !s.passRebuilt {
		return true, nil
	}
	s.passRebuilt = false
	return true, s.notifyRenderPassRebuilt()
}

// notifyRenderPassRebuilt calls every listener with the new pass and
// returns the first error.
func (s *SwapchainManager) notifyRenderPassRebuilt() error {
	var firstErr error
	for _, fn := range s.listeners {
		if err := fn(s.renderPass, s.samples); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Destroy destroys everything the manager created.
func (s *SwapchainManager) Destroy() {
	s.destroyDependents()
	if gfx.Handle(s.renderPass).Valid() {
		s.device.DestroyRenderPass(s.renderPass)
		s.renderPass = gfx.RenderPass{}
	}
	if gfx.Handle(s.handle).Valid() {
		s.device.DestroySwapchain(s.handle)
		s.handle = gfx.Swapchain{}
	}
}

// Ready reports whether a swapchain exists.
func (s *SwapchainManager) Ready() bool { return gfx.Handle(s.handle).Valid() }

// Handle returns the swapchain.
func (s *SwapchainManager) Handle() gfx.Swapchain { return s.handle }

// Extent returns the swapchain extent.
func (s *SwapchainManager) Extent() gfx.Extent2D { return s.extent }

// Format returns the surface format in use.
func (s *SwapchainManager) Format() gfx.SurfaceFormat { return s.format }

// PreviousFormat returns the format in use before the last Recreate.
func (s *SwapchainManager) PreviousFormat() gfx.SurfaceFormat { return s.prevFormat }

// PresentMode returns the present mode in use.
func (s *SwapchainManager) PresentMode() gfx.PresentMode { return s.mode }

// ImageCount returns the number of swapchain images.
func (s *SwapchainManager) ImageCount() int { return len(s.images) }

// RenderPass returns the forward render pass.
func (s *SwapchainManager) RenderPass() gfx.RenderPass { return s.renderPass }

// Samples returns the sample count of the colour and depth targets.
func (s *SwapchainManager) Samples() gfx.SampleCount { return s.samples }

// Framebuffer returns the framebuffer of swapchain image i.
func (s *SwapchainManager) Framebuffer(i uint32) gfx.Framebuffer {
	if int(i) >= len(s.framebuffers) {
		return gfx.Framebuffer{}
	}
	return s.framebuffers[i]
}

// Viewport covers the whole swapchain extent.
func (s *SwapchainManager) Viewport() gfx.Viewport {
	return gfx.Viewport{
		Width:    float32(s.extent.Width),
		Height:   float32(s.extent.Height),
		MaxDepth: 1,
	}
}
