// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

func extent(e vk.Extent2D) gfx.Extent2D {
	e.Deref()
	return gfx.Extent2D{Width: e.Width, Height: e.Height}
}

// SurfaceCapabilities implements gfx.Device.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := result(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	caps.Deref()
	return gfx.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent(caps.CurrentExtent),
		MinImageExtent: extent(caps.MinImageExtent),
		MaxImageExtent: extent(caps.MaxImageExtent),
	}, nil
}

// SurfaceFormats implements gfx.Device.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	var count uint32
	if err := result(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil), "vk.GetPhysicalDeviceSurfaceFormats(count)"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := result(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, formats), "vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return nil, err
	}

	out := make([]gfx.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, gfx.SurfaceFormat{
			Format:     gfx.Format(f.Format),
			ColorSpace: gfx.ColorSpace(f.ColorSpace),
		})
	}
	return out, nil
}

// PresentModes implements gfx.Device.
func (d *Device) PresentModes() ([]gfx.PresentMode, error) {
	var count uint32
	if err := result(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil), "vk.GetPhysicalDeviceSurfacePresentModes(count)"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := result(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, modes), "vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return nil, err
	}

	out := make([]gfx.PresentMode, count)
	for i, m := range modes[:count] {
		out[i] = gfx.PresentMode(m)
	}
	return out, nil
}

// CreateSwapchain implements gfx.Device. The old swapchain named in info
// is retired but stays alive until destroyed.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := result(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps), "vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return gfx.Swapchain{}, err
	}
	caps.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	old := vk.NullSwapchain
	if gfx.Handle(info.Old).Valid() {
		if sc, ok := d.swapchains.Get(gfx.Handle(info.Old)); ok {
			old = sc.swapchain
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   info.ImageCount,
		ImageFormat:     vk.Format(info.Format.Format),
		ImageColorSpace: vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}
	if d.graphicsFamily != d.presentFamily {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = 2
		scci.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	}

	var sc swapchain
	if err := result(vk.CreateSwapchain(d.device, &scci, nil, &sc.swapchain), "vk.CreateSwapchain()"); err != nil {
		return gfx.Swapchain{}, err
	}

	var numImages uint32
	if err := result(vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, nil), "vk.GetSwapchainImages(num)"); err != nil {
		vk.DestroySwapchain(d.device, sc.swapchain, nil)
		return gfx.Swapchain{}, err
	}
	images := make([]vk.Image, numImages)
	if err := result(vk.GetSwapchainImages(d.device, sc.swapchain, &numImages, images), "vk.GetSwapchainImages(images)"); err != nil {
		vk.DestroySwapchain(d.device, sc.swapchain, nil)
		return gfx.Swapchain{}, err
	}
	sc.images = make([]gfx.Image, numImages)
	for i, img := range images[:numImages] {
		sc.images[i] = gfx.Image(d.images.Insert(image{image: img}))
	}

	d.logger.WithFields(logrus.Fields{
		"images": numImages,
		"width":  info.Extent.Width,
		"height": info.Extent.Height,
		"mode":   info.PresentMode,
	}).Debug("Swapchain created")
	return gfx.Swapchain(d.swapchains.Insert(sc)), nil
}

// DestroySwapchain implements gfx.Device. Image handles of the swapchain
// stop resolving.
func (d *Device) DestroySwapchain(h gfx.Swapchain) {
	sc, ok := d.swapchains.Remove(gfx.Handle(h))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Remove(gfx.Handle(img))
	}
	vk.DestroySwapchain(d.device, sc.swapchain, nil)
}

// SwapchainImages implements gfx.Device.
func (d *Device) SwapchainImages(h gfx.Swapchain) ([]gfx.Image, error) {
	sc, ok := d.swapchains.Get(gfx.Handle(h))
	if !ok {
		return nil, invalid("swapchain", gfx.Handle(h))
	}
	return append([]gfx.Image(nil), sc.images...), nil
}

// AcquireNextImage implements gfx.Device. An index is returned along with
// gfx.ErrSuboptimal, and it can still be rendered to.
func (d *Device) AcquireNextImage(h gfx.Swapchain, signal gfx.Semaphore) (uint32, error) {
	sc, ok := d.swapchains.Get(gfx.Handle(h))
	if !ok {
		return 0, invalid("swapchain", gfx.Handle(h))
	}
	semaphore, ok := d.semaphores.Get(gfx.Handle(signal))
	if !ok {
		return 0, invalid("semaphore", gfx.Handle(signal))
	}
	var idx uint32
	err := result(vk.AcquireNextImage(d.device, sc.swapchain, vk.MaxUint64, semaphore, vk.NullFence, &idx), "vk.AcquireNextImage()")
	return idx, err
}

// Present implements gfx.Device.
func (d *Device) Present(h gfx.Swapchain, image uint32, wait gfx.Semaphore) error {
	sc, ok := d.swapchains.Get(gfx.Handle(h))
	if !ok {
		return invalid("swapchain", gfx.Handle(h))
	}
	semaphore, ok := d.semaphores.Get(gfx.Handle(wait))
	if !ok {
		return invalid("semaphore", gfx.Handle(wait))
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{image},
	}
	return result(vk.QueuePresent(d.presentQueue, &info), "vk.QueuePresent()")
}
