// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

type buffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

type image struct {
	image  vk.Image
	memory vk.DeviceMemory
	// owned is false for swapchain images.
	owned bool
}

type descriptorPool struct {
	pool vk.DescriptorPool
	sets []gfx.DescriptorSet
}

type renderPass struct {
	pass vk.RenderPass
	info gfx.RenderPassInfo
}

type commandBuffer struct {
	buffer vk.CommandBuffer
	pool   vk.CommandPool
}

type swapchain struct {
	swapchain vk.Swapchain
	images    []gfx.Image
}

// Device is a logical Vulkan device. It is not safe for concurrent use.
type Device struct {
	logger logrus.FieldLogger

	physical vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface
	adapter  gfx.AdapterInfo

	graphicsFamily, presentFamily uint32
	graphicsQueue, presentQueue   vk.Queue
	anisotropy                    bool

	memory *MemoryAllocator

	buffers         gfx.Arena[buffer]
	images          gfx.Arena[image]
	views           gfx.Arena[vk.ImageView]
	samplers        gfx.Arena[vk.Sampler]
	shaders         gfx.Arena[vk.ShaderModule]
	setLayouts      gfx.Arena[vk.DescriptorSetLayout]
	pools           gfx.Arena[descriptorPool]
	sets            gfx.Arena[vk.DescriptorSet]
	pipelineLayouts gfx.Arena[vk.PipelineLayout]
	pipelines       gfx.Arena[vk.Pipeline]
	renderPasses    gfx.Arena[renderPass]
	framebuffers    gfx.Arena[vk.Framebuffer]
	commandPools    gfx.Arena[vk.CommandPool]
	commandBuffers  gfx.Arena[commandBuffer]
	semaphores      gfx.Arena[vk.Semaphore]
	fences          gfx.Arena[vk.Fence]
	swapchains      gfx.Arena[swapchain]
}

var _ gfx.Device = (*Device)(nil)

func newDevice(pd vk.PhysicalDevice, dev vk.Device, surface vk.Surface, info gfx.AdapterInfo, graphics, present uint32, logger logrus.FieldLogger) *Device {
	d := &Device{
		logger:         logger,
		physical:       pd,
		device:         dev,
		surface:        surface,
		adapter:        info,
		graphicsFamily: graphics,
		presentFamily:  present,
		memory:         NewMemoryAllocator(dev, pd),
	}
	vk.GetDeviceQueue(dev, graphics, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(dev, present, 0, &d.presentQueue)
	return d
}

// Adapter implements gfx.Device.
func (d *Device) Adapter() gfx.AdapterInfo {
	return d.adapter
}

// queue returns the vk queue behind q. Transfers share the graphics queue.
func (d *Device) queue(q gfx.Queue) vk.Queue {
	return d.graphicsQueue
}

// Release implements gfx.Device. Objects still alive are logged and
// destroyed so the device can go away cleanly.
func (d *Device) Release() {
	if d == nil || d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)

	leaked := d.buffers.Len() + d.images.Len() + d.views.Len() + d.samplers.Len() +
		d.shaders.Len() + d.setLayouts.Len() + d.pools.Len() + d.pipelineLayouts.Len() +
		d.pipelines.Len() + d.renderPasses.Len() + d.framebuffers.Len() + d.commandPools.Len() +
		d.semaphores.Len() + d.fences.Len() + d.swapchains.Len()
	if leaked > 0 {
		d.logger.WithField("objects", leaked).Warn("Device released with live objects")
	}

	d.framebuffers.Each(func(h gfx.Handle, _ vk.Framebuffer) { d.DestroyFramebuffer(gfx.Framebuffer(h)) })
	d.pipelines.Each(func(h gfx.Handle, _ vk.Pipeline) { d.DestroyPipeline(gfx.Pipeline(h)) })
	d.renderPasses.Each(func(h gfx.Handle, _ renderPass) { d.DestroyRenderPass(gfx.RenderPass(h)) })
	d.pipelineLayouts.Each(func(h gfx.Handle, _ vk.PipelineLayout) { d.DestroyPipelineLayout(gfx.PipelineLayout(h)) })
	d.pools.Each(func(h gfx.Handle, _ descriptorPool) { d.DestroyDescriptorPool(gfx.DescriptorPool(h)) })
	d.setLayouts.Each(func(h gfx.Handle, _ vk.DescriptorSetLayout) { d.DestroyDescriptorSetLayout(gfx.DescriptorSetLayout(h)) })
	d.shaders.Each(func(h gfx.Handle, _ vk.ShaderModule) { d.DestroyShaderModule(gfx.ShaderModule(h)) })
	d.samplers.Each(func(h gfx.Handle, _ vk.Sampler) { d.DestroySampler(gfx.Sampler(h)) })
	d.views.Each(func(h gfx.Handle, _ vk.ImageView) { d.DestroyImageView(gfx.ImageView(h)) })
	d.swapchains.Each(func(h gfx.Handle, _ swapchain) { d.DestroySwapchain(gfx.Swapchain(h)) })
	d.images.Each(func(h gfx.Handle, _ image) { d.DestroyImage(gfx.Image(h)) })
	d.buffers.Each(func(h gfx.Handle, _ buffer) { d.DestroyBuffer(gfx.Buffer(h)) })
	d.commandPools.Each(func(h gfx.Handle, _ vk.CommandPool) { d.DestroyCommandPool(gfx.CommandPool(h)) })
	d.semaphores.Each(func(h gfx.Handle, _ vk.Semaphore) { d.DestroySemaphore(gfx.Semaphore(h)) })
	d.fences.Each(func(h gfx.Handle, _ vk.Fence) { d.DestroyFence(gfx.Fence(h)) })

	vk.DestroyDevice(d.device, nil)
	d.device = nil
}

func invalid(kind string, h gfx.Handle) error {
	return errors.Wrapf(gfx.ErrInvalidHandle, "%s %s", kind, h)
}
