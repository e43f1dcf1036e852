// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device for tests. It keeps
// count of every object created and destroyed, records commands and
// submissions, and lets tests inject the results of acquire, present and
// descriptor allocation.
package gfxtest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
)

// Object kinds as they appear in counters and the destroy log.
const (
	KindBuffer         = "buffer"
	KindImage          = "image"
	KindImageView      = "view"
	KindSampler        = "sampler"
	KindShader         = "shader"
	KindSetLayout      = "setLayout"
	KindPool           = "pool"
	KindSet            = "set"
	KindPipelineLayout = "pipelineLayout"
	KindPipeline       = "pipeline"
	KindRenderPass     = "renderPass"
	KindFramebuffer    = "framebuffer"
	KindCommandPool    = "commandPool"
	KindCommandBuffer  = "commandBuffer"
	KindSemaphore      = "semaphore"
	KindFence          = "fence"
	KindSwapchain      = "swapchain"
)

// ErrInjected is the default error returned by FailNext entries.
var ErrInjected = errors.New("injected failure")

// Destroyed is one entry of the destroy log.
type Destroyed struct {
	Kind   string
	Handle gfx.Handle
}

// Command is one recorded command.
type Command struct {
	Buffer gfx.CommandBuffer
	Op     string
	Detail interface{}
}

// BufferObject is the state of a fake buffer.
type BufferObject struct {
	Info gfx.BufferInfo
	Data []byte
}

// ImageObject is the state of a fake image.
type ImageObject struct {
	Info      gfx.ImageInfo
	Swapchain bool
}

// PoolObject is the state of a fake descriptor pool.
type PoolObject struct {
	Info      gfx.DescriptorPoolInfo
	Allocated uint32
	Resets    int
	sets      []gfx.DescriptorSet
}

// SetObject is the state of a fake descriptor set.
type SetObject struct {
	Pool   gfx.DescriptorPool
	Layout gfx.DescriptorSetLayout
	Writes map[uint32]gfx.DescriptorWrite
}

// CommandBufferObject is the state of a fake command buffer.
type CommandBufferObject struct {
	Pool      gfx.CommandPool
	Recording bool
	OneTime   bool
	Commands  []Command
	lastFence gfx.Fence
	inFlight  bool
}

// FenceObject is the state of a fake fence.
type FenceObject struct {
	Signaled bool
	Pending  bool
}

// SwapchainObject is the state of a fake swapchain.
type SwapchainObject struct {
	Info   gfx.SwapchainInfo
	Images []gfx.Image
}

// Device is a fake gfx.Device. Its zero value is not usable, use NewDevice.
type Device struct {
	Info    gfx.AdapterInfo
	Caps    gfx.SurfaceCapabilities
	Formats []gfx.SurfaceFormat
	Modes   []gfx.PresentMode

	// DeferFences leaves submitted fences pending until they are waited on,
	// like a GPU that has not finished yet.
	DeferFences bool

	// AcquireResults and PresentResults are consumed one per call,
	// a nil entry or an empty queue means success.
	AcquireResults []error
	PresentResults []error

	// AllocResults are consumed one per AllocateDescriptorSet call before
	// the pool capacity is considered.
	AllocResults []error
	// PoolCapacity caps the sets a pool can hand out before reporting
	// ErrOutOfPoolMemory. Zero means the pool's MaxSets.
	PoolCapacity uint32

	// FailNext makes the next call of the named method fail with the error.
	FailNext map[string]error

	Created    map[string]int
	DestroyLog []Destroyed
	Submits    []gfx.SubmitInfo
	Presents   int
	Acquires   int
	WaitIdles  int
	FenceWaits []gfx.Fence
	QueueWaits int
	Log        []Command
	Violations []string
	Released   bool
	nextImage  uint32

	buffers         gfx.Arena[*BufferObject]
	images          gfx.Arena[*ImageObject]
	views           gfx.Arena[gfx.ImageViewInfo]
	samplers        gfx.Arena[gfx.SamplerInfo]
	shaders         gfx.Arena[[]byte]
	setLayouts      gfx.Arena[[]gfx.DescriptorLayoutBinding]
	pools           gfx.Arena[*PoolObject]
	sets            gfx.Arena[*SetObject]
	pipelineLayouts gfx.Arena[gfx.PipelineLayoutInfo]
	pipelines       gfx.Arena[gfx.PipelineInfo]
	renderPasses    gfx.Arena[gfx.RenderPassInfo]
	framebuffers    gfx.Arena[gfx.FramebufferInfo]
	commandPools    gfx.Arena[gfx.Queue]
	commandBuffers  gfx.Arena[*CommandBufferObject]
	semaphores      gfx.Arena[struct{}]
	fences          gfx.Arena[*FenceObject]
	swapchains      gfx.Arena[*SwapchainObject]
}

// NewDevice returns a fake device presenting to an 800x600 surface.
func NewDevice() *Device {
	return &Device{
		Info: gfx.AdapterInfo{
			Name:                "fake",
			Discrete:            true,
			MultiDrawIndirect:   true,
			MaxSamples:          gfx.Samples4,
			MinUniformAlignment: 256,
			MinStorageAlignment: 16,
		},
		Caps: gfx.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  gfx.Extent2D{Width: 800, Height: 600},
			MinImageExtent: gfx.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: gfx.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []gfx.SurfaceFormat{
			{Format: gfx.FormatBGRA8Unorm, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
			{Format: gfx.FormatBGRA8SRGB, ColorSpace: gfx.ColorSpaceSRGBNonlinear},
		},
		Modes:    []gfx.PresentMode{gfx.PresentModeFIFO, gfx.PresentModeMailbox},
		FailNext: map[string]error{},
		Created:  map[string]int{},
	}
}

// Fail makes the next call of method fail with ErrInjected.
func (d *Device) Fail(method string) {
	d.FailNext[method] = ErrInjected
}

func (d *Device) fail(method string) error {
	err, ok := d.FailNext[method]
	if !ok {
		return nil
	}
	delete(d.FailNext, method)
	if err == nil {
		err = ErrInjected
	}
	return errors.Wrapf(err, "%s", method)
}

func (d *Device) created(kind string) {
	d.Created[kind]++
}

func (d *Device) destroyed(kind string, h gfx.Handle, ok bool) {
	if !ok {
		d.Violations = append(d.Violations, fmt.Sprintf("destroy of unknown %s %s", kind, h))
		return
	}
	d.DestroyLog = append(d.DestroyLog, Destroyed{Kind: kind, Handle: h})
}

// DestroyedCount returns how many objects of kind were destroyed.
func (d *Device) DestroyedCount(kind string) int {
	n := 0
	for _, e := range d.DestroyLog {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Live returns how many objects of kind currently exist.
func (d *Device) Live(kind string) int {
	switch kind {
	case KindBuffer:
		return d.buffers.Len()
	case KindImage:
		n := 0
		d.images.Each(func(_ gfx.Handle, o *ImageObject) {
			if !o.Swapchain {
				n++
			}
		})
		return n
	case KindImageView:
		return d.views.Len()
	case KindSampler:
		return d.samplers.Len()
	case KindShader:
		return d.shaders.Len()
	case KindSetLayout:
		return d.setLayouts.Len()
	case KindPool:
		return d.pools.Len()
	case KindSet:
		return d.sets.Len()
	case KindPipelineLayout:
		return d.pipelineLayouts.Len()
	case KindPipeline:
		return d.pipelines.Len()
	case KindRenderPass:
		return d.renderPasses.Len()
	case KindFramebuffer:
		return d.framebuffers.Len()
	case KindCommandPool:
		return d.commandPools.Len()
	case KindCommandBuffer:
		return d.commandBuffers.Len()
	case KindSemaphore:
		return d.semaphores.Len()
	case KindFence:
		return d.fences.Len()
	case KindSwapchain:
		return d.swapchains.Len()
	}
	return 0
}

// LiveTotal returns the number of live objects of every kind.
func (d *Device) LiveTotal() int {
	total := 0
	for _, k := range []string{KindBuffer, KindImage, KindImageView, KindSampler, KindShader,
		KindSetLayout, KindPool, KindPipelineLayout, KindPipeline, KindRenderPass, KindFramebuffer,
		KindCommandPool, KindSemaphore, KindFence, KindSwapchain} {
		total += d.Live(k)
	}
	return total
}

// Ops returns the recorded command names in order.
func (d *Device) Ops() []string {
	ops := make([]string, 0, len(d.Log))
	for _, c := range d.Log {
		ops = append(ops, c.Op)
	}
	return ops
}

// CountOps returns how many commands named op were recorded.
func (d *Device) CountOps(op string) int {
	n := 0
	for _, c := range d.Log {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Buffer returns the state of a live buffer.
func (d *Device) Buffer(b gfx.Buffer) (*BufferObject, bool) {
	return d.buffers.Get(gfx.Handle(b))
}

// Image returns the state of a live image.
func (d *Device) Image(i gfx.Image) (*ImageObject, bool) {
	return d.images.Get(gfx.Handle(i))
}

// Pool returns the state of a live descriptor pool.
func (d *Device) Pool(p gfx.DescriptorPool) (*PoolObject, bool) {
	return d.pools.Get(gfx.Handle(p))
}

// Set returns the state of a live descriptor set.
func (d *Device) Set(s gfx.DescriptorSet) (*SetObject, bool) {
	return d.sets.Get(gfx.Handle(s))
}

// Pipeline returns the description of a live pipeline.
func (d *Device) Pipeline(p gfx.Pipeline) (gfx.PipelineInfo, bool) {
	return d.pipelines.Get(gfx.Handle(p))
}

// RenderPass returns the description of a live render pass.
func (d *Device) RenderPass(rp gfx.RenderPass) (gfx.RenderPassInfo, bool) {
	return d.renderPasses.Get(gfx.Handle(rp))
}

// Framebuffer returns the description of a live framebuffer.
func (d *Device) Framebuffer(fb gfx.Framebuffer) (gfx.FramebufferInfo, bool) {
	return d.framebuffers.Get(gfx.Handle(fb))
}

// SetLayout returns the bindings of a live descriptor set layout.
func (d *Device) SetLayout(l gfx.DescriptorSetLayout) ([]gfx.DescriptorLayoutBinding, bool) {
	return d.setLayouts.Get(gfx.Handle(l))
}

// Fence returns the state of a live fence.
func (d *Device) Fence(f gfx.Fence) (*FenceObject, bool) {
	return d.fences.Get(gfx.Handle(f))
}

// SwapchainState returns the state of a live swapchain.
func (d *Device) SwapchainState(sc gfx.Swapchain) (*SwapchainObject, bool) {
	return d.swapchains.Get(gfx.Handle(sc))
}

// CommandBuffer returns the state of a live command buffer.
func (d *Device) CommandBuffer(cb gfx.CommandBuffer) (*CommandBufferObject, bool) {
	return d.commandBuffers.Get(gfx.Handle(cb))
}

// Adapter implements gfx.Device.
func (d *Device) Adapter() gfx.AdapterInfo {
	return d.Info
}

// Release implements gfx.Device.
func (d *Device) Release() {
	d.Released = true
}
