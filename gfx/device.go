// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the GPU vocabulary that renderers and backends share.
// Objects are referred to by generation-checked handles, a backend owns the
// actual API objects behind them.
package gfx

// Surface is a native presentation surface handle created by the windowing layer.
type Surface uintptr

// AdapterInfo describes a physical device a Backend can open.
type AdapterInfo struct {
	Name          string
	VendorID      uint32
	DeviceID      uint32
	DriverVersion uint32
	Discrete      bool
	Memory        uint64
	Extensions    []string

	MultiDrawIndirect   bool
	MaxSamples          SampleCount
	MinUniformAlignment uint64
	MinStorageAlignment uint64
}

// Backend creates devices. It owns the API instance and any surface
// that was handed to Open.
type Backend interface {
	// Adapters lists the physical devices available.
	Adapters() ([]AdapterInfo, error)

	// Open creates a logical device on the adapter at index that can
	// present to surface.
	Open(adapter int, surface Surface) (Device, error)

	// Release destroys the surface and the instance.
	Release()
}

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
}

// ImageInfo describes a 2D image to create.
type ImageInfo struct {
	Extent    Extent3D
	Format    Format
	MipLevels uint32
	Samples   SampleCount
	Usage     ImageUsage
}

// ImageViewInfo describes a view of all mip levels of an image.
type ImageViewInfo struct {
	Image     Image
	Format    Format
	Aspect    ImageAspect
	MipLevels uint32
}

// SamplerInfo describes a linear, repeating sampler.
type SamplerInfo struct {
	MaxLod     float32
	Anisotropy float32
}

// DescriptorLayoutBinding is one binding of a descriptor set layout.
type DescriptorLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// PoolSize is the number of descriptors of one type a pool holds.
type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolInfo describes a descriptor pool.
type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []PoolSize
}

// DescriptorWrite points one binding of a set at a buffer range or an image.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType

	Buffer Buffer
	Offset uint64
	Range  uint64

	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

// PushConstantRange is a push constant block visible to some stages.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutInfo describes a pipeline layout.
type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

// VertexAttribute is one vertex shader input.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// VertexLayout describes a single interleaved vertex buffer binding.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// PipelineInfo describes a graphics pipeline. Viewport and scissor are dynamic.
type PipelineInfo struct {
	Layout     PipelineLayout
	RenderPass RenderPass
	Vertex     ShaderModule
	Fragment   ShaderModule
	Vertices   VertexLayout
	Samples    SampleCount

	CullBack   bool
	DepthTest  bool
	DepthWrite bool
	Blend      bool
}

// RenderPassInfo describes the engine's forward pass: a multisampled colour
// attachment, a depth attachment and a single sample resolve target that is
// presented. With one sample the colour attachment is presented directly.
type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
	Samples     SampleCount
}

// FramebufferInfo binds attachments to a render pass.
type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// SwapchainInfo describes a swapchain. Old, when valid, is retired by the new one.
type SwapchainInfo struct {
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D
	ImageCount  uint32
	Old         Swapchain
}

// ImageBarrier transitions a mip range of an image between layouts.
type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspect
	Old       ImageLayout
	New       ImageLayout
	BaseMip   uint32
	MipLevels uint32
}

// BufferCopy copies Size bytes from the start of Src to the start of Dst.
type BufferCopy struct {
	Src, Dst Buffer
	Size     uint64
}

// BufferImageCopy copies tightly packed texels into mip 0 of an image
// that is in LayoutTransferDst.
type BufferImageCopy struct {
	Buffer Buffer
	Image  Image
	Extent Extent3D
}

// BlitInfo scales one mip level of Src into one mip level of Dst with
// linear filtering.
type BlitInfo struct {
	Src       Image
	SrcLayout ImageLayout
	SrcMip    uint32
	SrcSize   Extent2D
	Dst       Image
	DstLayout ImageLayout
	DstMip    uint32
	DstSize   Extent2D
}

// RenderPassBegin starts a render pass instance on a framebuffer.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

// SubmitInfo is one queue submission. Waits happen at the colour
// attachment output stage.
type SubmitInfo struct {
	Commands []CommandBuffer
	Wait     []Semaphore
	Signal   []Semaphore
	Fence    Fence
}

// ResourceDevice creates memory backed resources.
type ResourceDevice interface {
	CreateBuffer(BufferInfo) (Buffer, error)
	DestroyBuffer(Buffer)
	// WriteBuffer copies data into a host visible buffer at offset.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	CreateImage(ImageInfo) (Image, error)
	DestroyImage(Image)
	CreateImageView(ImageViewInfo) (ImageView, error)
	DestroyImageView(ImageView)
	CreateSampler(SamplerInfo) (Sampler, error)
	DestroySampler(Sampler)

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(ShaderModule)
}

// DescriptorDevice manages descriptor layouts, pools and sets.
type DescriptorDevice interface {
	CreateDescriptorSetLayout([]DescriptorLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(DescriptorSetLayout)

	CreateDescriptorPool(DescriptorPoolInfo) (DescriptorPool, error)
	ResetDescriptorPool(DescriptorPool) error
	DestroyDescriptorPool(DescriptorPool)

	// AllocateDescriptorSet returns ErrFragmentedPool or ErrOutOfPoolMemory
	// when the pool cannot satisfy the request.
	AllocateDescriptorSet(DescriptorPool, DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets([]DescriptorWrite)
}

// PipelineDevice manages pipelines and render targets.
type PipelineDevice interface {
	CreatePipelineLayout(PipelineLayoutInfo) (PipelineLayout, error)
	DestroyPipelineLayout(PipelineLayout)
	CreateGraphicsPipeline(PipelineInfo) (Pipeline, error)
	DestroyPipeline(Pipeline)

	CreateRenderPass(RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(RenderPass)
	CreateFramebuffer(FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(Framebuffer)
}

// CommandDevice records command buffers.
type CommandDevice interface {
	CreateCommandPool(q Queue, transient bool) (CommandPool, error)
	DestroyCommandPool(CommandPool)
	AllocateCommandBuffer(CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(CommandPool, CommandBuffer)

	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(CommandBuffer) error
	ResetCommandBuffer(CommandBuffer) error

	CmdPipelineBarrier(CommandBuffer, []ImageBarrier)
	CmdCopyBuffer(CommandBuffer, BufferCopy)
	CmdCopyBufferToImage(CommandBuffer, BufferImageCopy)
	CmdBlitImage(CommandBuffer, BlitInfo)

	CmdBeginRenderPass(CommandBuffer, RenderPassBegin)
	CmdEndRenderPass(CommandBuffer)
	CmdSetViewport(CommandBuffer, Viewport)
	CmdSetScissor(CommandBuffer, Extent2D)
	CmdBindPipeline(CommandBuffer, Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, first uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	CmdBindVertexBuffer(cb CommandBuffer, b Buffer, offset uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// SyncDevice manages synchronisation primitives and queue submission.
type SyncDevice interface {
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(Fence)
	// WaitFence blocks until the fence is signalled.
	WaitFence(Fence) error
	ResetFence(Fence) error

	Submit(Queue, SubmitInfo) error
	WaitQueueIdle(Queue) error
	WaitIdle() error
}

// PresentDevice manages the swapchain of the surface the device was opened for.
type PresentDevice interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)

	CreateSwapchain(SwapchainInfo) (Swapchain, error)
	DestroySwapchain(Swapchain)
	// SwapchainImages returns images owned by the swapchain, they must
	// not be destroyed with DestroyImage.
	SwapchainImages(Swapchain) ([]Image, error)

	// AcquireNextImage signals the semaphore once the returned image is
	// available. ErrSuboptimal comes with a usable index, ErrOutOfDate does not.
	AcquireNextImage(Swapchain, Semaphore) (uint32, error)
	// Present queues the image after wait is signalled and reports
	// ErrOutOfDate or ErrSuboptimal when the swapchain no longer matches.
	Present(sc Swapchain, image uint32, wait Semaphore) error
}

// Device is a logical device bound to one presentation surface.
type Device interface {
	ResourceDevice
	DescriptorDevice
	PipelineDevice
	CommandDevice
	SyncDevice
	PresentDevice

	// Adapter describes the physical device this device runs on.
	Adapter() AdapterInfo

	// Release destroys the device. Every object must be destroyed first.
	Release()
}
