// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Enumerations below carry the numeric values of the Vulkan registry,
// backends may convert them by a plain cast.

// Format is a pixel or vertex attribute format.
type Format uint32

// Formats in use by the engine.
const (
	FormatUndefined    Format = 0
	FormatRGBA8Unorm   Format = 37
	FormatRGBA8SRGB    Format = 43
	FormatBGRA8Unorm   Format = 44
	FormatBGRA8SRGB    Format = 50
	FormatRG32Float    Format = 103
	FormatRGB32Float   Format = 106
	FormatRGBA32Float  Format = 109
	FormatD16Unorm     Format = 124
	FormatD32Float     Format = 126
	FormatD24UnormS8   Format = 129
	FormatD32FloatS8   Format = 130
	FormatDepthDefault        = FormatD32FloatS8
)

// IsSRGB reports whether f is an 8 bit sRGB colour format.
func (f Format) IsSRGB() bool {
	return f == FormatRGBA8SRGB || f == FormatBGRA8SRGB
}

// ColorSpace is the presentation colour space of a surface format.
type ColorSpace uint32

// ColorSpaceSRGBNonlinear is the only colour space every surface supports.
const ColorSpaceSRGBNonlinear ColorSpace = 0

// SurfaceFormat pairs a format with the colour space it is presented in.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode controls how images are queued for presentation.
type PresentMode uint32

// Presentation modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFIFO        PresentMode = 2
	PresentModeFIFORelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFIFO:
		return "fifo"
	case PresentModeFIFORelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// DescriptorType is the kind of resource a descriptor binding refers to.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformTexelBuffer
	DescriptorStorageTexelBuffer
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorUniformBufferDynamic
	DescriptorStorageBufferDynamic
	DescriptorInputAttachment
)

// ShaderStage is a bit mask of programmable pipeline stages.
type ShaderStage uint32

// Shader stages.
const (
	StageVertex      ShaderStage = 0x1
	StageGeometry    ShaderStage = 0x8
	StageFragment    ShaderStage = 0x10
	StageCompute     ShaderStage = 0x20
	StageAllGraphics ShaderStage = 0x1f
)

// SampleCount is a multisample count bit.
type SampleCount uint32

// Sample counts.
const (
	Samples1  SampleCount = 0x1
	Samples2  SampleCount = 0x2
	Samples4  SampleCount = 0x4
	Samples8  SampleCount = 0x8
	Samples16 SampleCount = 0x10
	Samples32 SampleCount = 0x20
	Samples64 SampleCount = 0x40
)

// MaxSampleCount returns the highest single count present in the mask.
func MaxSampleCount(mask SampleCount) SampleCount {
	for c := Samples64; c > Samples1; c >>= 1 {
		if mask&c != 0 {
			return c
		}
	}
	return Samples1
}

// ImageLayout is the memory layout an image is in.
type ImageLayout uint32

// Image layouts.
const (
	LayoutUndefined              ImageLayout = 0
	LayoutGeneral                ImageLayout = 1
	LayoutColorAttachment        ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutShaderReadOnly         ImageLayout = 5
	LayoutTransferSrc            ImageLayout = 6
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

// BufferUsage is a bit mask of buffer usages.
type BufferUsage uint32

// Buffer usages.
const (
	BufferTransferSrc BufferUsage = 0x1
	BufferTransferDst BufferUsage = 0x2
	BufferUniform     BufferUsage = 0x10
	BufferStorage     BufferUsage = 0x20
	BufferIndex       BufferUsage = 0x40
	BufferVertex      BufferUsage = 0x80
	BufferIndirect    BufferUsage = 0x100
)

// ImageUsage is a bit mask of image usages.
type ImageUsage uint32

// Image usages.
const (
	ImageTransferSrc            ImageUsage = 0x1
	ImageTransferDst            ImageUsage = 0x2
	ImageSampled                ImageUsage = 0x4
	ImageStorage                ImageUsage = 0x8
	ImageColorAttachment        ImageUsage = 0x10
	ImageDepthStencilAttachment ImageUsage = 0x20
	ImageTransientAttachment    ImageUsage = 0x40
)

// ImageAspect selects the aspects of an image a view or barrier touches.
type ImageAspect uint32

// Image aspects.
const (
	AspectColor   ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

// MemoryUsage tells the allocator where a resource should live.
type MemoryUsage int

// Memory usages.
const (
	MemoryDeviceLocal MemoryUsage = iota
	MemoryHostVisible
)

// Queue selects a device queue.
type Queue int

// Queues a device exposes. Transfer may alias Graphics.
const (
	QueueGraphics Queue = iota
	QueueTransfer
)

// IndexType is the element type of an index buffer.
type IndexType int

// Index types.
const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width, Height uint32
}

// Area returns width times height.
func (e Extent2D) Area() uint64 {
	return uint64(e.Width) * uint64(e.Height)
}

// Extent3D is a width, height and depth in pixels.
type Extent3D struct {
	Width, Height, Depth uint32
}

// AnySize is reported as the current extent by surfaces that let the
// swapchain pick its own size.
const AnySize = 0xFFFFFFFF

// SurfaceCapabilities describes what a surface supports.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount is zero when there is no upper limit.
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// Viewport is a rendering viewport.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}
