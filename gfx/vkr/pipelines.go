// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

func boolean(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func sampleCount(s gfx.SampleCount) vk.SampleCountFlagBits {
	if s == 0 {
		return vk.SampleCount1Bit
	}
	return vk.SampleCountFlagBits(s)
}

// CreateGraphicsPipeline implements gfx.Device.
func (d *Device) CreateGraphicsPipeline(info gfx.PipelineInfo) (gfx.Pipeline, error) {
	layout, ok := d.pipelineLayouts.Get(gfx.Handle(info.Layout))
	if !ok {
		return gfx.Pipeline{}, invalid("pipeline layout", gfx.Handle(info.Layout))
	}
	pass, ok := d.renderPasses.Get(gfx.Handle(info.RenderPass))
	if !ok {
		return gfx.Pipeline{}, invalid("render pass", gfx.Handle(info.RenderPass))
	}
	vert, ok := d.shaders.Get(gfx.Handle(info.Vertex))
	if !ok {
		return gfx.Pipeline{}, invalid("vertex shader", gfx.Handle(info.Vertex))
	}
	frag, ok := d.shaders.Get(gfx.Handle(info.Fragment))
	if !ok {
		return gfx.Pipeline{}, invalid("fragment shader", gfx.Handle(info.Fragment))
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vert,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: frag,
		PName:  "main\x00",
	}}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if info.Vertices.Stride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(info.Vertices.Attributes))
		for i, a := range info.Vertices.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vk.Format(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.Vertices.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	cullMode := vk.CullModeFlags(vk.CullModeNone)
	if info.CullBack {
		cullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	blend := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: 0xF,
		BlendEnable:    vk.False,
	}
	if info.Blend {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		blend.DstAlphaBlendFactor = vk.BlendFactorZero
		blend.AlphaBlendOp = vk.BlendOpAdd
	}

	samples := info.Samples
	if samples == 0 {
		samples = pass.info.Samples
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:             vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:        uint32(len(stages)),
		PStages:           stages,
		PVertexInputState: &vertexInput,
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    cullMode,
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       boolean(info.DepthTest),
			DepthWriteEnable:      boolean(info.DepthWrite),
			DepthCompareOp:        vk.CompareOpLessOrEqual,
			DepthBoundsTestEnable: vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			StencilTestEnable: vk.False,
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: sampleCount(samples),
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     layout,
		RenderPass: pass.pass,
	}}

	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, len(gpci))
	if err := result(vk.CreateGraphicsPipelines(d.device, cache, uint32(len(gpci)), gpci, nil, pipelines), "vk.CreateGraphicsPipelines()"); err != nil {
		return gfx.Pipeline{}, err
	}
	return gfx.Pipeline(d.pipelines.Insert(pipelines[0])), nil
}

// DestroyPipeline implements gfx.Device.
func (d *Device) DestroyPipeline(h gfx.Pipeline) {
	if pipeline, ok := d.pipelines.Remove(gfx.Handle(h)); ok {
		vk.DestroyPipeline(d.device, pipeline, nil)
	}
}

// renderPassAttachments describes the attachments of the forward pass in
// framebuffer order. With one sample that is depth, then the presented
// colour image. Multisampled, it is colour, depth, then the resolve target.
func renderPassAttachments(info gfx.RenderPassInfo) (attachments []vk.AttachmentDescription, color, depth vk.AttachmentReference, resolve []vk.AttachmentReference) {
	samples := sampleCount(info.Samples)
	depthAttachment := vk.AttachmentDescription{
		Format:         vk.Format(info.DepthFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	presented := vk.AttachmentDescription{
		Format:         vk.Format(info.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	if samples == vk.SampleCount1Bit {
		attachments = []vk.AttachmentDescription{depthAttachment, presented}
		color = vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutColorAttachmentOptimal}
		depth = vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
		return attachments, color, depth, nil
	}

	multisampled := vk.AttachmentDescription{
		Format:         vk.Format(info.ColorFormat),
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}
	presented.LoadOp = vk.AttachmentLoadOpDontCare

	attachments = []vk.AttachmentDescription{multisampled, depthAttachment, presented}
	color = vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	depth = vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	resolve = []vk.AttachmentReference{{Attachment: 2, Layout: vk.ImageLayoutColorAttachmentOptimal}}
	return attachments, color, depth, resolve
}

// clearValues returns the clear values of begin in attachment order.
func clearValues(info gfx.RenderPassInfo, begin gfx.RenderPassBegin) []vk.ClearValue {
	if sampleCount(info.Samples) == vk.SampleCount1Bit {
		values := make([]vk.ClearValue, 2)
		values[0].SetDepthStencil(begin.ClearDepth, 0)
		values[1].SetColor(begin.ClearColor[:])
		return values
	}
	values := make([]vk.ClearValue, 3)
	values[0].SetColor(begin.ClearColor[:])
	values[1].SetDepthStencil(begin.ClearDepth, 0)
	values[2].SetColor(begin.ClearColor[:])
	return values
}

// CreateRenderPass implements gfx.Device.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	if info.ColorFormat == gfx.FormatUndefined || info.DepthFormat == gfx.FormatUndefined {
		return gfx.RenderPass{}, errors.Newf("render pass formats %d/%d", info.ColorFormat, info.DepthFormat)
	}
	attachments, color, depth, resolve := renderPassAttachments(info)

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{color},
		PResolveAttachments:     resolve,
		PDepthStencilAttachment: &depth,
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var pass vk.RenderPass
	if err := result(vk.CreateRenderPass(d.device, &rpci, nil, &pass), "vk.CreateRenderPass()"); err != nil {
		return gfx.RenderPass{}, err
	}
	return gfx.RenderPass(d.renderPasses.Insert(renderPass{pass: pass, info: info})), nil
}

// DestroyRenderPass implements gfx.Device.
func (d *Device) DestroyRenderPass(h gfx.RenderPass) {
	if pass, ok := d.renderPasses.Remove(gfx.Handle(h)); ok {
		vk.DestroyRenderPass(d.device, pass.pass, nil)
	}
}

// CreateFramebuffer implements gfx.Device.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	pass, ok := d.renderPasses.Get(gfx.Handle(info.RenderPass))
	if !ok {
		return gfx.Framebuffer{}, invalid("render pass", gfx.Handle(info.RenderPass))
	}
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		view, ok := d.views.Get(gfx.Handle(h))
		if !ok {
			return gfx.Framebuffer{}, invalid("image view", gfx.Handle(h))
		}
		attachments[i] = view
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := result(vk.CreateFramebuffer(d.device, &fci, nil, &framebuffer), "vk.CreateFramebuffer()"); err != nil {
		return gfx.Framebuffer{}, err
	}
	return gfx.Framebuffer(d.framebuffers.Insert(framebuffer)), nil
}

// DestroyFramebuffer implements gfx.Device.
func (d *Device) DestroyFramebuffer(h gfx.Framebuffer) {
	if framebuffer, ok := d.framebuffers.Remove(gfx.Handle(h)); ok {
		vk.DestroyFramebuffer(d.device, framebuffer, nil)
	}
}
