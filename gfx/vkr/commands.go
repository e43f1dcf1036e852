// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// CreateCommandPool implements gfx.Device. Buffers of the pool can be
// reset one by one.
func (d *Device) CreateCommandPool(q gfx.Queue, transient bool) (gfx.CommandPool, error) {
	flags := vk.CommandPoolCreateFlagBits(vk.CommandPoolCreateResetCommandBufferBit)
	if transient {
		flags |= vk.CommandPoolCreateTransientBit
	}
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: d.graphicsFamily,
	}

	var commandPool vk.CommandPool
	if err := result(vk.CreateCommandPool(d.device, &cpci, nil, &commandPool), "vk.CreateCommandPool()"); err != nil {
		return gfx.CommandPool{}, err
	}
	return gfx.CommandPool(d.commandPools.Insert(commandPool)), nil
}

// DestroyCommandPool implements gfx.Device. Buffers allocated from the
// pool are freed with it.
func (d *Device) DestroyCommandPool(h gfx.CommandPool) {
	pool, ok := d.commandPools.Remove(gfx.Handle(h))
	if !ok {
		return
	}
	d.commandBuffers.Each(func(cbh gfx.Handle, cb commandBuffer) {
		if cb.pool == pool {
			d.commandBuffers.Remove(cbh)
		}
	})
	vk.DestroyCommandPool(d.device, pool, nil)
}

// AllocateCommandBuffer implements gfx.Device.
func (d *Device) AllocateCommandBuffer(h gfx.CommandPool) (gfx.CommandBuffer, error) {
	pool, ok := d.commandPools.Get(gfx.Handle(h))
	if !ok {
		return gfx.CommandBuffer{}, invalid("command pool", gfx.Handle(h))
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := result(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers), "vk.AllocateCommandBuffers()"); err != nil {
		return gfx.CommandBuffer{}, err
	}
	return gfx.CommandBuffer(d.commandBuffers.Insert(commandBuffer{buffer: commandBuffers[0], pool: pool})), nil
}

// FreeCommandBuffer implements gfx.Device.
func (d *Device) FreeCommandBuffer(_ gfx.CommandPool, h gfx.CommandBuffer) {
	if cb, ok := d.commandBuffers.Remove(gfx.Handle(h)); ok {
		vk.FreeCommandBuffers(d.device, cb.pool, 1, []vk.CommandBuffer{cb.buffer})
	}
}

func (d *Device) commandBuffer(h gfx.CommandBuffer) (vk.CommandBuffer, bool) {
	cb, ok := d.commandBuffers.Get(gfx.Handle(h))
	return cb.buffer, ok
}

// BeginCommandBuffer implements gfx.Device.
func (d *Device) BeginCommandBuffer(h gfx.CommandBuffer, oneTime bool) error {
	cb, ok := d.commandBuffer(h)
	if !ok {
		return invalid("command buffer", gfx.Handle(h))
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		cbbi.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return result(vk.BeginCommandBuffer(cb, &cbbi), "vk.BeginCommandBuffer()")
}

// EndCommandBuffer implements gfx.Device.
func (d *Device) EndCommandBuffer(h gfx.CommandBuffer) error {
	cb, ok := d.commandBuffer(h)
	if !ok {
		return invalid("command buffer", gfx.Handle(h))
	}
	return result(vk.EndCommandBuffer(cb), "vk.EndCommandBuffer()")
}

// ResetCommandBuffer implements gfx.Device.
func (d *Device) ResetCommandBuffer(h gfx.CommandBuffer) error {
	cb, ok := d.commandBuffer(h)
	if !ok {
		return invalid("command buffer", gfx.Handle(h))
	}
	return result(vk.ResetCommandBuffer(cb, 0), "vk.ResetCommandBuffer()")
}

// layoutAccess returns how an image in layout is accessed and by which stage.
func layoutAccess(layout gfx.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case gfx.LayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.LayoutTransferSrc:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.LayoutShaderReadOnly:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case gfx.LayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gfx.LayoutDepthStencilAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	case gfx.LayoutPresentSrc:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	case gfx.LayoutGeneral:
		return vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

// CmdPipelineBarrier implements gfx.Device.
func (d *Device) CmdPipelineBarrier(h gfx.CommandBuffer, barriers []gfx.ImageBarrier) {
	cb, ok := d.commandBuffer(h)
	if !ok || len(barriers) == 0 {
		return
	}
	var srcStage, dstStage vk.PipelineStageFlags
	vkBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := d.images.Get(gfx.Handle(b.Image))
		if !ok {
			continue
		}
		srcAccess, src := layoutAccess(b.Old)
		dstAccess, dst := layoutAccess(b.New)
		srcStage |= src
		dstStage |= dst

		levels := b.MipLevels
		if levels == 0 {
			levels = 1
		}
		vkBarriers = append(vkBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           vk.ImageLayout(b.Old),
			NewLayout:           vk.ImageLayout(b.New),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(b.Aspect),
				BaseMipLevel:   b.BaseMip,
				LevelCount:     levels,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
	}
	if len(vkBarriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, uint32(len(vkBarriers)), vkBarriers)
}

// CmdCopyBuffer implements gfx.Device.
func (d *Device) CmdCopyBuffer(h gfx.CommandBuffer, c gfx.BufferCopy) {
	cb, ok := d.commandBuffer(h)
	src, srcOK := d.buffers.Get(gfx.Handle(c.Src))
	dst, dstOK := d.buffers.Get(gfx.Handle(c.Dst))
	if !ok || !srcOK || !dstOK {
		return
	}
	vk.CmdCopyBuffer(cb, src.buffer, dst.buffer, 1, []vk.BufferCopy{{
		Size: vk.DeviceSize(c.Size),
	}})
}

// CmdCopyBufferToImage implements gfx.Device.
func (d *Device) CmdCopyBufferToImage(h gfx.CommandBuffer, c gfx.BufferImageCopy) {
	cb, ok := d.commandBuffer(h)
	buf, bufOK := d.buffers.Get(gfx.Handle(c.Buffer))
	img, imgOK := d.images.Get(gfx.Handle(c.Image))
	if !ok || !bufOK || !imgOK {
		return
	}
	depth := c.Extent.Depth
	if depth == 0 {
		depth = 1
	}
	bic := vk.BufferImageCopy{
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{
			Width:  c.Extent.Width,
			Height: c.Extent.Height,
			Depth:  depth,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdCopyBufferToImage(cb, buf.buffer, img.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{bic})
}

// CmdBlitImage implements gfx.Device.
func (d *Device) CmdBlitImage(h gfx.CommandBuffer, b gfx.BlitInfo) {
	cb, ok := d.commandBuffer(h)
	src, srcOK := d.images.Get(gfx.Handle(b.Src))
	dst, dstOK := d.images.Get(gfx.Handle(b.Dst))
	if !ok || !srcOK || !dstOK {
		return
	}
	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       b.SrcMip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(b.SrcSize.Width), Y: int32(b.SrcSize.Height), Z: 1},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       b.DstMip,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		DstOffsets: [2]vk.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: int32(b.DstSize.Width), Y: int32(b.DstSize.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cb, src.image, vk.ImageLayout(b.SrcLayout), dst.image, vk.ImageLayout(b.DstLayout), 1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// CmdBeginRenderPass implements gfx.Device.
func (d *Device) CmdBeginRenderPass(h gfx.CommandBuffer, begin gfx.RenderPassBegin) {
	cb, ok := d.commandBuffer(h)
	pass, passOK := d.renderPasses.Get(gfx.Handle(begin.RenderPass))
	framebuffer, fbOK := d.framebuffers.Get(gfx.Handle(begin.Framebuffer))
	if !ok || !passOK || !fbOK {
		return
	}
	clear := clearValues(pass.info, begin)
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{
				Width:  begin.Extent.Width,
				Height: begin.Extent.Height,
			},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cb, &rpbi, vk.SubpassContentsInline)
}

// CmdEndRenderPass implements gfx.Device.
func (d *Device) CmdEndRenderPass(h gfx.CommandBuffer) {
	if cb, ok := d.commandBuffer(h); ok {
		vk.CmdEndRenderPass(cb)
	}
}

// CmdSetViewport implements gfx.Device.
func (d *Device) CmdSetViewport(h gfx.CommandBuffer, v gfx.Viewport) {
	if cb, ok := d.commandBuffer(h); ok {
		vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		}})
	}
}

// CmdSetScissor implements gfx.Device.
func (d *Device) CmdSetScissor(h gfx.CommandBuffer, extent gfx.Extent2D) {
	if cb, ok := d.commandBuffer(h); ok {
		vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		}})
	}
}

// CmdBindPipeline implements gfx.Device.
func (d *Device) CmdBindPipeline(h gfx.CommandBuffer, p gfx.Pipeline) {
	cb, ok := d.commandBuffer(h)
	pipeline, pOK := d.pipelines.Get(gfx.Handle(p))
	if ok && pOK {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pipeline)
	}
}

// CmdBindDescriptorSets implements gfx.Device.
func (d *Device) CmdBindDescriptorSets(h gfx.CommandBuffer, layout gfx.PipelineLayout, first uint32, sets []gfx.DescriptorSet, dynamicOffsets []uint32) {
	cb, ok := d.commandBuffer(h)
	vkLayout, layoutOK := d.pipelineLayouts.Get(gfx.Handle(layout))
	if !ok || !layoutOK || len(sets) == 0 {
		return
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := d.sets.Get(gfx.Handle(s))
		if !ok {
			d.logger.WithField("set", gfx.Handle(s)).Debug("Skipping bind of stale descriptor set")
			return
		}
		vkSets[i] = set
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, vkLayout, first,
		uint32(len(vkSets)), vkSets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

// CmdBindVertexBuffer implements gfx.Device.
func (d *Device) CmdBindVertexBuffer(h gfx.CommandBuffer, b gfx.Buffer, offset uint64) {
	cb, ok := d.commandBuffer(h)
	buf, bufOK := d.buffers.Get(gfx.Handle(b))
	if ok && bufOK {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{buf.buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

// CmdBindIndexBuffer implements gfx.Device.
func (d *Device) CmdBindIndexBuffer(h gfx.CommandBuffer, b gfx.Buffer, offset uint64, t gfx.IndexType) {
	cb, ok := d.commandBuffer(h)
	buf, bufOK := d.buffers.Get(gfx.Handle(b))
	if !ok || !bufOK {
		return
	}
	indexType := vk.IndexTypeUint32
	if t == gfx.IndexUint16 {
		indexType = vk.IndexTypeUint16
	}
	vk.CmdBindIndexBuffer(cb, buf.buffer, vk.DeviceSize(offset), indexType)
}

// CmdDrawIndexed implements gfx.Device.
func (d *Device) CmdDrawIndexed(h gfx.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, ok := d.commandBuffer(h); ok {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}
