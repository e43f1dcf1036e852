// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
)

// CreateBuffer implements gfx.Device.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return gfx.Buffer{}, err
	}
	if info.Size == 0 {
		return gfx.Buffer{}, errors.New("CreateBuffer: zero size")
	}
	d.created(KindBuffer)
	return gfx.Buffer(d.buffers.Insert(&BufferObject{Info: info, Data: make([]byte, info.Size)})), nil
}

// DestroyBuffer implements gfx.Device.
func (d *Device) DestroyBuffer(b gfx.Buffer) {
	_, ok := d.buffers.Remove(gfx.Handle(b))
	d.destroyed(KindBuffer, gfx.Handle(b), ok)
}

// WriteBuffer implements gfx.Device.
func (d *Device) WriteBuffer(b gfx.Buffer, offset uint64, data []byte) error {
	if err := d.fail("WriteBuffer"); err != nil {
		return err
	}
	obj, ok := d.buffers.Get(gfx.Handle(b))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if obj.Info.Memory != gfx.MemoryHostVisible {
		return errors.New("WriteBuffer: buffer is not host visible")
	}
	if offset+uint64(len(data)) > uint64(len(obj.Data)) {
		return errors.Newf("WriteBuffer: %d bytes at %d overflow %d", len(data), offset, len(obj.Data))
	}
	copy(obj.Data[offset:], data)
	return nil
}

// CreateImage implements gfx.Device.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	if err := d.fail("CreateImage"); err != nil {
		return gfx.Image{}, err
	}
	d.created(KindImage)
	return gfx.Image(d.images.Insert(&ImageObject{Info: info})), nil
}

// DestroyImage implements gfx.Device.
func (d *Device) DestroyImage(i gfx.Image) {
	obj, ok := d.images.Get(gfx.Handle(i))
	if ok && obj.Swapchain {
		d.Violations = append(d.Violations, "destroy of swapchain owned image")
		return
	}
	_, ok = d.images.Remove(gfx.Handle(i))
	d.destroyed(KindImage, gfx.Handle(i), ok)
}

// CreateImageView implements gfx.Device.
func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return gfx.ImageView{}, err
	}
	if _, ok := d.images.Get(gfx.Handle(info.Image)); !ok {
		return gfx.ImageView{}, gfx.ErrInvalidHandle
	}
	d.created(KindImageView)
	return gfx.ImageView(d.views.Insert(info)), nil
}

// DestroyImageView implements gfx.Device.
func (d *Device) DestroyImageView(v gfx.ImageView) {
	_, ok := d.views.Remove(gfx.Handle(v))
	d.destroyed(KindImageView, gfx.Handle(v), ok)
}

// CreateSampler implements gfx.Device.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return gfx.Sampler{}, err
	}
	d.created(KindSampler)
	return gfx.Sampler(d.samplers.Insert(info)), nil
}

// DestroySampler implements gfx.Device.
func (d *Device) DestroySampler(s gfx.Sampler) {
	_, ok := d.samplers.Remove(gfx.Handle(s))
	d.destroyed(KindSampler, gfx.Handle(s), ok)
}

// CreateShaderModule implements gfx.Device.
func (d *Device) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return gfx.ShaderModule{}, err
	}
	d.created(KindShader)
	return gfx.ShaderModule(d.shaders.Insert(append([]byte(nil), code...))), nil
}

// DestroyShaderModule implements gfx.Device.
func (d *Device) DestroyShaderModule(m gfx.ShaderModule) {
	_, ok := d.shaders.Remove(gfx.Handle(m))
	d.destroyed(KindShader, gfx.Handle(m), ok)
}

// CreateDescriptorSetLayout implements gfx.Device.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorLayoutBinding) (gfx.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return gfx.DescriptorSetLayout{}, err
	}
	d.created(KindSetLayout)
	return gfx.DescriptorSetLayout(d.setLayouts.Insert(append([]gfx.DescriptorLayoutBinding(nil), bindings...))), nil
}

// DestroyDescriptorSetLayout implements gfx.Device.
func (d *Device) DestroyDescriptorSetLayout(l gfx.DescriptorSetLayout) {
	_, ok := d.setLayouts.Remove(gfx.Handle(l))
	d.destroyed(KindSetLayout, gfx.Handle(l), ok)
}

// CreateDescriptorPool implements gfx.Device.
func (d *Device) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return gfx.DescriptorPool{}, err
	}
	d.created(KindPool)
	return gfx.DescriptorPool(d.pools.Insert(&PoolObject{Info: info})), nil
}

func (d *Device) dropSets(p *PoolObject) {
	for _, s := range p.sets {
		d.sets.Remove(gfx.Handle(s))
	}
	p.sets = nil
	p.Allocated = 0
}

// ResetDescriptorPool implements gfx.Device.
func (d *Device) ResetDescriptorPool(pool gfx.DescriptorPool) error {
	if err := d.fail("ResetDescriptorPool"); err != nil {
		return err
	}
	p, ok := d.pools.Get(gfx.Handle(pool))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	d.dropSets(p)
	p.Resets++
	return nil
}

// DestroyDescriptorPool implements gfx.Device.
func (d *Device) DestroyDescriptorPool(pool gfx.DescriptorPool) {
	p, ok := d.pools.Remove(gfx.Handle(pool))
	if ok {
		d.dropSets(p)
	}
	d.destroyed(KindPool, gfx.Handle(pool), ok)
}

// AllocateDescriptorSet implements gfx.Device.
func (d *Device) AllocateDescriptorSet(pool gfx.DescriptorPool, layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	p, ok := d.pools.Get(gfx.Handle(pool))
	if !ok {
		return gfx.DescriptorSet{}, gfx.ErrInvalidHandle
	}
	if _, ok := d.setLayouts.Get(gfx.Handle(layout)); !ok {
		return gfx.DescriptorSet{}, gfx.ErrInvalidHandle
	}
	if len(d.AllocResults) > 0 {
		err := d.AllocResults[0]
		d.AllocResults = d.AllocResults[1:]
		if err != nil {
			return gfx.DescriptorSet{}, err
		}
	}
	capacity := d.PoolCapacity
	if capacity == 0 {
		capacity = p.Info.MaxSets
	}
	if p.Allocated >= capacity {
		return gfx.DescriptorSet{}, gfx.ErrOutOfPoolMemory
	}
	p.Allocated++
	set := gfx.DescriptorSet(d.sets.Insert(&SetObject{
		Pool:   pool,
		Layout: layout,
		Writes: map[uint32]gfx.DescriptorWrite{},
	}))
	p.sets = append(p.sets, set)
	d.created(KindSet)
	return set, nil
}

// UpdateDescriptorSets implements gfx.Device.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	for _, w := range writes {
		s, ok := d.sets.Get(gfx.Handle(w.Set))
		if !ok {
			d.Violations = append(d.Violations, "write to unknown descriptor set")
			continue
		}
		s.Writes[w.Binding] = w
	}
}

// CreatePipelineLayout implements gfx.Device.
func (d *Device) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return gfx.PipelineLayout{}, err
	}
	d.created(KindPipelineLayout)
	return gfx.PipelineLayout(d.pipelineLayouts.Insert(info)), nil
}

// DestroyPipelineLayout implements gfx.Device.
func (d *Device) DestroyPipelineLayout(l gfx.PipelineLayout) {
	_, ok := d.pipelineLayouts.Remove(gfx.Handle(l))
	d.destroyed(KindPipelineLayout, gfx.Handle(l), ok)
}

// CreateGraphicsPipeline implements gfx.Device.
func (d *Device) CreateGraphicsPipeline(info gfx.PipelineInfo) (gfx.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return gfx.Pipeline{}, err
	}
	if _, ok := d.renderPasses.Get(gfx.Handle(info.RenderPass)); !ok {
		return gfx.Pipeline{}, errors.Wrap(gfx.ErrInvalidHandle, "CreateGraphicsPipeline: render pass")
	}
	d.created(KindPipeline)
	return gfx.Pipeline(d.pipelines.Insert(info)), nil
}

// DestroyPipeline implements gfx.Device.
func (d *Device) DestroyPipeline(p gfx.Pipeline) {
	_, ok := d.pipelines.Remove(gfx.Handle(p))
	d.destroyed(KindPipeline, gfx.Handle(p), ok)
}

// CreateRenderPass implements gfx.Device.
func (d *Device) CreateRenderPass(info gfx.RenderPassInfo) (gfx.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return gfx.RenderPass{}, err
	}
	d.created(KindRenderPass)
	return gfx.RenderPass(d.renderPasses.Insert(info)), nil
}

// DestroyRenderPass implements gfx.Device.
func (d *Device) DestroyRenderPass(rp gfx.RenderPass) {
	_, ok := d.renderPasses.Remove(gfx.Handle(rp))
	d.destroyed(KindRenderPass, gfx.Handle(rp), ok)
}

// CreateFramebuffer implements gfx.Device.
func (d *Device) CreateFramebuffer(info gfx.FramebufferInfo) (gfx.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return gfx.Framebuffer{}, err
	}
	pass, ok := d.renderPasses.Get(gfx.Handle(info.RenderPass))
	if !ok {
		d.Violations = append(d.Violations, "framebuffer created against a destroyed render pass")
	} else if n := len(info.Attachments); n > 0 {
		if view, ok := d.views.Get(gfx.Handle(info.Attachments[n-1])); ok && view.Format != pass.ColorFormat {
			d.Violations = append(d.Violations, "framebuffer attachment format differs from its render pass")
		}
	}
	d.created(KindFramebuffer)
	return gfx.Framebuffer(d.framebuffers.Insert(info)), nil
}

// DestroyFramebuffer implements gfx.Device.
func (d *Device) DestroyFramebuffer(fb gfx.Framebuffer) {
	_, ok := d.framebuffers.Remove(gfx.Handle(fb))
	d.destroyed(KindFramebuffer, gfx.Handle(fb), ok)
}

// CreateSemaphore implements gfx.Device.
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return gfx.Semaphore{}, err
	}
	d.created(KindSemaphore)
	return gfx.Semaphore(d.semaphores.Insert(struct{}{})), nil
}

// DestroySemaphore implements gfx.Device.
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	_, ok := d.semaphores.Remove(gfx.Handle(s))
	d.destroyed(KindSemaphore, gfx.Handle(s), ok)
}

// CreateFence implements gfx.Device.
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return gfx.Fence{}, err
	}
	d.created(KindFence)
	return gfx.Fence(d.fences.Insert(&FenceObject{Signaled: signaled})), nil
}

// DestroyFence implements gfx.Device.
func (d *Device) DestroyFence(f gfx.Fence) {
	_, ok := d.fences.Remove(gfx.Handle(f))
	d.destroyed(KindFence, gfx.Handle(f), ok)
}

// WaitFence implements gfx.Device. Waiting on a fence that is neither
// signalled nor pending would block forever, so it is reported as a
// violation and an error instead.
func (d *Device) WaitFence(f gfx.Fence) error {
	d.FenceWaits = append(d.FenceWaits, f)
	obj, ok := d.fences.Get(gfx.Handle(f))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if obj.Pending {
		obj.Pending = false
		obj.Signaled = true
	}
	d.commandBuffers.Each(func(_ gfx.Handle, cb *CommandBufferObject) {
		if cb.lastFence == f {
			cb.inFlight = false
		}
	})
	if !obj.Signaled {
		d.Violations = append(d.Violations, "wait on fence that was never submitted")
		return errors.New("WaitFence: deadlock")
	}
	return nil
}

// ResetFence implements gfx.Device.
func (d *Device) ResetFence(f gfx.Fence) error {
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	obj, ok := d.fences.Get(gfx.Handle(f))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if obj.Pending {
		d.Violations = append(d.Violations, "reset of fence in use")
	}
	obj.Signaled = false
	obj.Pending = false
	return nil
}

// Submit implements gfx.Device.
func (d *Device) Submit(q gfx.Queue, info gfx.SubmitInfo) error {
	if err := d.fail("Submit"); err != nil {
		return err
	}
	for _, cb := range info.Commands {
		obj, ok := d.commandBuffers.Get(gfx.Handle(cb))
		if !ok {
			return gfx.ErrInvalidHandle
		}
		if obj.Recording {
			d.Violations = append(d.Violations, "submit of command buffer still recording")
		}
		obj.lastFence = info.Fence
		obj.inFlight = true
	}
	if gfx.Handle(info.Fence).Valid() {
		f, ok := d.fences.Get(gfx.Handle(info.Fence))
		if !ok {
			return gfx.ErrInvalidHandle
		}
		if d.DeferFences {
			f.Pending = true
		} else {
			f.Signaled = true
		}
	}
	d.Submits = append(d.Submits, info)
	return nil
}

// WaitQueueIdle implements gfx.Device.
func (d *Device) WaitQueueIdle(gfx.Queue) error {
	d.QueueWaits++
	if err := d.fail("WaitQueueIdle"); err != nil {
		return err
	}
	d.settleCommandBuffers()
	return nil
}

func (d *Device) settleCommandBuffers() {
	d.commandBuffers.Each(func(_ gfx.Handle, cb *CommandBufferObject) {
		cb.inFlight = false
	})
}

// WaitIdle implements gfx.Device. Every pending fence completes.
func (d *Device) WaitIdle() error {
	d.WaitIdles++
	d.fences.Each(func(_ gfx.Handle, f *FenceObject) {
		if f.Pending {
			f.Pending = false
			f.Signaled = true
		}
	})
	d.settleCommandBuffers()
	return d.fail("WaitIdle")
}

// SurfaceCapabilities implements gfx.Device.
func (d *Device) SurfaceCapabilities() (gfx.SurfaceCapabilities, error) {
	if err := d.fail("SurfaceCapabilities"); err != nil {
		return gfx.SurfaceCapabilities{}, err
	}
	return d.Caps, nil
}

// SurfaceFormats implements gfx.Device.
func (d *Device) SurfaceFormats() ([]gfx.SurfaceFormat, error) {
	return append([]gfx.SurfaceFormat(nil), d.Formats...), nil
}

// PresentModes implements gfx.Device.
func (d *Device) PresentModes() ([]gfx.PresentMode, error) {
	return append([]gfx.PresentMode(nil), d.Modes...), nil
}

// CreateSwapchain implements gfx.Device.
func (d *Device) CreateSwapchain(info gfx.SwapchainInfo) (gfx.Swapchain, error) {
	if err := d.fail("CreateSwapchain"); err != nil {
		return gfx.Swapchain{}, err
	}
	obj := &SwapchainObject{Info: info}
	for i := uint32(0); i < info.ImageCount; i++ {
		obj.Images = append(obj.Images, gfx.Image(d.images.Insert(&ImageObject{
			Info: gfx.ImageInfo{
				Extent:    gfx.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
				Format:    info.Format.Format,
				MipLevels: 1,
				Samples:   gfx.Samples1,
				Usage:     gfx.ImageColorAttachment,
			},
			Swapchain: true,
		})))
	}
	d.created(KindSwapchain)
	return gfx.Swapchain(d.swapchains.Insert(obj)), nil
}

// DestroySwapchain implements gfx.Device.
func (d *Device) DestroySwapchain(sc gfx.Swapchain) {
	obj, ok := d.swapchains.Remove(gfx.Handle(sc))
	if ok {
		for _, img := range obj.Images {
			d.images.Remove(gfx.Handle(img))
		}
	}
	d.destroyed(KindSwapchain, gfx.Handle(sc), ok)
}

// SwapchainImages implements gfx.Device.
func (d *Device) SwapchainImages(sc gfx.Swapchain) ([]gfx.Image, error) {
	obj, ok := d.swapchains.Get(gfx.Handle(sc))
	if !ok {
		return nil, gfx.ErrInvalidHandle
	}
	return append([]gfx.Image(nil), obj.Images...), nil
}

// AcquireNextImage implements gfx.Device.
func (d *Device) AcquireNextImage(sc gfx.Swapchain, signal gfx.Semaphore) (uint32, error) {
	d.Acquires++
	obj, ok := d.swapchains.Get(gfx.Handle(sc))
	if !ok {
		return 0, gfx.ErrInvalidHandle
	}
	if _, ok := d.semaphores.Get(gfx.Handle(signal)); !ok {
		return 0, gfx.ErrInvalidHandle
	}
	var result error
	if len(d.AcquireResults) > 0 {
		result = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	if result != nil && !errors.Is(result, gfx.ErrSuboptimal) {
		return 0, result
	}
	idx := d.nextImage % uint32(len(obj.Images))
	d.nextImage++
	return idx, result
}

// Present implements gfx.Device.
func (d *Device) Present(sc gfx.Swapchain, image uint32, wait gfx.Semaphore) error {
	d.Presents++
	obj, ok := d.swapchains.Get(gfx.Handle(sc))
	if !ok {
		return gfx.ErrInvalidHandle
	}
	if int(image) >= len(obj.Images) {
		return errors.Newf("Present: image %d out of range", image)
	}
	if len(d.PresentResults) > 0 {
		result := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		return result
	}
	return nil
}
