// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// CreateDescriptorSetLayout implements gfx.Device.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorLayoutBinding) (gfx.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := result(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout), "vk.CreateDescriptorSetLayout()"); err != nil {
		return gfx.DescriptorSetLayout{}, err
	}
	return gfx.DescriptorSetLayout(d.setLayouts.Insert(layout)), nil
}

// DestroyDescriptorSetLayout implements gfx.Device.
func (d *Device) DestroyDescriptorSetLayout(h gfx.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.Remove(gfx.Handle(h)); ok {
		vk.DestroyDescriptorSetLayout(d.device, layout, nil)
	}
}

// CreateDescriptorPool implements gfx.Device.
func (d *Device) CreateDescriptorPool(info gfx.DescriptorPoolInfo) (gfx.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(info.Sizes))
	for _, s := range info.Sizes {
		if s.Count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		})
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var pool vk.DescriptorPool
	if err := result(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool), "vk.CreateDescriptorPool()"); err != nil {
		return gfx.DescriptorPool{}, err
	}
	return gfx.DescriptorPool(d.pools.Insert(descriptorPool{pool: pool})), nil
}

// forgetSets drops the handles of every set allocated from p.
func (d *Device) forgetSets(p *descriptorPool) {
	for _, s := range p.sets {
		d.sets.Remove(gfx.Handle(s))
	}
	p.sets = p.sets[:0]
}

// ResetDescriptorPool implements gfx.Device. Handles of sets allocated
// from the pool stop resolving.
func (d *Device) ResetDescriptorPool(h gfx.DescriptorPool) error {
	p, ok := d.pools.Get(gfx.Handle(h))
	if !ok {
		return invalid("descriptor pool", gfx.Handle(h))
	}
	if err := result(vk.ResetDescriptorPool(d.device, p.pool, 0), "vk.ResetDescriptorPool()"); err != nil {
		return err
	}
	d.forgetSets(&p)
	d.pools.Set(gfx.Handle(h), p)
	return nil
}

// DestroyDescriptorPool implements gfx.Device.
func (d *Device) DestroyDescriptorPool(h gfx.DescriptorPool) {
	p, ok := d.pools.Remove(gfx.Handle(h))
	if !ok {
		return
	}
	d.forgetSets(&p)
	vk.DestroyDescriptorPool(d.device, p.pool, nil)
}

// AllocateDescriptorSet implements gfx.Device.
func (d *Device) AllocateDescriptorSet(h gfx.DescriptorPool, layout gfx.DescriptorSetLayout) (gfx.DescriptorSet, error) {
	p, ok := d.pools.Get(gfx.Handle(h))
	if !ok {
		return gfx.DescriptorSet{}, invalid("descriptor pool", gfx.Handle(h))
	}
	vkLayout, ok := d.setLayouts.Get(gfx.Handle(layout))
	if !ok {
		return gfx.DescriptorSet{}, invalid("descriptor set layout", gfx.Handle(layout))
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{vkLayout},
	}
	var set vk.DescriptorSet
	if err := result(vk.AllocateDescriptorSets(d.device, &dsai, &set), "vk.AllocateDescriptorSets()"); err != nil {
		return gfx.DescriptorSet{}, err
	}

	handle := gfx.DescriptorSet(d.sets.Insert(set))
	p.sets = append(p.sets, handle)
	d.pools.Set(gfx.Handle(h), p)
	return handle, nil
}

// UpdateDescriptorSets implements gfx.Device. Writes naming stale
// handles are skipped.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	wds := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.Get(gfx.Handle(w.Set))
		if !ok {
			d.logger.WithField("set", gfx.Handle(w.Set)).Debug("Skipping write to stale descriptor set")
			continue
		}
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorType(w.Type),
			DescriptorCount: 1,
		}

		switch w.Type {
		case gfx.DescriptorUniformBuffer, gfx.DescriptorStorageBuffer,
			gfx.DescriptorUniformBufferDynamic, gfx.DescriptorStorageBufferDynamic:
			b, ok := d.buffers.Get(gfx.Handle(w.Buffer))
			if !ok {
				continue
			}
			rng := vk.DeviceSize(w.Range)
			if w.Range == 0 {
				rng = vk.DeviceSize(^uint64(0))
			}
			wd.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.buffer,
				Offset: vk.DeviceSize(w.Offset),
				Range:  rng,
			}}
		default:
			dii := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayout(w.Layout)}
			if view, ok := d.views.Get(gfx.Handle(w.View)); ok {
				dii.ImageView = view
			}
			if sampler, ok := d.samplers.Get(gfx.Handle(w.Sampler)); ok {
				dii.Sampler = sampler
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{dii}
		}
		wds = append(wds, wd)
	}
	if len(wds) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(wds)), wds, 0, nil)
}

// CreatePipelineLayout implements gfx.Device.
func (d *Device) CreatePipelineLayout(info gfx.PipelineLayoutInfo) (gfx.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, h := range info.SetLayouts {
		layout, ok := d.setLayouts.Get(gfx.Handle(h))
		if !ok {
			return gfx.PipelineLayout{}, invalid("descriptor set layout", gfx.Handle(h))
		}
		setLayouts[i] = layout
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, pc := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(pc.Stages),
			Offset:     pc.Offset,
			Size:       pc.Size,
		}
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var layout vk.PipelineLayout
	if err := result(vk.CreatePipelineLayout(d.device, &plci, nil, &layout), "vk.CreatePipelineLayout()"); err != nil {
		return gfx.PipelineLayout{}, err
	}
	return gfx.PipelineLayout(d.pipelineLayouts.Insert(layout)), nil
}

// DestroyPipelineLayout implements gfx.Device.
func (d *Device) DestroyPipelineLayout(h gfx.PipelineLayout) {
	if layout, ok := d.pipelineLayouts.Remove(gfx.Handle(h)); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
	}
}
