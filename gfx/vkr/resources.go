// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/koru3d/lumen/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// CreateBuffer creates, allocates and binds a buffer. Host visible
// buffers stay mapped for their whole life.
func (d *Device) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var b buffer
	if err := result(vk.CreateBuffer(d.device, &createInfo, nil, &b.buffer), "vk.CreateBuffer()"); err != nil {
		return gfx.Buffer{}, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.buffer, &req)
	req.Deref()

	memory, err := d.memory.Malloc(req, info.Memory)
	if err != nil {
		vk.DestroyBuffer(d.device, b.buffer, nil)
		return gfx.Buffer{}, err
	}
	b.memory = memory
	b.size = info.Size

	if err := result(vk.BindBufferMemory(d.device, b.buffer, b.memory, 0), "vk.BindBufferMemory()"); err != nil {
		d.releaseBuffer(b)
		return gfx.Buffer{}, err
	}

	if info.Memory == gfx.MemoryHostVisible {
		var mapped unsafe.Pointer
		if err := result(vk.MapMemory(d.device, b.memory, 0, vk.DeviceSize(info.Size), 0, &mapped), "vk.MapMemory()"); err != nil {
			d.releaseBuffer(b)
			return gfx.Buffer{}, err
		}
		b.mapped = mapped
	}
	return gfx.Buffer(d.buffers.Insert(b)), nil
}

func (d *Device) releaseBuffer(b buffer) {
	if b.mapped != nil {
		vk.UnmapMemory(d.device, b.memory)
	}
	vk.DestroyBuffer(d.device, b.buffer, nil)
	d.memory.Free(b.memory)
}

// DestroyBuffer implements gfx.Device.
func (d *Device) DestroyBuffer(h gfx.Buffer) {
	if b, ok := d.buffers.Remove(gfx.Handle(h)); ok {
		d.releaseBuffer(b)
	}
}

// WriteBuffer implements gfx.Device.
func (d *Device) WriteBuffer(h gfx.Buffer, offset uint64, data []byte) error {
	b, ok := d.buffers.Get(gfx.Handle(h))
	if !ok {
		return invalid("buffer", gfx.Handle(h))
	}
	if b.mapped == nil {
		return errors.Newf("buffer %s is not host visible", gfx.Handle(h))
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at %d overflows buffer %s of %d bytes", len(data), offset, gfx.Handle(h), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(b.mapped, offset), data)
	return nil
}

// CreateImage creates a 2D optimally tiled image in device local memory.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	depth := info.Extent.Depth
	if depth == 0 {
		depth = 1
	}
	mips := info.MipLevels
	if mips == 0 {
		mips = 1
	}
	samples := info.Samples
	if samples == 0 {
		samples = gfx.Samples1
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  depth,
		},
		MipLevels:     mips,
		ArrayLayers:   1,
		Format:        vk.Format(info.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCountFlagBits(samples),
	}

	img := image{owned: true}
	if err := result(vk.CreateImage(d.device, &createInfo, nil, &img.image), "vk.CreateImage()"); err != nil {
		return gfx.Image{}, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img.image, &req)
	req.Deref()

	memory, err := d.memory.Malloc(req, gfx.MemoryDeviceLocal)
	if err != nil {
		vk.DestroyImage(d.device, img.image, nil)
		return gfx.Image{}, err
	}
	img.memory = memory

	if err := result(vk.BindImageMemory(d.device, img.image, img.memory, 0), "vk.BindImageMemory()"); err != nil {
		vk.DestroyImage(d.device, img.image, nil)
		d.memory.Free(img.memory)
		return gfx.Image{}, err
	}
	return gfx.Image(d.images.Insert(img)), nil
}

// DestroyImage implements gfx.Device. Swapchain images are left alone.
func (d *Device) DestroyImage(h gfx.Image) {
	img, ok := d.images.Get(gfx.Handle(h))
	if !ok || !img.owned {
		return
	}
	d.images.Remove(gfx.Handle(h))
	vk.DestroyImage(d.device, img.image, nil)
	d.memory.Free(img.memory)
}

// CreateImageView implements gfx.Device.
func (d *Device) CreateImageView(info gfx.ImageViewInfo) (gfx.ImageView, error) {
	img, ok := d.images.Get(gfx.Handle(info.Image))
	if !ok {
		return gfx.ImageView{}, invalid("image", gfx.Handle(info.Image))
	}
	mips := info.MipLevels
	if mips == 0 {
		mips = 1
	}
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := result(vk.CreateImageView(d.device, &ivci, nil, &view), "vk.CreateImageView()"); err != nil {
		return gfx.ImageView{}, err
	}
	return gfx.ImageView(d.views.Insert(view)), nil
}

// DestroyImageView implements gfx.Device.
func (d *Device) DestroyImageView(h gfx.ImageView) {
	if view, ok := d.views.Remove(gfx.Handle(h)); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// CreateSampler creates a linear, repeating sampler. Anisotropy is only
// enabled when the device supports it.
func (d *Device) CreateSampler(info gfx.SamplerInfo) (gfx.Sampler, error) {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  info.MaxLod,
	}
	if d.anisotropy && info.Anisotropy > 1 {
		sci.AnisotropyEnable = vk.True
		sci.MaxAnisotropy = info.Anisotropy
	}

	var sampler vk.Sampler
	if err := result(vk.CreateSampler(d.device, &sci, nil, &sampler), "vk.CreateSampler()"); err != nil {
		return gfx.Sampler{}, err
	}
	return gfx.Sampler(d.samplers.Insert(sampler)), nil
}

// DestroySampler implements gfx.Device.
func (d *Device) DestroySampler(h gfx.Sampler) {
	if sampler, ok := d.samplers.Remove(gfx.Handle(h)); ok {
		vk.DestroySampler(d.device, sampler, nil)
	}
}

// CreateShaderModule implements gfx.Device. code must be SPIR-V.
func (d *Device) CreateShaderModule(code []byte) (gfx.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return gfx.ShaderModule{}, errors.Newf("shader code of %d bytes is not whole words", len(code))
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}

	var shader vk.ShaderModule
	if err := result(vk.CreateShaderModule(d.device, &smci, nil, &shader), "vk.CreateShaderModule()"); err != nil {
		return gfx.ShaderModule{}, err
	}
	return gfx.ShaderModule(d.shaders.Insert(shader)), nil
}

// DestroyShaderModule implements gfx.Device.
func (d *Device) DestroyShaderModule(h gfx.ShaderModule) {
	if shader, ok := d.shaders.Remove(gfx.Handle(h)); ok {
		vk.DestroyShaderModule(d.device, shader, nil)
	}
}
