// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/koru3d/lumen/asset"
	"github.com/koru3d/lumen/gfx"
	"github.com/sirupsen/logrus"
)

// textureMaxLod leaves the sampler's level of detail unclamped.
const textureMaxLod = 1000

// TextureHandle refers to a texture held by a TextureCache.
type TextureHandle gfx.Handle

// Texture is a sampled image with a full mip chain.
type Texture struct {
	ID        uuid.UUID
	Path      string
	Image     gfx.Image
	View      gfx.ImageView
	Sampler   gfx.Sampler
	Extent    gfx.Extent2D
	MipLevels uint32
}

// TextureCache loads texture assets onto the device, once per path.
type TextureCache struct {
	device gfx.Device
	source asset.Source
	frames FrameResources
	log    logrus.FieldLogger

	textures gfx.Arena[Texture]
	byPath   map[string]TextureHandle
	unpacked int
}

// NewTextureCache creates an empty cache.
func NewTextureCache(device gfx.Device, source asset.Source, frames FrameResources, logger logrus.FieldLogger) *TextureCache {
	return &TextureCache{
		device: device,
		source: source,
		frames: frames,
		log:    componentLogger(logger, "textures"),
		byPath: make(map[string]TextureHandle),
	}
}

// Create returns the texture for path, uploading it on first request.
func (c *TextureCache) Create(path string) (TextureHandle, error) {
	if h, ok := c.byPath[path]; ok {
		return h, nil
	}
	log := c.log.WithField("path", path)

	a, err := asset.Open(c.source, path)
	if err != nil {
		return TextureHandle{}, errors.Wrapf(err, "load texture %s", path)
	}
	info, err := asset.ParseTextureInfo(a)
	if err != nil {
		return TextureHandle{}, errors.Wrapf(err, "texture %s", path)
	}
	pixels := make([]byte, info.Size)
	if err := asset.UnpackTexture(info, a.Binary, pixels); err != nil {
		return TextureHandle{}, errors.Wrapf(err, "unpack texture %s", path)
	}
	c.unpacked++

	tex, err := c.upload(path, info, pixels)
	if err != nil {
		log.WithError(err).Error("Texture upload failed")
		return TextureHandle{}, err
	}
	h := TextureHandle(c.textures.Insert(tex))
	c.byPath[path] = h
	log.WithField("mips", tex.MipLevels).Debug("Texture created")
	return h, nil
}

func (c *TextureCache) upload(path string, info asset.TextureInfo, pixels []byte) (Texture, error) {
	dev := c.device
	tex := Texture{
		ID:        uuid.New(),
		Path:      path,
		Extent:    gfx.Extent2D{Width: info.Width, Height: info.Height},
		MipLevels: mipLevels(info.Width, info.Height),
	}

	staging, err := stageBuffer(dev, pixels)
	if err != nil {
		return Texture{}, err
	}
	defer dev.DestroyBuffer(staging)

	tex.Image, err = dev.CreateImage(gfx.ImageInfo{
		Extent:    gfx.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
		Format:    gfx.FormatRGBA8SRGB,
		MipLevels: tex.MipLevels,
		Samples:   gfx.Samples1,
		Usage:     gfx.ImageTransferSrc | gfx.ImageTransferDst | gfx.ImageSampled,
	})
	if err != nil {
		return Texture{}, errors.Wrapf(err, "create image for %s", path)
	}

	err = c.frames.Transfer(func(cb gfx.CommandBuffer) error {
		dev.CmdPipelineBarrier(cb, []gfx.ImageBarrier{{
			Image:     tex.Image,
			Aspect:    gfx.AspectColor,
			Old:       gfx.LayoutUndefined,
			New:       gfx.LayoutTransferDst,
			MipLevels: tex.MipLevels,
		}})
		dev.CmdCopyBufferToImage(cb, gfx.BufferImageCopy{
			Buffer: staging,
			Image:  tex.Image,
			Extent: gfx.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
		})
		recordMipChain(dev, cb, tex.Image, tex.Extent, tex.MipLevels)
		return nil
	})
	if err != nil {
		dev.DestroyImage(tex.Image)
		return Texture{}, errors.Wrapf(err, "upload %s", path)
	}

	tex.View, err = dev.CreateImageView(gfx.ImageViewInfo{
		Image:     tex.Image,
		Format:    gfx.FormatRGBA8SRGB,
		Aspect:    gfx.AspectColor,
		MipLevels: tex.MipLevels,
	})
	if err != nil {
		dev.DestroyImage(tex.Image)
		return Texture{}, errors.Wrapf(err, "create view for %s", path)
	}

	tex.Sampler, err = dev.CreateSampler(gfx.SamplerInfo{MaxLod: textureMaxLod})
	if err != nil {
		dev.DestroyImageView(tex.View)
		dev.DestroyImage(tex.Image)
		return Texture{}, errors.Wrapf(err, "create sampler for %s", path)
	}
	return tex, nil
}

// recordMipChain fills mip levels 1..levels-1 by blitting each level from
// the one above it, halving the extent each time. Every level ends up
// shader readable.
func recordMipChain(dev gfx.CommandDevice, cb gfx.CommandBuffer, image gfx.Image, extent gfx.Extent2D, levels uint32) {
	size := extent
	for level := uint32(1); level < levels; level++ {
		dev.CmdPipelineBarrier(cb, []gfx.ImageBarrier{{
			Image: image, Aspect: gfx.AspectColor,
			Old: gfx.LayoutTransferDst, New: gfx.LayoutTransferSrc,
			BaseMip: level - 1, MipLevels: 1,
		}})

		next := gfx.Extent2D{Width: halve(size.Width), Height: halve(size.Height)}
		dev.CmdBlitImage(cb, gfx.BlitInfo{
			Src: image, SrcLayout: gfx.LayoutTransferSrc, SrcMip: level - 1, SrcSize: size,
			Dst: image, DstLayout: gfx.LayoutTransferDst, DstMip: level, DstSize: next,
		})

		dev.CmdPipelineBarrier(cb, []gfx.ImageBarrier{{
			Image: image, Aspect: gfx.AspectColor,
			Old: gfx.LayoutTransferSrc, New: gfx.LayoutShaderReadOnly,
			BaseMip: level - 1, MipLevels: 1,
		}})
		size = next
	}
	dev.CmdPipelineBarrier(cb, []gfx.ImageBarrier{{
		Image: image, Aspect: gfx.AspectColor,
		Old: gfx.LayoutTransferDst, New: gfx.LayoutShaderReadOnly,
		BaseMip: levels - 1, MipLevels: 1,
	}})
}

// Get returns the texture behind h.
func (c *TextureCache) Get(h TextureHandle) (Texture, bool) {
	return c.textures.Get(gfx.Handle(h))
}

// Lookup returns the handle of an already loaded path.
func (c *TextureCache) Lookup(path string) (TextureHandle, bool) {
	h, ok := c.byPath[path]
	return h, ok
}

// Destroy evicts a texture. Its objects are destroyed once every frame
// submitted so far has completed.
func (c *TextureCache) Destroy(h TextureHandle) error {
	tex, ok := c.textures.Remove(gfx.Handle(h))
	if !ok {
		return errors.Wrapf(ErrUnknownResource, "texture %s", gfx.Handle(h))
	}
	delete(c.byPath, tex.Path)
	c.frames.Deletions().Push(
		DeleteImage(tex.Image),
		DeleteImageView(tex.View),
		DeleteSampler(tex.Sampler),
	)
	return nil
}

// Len returns the number of textures held.
func (c *TextureCache) Len() int {
	return c.textures.Len()
}

// DestroyAll destroys every texture immediately. The device must be idle.
func (c *TextureCache) DestroyAll() {
	c.textures.Each(func(h gfx.Handle, tex Texture) {
		c.device.DestroySampler(tex.Sampler)
		c.device.DestroyImageView(tex.View)
		c.device.DestroyImage(tex.Image)
		c.textures.Remove(h)
	})
	c.byPath = make(map[string]TextureHandle)
}
